package bufferpool

import (
	"sync"

	"github.com/kwestlund/cooldb/storage"
)

// frame is one slot of the buffer pool: a page-sized byte buffer plus the
// latching and dirty-tracking state the pool needs to decide whether it can
// be evicted (spec.md §4.4). Latches are SHARED/EXCLUSIVE rwmutexes, one per
// slot, distinct from the pin count: a pin keeps a slot resident, a latch
// serializes access to its bytes.
type frame struct {
	latch sync.RWMutex

	page storage.FilePage
	buf  []byte

	mu       sync.Mutex
	pins     int
	dirty    bool
	pageLSN  storage.LSN
	modifier storage.TxID
	affinity Affinity
	seq      uint64 // fault ordinal, used to find the longest-resident LOVED frame when aging
	valid    bool
}

func newFrame(pageSize int) *frame {
	return &frame{
		buf:      make([]byte, pageSize),
		modifier: storage.TxIDInvalid,
	}
}

func (f *frame) isPinned() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pins > 0
}

func (f *frame) pin() {
	f.mu.Lock()
	f.pins++
	f.affinity = f.affinity.upgrade()
	f.mu.Unlock()
}

// unpin releases one pin and applies the caller's affinity hint, which
// overrides whatever class repeated pin() promotion had reached (spec.md
// §4.4: "the caller's unpin affinity overrides").
func (f *frame) unpin(affinity Affinity) {
	f.mu.Lock()
	if f.pins > 0 {
		f.pins--
	}
	f.affinity = affinity
	f.mu.Unlock()
}

func (f *frame) markDirty(lsn storage.LSN, txn storage.TxID) {
	f.mu.Lock()
	f.dirty = true
	f.pageLSN = lsn
	f.modifier = txn
	f.mu.Unlock()
}

func (f *frame) isDirty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty
}
