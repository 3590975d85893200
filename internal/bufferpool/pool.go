// Package bufferpool implements the engine's Buffer Pool (spec.md §4.4): a
// fixed set of page-sized frames shared by every transaction, latched
// SHARED/EXCLUSIVE per access and replaced by HATED/LIKED/LOVED affinity
// rather than strict LRU.
//
// Grounded on github.com/luigitni/simpledb's buffer.Manager (free-list plus
// block-indexed pin/unpin), generalized to the spec's affinity replacer and
// extended to coordinate flushes with the write-ahead log: a dirty frame is
// never written back before its pageLSN has been durably flushed
// (spec.md §4.4: "flushDirty first calls wal.flushTo(page.pageLSN), then
// fileManager.flush").
package bufferpool

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/kwestlund/cooldb/internal/pager"
	"github.com/kwestlund/cooldb/internal/walog"
	"github.com/kwestlund/cooldb/storage"
)

var ErrNoFreeFrames = errors.New("bufferpool: no unpinned frame available")

// lovedAgingPeriod is how many UnPin/UnPinDirty calls the replacer lets
// pass before it demotes the single longest-resident LOVED frame to LIKED,
// so a page that is no longer actually hot eventually becomes evictable
// again (spec.md §4.4: "Aging rotates LOVED pages toward LIKED over time
// so they do not pin the cache forever").
const lovedAgingPeriod = 64

// Pool is the fixed-size set of buffer frames. Safe for concurrent use.
type Pool struct {
	pager *pager.Manager
	wal   *walog.Manager

	mu       sync.Mutex
	frames   []*frame
	index    map[storage.FilePage]int
	free     []int
	faultSeq uint64
	unpins   uint64

	faults singleflight.Group

	walEnabled bool
}

// New allocates count frames of pager.PageSize() bytes each.
func New(pg *pager.Manager, wal *walog.Manager, count int) *Pool {
	frames := make([]*frame, count)
	free := make([]int, count)
	for i := range frames {
		frames[i] = newFrame(int(pg.PageSize()))
		free[i] = i
	}

	return &Pool{
		pager:      pg,
		wal:        wal,
		frames:     frames,
		index:      make(map[storage.FilePage]int),
		free:       free,
		walEnabled: true,
	}
}

// SetWriteAheadLogging toggles whether flushDirty honors the WAL-before-page
// rule. Tests that don't wire a WAL disable it; production never does.
func (p *Pool) SetWriteAheadLogging(enabled bool) {
	p.mu.Lock()
	p.walEnabled = enabled
	p.mu.Unlock()
}

// IsCached reports whether fp currently has a resident frame.
func (p *Pool) IsCached(fp storage.FilePage) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.index[fp]
	return ok
}

// Pin returns the frame holding fp, faulting it in from the pager if it is
// not already resident. Concurrent Pin calls for the same not-yet-cached
// page collapse into a single disk read via singleflight.
func (p *Pool) Pin(fp storage.FilePage) (*Handle, error) {
	p.mu.Lock()
	if idx, ok := p.index[fp]; ok {
		f := p.frames[idx]
		p.mu.Unlock()
		f.pin()
		hits.Inc()
		return &Handle{pool: p, idx: idx, frame: f}, nil
	}
	p.mu.Unlock()

	_, err, _ := p.faults.Do(fp.String(), func() (any, error) {
		return nil, p.fault(fp)
	})
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	idx, ok := p.index[fp]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("bufferpool: fault for %s did not populate a frame", fp)
	}

	f := p.frames[idx]
	f.pin()
	return &Handle{pool: p, idx: idx, frame: f}, nil
}

// TryPin behaves like Pin but never faults a new page in; it only returns an
// already-resident frame, or ok=false.
func (p *Pool) TryPin(fp storage.FilePage) (handle *Handle, ok bool) {
	p.mu.Lock()
	idx, found := p.index[fp]
	p.mu.Unlock()
	if !found {
		return nil, false
	}
	f := p.frames[idx]
	f.pin()
	return &Handle{pool: p, idx: idx, frame: f}, true
}

func (p *Pool) fault(fp storage.FilePage) error {
	p.mu.Lock()
	if _, ok := p.index[fp]; ok {
		p.mu.Unlock()
		return nil
	}

	idx, err := p.chooseVictimLocked()
	if err != nil {
		p.mu.Unlock()
		return err
	}
	f := p.frames[idx]
	p.mu.Unlock()

	misses.Inc()

	f.latch.Lock()
	defer f.latch.Unlock()

	if f.valid && f.isDirty() {
		if err := p.flushDirty(f); err != nil {
			return err
		}
	}

	if err := p.pager.Fetch(fp, f.buf); err != nil {
		return err
	}

	p.mu.Lock()
	if f.valid {
		delete(p.index, f.page)
	}
	p.faultSeq++
	f.page = fp
	f.valid = true
	f.dirty = false
	f.affinity = Hated
	f.seq = p.faultSeq
	p.index[fp] = idx
	p.mu.Unlock()

	return nil
}

// chooseVictimLocked returns a frame index ready to be faulted into, evicting
// the lowest-affinity unpinned frame present if the free list is empty.
// Callers must hold p.mu.
func (p *Pool) chooseVictimLocked() (int, error) {
	if n := len(p.free); n > 0 {
		idx := p.free[n-1]
		p.free = p.free[:n-1]
		return idx, nil
	}

	for class := Hated; class <= Loved; class++ {
		for fp, idx := range p.index {
			f := p.frames[idx]
			if f.isPinned() {
				continue
			}
			f.mu.Lock()
			aff := f.affinity
			f.mu.Unlock()
			if aff != class {
				continue
			}
			delete(p.index, fp)
			evictions.Inc()
			return idx, nil
		}
	}

	return 0, ErrNoFreeFrames
}

// ageLoved demotes the single longest-resident LOVED frame to LIKED, every
// lovedAgingPeriod UnPin/UnPinDirty calls. Without this, a page promoted to
// LOVED early on and never touched again would sit at the top affinity
// class forever and the replacer would never consider it for eviction.
func (p *Pool) ageLoved() {
	p.mu.Lock()
	p.unpins++
	due := p.unpins%lovedAgingPeriod == 0
	if !due {
		p.mu.Unlock()
		return
	}
	frames := make([]*frame, 0, len(p.index))
	for _, idx := range p.index {
		frames = append(frames, p.frames[idx])
	}
	p.mu.Unlock()

	var oldest *frame
	var oldestSeq uint64
	for _, f := range frames {
		f.mu.Lock()
		if f.affinity == Loved && (oldest == nil || f.seq < oldestSeq) {
			oldest = f
			oldestSeq = f.seq
		}
		f.mu.Unlock()
	}

	if oldest != nil {
		oldest.mu.Lock()
		oldest.affinity = oldest.affinity.downgrade()
		oldest.mu.Unlock()
	}
}

// flushDirty durably writes f's page back through the pager, first flushing
// the WAL up to the page's pageLSN so the WAL invariant holds. Caller must
// hold f.latch.
func (p *Pool) flushDirty(f *frame) error {
	p.mu.Lock()
	enabled := p.walEnabled
	p.mu.Unlock()

	if enabled && p.wal != nil {
		if err := p.wal.FlushTo(f.pageLSN); err != nil {
			return err
		}
	}

	if err := p.pager.Flush(f.page, f.buf, false); err != nil {
		return err
	}

	f.mu.Lock()
	f.dirty = false
	f.mu.Unlock()

	flushes.Inc()
	return nil
}

// EnsureCapacity reports whether at least n frames could be made available
// for eviction without exceeding the pool's fixed size (spec.md §4.4:
// callers probe capacity before starting a batch of pins they intend to
// hold simultaneously).
func (p *Pool) EnsureCapacity(n int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n <= len(p.free) {
		return true
	}

	available := len(p.free)
	for idx, f := range p.frames {
		if _, inFree := indexOf(p.free, idx); inFree {
			continue
		}
		if !f.isPinned() {
			available++
		}
	}
	return available >= n
}

func indexOf(s []int, v int) (int, bool) {
	for i, x := range s {
		if x == v {
			return i, true
		}
	}
	return -1, false
}

// FlushForTxn flushes every dirty frame last modified by txn, as a
// transaction does for its own pages before writing its commit record
// (spec.md §5.4; grounded on the teacher's buffer.Manager.FlushAll).
func (p *Pool) FlushForTxn(txn storage.TxID) error {
	p.mu.Lock()
	frames := make([]*frame, 0, len(p.index))
	for _, idx := range p.index {
		frames = append(frames, p.frames[idx])
	}
	p.mu.Unlock()

	for _, f := range frames {
		f.latch.Lock()
		f.mu.Lock()
		matches := f.dirty && f.modifier == txn
		f.mu.Unlock()

		if matches {
			if err := p.flushDirty(f); err != nil {
				f.latch.Unlock()
				return err
			}
		}
		f.latch.Unlock()
	}
	return nil
}

// CheckPoint flushes every currently dirty frame, as the checkpoint writer
// does when recording a fuzzy checkpoint's dirty-page table, and returns how
// many frames were dirty (for the checkpoint writer's dirty-page-table size
// gauge).
func (p *Pool) CheckPoint() (int, error) {
	p.mu.Lock()
	frames := make([]*frame, 0, len(p.index))
	for _, idx := range p.index {
		frames = append(frames, p.frames[idx])
	}
	p.mu.Unlock()

	flushed := 0
	for _, f := range frames {
		f.latch.Lock()
		if f.isDirty() {
			if err := p.flushDirty(f); err != nil {
				f.latch.Unlock()
				return flushed, err
			}
			flushed++
		}
		f.latch.Unlock()
	}
	return flushed, nil
}

// Handle is a caller's pin on a resident frame. It must be released exactly
// once via UnPin or UnPinDirty.
type Handle struct {
	pool  *Pool
	idx   int
	frame *frame
}

func (h *Handle) FilePage() storage.FilePage {
	return h.frame.page
}

// Affinity returns the frame's current affinity class, letting a caller
// with no particular hint pass it straight back into UnPin/UnPinDirty to
// preserve whatever pin()'s auto-promotion reached instead of overriding it.
func (h *Handle) Affinity() Affinity {
	h.frame.mu.Lock()
	defer h.frame.mu.Unlock()
	return h.frame.affinity
}

// Bytes returns the frame's raw page buffer. Callers must hold the
// appropriate latch (RLatch for reads, Latch for writes) before touching it.
func (h *Handle) Bytes() []byte {
	return h.frame.buf
}

func (h *Handle) Latch()    { h.frame.latch.Lock() }
func (h *Handle) Unlatch()  { h.frame.latch.Unlock() }
func (h *Handle) RLatch()   { h.frame.latch.RLock() }
func (h *Handle) RUnlatch() { h.frame.latch.RUnlock() }

// UnPin releases the pin without marking the frame dirty, stamping affinity
// as the frame's new class (spec.md §4.4: "unPin(buf, affinity)" — the
// caller's hint overrides whatever class repeated pinning had promoted the
// frame to).
func (h *Handle) UnPin(affinity Affinity) {
	h.frame.unpin(affinity)
	h.pool.ageLoved()
}

// MarkDirty records that txn modified this frame, producing the redo
// record at lsn, without releasing the pin. Transactions call this after
// every logged write; the pin itself is released later, by UnPin when the
// transaction unpins its buffers at commit or rollback.
func (h *Handle) MarkDirty(lsn storage.LSN, txn storage.TxID) {
	h.frame.markDirty(lsn, txn)
}

// UnPinDirty marks the frame dirty and releases the pin in one call, for
// callers whose pin and write are scoped together (spec.md §4.4:
// "unPinDirty(buf, affinity, endLSN)").
func (h *Handle) UnPinDirty(affinity Affinity, lsn storage.LSN, txn storage.TxID) {
	h.frame.markDirty(lsn, txn)
	h.frame.unpin(affinity)
	h.pool.ageLoved()
}
