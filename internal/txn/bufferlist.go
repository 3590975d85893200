package txn

import (
	"github.com/kwestlund/cooldb/internal/bufferpool"
	"github.com/kwestlund/cooldb/storage"
)

// bufferList tracks every handle a transaction currently has pinned, with a
// per-page pin count so repeated Pin calls on the same page are cheap and
// UnpinAll releases exactly what was acquired.
//
// Grounded on github.com/luigitni/simpledb's tx.BufferList, generalized
// from its string-keyed block map to storage.FilePage keys.
type bufferList struct {
	pool    *bufferpool.Pool
	handles map[storage.FilePage]*bufferpool.Handle
	pins    map[storage.FilePage]int
}

func newBufferList(pool *bufferpool.Pool) *bufferList {
	return &bufferList{
		pool:    pool,
		handles: make(map[storage.FilePage]*bufferpool.Handle),
		pins:    make(map[storage.FilePage]int),
	}
}

func (l *bufferList) pin(fp storage.FilePage) (*bufferpool.Handle, error) {
	if h, ok := l.handles[fp]; ok {
		l.pins[fp]++
		return h, nil
	}

	h, err := l.pool.Pin(fp)
	if err != nil {
		return nil, err
	}
	l.handles[fp] = h
	l.pins[fp] = 1
	return h, nil
}

func (l *bufferList) get(fp storage.FilePage) *bufferpool.Handle {
	return l.handles[fp]
}

// unpin releases one pin on fp. affinity carries the caller's hint for
// what the page's eviction class should become; h.Affinity() preserves
// whatever pin()'s auto-promotion already reached.
func (l *bufferList) unpin(fp storage.FilePage, affinity bufferpool.Affinity) {
	h, ok := l.handles[fp]
	if !ok {
		return
	}
	h.UnPin(affinity)

	if l.pins[fp] <= 1 {
		delete(l.pins, fp)
		delete(l.handles, fp)
		return
	}
	l.pins[fp]--
}

// unpinAll releases every pin this transaction holds, applying affinity to
// each (spec.md §4.4's caller-supplied unpin affinity has no per-page
// granularity at commit/rollback time, since every page a transaction
// touched is equally likely to be revisited soon).
func (l *bufferList) unpinAll(affinity bufferpool.Affinity) {
	for _, h := range l.handles {
		h.UnPin(affinity)
	}
	l.handles = make(map[storage.FilePage]*bufferpool.Handle)
	l.pins = make(map[storage.FilePage]int)
}
