// Package deadlock implements the engine's Deadlock Detector (spec.md
// §5.3): it periodically builds the wait-for graph from the lock manager,
// looks for cycles, and breaks each one by aborting the cheapest
// transaction to roll back.
//
// The teacher repo (github.com/luigitni/simpledb) has no deadlock detector
// at all; tx.LockTable instead relies purely on per-request timeouts. This
// package is grounded on the wait-for-graph-plus-cost-victim design spec.md
// §5.3 itself describes, expressed with the teacher's goroutine-and-ticker
// idiom (see tx.LockTable's dispatch goroutine) generalized into a
// standalone polling detector that any lock.Manager can be wired to.
package deadlock

import (
	"sync"
	"time"

	"github.com/kwestlund/cooldb/internal/lock"
	"github.com/kwestlund/cooldb/storage"
)

// Graph is the source of wait-for edges a Detector polls. *lock.Manager
// satisfies it directly.
type Graph interface {
	WaitEdges() []WaitEdge
	Abort(txn storage.TxID)
}

// WaitEdge is the lock manager's wait-for edge type.
type WaitEdge = lock.WaitEdge

// CostFunc returns the estimated rollback cost of aborting txn: bytes of
// undo log written, locks held, whatever the caller wants to weigh. The
// detector always aborts the cheapest transaction in a cycle, per spec.md
// §5.3 ("cost-based victim selection").
type CostFunc func(txn storage.TxID) int

// Detector polls a Graph on an interval and aborts a victim from every
// cycle it finds.
type Detector struct {
	graph    Graph
	cost     CostFunc
	interval time.Duration

	mu      sync.Mutex
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

// New constructs a Detector. cost may be nil, in which case every
// transaction is considered equally expensive and the detector breaks ties
// by transaction id (the lowest id, i.e. the oldest transaction, is
// aborted).
func New(g Graph, interval time.Duration, cost CostFunc) *Detector {
	if cost == nil {
		cost = func(storage.TxID) int { return 0 }
	}
	return &Detector{
		graph:    g,
		cost:     cost,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run polls until Stop is called. Intended to run in its own goroutine.
func (d *Detector) Run() {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	defer close(d.done)

	for {
		select {
		case <-ticker.C:
			d.sweep()
		case <-d.stop:
			return
		}
	}
}

// Stop halts Run and waits for it to return.
func (d *Detector) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	close(d.stop)
	<-d.done
}

// Sweep runs one detection pass synchronously, returning the transactions
// aborted. Exposed directly so tests and callers needing deterministic
// timing don't have to race Run's ticker.
func (d *Detector) Sweep() []storage.TxID {
	return d.sweep()
}

func (d *Detector) sweep() []storage.TxID {
	edges := d.graph.WaitEdges()
	if len(edges) == 0 {
		return nil
	}

	adj := make(map[storage.TxID][]storage.TxID)
	for _, e := range edges {
		adj[e.Waiter] = append(adj[e.Waiter], e.Holder)
	}

	var aborted []storage.TxID
	broken := make(map[storage.TxID]bool)

	for start := range adj {
		if broken[start] {
			continue
		}
		if cycle := findCycle(start, adj, broken); cycle != nil {
			victim := d.selectVictim(cycle)
			d.graph.Abort(victim)
			broken[victim] = true
			aborted = append(aborted, victim)
		}
	}

	return aborted
}

// findCycle does a DFS from start looking for a path back to start,
// ignoring any node already marked broken by an earlier cycle's victim
// removal in the same sweep.
func findCycle(start storage.TxID, adj map[storage.TxID][]storage.TxID, broken map[storage.TxID]bool) []storage.TxID {
	visited := make(map[storage.TxID]bool)
	var path []storage.TxID

	var dfs func(node storage.TxID) []storage.TxID
	dfs = func(node storage.TxID) []storage.TxID {
		if broken[node] {
			return nil
		}
		if node == start && len(path) > 0 {
			return append([]storage.TxID{}, path...)
		}
		if visited[node] {
			return nil
		}
		visited[node] = true
		path = append(path, node)
		for _, next := range adj[node] {
			if cycle := dfs(next); cycle != nil {
				return cycle
			}
		}
		path = path[:len(path)-1]
		return nil
	}

	for _, next := range adj[start] {
		path = append(path, start)
		if cycle := dfs(next); cycle != nil {
			return cycle
		}
		path = path[:0]
	}
	return nil
}

// selectVictim picks the cheapest transaction in cycle to abort, breaking
// ties by the lowest transaction id.
func (d *Detector) selectVictim(cycle []storage.TxID) storage.TxID {
	victim := cycle[0]
	best := d.cost(victim)
	for _, txn := range cycle[1:] {
		c := d.cost(txn)
		if c < best || (c == best && txn < victim) {
			victim = txn
			best = c
		}
	}
	return victim
}
