// Package checkpoint implements the engine's fuzzy checkpoint writer
// (spec.md §6): a BEGIN_CHECKPOINT record, a snapshot of the active
// transaction table and dirty-page table taken without blocking new
// transactions, an END_CHECKPOINT record carrying that snapshot, and an
// advance of the redo log's firewall once the snapshot is durable.
//
// Grounded on github.com/luigitni/simpledb's tx/checkpoint.go, which
// writes a single quiescent CHECKPOINT record with no payload (the teacher
// stops the world first, so there is nothing to snapshot). Generalized to
// a true fuzzy checkpoint the way
// therealutkarshpriyadarshi-mydb/pkg/log/wal/checkpoint.go and
// checkpoint_daemon.go structure theirs: a periodic daemon plus an
// on-demand Checkpoint() call, and concurrent capture of the two
// snapshots via golang.org/x/sync/errgroup.
package checkpoint

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kwestlund/cooldb/internal/bufferpool"
	"github.com/kwestlund/cooldb/internal/systemkey"
	"github.com/kwestlund/cooldb/internal/txnpool"
	"github.com/kwestlund/cooldb/internal/walog"
	"github.com/kwestlund/cooldb/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Writer periodically records a fuzzy checkpoint.
type Writer struct {
	wal  *walog.Manager
	bufs *bufferpool.Pool
	pool *txnpool.Pool
	sk   *systemkey.File // optional; nil in tests that don't exercise restart
	log  zerolog.Logger  // optional; defaults to a no-op logger

	Interval time.Duration

	stop chan struct{}
	done chan struct{}
}

func New(wal *walog.Manager, bufs *bufferpool.Pool, pool *txnpool.Pool, interval time.Duration) *Writer {
	return &Writer{
		wal:      wal,
		bufs:     bufs,
		pool:     pool,
		log:      zerolog.Nop(),
		Interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// WithSystemKey attaches the database's system key file, so every
// checkpoint persists its BEGIN_CHECKPOINT LSN as the master record
// recovery should start analysis from on the next restart.
func (w *Writer) WithSystemKey(sk *systemkey.File) *Writer {
	w.sk = sk
	return w
}

// WithLogger attaches log, so each checkpoint's completion (or the
// periodic daemon's failures, which Run otherwise swallows) is reported.
func (w *Writer) WithLogger(log zerolog.Logger) *Writer {
	w.log = log
	return w
}

// Run fires Checkpoint on Interval until Stop is called. Intended to run
// in its own goroutine.
func (w *Writer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	defer close(w.done)

	for {
		select {
		case <-ticker.C:
			if err := w.Checkpoint(ctx); err != nil {
				w.log.Error().Err(err).Msg("periodic checkpoint failed")
			}
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Writer) Stop() {
	close(w.stop)
	<-w.done
}

// snapshot is the payload of an END_CHECKPOINT record.
type snapshot struct {
	activeTxns []storage.TxID
	dirtyFirst storage.LSN // min active startLSN; dirty pages' LSNs are not consulted
}

// Checkpoint writes BEGIN_CHECKPOINT, captures the active-transaction and
// dirty-page snapshots concurrently, writes END_CHECKPOINT with the
// result, then advances the redo log's firewall to the point recovery
// would need to start from after this checkpoint (spec.md §6: "a fuzzy
// checkpoint lets the redo log discard everything before the oldest LSN
// any dirty page or active transaction still depends on").
func (w *Writer) Checkpoint(ctx context.Context) error {
	timer := prometheus.NewTimer(duration)
	defer timer.ObserveDuration()

	beginLSN, err := w.wal.Redo.Write(walog.EncodeRedoRecord(walog.RedoRecord{
		Type: walog.RecordBeginCheckpoint,
	}))
	if err != nil {
		return err
	}

	snap, err := w.captureSnapshot(ctx)
	if err != nil {
		return err
	}

	endLSN, err := w.wal.Redo.Write(encodeEndCheckpoint(snap))
	if err != nil {
		return err
	}
	if err := w.wal.FlushTo(endLSN); err != nil {
		return err
	}

	firewall := beginLSN
	if snap.dirtyFirst != storage.NullLSN && snap.dirtyFirst < firewall {
		firewall = snap.dirtyFirst
	}
	w.wal.Redo.MoveFirewallTo(firewall)

	if w.sk != nil {
		if err := w.sk.Write(w.pool.NextID(), beginLSN); err != nil {
			return err
		}
	}

	w.log.Info().
		Uint64("beginLSN", uint64(beginLSN)).
		Int("activeTxns", len(snap.activeTxns)).
		Msg("checkpoint complete")

	return nil
}

// captureSnapshot runs the active-transaction-table read and the
// dirty-page flush concurrently: neither blocks new transactions from
// starting, which is what makes this a fuzzy rather than quiescent
// checkpoint.
func (w *Writer) captureSnapshot(ctx context.Context) (snapshot, error) {
	g, _ := errgroup.WithContext(ctx)

	var active []storage.TxID
	var minActive storage.LSN
	hasActive := false

	g.Go(func() error {
		active = w.pool.ActiveIDs()
		minActive, hasActive = w.pool.MinActiveStartLSN()
		return nil
	})

	g.Go(func() error {
		flushed, err := w.bufs.CheckPoint()
		if err != nil {
			return err
		}
		dirtyPages.Set(float64(flushed))
		return nil
	})

	if err := g.Wait(); err != nil {
		return snapshot{}, err
	}

	activeTxns.Set(float64(len(active)))

	snap := snapshot{activeTxns: active}
	if hasActive {
		snap.dirtyFirst = minActive
	}
	return snap, nil
}

func encodeEndCheckpoint(snap snapshot) []byte {
	rec := walog.RedoRecord{
		Type: walog.RecordEndCheckpoint,
	}
	for _, id := range snap.activeTxns {
		rec.Data = append(rec.Data, walog.LogData{ID: 0, Bytes: encodeTxID(id)})
	}
	rec.Data = append(rec.Data, walog.LogData{ID: 1, Bytes: encodeLSN(snap.dirtyFirst)})
	return walog.EncodeRedoRecord(rec)
}

func encodeTxID(id storage.TxID) []byte {
	return []byte{byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)}
}

func encodeLSN(lsn storage.LSN) []byte {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(lsn >> (56 - 8*i))
	}
	return b[:]
}
