package recovery

import (
	"path/filepath"
	"testing"

	"github.com/kwestlund/cooldb/internal/bufferpool"
	"github.com/kwestlund/cooldb/internal/lock"
	"github.com/kwestlund/cooldb/internal/pager"
	"github.com/kwestlund/cooldb/internal/txn"
	"github.com/kwestlund/cooldb/internal/txnpool"
	"github.com/kwestlund/cooldb/internal/walog"
	"github.com/kwestlund/cooldb/storage"
)

type harness struct {
	dir   string
	pg    *pager.Manager
	bufs  *bufferpool.Pool
	locks *lock.Manager
	pool  *txnpool.Pool
	wal   *walog.Manager
}

func newHarness(t *testing.T) (*harness, storage.FilePage) {
	t.Helper()
	dir := t.TempDir()

	pg, err := pager.New(dir, 256)
	if err != nil {
		t.Fatal(err)
	}
	if err := pg.AddFile(1, "data.0"); err != nil {
		t.Fatal(err)
	}
	if _, err := pg.Extend(1, 4); err != nil {
		t.Fatal(err)
	}

	redo, err := walog.OpenRedoWriter(filepath.Join(dir, "wal.redo"), 64, 256)
	if err != nil {
		t.Fatal(err)
	}
	undo, err := walog.OpenUndoWriter(filepath.Join(dir, "wal.undo"), 256)
	if err != nil {
		t.Fatal(err)
	}

	h := &harness{
		dir:   dir,
		pg:    pg,
		bufs:  bufferpool.New(pg, walog.NewManager(redo, undo), 4),
		locks: lock.New(),
		pool:  txnpool.New(),
		wal:   walog.NewManager(redo, undo),
	}

	return h, storage.NewFilePage(1, 0)
}

// reopen simulates a crash: it closes the redo/undo log files and the
// pager without flushing any in-memory buffer pool state, then reopens
// everything fresh so recovery has to reconstruct state purely from what
// is durable on disk.
func (h *harness) reopen(t *testing.T) {
	t.Helper()

	h.pg.Close()
	h.wal.Close()

	pg, err := pager.New(h.dir, 256)
	if err != nil {
		t.Fatal(err)
	}
	if err := pg.AddFile(1, "data.0"); err != nil {
		t.Fatal(err)
	}

	redo, err := walog.OpenRedoWriter(filepath.Join(h.dir, "wal.redo"), 64, 256)
	if err != nil {
		t.Fatal(err)
	}
	undo, err := walog.OpenUndoWriter(filepath.Join(h.dir, "wal.undo"), 256)
	if err != nil {
		t.Fatal(err)
	}

	h.pg = pg
	h.wal = walog.NewManager(redo, undo)
	h.bufs = bufferpool.New(pg, h.wal, 4)
	h.pool = txnpool.New()
	h.locks = lock.New()
}

func TestRecoveryRedoesCommittedAndUndoesLoser(t *testing.T) {
	h, fp := newHarness(t)

	committed, err := txn.Begin(h.pool, h.locks, h.bufs, h.wal)
	if err != nil {
		t.Fatal(err)
	}
	if err := committed.Pin(fp); err != nil {
		t.Fatal(err)
	}
	if err := committed.SetBytes(fp, 16, []byte("durable"), 0, true); err != nil {
		t.Fatal(err)
	}
	if err := committed.Commit(); err != nil {
		t.Fatal(err)
	}

	loser, err := txn.Begin(h.pool, h.locks, h.bufs, h.wal)
	if err != nil {
		t.Fatal(err)
	}
	if err := loser.Pin(fp); err != nil {
		t.Fatal(err)
	}
	if err := loser.SetBytes(fp, 16, []byte("inflight"), 0, true); err != nil {
		t.Fatal(err)
	}
	// crash before Commit or Rollback: loser's change must be undone by
	// recovery, not left in place.

	h.reopen(t)

	mgr := New(h.wal, h.bufs, h.pool)
	if err := mgr.Run(); err != nil {
		t.Fatal(err)
	}

	verify, err := txn.Begin(h.pool, h.locks, h.bufs, h.wal)
	if err != nil {
		t.Fatal(err)
	}
	if err := verify.Pin(fp); err != nil {
		t.Fatal(err)
	}
	got, err := verify.GetBytes(fp, 16, 7)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "durable" {
		t.Fatalf("expected recovery to leave committed value %q, got %q", "durable", got)
	}
	verify.Commit()
}

func TestRecoveryIsNoopWhenEverythingCommitted(t *testing.T) {
	h, fp := newHarness(t)

	tx, err := txn.Begin(h.pool, h.locks, h.bufs, h.wal)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Pin(fp); err != nil {
		t.Fatal(err)
	}
	if err := tx.SetBytes(fp, 16, []byte("clean"), 0, true); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	h.reopen(t)

	mgr := New(h.wal, h.bufs, h.pool)
	if err := mgr.Run(); err != nil {
		t.Fatal(err)
	}

	verify, err := txn.Begin(h.pool, h.locks, h.bufs, h.wal)
	if err != nil {
		t.Fatal(err)
	}
	if err := verify.Pin(fp); err != nil {
		t.Fatal(err)
	}
	got, err := verify.GetBytes(fp, 16, 5)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "clean" {
		t.Fatalf("expected %q to survive a no-op recovery, got %q", "clean", got)
	}
	verify.Commit()
}
