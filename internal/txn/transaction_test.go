package txn

import (
	"path/filepath"
	"testing"

	"github.com/kwestlund/cooldb/internal/bufferpool"
	"github.com/kwestlund/cooldb/internal/lock"
	"github.com/kwestlund/cooldb/internal/pager"
	"github.com/kwestlund/cooldb/internal/txnpool"
	"github.com/kwestlund/cooldb/internal/walog"
	"github.com/kwestlund/cooldb/storage"
)

type harness struct {
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
	t.Cleanup(func() { pg.Close() })

	if err := pg.AddFile(1, "data.0"); err != nil {
		t.Fatal(err)
	}
	if _, err := pg.Extend(1, 4); err != nil {
		t.Fatal(err)
	}

	redo, err := walog.OpenRedoWriter(filepath.Join(dir, "wal.redo"), 8, 256)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { redo.Close() })

	undo, err := walog.OpenUndoWriter(filepath.Join(dir, "wal.undo"), 256)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { undo.Close() })

	h := &harness{
		pg:    pg,
		bufs:  bufferpool.New(pg, walog.NewManager(redo, undo), 4),
		locks: lock.New(),
		pool:  txnpool.New(),
		wal:   walog.NewManager(redo, undo),
	}

	return h, storage.NewFilePage(1, 0)
}

func TestSetBytesThenCommitPersists(t *testing.T) {
	h, fp := newHarness(t)

	tx, err := Begin(h.pool, h.locks, h.bufs, h.wal)
	if err != nil {
		t.Fatal(err)
	}

	if err := tx.Pin(fp); err != nil {
		t.Fatal(err)
	}
	if err := tx.SetBytes(fp, 16, []byte("hello"), 0, true); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	if !h.pool.IsCommitted(tx.ID()) {
		t.Fatal("expected transaction to be committed")
	}

	tx2, err := Begin(h.pool, h.locks, h.bufs, h.wal)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx2.Pin(fp); err != nil {
		t.Fatal(err)
	}
	got, err := tx2.GetBytes(fp, 16, 5)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("expected %q, got %q", "hello", got)
	}
	tx2.Commit()
}

func TestRollbackRestoresOldValue(t *testing.T) {
	h, fp := newHarness(t)

	seed, err := Begin(h.pool, h.locks, h.bufs, h.wal)
	if err != nil {
		t.Fatal(err)
	}
	if err := seed.Pin(fp); err != nil {
		t.Fatal(err)
	}
	if err := seed.SetBytes(fp, 16, []byte("before"), 0, true); err != nil {
		t.Fatal(err)
	}
	if err := seed.Commit(); err != nil {
		t.Fatal(err)
	}

	tx, err := Begin(h.pool, h.locks, h.bufs, h.wal)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Pin(fp); err != nil {
		t.Fatal(err)
	}
	if err := tx.SetBytes(fp, 16, []byte("after1"), 0, true); err != nil {
		t.Fatal(err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}

	verify, err := Begin(h.pool, h.locks, h.bufs, h.wal)
	if err != nil {
		t.Fatal(err)
	}
	if err := verify.Pin(fp); err != nil {
		t.Fatal(err)
	}
	got, err := verify.GetBytes(fp, 16, 6)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "before" {
		t.Fatalf("expected rollback to restore %q, got %q", "before", got)
	}
	verify.Commit()
}
