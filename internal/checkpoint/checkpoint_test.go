package checkpoint

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kwestlund/cooldb/internal/bufferpool"
	"github.com/kwestlund/cooldb/internal/pager"
	"github.com/kwestlund/cooldb/internal/txnpool"
	"github.com/kwestlund/cooldb/internal/walog"
)

func newTestWriter(t *testing.T) *Writer {
	t.Helper()
	dir := t.TempDir()

	pg, err := pager.New(dir, 256)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { pg.Close() })

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

	wal := walog.NewManager(redo, undo)
	bufs := bufferpool.New(pg, wal, 4)
	pool := txnpool.New()

	return New(wal, bufs, pool, time.Hour)
}

func TestCheckpointSucceedsWithNoActivity(t *testing.T) {
	w := newTestWriter(t)
	if err := w.Checkpoint(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestCheckpointAdvancesFirewall(t *testing.T) {
	w := newTestWriter(t)

	before := w.wal.Redo.Firewall()
	if err := w.Checkpoint(context.Background()); err != nil {
		t.Fatal(err)
	}
	after := w.wal.Redo.Firewall()

	if after < before {
		t.Fatalf("firewall moved backwards: %d -> %d", before, after)
	}
}

func TestCheckpointWithActiveTransaction(t *testing.T) {
	w := newTestWriter(t)
	w.pool.Begin(1)

	if err := w.Checkpoint(context.Background()); err != nil {
		t.Fatal(err)
	}
}
