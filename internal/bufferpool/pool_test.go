package bufferpool

import (
	"path/filepath"
	"testing"

	"github.com/kwestlund/cooldb/internal/pager"
	"github.com/kwestlund/cooldb/internal/walog"
	"github.com/kwestlund/cooldb/storage"
)

func newTestPool(t *testing.T, frames int) (*Pool, storage.FilePage) {
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
	if _, err := pg.Extend(1, 8); err != nil {
		t.Fatal(err)
	}

	redo, err := walog.OpenRedoWriter(filepath.Join(dir, "wal.redo"), 4, 256)
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
	pool := New(pg, wal, frames)

	return pool, storage.NewFilePage(1, 0)
}

func TestPinFaultsFromDisk(t *testing.T) {
	pool, fp := newTestPool(t, 2)

	h, err := pool.Pin(fp)
	if err != nil {
		t.Fatal(err)
	}
	if !pool.IsCached(fp) {
		t.Fatal("expected page to be cached after pin")
	}
	h.UnPin(Liked)
}

func TestPinSameBlockTwiceSharesFrame(t *testing.T) {
	pool, fp := newTestPool(t, 2)

	h1, err := pool.Pin(fp)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := pool.Pin(fp)
	if err != nil {
		t.Fatal(err)
	}

	if h1.idx != h2.idx {
		t.Fatalf("expected same frame, got %d and %d", h1.idx, h2.idx)
	}

	h1.UnPin(Liked)
	h2.UnPin(Liked)
}

func TestEvictionReplacesUnpinnedFrame(t *testing.T) {
	pool, fp := newTestPool(t, 1)

	h1, err := pool.Pin(fp)
	if err != nil {
		t.Fatal(err)
	}
	h1.UnPin(Liked)

	other := storage.NewFilePage(1, 1)
	h2, err := pool.Pin(other)
	if err != nil {
		t.Fatal(err)
	}
	defer h2.UnPin(Liked)

	if pool.IsCached(fp) {
		t.Fatal("expected original page to have been evicted")
	}
	if !pool.IsCached(other) {
		t.Fatal("expected new page to be cached")
	}
}

func TestNoFreeFramesWhenAllPinned(t *testing.T) {
	pool, fp := newTestPool(t, 1)

	h1, err := pool.Pin(fp)
	if err != nil {
		t.Fatal(err)
	}
	defer h1.UnPin(Liked)

	other := storage.NewFilePage(1, 1)
	if _, err := pool.Pin(other); err != ErrNoFreeFrames {
		t.Fatalf("expected ErrNoFreeFrames, got %v", err)
	}
}

func TestUnPinDirtyThenCheckPointFlushes(t *testing.T) {
	pool, fp := newTestPool(t, 2)

	h, err := pool.Pin(fp)
	if err != nil {
		t.Fatal(err)
	}

	h.Latch()
	copy(h.Bytes(), []byte("hello"))
	h.Unlatch()

	h.UnPinDirty(Liked, storage.NullLSN, 1)

	if _, err := pool.CheckPoint(); err != nil {
		t.Fatal(err)
	}

	if pool.frames[h.idx].isDirty() {
		t.Fatal("expected frame to be clean after checkpoint")
	}
}

func TestAgingDemotesLongestResidentLoved(t *testing.T) {
	pool, fp := newTestPool(t, 4)

	h, err := pool.Pin(fp)
	if err != nil {
		t.Fatal(err)
	}
	h.UnPin(Loved)

	if got := pool.frames[h.idx].affinity; got != Loved {
		t.Fatalf("expected frame to be LOVED, got %s", got)
	}

	other := storage.NewFilePage(1, 1)
	for i := 0; i < lovedAgingPeriod; i++ {
		oh, err := pool.Pin(other)
		if err != nil {
			t.Fatal(err)
		}
		oh.UnPin(Liked)
	}

	if got := pool.frames[h.idx].affinity; got != Liked {
		t.Fatalf("expected LOVED frame to age down to LIKED after %d unpins, got %s", lovedAgingPeriod, got)
	}
}
