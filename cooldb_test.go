package cooldb

import (
	"context"
	"testing"

	"github.com/kwestlund/cooldb/internal/bufferpool"
	"github.com/kwestlund/cooldb/internal/segment"
	"github.com/kwestlund/cooldb/storage"
)

func TestOpenBootstrapsFreshDatabase(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir, Options{PageSize: 256, BufferPoolCapacity: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	rec := db.SystemKey()
	if rec.NextTransID != storage.TxIDStart {
		t.Fatalf("fresh database should start NextTransID at %d, got %d", storage.TxIDStart, rec.NextTransID)
	}
}

func TestBeginCommitAndSegmentAllocation(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir, Options{PageSize: 256, BufferPoolCapacity: 8})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		t.Fatal(err)
	}

	seg := &segment.Segment{
		ID:          storage.NewFilePage(dataFileID, 100),
		InitialSize: 2,
		GrowthRate:  1,
	}
	if _, err := db.Segments().AllocateNextExtent(tx, seg); err != nil {
		t.Fatal(err)
	}
	if len(seg.Extents) != 1 {
		t.Fatalf("expected one extent after allocation, got %d", len(seg.Extents))
	}

	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

// TestReopenWithoutCheckpointRecovers exercises spec.md §8 scenario 1:
// begin a transaction, write and commit, then close (simulating a crash)
// before the checkpoint writer's default 30s interval ever fires. Reopening
// must still succeed and recover the committed write, since bootstrap
// persists a valid system-key slot up front rather than relying on the
// first checkpoint to do it.
func TestReopenWithoutCheckpointRecovers(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir, Options{PageSize: 256, BufferPoolCapacity: 4})
	if err != nil {
		t.Fatal(err)
	}

	tx, err := db.Begin()
	if err != nil {
		t.Fatal(err)
	}

	fp := storage.NewFilePage(dataFileID, 0)
	if err := tx.Pin(fp); err != nil {
		t.Fatal(err)
	}
	want := []byte{7}
	if err := tx.SetBytes(fp, 100, want, 0, true); err != nil {
		t.Fatal(err)
	}
	tx.Unpin(fp, bufferpool.Liked)

	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(dir, Options{PageSize: 256, BufferPoolCapacity: 4})
	if err != nil {
		t.Fatalf("reopen without an intervening checkpoint should still succeed: %v", err)
	}
	defer reopened.Close()

	rtx, err := reopened.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := rtx.Pin(fp); err != nil {
		t.Fatal(err)
	}
	got, err := rtx.GetBytes(fp, 100, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != want[0] {
		t.Fatalf("expected recovered byte %d, got %d", want[0], got[0])
	}
	rtx.Rollback()
}

func TestCheckpointPersistsMasterRecord(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir, Options{PageSize: 256, BufferPoolCapacity: 4})
	if err != nil {
		t.Fatal(err)
	}

	tx, err := db.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	if err := db.Checkpoint(context.Background()); err != nil {
		t.Fatal(err)
	}

	before := db.SystemKey()
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(dir, Options{PageSize: 256, BufferPoolCapacity: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	after := reopened.SystemKey()
	if after.MasterLSN != before.MasterLSN {
		t.Fatalf("reopen should recover the checkpoint's master LSN %d, got %d", before.MasterLSN, after.MasterLSN)
	}
}
