package walog

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/kwestlund/cooldb/storage"
)

func openTestUndo(t *testing.T) *UndoWriter {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.undo")
	u, err := OpenUndoWriter(path, 256)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { u.Close() })
	return u
}

func TestUndoWriteReadRoundTrip(t *testing.T) {
	u := openTestUndo(t)

	rec := EncodeUndoRecord(UndoRecord{
		TransID:  3,
		Page:     storage.NewFilePage(2, 9),
		PageType: 1,
		Data:     []LogData{{ID: 5, Bytes: []byte("old-value")}},
	})

	off, err := u.Write(rec)
	if err != nil {
		t.Fatal(err)
	}

	got, err := u.Read(off, len(rec))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, rec) {
		t.Fatalf("round trip mismatch")
	}

	decoded, err := DecodeUndoRecord(got, storage.UndoPointer{Offset: 0, LSN: 1})
	if err != nil {
		t.Fatal(err)
	}
	if decoded.TransID != 3 || decoded.Page.PageID != 9 {
		t.Fatalf("decode mismatch: %+v", decoded)
	}
}

func TestUndoGrowsPastInitialCapacity(t *testing.T) {
	u := openTestUndo(t)

	rec := EncodeUndoRecord(UndoRecord{TransID: 1, Data: []LogData{{ID: 0, Bytes: make([]byte, 64)}}})

	var last uint64
	for i := 0; i < 20; i++ {
		off, err := u.Write(rec)
		if err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		if off <= last && i > 0 {
			t.Fatalf("offsets did not advance: %d -> %d", last, off)
		}
		last = off
	}
}

func TestUndoPurgeHidesOldRecords(t *testing.T) {
	u := openTestUndo(t)

	rec := EncodeUndoRecord(UndoRecord{TransID: 1})
	off, err := u.Write(rec)
	if err != nil {
		t.Fatal(err)
	}

	u.Purge(off + 1)

	if _, err := u.Read(off, len(rec)); err != ErrLogNotFound {
		t.Fatalf("expected ErrLogNotFound, got %v", err)
	}
}
