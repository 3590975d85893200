package walog

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/kwestlund/cooldb/storage"
)

func openTestWriter(t *testing.T, pages int, pageSize int) *RedoWriter {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.redo")
	w, err := OpenRedoWriter(path, pages, pageSize)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func TestWriteReadRoundTrip(t *testing.T) {
	w := openTestWriter(t, 4, 128)

	rec := EncodeRedoRecord(RedoRecord{
		Type:    RecordUpdate,
		TransID: 7,
		Page:    storage.NewFilePage(1, 3),
		Data:    []LogData{{ID: 1, Bytes: []byte("hello")}},
	})

	lsn, err := w.Write(rec)
	if err != nil {
		t.Fatal(err)
	}

	got, err := w.Read(lsn)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(got, rec) {
		t.Fatalf("round trip mismatch: want %x got %x", rec, got)
	}

	decoded, err := DecodeRedoRecord(got, lsn)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.TransID != 7 || decoded.Page.PageID != 3 {
		t.Fatalf("decode mismatch: %+v", decoded)
	}
}

func TestLSNsStrictlyIncrease(t *testing.T) {
	w := openTestWriter(t, 4, 128)

	var last storage.LSN
	for i := 0; i < 10; i++ {
		rec := EncodeRedoRecord(RedoRecord{Type: RecordCommit, TransID: storage.TxID(i)})
		lsn, err := w.Write(rec)
		if err != nil {
			t.Fatal(err)
		}
		if lsn <= last {
			t.Fatalf("LSN did not increase: %d -> %d", last, lsn)
		}
		last = lsn
	}
}

func TestReadBelowFirewallFails(t *testing.T) {
	w := openTestWriter(t, 4, 128)

	rec := EncodeRedoRecord(RedoRecord{Type: RecordCommit, TransID: 1})
	lsn, err := w.Write(rec)
	if err != nil {
		t.Fatal(err)
	}

	w.MoveFirewallTo(lsn + 1)

	if _, err := w.Read(lsn); err != ErrLogNotFound {
		t.Fatalf("expected ErrLogNotFound, got %v", err)
	}
}

func TestLogExhaustedWhenCrossingFirewall(t *testing.T) {
	// Tiny ring: 2 pages * 64 bytes = 128 usable-ish bytes.
	w := openTestWriter(t, 2, 64)

	rec := EncodeRedoRecord(RedoRecord{Type: RecordCommit, TransID: 1, Data: []LogData{{ID: 0, Bytes: make([]byte, 32)}}})

	var first storage.LSN
	wrote := 0
	for {
		lsn, err := w.Write(rec)
		if err == ErrLogExhausted {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if wrote == 0 {
			first = lsn
		}
		wrote++
		if wrote > 1000 {
			t.Fatal("never exhausted: firewall logic is broken")
		}
	}

	if wrote == 0 {
		t.Fatal("expected at least one successful write before exhaustion")
	}

	// advance the firewall past the oldest record and retry: should now
	// succeed and wrap to physical offset 1.
	w.MoveFirewallTo(first + storage.LSN(physHeaderSize+len(rec)))
	if _, err := w.Write(rec); err != nil {
		t.Fatalf("expected write to succeed after advancing firewall, got %v", err)
	}
}

func TestIteratorVisitsRecordsInOrder(t *testing.T) {
	w := openTestWriter(t, 4, 256)

	var lsns []storage.LSN
	for i := 0; i < 5; i++ {
		rec := EncodeRedoRecord(RedoRecord{Type: RecordUpdate, TransID: storage.TxID(i)})
		lsn, err := w.Write(rec)
		if err != nil {
			t.Fatal(err)
		}
		lsns = append(lsns, lsn)
	}

	it := w.Iterator(lsns[0])
	var seen []storage.LSN
	for it.HasNext() {
		lsn, _, err := it.Next()
		if err != nil {
			t.Fatal(err)
		}
		seen = append(seen, lsn)
	}

	if len(seen) != len(lsns) {
		t.Fatalf("expected %d records, saw %d", len(lsns), len(seen))
	}
	for i := range lsns {
		if seen[i] != lsns[i] {
			t.Fatalf("record %d out of order: want %d got %d", i, lsns[i], seen[i])
		}
	}
}
