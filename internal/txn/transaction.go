// Package txn implements the engine's Transaction (spec.md §5): the
// per-client handle that pins pages, logs undo/redo records for every
// change, and commits or rolls back by driving the write-ahead log and
// releasing locks.
//
// Grounded on github.com/luigitni/simpledb's tx.TransactionImpl
// (Pin/Unpin/SetX-with-logging/Commit/Rollback shape) and its
// recoveryManager (tx/recovery_manager.go: writeUndoRedo-then-apply
// ordering, doRollback's reverse log walk). Generalized from the
// teacher's single undo-only WAL to the split redo/undo logs this engine
// uses, and from its forward log scan during rollback to direct undo-chain
// traversal (the undo log is shared, but each transaction's records are
// chained by offset, so rollback reads only its own records).
package txn

import (
	"github.com/rs/zerolog"

	"github.com/kwestlund/cooldb/internal/bufferpool"
	"github.com/kwestlund/cooldb/internal/checkpoint"
	"github.com/kwestlund/cooldb/internal/lock"
	"github.com/kwestlund/cooldb/internal/pager"
	"github.com/kwestlund/cooldb/internal/pagetype"
	"github.com/kwestlund/cooldb/internal/txnpool"
	"github.com/kwestlund/cooldb/internal/walog"
	"github.com/kwestlund/cooldb/storage"
)

const (
	offsetDataID uint8 = 0
	valueDataID  uint8 = 1
)

// Transaction is the unit of work clients perform updates through.
type Transaction struct {
	id storage.TxID

	pool  *txnpool.Pool
	locks *lock.Manager
	bufs  *bufferpool.Pool
	wal   *walog.Manager

	buffers *bufferList

	lastUndoOffset uint64 // 0 means no undo records yet
	startLSN       storage.LSN
	ended          bool

	checkpointer *checkpoint.Writer // optional, set via WithCheckpointer
	log          zerolog.Logger     // optional, set via WithLogger
}

// Begin allocates a new transaction id, writes its START record, and
// registers it with pool as active.
func Begin(pool *txnpool.Pool, locks *lock.Manager, bufs *bufferpool.Pool, wal *walog.Manager) (*Transaction, error) {
	t := &Transaction{
		pool:  pool,
		locks: locks,
		bufs:  bufs,
		wal:   wal,
		log:   zerolog.Nop(),
	}

	lsn, err := t.writeRedo(walog.RedoRecord{Type: walog.RecordStart})
	if err != nil {
		return nil, err
	}

	t.startLSN = lsn
	t.id = pool.Begin(lsn)
	t.buffers = newBufferList(bufs)

	return t, nil
}

func (t *Transaction) ID() storage.TxID {
	return t.id
}

// Pin brings fp into the buffer pool and acquires a shared latch-free pin
// on behalf of this transaction. Callers still need SLock/XLock before
// touching its bytes.
func (t *Transaction) Pin(fp storage.FilePage) error {
	_, err := t.buffers.pin(fp)
	return err
}

// Unpin releases this transaction's pin on fp, stamping affinity as the
// page's new eviction class (spec.md §4.4: "unPin(buf, affinity)").
func (t *Transaction) Unpin(fp storage.FilePage, affinity bufferpool.Affinity) {
	t.buffers.unpin(fp, affinity)
}

// GetBytes returns a copy of length bytes at offset within fp, after
// acquiring a shared lock on the page.
func (t *Transaction) GetBytes(fp storage.FilePage, offset storage.Offset, length int) ([]byte, error) {
	if err := t.locks.SLock(t.id, fp); err != nil {
		return nil, err
	}

	h := t.buffers.get(fp)
	h.RLatch()
	out := make([]byte, length)
	copy(out, h.Bytes()[offset:int(offset)+length])
	h.RUnlatch()

	return out, nil
}

// SetBytes writes value at offset within fp, after acquiring an exclusive
// lock. If shouldLog is true (the normal case; false is reserved for
// recovery-time redo application, which must not generate new log
// records), it first writes an undo record carrying the old bytes and a
// redo record carrying the new ones, chained into this transaction's undo
// chain and the page's redo history respectively.
func (t *Transaction) SetBytes(fp storage.FilePage, offset storage.Offset, value []byte, pageType uint8, shouldLog bool) error {
	if err := t.locks.XLock(t.id, fp); err != nil {
		return err
	}

	h := t.buffers.get(fp)

	h.Latch()
	defer h.Unlatch()

	var redoLSN storage.LSN

	if shouldLog {
		old := make([]byte, len(value))
		copy(old, h.Bytes()[offset:int(offset)+len(value)])

		undoOffset, err := t.writeUndo(fp, pageType, offset, old)
		if err != nil {
			return err
		}

		lsn, err := t.writeUpdateRedo(fp, pageType, offset, value, undoOffset)
		if err != nil {
			return err
		}
		redoLSN = lsn
		t.lastUndoOffset = undoOffset
	}

	pagetype.Apply(pageType, h.Bytes(), offset, value)

	if shouldLog {
		h.MarkDirty(redoLSN, t.id)
	}

	return nil
}

func (t *Transaction) writeUndo(fp storage.FilePage, pageType uint8, offset storage.Offset, oldValue []byte) (uint64, error) {
	rec := walog.UndoRecord{
		TransID:        t.id,
		PageUndoNxtLSN: storage.LSN(t.lastUndoOffset),
		Page:           fp,
		PageType:       pageType,
		Data: []walog.LogData{
			{ID: offsetDataID, Bytes: encodeOffset(offset)},
			{ID: valueDataID, Bytes: oldValue},
		},
	}

	off, err := t.wal.Undo.Write(walog.EncodeUndoRecord(rec))
	if err != nil {
		return 0, err
	}

	t.pool.NoteUndoLSN(t.id, storage.LSN(off))
	return off, nil
}

func (t *Transaction) writeUpdateRedo(fp storage.FilePage, pageType uint8, offset storage.Offset, newValue []byte, undoOffset uint64) (storage.LSN, error) {
	rec := walog.RedoRecord{
		Type:       walog.RecordUpdate,
		TransID:    t.id,
		UndoNxtLSN: storage.LSN(undoOffset),
		Page:       fp,
		PageType:   pageType,
		Data: []walog.LogData{
			{ID: offsetDataID, Bytes: encodeOffset(offset)},
			{ID: valueDataID, Bytes: newValue},
		},
	}
	return t.writeRedo(rec)
}

func encodeOffset(offset storage.Offset) []byte {
	return []byte{byte(offset >> 8), byte(offset)}
}

func decodeOffset(b []byte) storage.Offset {
	return storage.Offset(b[0])<<8 | storage.Offset(b[1])
}

// eofPageID is the sentinel page id transactions lock before querying or
// extending a file's page count, the same role file.EOF plays in the
// teacher: locking a single well-known "end of file" resource serializes
// concurrent Size/Append calls and prevents phantom reads.
const eofPageID storage.Int = ^storage.Int(0)

func eofSentinel(fileID storage.SmallInt) storage.FilePage {
	return storage.NewFilePage(fileID, eofPageID)
}

// Size returns the number of pages currently allocated to fileID, after
// acquiring a shared lock on the end-of-file sentinel page to prevent
// phantom reads from a concurrent Append (spec.md §5: "Size/Append lock
// the EOF sentinel block, as the teacher does, to avoid phantoms").
func (t *Transaction) Size(fileID storage.SmallInt, pg *pager.Manager) (storage.Int, error) {
	if err := t.locks.SLock(t.id, eofSentinel(fileID)); err != nil {
		return 0, err
	}
	return pg.PageCount(fileID)
}

// Append extends fileID by one page, after acquiring an exclusive lock on
// the EOF sentinel, and returns the new page's id.
func (t *Transaction) Append(fileID storage.SmallInt, pg *pager.Manager) (storage.Int, error) {
	if err := t.locks.XLock(t.id, eofSentinel(fileID)); err != nil {
		return 0, err
	}
	return pg.Extend(fileID, 1)
}
