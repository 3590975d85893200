package txn

import (
	"github.com/kwestlund/cooldb/internal/bufferpool"
	"github.com/kwestlund/cooldb/internal/pagetype"
	"github.com/kwestlund/cooldb/internal/walog"
	"github.com/kwestlund/cooldb/storage"
)

// Rollback undoes every change this transaction made, by walking its undo
// chain from the most recent record back to the start, applying each
// record's old value and writing a compensation log record (CLR) for it
// so recovery never undoes an already-undone change a second time. It then
// writes and flushes an ABORT record, releases locks, and unpins every
// buffer.
//
// Grounded on github.com/luigitni/simpledb's recoveryManager.doRollback,
// generalized from its forward scan-the-whole-log-for-my-records approach
// to direct per-transaction chain traversal: the undo log is shared by all
// transactions, but each record links to the same transaction's previous
// one, so rollback reads only this transaction's records.
func (t *Transaction) Rollback() error {
	if t.ended {
		return nil
	}

	if err := t.undoChain(); err != nil {
		return err
	}

	if err := t.bufs.FlushForTxn(t.id); err != nil {
		return err
	}

	lsn, err := t.writeRedo(walog.RedoRecord{
		Type:    walog.RecordAbort,
		TransID: t.id,
	})
	if err != nil {
		return err
	}
	if err := t.wal.FlushTo(lsn); err != nil {
		return err
	}

	t.pool.Rollback(t.id)
	t.locks.ReleaseAll(t.id)
	// A rolled-back transaction's pages are unlikely to be revisited as
	// soon as a committed one's, so they unpin HATED rather than LIKED.
	t.buffers.unpinAll(bufferpool.Hated)
	t.ended = true

	return nil
}

func (t *Transaction) undoChain() error {
	offset := t.lastUndoOffset

	for offset != 0 {
		buf, err := t.wal.Undo.ReadRecord(offset)
		if err != nil {
			return err
		}

		rec, err := walog.DecodeUndoRecord(buf, storage.UndoPointer{Offset: offset})
		if err != nil {
			return err
		}

		if err := t.applyCompensation(rec); err != nil {
			return err
		}

		offset = uint64(rec.PageUndoNxtLSN)
	}

	return nil
}

// applyCompensation restores one undo record's old value and writes the
// matching CLR: a redo record whose UndoNxtLSN points past this record
// (to what was already the next-older undo record), so a future redo pass
// replays the compensating write but analysis never tries to undo it
// again (spec.md §6: "CLRs chain to the undo pointer preceding the one
// they compensate for").
func (t *Transaction) applyCompensation(rec walog.UndoRecord) error {
	var offset storage.Offset
	var value []byte
	for _, d := range rec.Data {
		switch d.ID {
		case offsetDataID:
			offset = decodeOffset(d.Bytes)
		case valueDataID:
			value = d.Bytes
		}
	}

	if _, err := t.buffers.pin(rec.Page); err != nil {
		return err
	}
	h := t.buffers.get(rec.Page)

	h.Latch()
	pagetype.Apply(rec.PageType, h.Bytes(), offset, value)
	h.Unlatch()

	lsn, err := t.writeRedo(walog.RedoRecord{
		Type:       walog.RecordCLR,
		TransID:    rec.TransID,
		UndoNxtLSN: rec.PageUndoNxtLSN,
		Page:       rec.Page,
		PageType:   rec.PageType,
		Data: []walog.LogData{
			{ID: offsetDataID, Bytes: encodeOffset(offset)},
			{ID: valueDataID, Bytes: value},
		},
	})
	if err != nil {
		return err
	}

	h.Latch()
	h.MarkDirty(lsn, rec.TransID)
	h.Unlatch()

	return nil
}
