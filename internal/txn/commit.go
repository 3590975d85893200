package txn

import (
	"github.com/kwestlund/cooldb/internal/bufferpool"
	"github.com/kwestlund/cooldb/internal/walog"
)

// Commit flushes this transaction's dirty pages, writes and flushes a
// COMMIT record, marks it committed in the pool, releases its locks, and
// unpins every buffer it still holds.
//
// Grounded on github.com/luigitni/simpledb's recoveryManager.commit /
// TransactionImpl.Commit.
func (t *Transaction) Commit() error {
	if t.ended {
		return nil
	}

	if err := t.bufs.FlushForTxn(t.id); err != nil {
		return err
	}

	lsn, err := t.writeRedo(walog.RedoRecord{
		Type:    walog.RecordCommit,
		TransID: t.id,
	})
	if err != nil {
		return err
	}
	if err := t.wal.FlushTo(lsn); err != nil {
		return err
	}

	t.pool.Commit(t.id)
	t.locks.ReleaseAll(t.id)
	t.buffers.unpinAll(bufferpool.Liked)
	t.ended = true

	return nil
}
