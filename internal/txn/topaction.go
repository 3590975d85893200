package txn

import (
	"github.com/kwestlund/cooldb/internal/walog"
	"github.com/kwestlund/cooldb/storage"
)

// TopActionBarrier marks the undo chain position a nested top action
// started from (spec.md §9's "nested top actions / barrier LSNs"): once
// the top action ends, undo of the enclosing transaction must stop at
// this barrier rather than re-undoing the top action's own internal
// steps. This lets multi-step logical operations like
// segment.Manager.AllocateNextExtent commit as an atomic unit that
// survives rollback of whatever outer transaction invoked them, the same
// way ARIES engines keep space-allocation bookkeeping from being undone
// by a client's later Rollback.
type TopActionBarrier struct {
	offset uint64
}

// BeginTopAction records the current tail of the transaction's undo
// chain, to be restored by EndTopAction.
func (t *Transaction) BeginTopAction() TopActionBarrier {
	return TopActionBarrier{offset: t.lastUndoOffset}
}

// EndTopAction writes a CLR-style redo record that rewinds the
// transaction's undo chain pointer back to barrier, then does so in
// memory too. A subsequent Rollback or crash-recovery undo pass walking
// this transaction's chain stops at barrier: every undo record the top
// action itself wrote is skipped, exactly as if it had already been
// compensated.
func (t *Transaction) EndTopAction(barrier TopActionBarrier) error {
	if _, err := t.writeRedo(walog.RedoRecord{
		Type:       walog.RecordCLR,
		TransID:    t.id,
		UndoNxtLSN: storage.LSN(barrier.offset),
	}); err != nil {
		return err
	}

	t.lastUndoOffset = barrier.offset
	return nil
}
