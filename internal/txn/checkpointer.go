package txn

import (
	"context"

	"github.com/kwestlund/cooldb/internal/checkpoint"
	"github.com/kwestlund/cooldb/internal/walog"
	"github.com/kwestlund/cooldb/storage"
	"github.com/rs/zerolog"
)

// WithCheckpointer attaches cw, so a redo-log write that returns
// walog.ErrLogExhausted forces an out-of-band checkpoint (advancing the
// firewall) and retries once, instead of surfacing the error to the
// caller. Optional; a Transaction with none attached just returns
// ErrLogExhausted straight through.
func (t *Transaction) WithCheckpointer(cw *checkpoint.Writer) *Transaction {
	t.checkpointer = cw
	return t
}

// WithLogger attaches log, used to report forced checkpoints and other
// retried conditions at the level spec.md's ambient logging convention
// calls for.
func (t *Transaction) WithLogger(log zerolog.Logger) *Transaction {
	t.log = log
	return t
}

// writeRedo writes rec to the redo log, forcing a checkpoint and retrying
// once if the log is full (spec.md's ambient stack: "Warn for retried
// conditions (LogExhausted forcing a checkpoint)").
func (t *Transaction) writeRedo(rec walog.RedoRecord) (storage.LSN, error) {
	lsn, err := t.wal.Redo.Write(walog.EncodeRedoRecord(rec))
	if err == walog.ErrLogExhausted && t.checkpointer != nil {
		t.log.Warn().Uint32("txn", uint32(t.id)).Msg("redo log exhausted, forcing checkpoint")
		if ckErr := t.checkpointer.Checkpoint(context.Background()); ckErr != nil {
			return 0, ckErr
		}
		lsn, err = t.wal.Redo.Write(walog.EncodeRedoRecord(rec))
	}
	return lsn, err
}
