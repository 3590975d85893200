// Package recovery implements the engine's Recovery Manager (spec.md
// §6): the three-pass ARIES restart algorithm run once at startup, before
// any client transaction begins.
//
// Analysis scans the redo log forward from the last checkpoint's
// BEGIN_CHECKPOINT LSN (WithSystemKey wires that in; absent a system key,
// it falls back to the log's current firewall) to find every transaction
// that never reached a COMMIT or ABORT record, and the latest undo-chain
// offset each one reached. Redo reapplies every UPDATE/CLR record's new
// value — safe to do unconditionally here because overwriting a page with
// the value it already holds is a no-op, which is the idempotency ARIES
// normally gets from comparing page LSNs. Undo then walks each loser's
// chain exactly as txn.Rollback does, writing a CLR per compensated
// change and a final ABORT record.
//
// Grounded on the teacher's recoveryManager.doRecover (tx/recovery_manager.go:
// finished-transaction tracking while scanning, stop at CHECKPOINT)
// generalized to the explicit three-pass structure, cross-checked against
// _examples/other_examples 2396c0f3_sudhamhebbarbrown-RelationalDatabase
// pkg/recovery/recovery_manager.go and
// therealutkarshpriyadarshi-mydb/pkg/recovery/recovery_manager.go for the
// analyze/redo/undo split itself (the teacher has no redo pass at all,
// being undo-only).
package recovery

import (
	"github.com/rs/zerolog"

	"github.com/kwestlund/cooldb/internal/bufferpool"
	"github.com/kwestlund/cooldb/internal/pagetype"
	"github.com/kwestlund/cooldb/internal/systemkey"
	"github.com/kwestlund/cooldb/internal/txnpool"
	"github.com/kwestlund/cooldb/internal/walog"
	"github.com/kwestlund/cooldb/storage"
)

const (
	offsetDataID uint8 = 0
	valueDataID  uint8 = 1
)

// Manager runs restart recovery against a freshly opened redo/undo log
// pair and buffer pool.
type Manager struct {
	wal  *walog.Manager
	bufs *bufferpool.Pool
	pool *txnpool.Pool
	sk   *systemkey.File // optional; nil falls back to the redo log's firewall
	log  zerolog.Logger  // optional; zero value discards (zerolog.Logger{})
}

func New(wal *walog.Manager, bufs *bufferpool.Pool, pool *txnpool.Pool) *Manager {
	return &Manager{wal: wal, bufs: bufs, pool: pool, log: zerolog.Nop()}
}

// WithSystemKey attaches the database's system key file, so analysis
// starts at the last checkpoint's BEGIN_CHECKPOINT LSN instead of the redo
// log's current firewall (spec.md §6: "Analyze. Starting at
// systemKey.master, scan forward to end-of-log").
func (m *Manager) WithSystemKey(sk *systemkey.File) *Manager {
	m.sk = sk
	return m
}

// WithLogger attaches log, so each restart phase reports its own
// lifecycle and any failure is logged before it propagates to the
// caller.
func (m *Manager) WithLogger(log zerolog.Logger) *Manager {
	m.log = log
	return m
}

// startLSN is where both the analyze and redo passes begin scanning:
// the last checkpoint's master LSN if a system key recorded one, else the
// redo log's firewall (every record before which has already been proven
// unnecessary for recovery, whether or not a system key exists).
func (m *Manager) startLSN() storage.LSN {
	if m.sk != nil {
		if rec := m.sk.Record(); !rec.MasterLSN.IsNull() {
			return rec.MasterLSN
		}
	}
	return m.wal.Redo.Firewall()
}

type txnState struct {
	active         bool
	lastUndoOffset uint64
}

// Run performs the full analyze/redo/undo restart sequence.
func (m *Manager) Run() error {
	m.log.Info().Uint64("startLSN", uint64(m.startLSN())).Msg("recovery: analyze")
	losers, err := m.analyze()
	if err != nil {
		m.log.Error().Err(err).Msg("recovery: analyze failed")
		return err
	}

	m.log.Info().Msg("recovery: redo")
	if err := m.redo(); err != nil {
		m.log.Error().Err(err).Msg("recovery: redo failed")
		return err
	}

	m.log.Info().Int("losers", len(losers)).Msg("recovery: undo")
	if err := m.undo(losers); err != nil {
		m.log.Error().Err(err).Msg("recovery: undo failed")
		return err
	}

	m.log.Info().Msg("recovery: complete")
	return nil
}

// analyze scans the redo log once, tracking which transactions started
// but never committed or aborted, and the most recent undo-chain offset
// each one reached (carried in every UPDATE/CLR record's UndoNxtLSN
// field).
func (m *Manager) analyze() (map[storage.TxID]*txnState, error) {
	txns := make(map[storage.TxID]*txnState)

	it := m.wal.Redo.Iterator(m.startLSN())
	for it.HasNext() {
		lsn, buf, err := it.Next()
		if err != nil {
			return nil, err
		}
		rec, err := walog.DecodeRedoRecord(buf, lsn)
		if err != nil {
			return nil, err
		}

		switch rec.Type {
		case walog.RecordStart:
			// no transaction id carried on START in this engine's wire
			// format (it is written before the pool assigns one); the
			// transaction becomes visible to analysis on its first
			// UPDATE/CLR record instead.
		case walog.RecordUpdate, walog.RecordCLR:
			st, ok := txns[rec.TransID]
			if !ok {
				st = &txnState{active: true}
				txns[rec.TransID] = st
			}
			st.lastUndoOffset = uint64(rec.UndoNxtLSN)
		case walog.RecordCommit, walog.RecordAbort:
			if st, ok := txns[rec.TransID]; ok {
				st.active = false
			}
		}
	}

	losers := make(map[storage.TxID]*txnState)
	for id, st := range txns {
		if st.active {
			losers[id] = st
		}
	}
	return losers, nil
}

// redo reapplies every UPDATE/CLR record's new value to its page.
func (m *Manager) redo() error {
	it := m.wal.Redo.Iterator(m.startLSN())
	for it.HasNext() {
		lsn, buf, err := it.Next()
		if err != nil {
			return err
		}
		rec, err := walog.DecodeRedoRecord(buf, lsn)
		if err != nil {
			return err
		}
		if rec.Type != walog.RecordUpdate && rec.Type != walog.RecordCLR {
			continue
		}

		offset, value, ok := decodeOffsetValue(rec.Data)
		if !ok {
			continue
		}

		h, err := m.bufs.Pin(rec.Page)
		if err != nil {
			return err
		}

		h.Latch()
		pagetype.Apply(rec.PageType, h.Bytes(), offset, value)
		h.Unlatch()
		h.MarkDirty(rec.Address, rec.TransID)
		h.UnPin(bufferpool.Liked)
	}
	return nil
}

// undo rolls back every loser transaction by walking its undo chain,
// writing a CLR for each compensated change, then an ABORT record.
func (m *Manager) undo(losers map[storage.TxID]*txnState) error {
	for txn, st := range losers {
		offset := st.lastUndoOffset

		for offset != 0 {
			buf, err := m.wal.Undo.ReadRecord(offset)
			if err != nil {
				return err
			}
			rec, err := walog.DecodeUndoRecord(buf, storage.UndoPointer{Offset: offset})
			if err != nil {
				return err
			}

			recOffset, value, ok := decodeOffsetValue(rec.Data)
			if ok {
				h, err := m.bufs.Pin(rec.Page)
				if err != nil {
					return err
				}

				h.Latch()
				pagetype.Apply(rec.PageType, h.Bytes(), recOffset, value)
				h.Unlatch()

				clrLSN, err := m.wal.Redo.Write(walog.EncodeRedoRecord(walog.RedoRecord{
					Type:       walog.RecordCLR,
					TransID:    txn,
					UndoNxtLSN: rec.PageUndoNxtLSN,
					Page:       rec.Page,
					PageType:   rec.PageType,
					Data:       rec.Data,
				}))
				if err != nil {
					h.UnPin(bufferpool.Liked)
					return err
				}

				h.MarkDirty(clrLSN, txn)
				h.UnPin(bufferpool.Liked)
			}

			offset = uint64(rec.PageUndoNxtLSN)
		}

		abortLSN, err := m.wal.Redo.Write(walog.EncodeRedoRecord(walog.RedoRecord{
			Type:    walog.RecordAbort,
			TransID: txn,
		}))
		if err != nil {
			return err
		}
		if err := m.wal.FlushTo(abortLSN); err != nil {
			return err
		}
	}

	return nil
}

func decodeOffsetValue(data []walog.LogData) (storage.Offset, []byte, bool) {
	var offset storage.Offset
	var value []byte
	haveOffset, haveValue := false, false
	for _, d := range data {
		switch d.ID {
		case offsetDataID:
			offset = storage.Offset(d.Bytes[0])<<8 | storage.Offset(d.Bytes[1])
			haveOffset = true
		case valueDataID:
			value = d.Bytes
			haveValue = true
		}
	}
	return offset, value, haveOffset && haveValue
}
