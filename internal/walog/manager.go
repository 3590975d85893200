package walog

import "github.com/kwestlund/cooldb/storage"

// Manager unifies the redo and undo log writers behind the single
// addressing scheme the rest of the engine uses: LSNs for redo records,
// UndoPointers for undo records (spec.md §4: "Log Manager — Unifies
// redo+undo addressing").
type Manager struct {
	Redo *RedoWriter
	Undo *UndoWriter
}

func NewManager(redo *RedoWriter, undo *UndoWriter) *Manager {
	return &Manager{Redo: redo, Undo: undo}
}

// AppendRedo writes a redo record and returns its LSN.
func (m *Manager) AppendRedo(r RedoRecord) (storage.LSN, error) {
	r.Address = 0 // assigned by the writer
	return m.Redo.Write(EncodeRedoRecord(r))
}

// AppendUndo writes the undo record r and returns an UndoPointer holding
// r's page, the offset the record was written at, and r.PageUndoNxtLSN.
func (m *Manager) AppendUndo(r UndoRecord) (storage.UndoPointer, error) {
	encoded := EncodeUndoRecord(r)
	off, err := m.Undo.Write(encoded)
	if err != nil {
		return storage.UndoPointer{}, err
	}

	return storage.UndoPointer{
		Page:   r.Page,
		Offset: off,
		LSN:    r.PageUndoNxtLSN,
	}, nil
}

// ReadUndo reads back the undo record addressed by ptr. length is the
// record's encoded length; UndoWriter.ReadRecord instead reads the
// record's own length prefix when the caller does not know it.
func (m *Manager) ReadUndo(ptr storage.UndoPointer, length int) (UndoRecord, error) {
	buf, err := m.Undo.Read(uint64(ptr.Offset), length)
	if err != nil {
		return UndoRecord{}, err
	}
	return DecodeUndoRecord(buf, ptr)
}

func (m *Manager) FlushTo(lsn storage.LSN) error {
	return m.Redo.FlushTo(lsn)
}

func (m *Manager) Close() error {
	if err := m.Redo.Close(); err != nil {
		return err
	}
	return m.Undo.Close()
}
