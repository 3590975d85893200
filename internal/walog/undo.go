package walog

import (
	"os"
	"sync"
)

// UndoWriter is an append-only, non-circular log: unlike the redo log it
// is never wrapped, only purged once every transaction whose records it
// holds has ended (spec.md §4.3). It grows the backing file in chunks as
// needed.
type UndoWriter struct {
	mu   sync.Mutex
	file *os.File

	tail     uint64 // next write byte offset
	capacity uint64 // bytes currently allocated on disk
	minLive  uint64 // oldest offset still reachable; reads below it fail

	growBy uint64
}

// OpenUndoWriter opens or creates path as a growable undo log.
func OpenUndoWriter(path string, growBy int) (*UndoWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	u := &UndoWriter{
		file:     f,
		tail:     1,
		capacity: uint64(info.Size()),
		minLive:  1,
		growBy:   uint64(growBy),
	}

	if u.capacity == 0 {
		if err := f.Truncate(int64(u.growBy)); err != nil {
			f.Close()
			return nil, err
		}
		u.capacity = u.growBy
	}

	return u, nil
}

func (u *UndoWriter) ensureCapacity(need uint64) error {
	if u.tail+need <= u.capacity {
		return nil
	}

	newCap := u.capacity
	for newCap < u.tail+need {
		newCap += u.growBy
	}

	if err := u.file.Truncate(int64(newCap)); err != nil {
		return err
	}
	u.capacity = newCap
	return nil
}

// Write appends record at the current tail and returns the byte offset it
// was written at (the Offset component of the caller's UndoPointer).
func (u *UndoWriter) Write(record []byte) (uint64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := u.ensureCapacity(uint64(len(record))); err != nil {
		return 0, err
	}

	pos := u.tail
	if _, err := u.file.WriteAt(record, int64(pos)); err != nil {
		return 0, err
	}
	u.tail += uint64(len(record))

	return pos, nil
}

// Read returns the record at the given byte offset and length.
func (u *UndoWriter) Read(offset uint64, length int) ([]byte, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if offset < u.minLive {
		return nil, ErrLogNotFound
	}

	buf := make([]byte, length)
	if _, err := u.file.ReadAt(buf, int64(offset)); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadRecord reads back a self-delimiting record previously written by
// Write (one whose first two bytes are its own big-endian body length, the
// framing EncodeUndoRecord produces) without the caller needing to know
// its length up front, the way chain traversal during rollback does.
func (u *UndoWriter) ReadRecord(offset uint64) ([]byte, error) {
	u.mu.Lock()
	if offset < u.minLive {
		u.mu.Unlock()
		return nil, ErrLogNotFound
	}

	var lenBuf [2]byte
	if _, err := u.file.ReadAt(lenBuf[:], int64(offset)); err != nil {
		u.mu.Unlock()
		return nil, err
	}
	u.mu.Unlock()

	total := 2 + int(uint16(lenBuf[0])<<8|uint16(lenBuf[1]))
	return u.Read(offset, total)
}

// Flush fsyncs the undo log file.
func (u *UndoWriter) Flush() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.file.Sync()
}

// Purge advances the log's retention floor to upTo: records before it
// belonged only to transactions that have since ended. It does not
// reclaim physical space — that would require relocating every
// transaction's live chain, which the redo/undo split of this engine
// avoids needing (TODO: compact into a fresh file once minLive has
// advanced far enough to make the old file mostly dead space).
func (u *UndoWriter) Purge(upTo uint64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if upTo > u.minLive {
		u.minLive = upTo
	}
}

func (u *UndoWriter) Close() error {
	return u.file.Close()
}
