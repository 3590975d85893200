package storage

import "fmt"

// FilePage identifies a single fixed-size page within one of the engine's
// data files: the pair (fileId, pageId).
type FilePage struct {
	FileID SmallInt
	PageID Int
}

func NewFilePage(fileID SmallInt, pageID Int) FilePage {
	return FilePage{FileID: fileID, PageID: pageID}
}

func (p FilePage) String() string {
	return fmt.Sprintf("file(%d):page(%d)", p.FileID, p.PageID)
}

// LSN is a monotone log sequence number. It doubles as the byte offset of
// the record within the circular redo log file.
type LSN uint64

// NullLSN is the reserved sentinel for "no LSN". Byte offset 0 of the redo
// log is reserved so that NullLSN is never a valid record address.
const NullLSN LSN = 0

func (l LSN) IsNull() bool {
	return l == NullLSN
}

// UndoPointer addresses a single undo log record: the page it describes,
// the byte offset of the record within the (growable, non-circular) undo
// log, and the LSN of the redo record that references it. Offset is a
// full 64-bit byte offset rather than SmallInt/Int: unlike the redo log,
// the undo log is never wrapped, so its offsets are not bounded by a
// fixed page-addressable range.
type UndoPointer struct {
	Page   FilePage
	Offset uint64
	LSN    LSN
}

// NullUndoPointer terminates an undo chain.
var NullUndoPointer = UndoPointer{}

func (u UndoPointer) IsNull() bool {
	return u == NullUndoPointer
}

func (u UndoPointer) String() string {
	return fmt.Sprintf("undo(%s@%d,lsn=%d)", u.Page, u.Offset, u.LSN)
}
