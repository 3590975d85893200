package walog

import (
	"encoding/binary"
	"fmt"

	"github.com/kwestlund/cooldb/storage"
)

// RecordType distinguishes the kinds of redo log records spec.md §3 names.
type RecordType uint8

const (
	RecordUpdate RecordType = iota
	RecordCLR
	RecordCommit
	RecordBeginCheckpoint
	RecordEndCheckpoint
	RecordStart
	RecordAbort
)

func (t RecordType) String() string {
	switch t {
	case RecordUpdate:
		return "UPDATE"
	case RecordCLR:
		return "CLR"
	case RecordCommit:
		return "COMMIT"
	case RecordBeginCheckpoint:
		return "BEGIN_CHECKPOINT"
	case RecordEndCheckpoint:
		return "END_CHECKPOINT"
	case RecordStart:
		return "START"
	case RecordAbort:
		return "ABORT"
	default:
		return fmt.Sprintf("RecordType(%d)", uint8(t))
	}
}

// LogData is one opaque, tagged data item carried by a redo or undo
// record. The tag is interpreted by the recovery-callback dispatcher
// registered for the record's PageType; the log layer itself never
// inspects the bytes.
type LogData struct {
	ID    uint8
	Bytes []byte
}

// RedoRecord is the in-memory representation of spec.md §3's RedoLog
// record.
type RedoRecord struct {
	Address    storage.LSN
	Type       RecordType
	TransID    storage.TxID
	UndoNxtLSN storage.LSN
	Page       storage.FilePage
	PageType   uint8
	Data       []LogData
}

// EncodeRedoRecord serializes r using the wire framing from spec.md §6:
//
//	length:u16, type:u8, transId:u64, page.fileId:u16, page.pageId:u32,
//	pageType:u8, undoNxtLSN:u64, dataCount:u8, [LogData: id:u8, length:u16, bytes]...
//
// Address is not part of the wire format: it is assigned by the log writer
// at append time and is the record's own LSN.
func EncodeRedoRecord(r RedoRecord) []byte {
	body := make([]byte, 0, 64)
	body = appendUint8(body, uint8(r.Type))
	body = appendUint64(body, uint64(r.TransID))
	body = appendUint16(body, uint16(r.Page.FileID))
	body = appendUint32(body, uint32(r.Page.PageID))
	body = appendUint8(body, r.PageType)
	body = appendUint64(body, uint64(r.UndoNxtLSN))
	body = appendUint8(body, uint8(len(r.Data)))
	for _, d := range r.Data {
		body = appendUint8(body, d.ID)
		body = appendUint16(body, uint16(len(d.Bytes)))
		body = append(body, d.Bytes...)
	}

	out := make([]byte, 2+len(body))
	binary.BigEndian.PutUint16(out, uint16(len(body)))
	copy(out[2:], body)
	return out
}

// DecodeRedoRecord parses the wire framing produced by EncodeRedoRecord.
// address is the LSN the record was read back from, supplied by the log
// reader since it is not itself encoded.
func DecodeRedoRecord(buf []byte, address storage.LSN) (RedoRecord, error) {
	if len(buf) < 2 {
		return RedoRecord{}, ErrCorrupt
	}

	length := binary.BigEndian.Uint16(buf)
	if int(length)+2 > len(buf) {
		return RedoRecord{}, ErrCorrupt
	}
	body := buf[2 : 2+int(length)]

	var r RedoRecord
	r.Address = address

	off := 0
	r.Type = RecordType(body[off])
	off++
	r.TransID = storage.TxID(binary.BigEndian.Uint64(body[off:]))
	off += 8
	fileID := storage.SmallInt(binary.BigEndian.Uint16(body[off:]))
	off += 2
	pageID := storage.Int(binary.BigEndian.Uint32(body[off:]))
	off += 4
	r.Page = storage.NewFilePage(fileID, pageID)
	r.PageType = body[off]
	off++
	r.UndoNxtLSN = storage.LSN(binary.BigEndian.Uint64(body[off:]))
	off += 8
	dataCount := int(body[off])
	off++

	r.Data = make([]LogData, 0, dataCount)
	for i := 0; i < dataCount; i++ {
		id := body[off]
		off++
		l := int(binary.BigEndian.Uint16(body[off:]))
		off += 2
		r.Data = append(r.Data, LogData{ID: id, Bytes: body[off : off+l]})
		off += l
	}

	return r, nil
}

// UndoRecord is the in-memory representation of spec.md §3's UndoLog
// record, chained per-transaction via PageUndoNxtLSN.
type UndoRecord struct {
	Address        storage.UndoPointer
	TransID        storage.TxID
	PageUndoNxtLSN storage.LSN
	Page           storage.FilePage
	PageType       uint8
	Data           []LogData
}

// EncodeUndoRecord uses the same LogData-list framing as redo records,
// minus the record type byte (undo records are not tagged UPDATE/CLR/...;
// that distinction belongs to the redo side that references them).
func EncodeUndoRecord(r UndoRecord) []byte {
	body := make([]byte, 0, 64)
	body = appendUint64(body, uint64(r.TransID))
	body = appendUint16(body, uint16(r.Page.FileID))
	body = appendUint32(body, uint32(r.Page.PageID))
	body = appendUint8(body, r.PageType)
	body = appendUint64(body, uint64(r.PageUndoNxtLSN))
	body = appendUint8(body, uint8(len(r.Data)))
	for _, d := range r.Data {
		body = appendUint8(body, d.ID)
		body = appendUint16(body, uint16(len(d.Bytes)))
		body = append(body, d.Bytes...)
	}

	out := make([]byte, 2+len(body))
	binary.BigEndian.PutUint16(out, uint16(len(body)))
	copy(out[2:], body)
	return out
}

func DecodeUndoRecord(buf []byte, address storage.UndoPointer) (UndoRecord, error) {
	if len(buf) < 2 {
		return UndoRecord{}, ErrCorrupt
	}
	length := binary.BigEndian.Uint16(buf)
	if int(length)+2 > len(buf) {
		return UndoRecord{}, ErrCorrupt
	}
	body := buf[2 : 2+int(length)]

	var r UndoRecord
	r.Address = address

	off := 0
	r.TransID = storage.TxID(binary.BigEndian.Uint64(body[off:]))
	off += 8
	fileID := storage.SmallInt(binary.BigEndian.Uint16(body[off:]))
	off += 2
	pageID := storage.Int(binary.BigEndian.Uint32(body[off:]))
	off += 4
	r.Page = storage.NewFilePage(fileID, pageID)
	r.PageType = body[off]
	off++
	r.PageUndoNxtLSN = storage.LSN(binary.BigEndian.Uint64(body[off:]))
	off += 8
	dataCount := int(body[off])
	off++

	r.Data = make([]LogData, 0, dataCount)
	for i := 0; i < dataCount; i++ {
		id := body[off]
		off++
		l := int(binary.BigEndian.Uint16(body[off:]))
		off += 2
		r.Data = append(r.Data, LogData{ID: id, Bytes: body[off : off+l]})
		off += l
	}

	return r, nil
}

func appendUint8(b []byte, v uint8) []byte {
	return append(b, v)
}

func appendUint16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendUint32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendUint64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}
