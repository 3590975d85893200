package storage

import "encoding/binary"

// PageHeaderSize is the size, in bytes, of the header every engine page
// reserves for recovery bookkeeping: pageLSN followed by undoNxtLSN, each a
// big-endian uint64 (spec §6: "Page header (first 16 bytes of every page)").
const PageHeaderSize = Offset(16)

const (
	pageLSNOffset       Offset = 0
	pageUndoNxtLSNOffset Offset = 8
)

// PageLSN returns the LSN of the last log record applied to this page.
func (p *Page) PageLSN() LSN {
	return LSN(binary.BigEndian.Uint64(p.buf[pageLSNOffset:]))
}

// SetPageLSN stamps the page header with the LSN of the record that most
// recently modified it. Callers must never decrease it (spec invariant:
// "any update to a page must store redoLSN > page.pageLSN").
func (p *Page) SetPageLSN(lsn LSN) {
	binary.BigEndian.PutUint64(p.buf[pageLSNOffset:], uint64(lsn))
}

// UndoNxtLSN returns the link used while undoing this page: the LSN that
// precedes the last applied update in the owning transaction's undo chain.
func (p *Page) UndoNxtLSN() LSN {
	return LSN(binary.BigEndian.Uint64(p.buf[pageUndoNxtLSNOffset:]))
}

func (p *Page) SetUndoNxtLSN(lsn LSN) {
	binary.BigEndian.PutUint64(p.buf[pageUndoNxtLSNOffset:], uint64(lsn))
}
