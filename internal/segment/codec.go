package segment

import "github.com/kwestlund/cooldb/storage"

// entrySize is the wire size of one encoded extent: fileId:u16, start:u32,
// size:u32.
const entrySize = 10

// encodeExtents serializes a sorted extent list as [count:u32][entries...],
// starting immediately after the page's recovery header.
func encodeExtents(extents []Extent) []byte {
	buf := make([]byte, 4+len(extents)*entrySize)
	putUint32(buf[0:4], uint32(len(extents)))
	off := 4
	for _, e := range extents {
		putUint16(buf[off:], uint16(e.Start.FileID))
		putUint32(buf[off+2:], uint32(e.Start.PageID))
		putUint32(buf[off+6:], uint32(e.Size))
		off += entrySize
	}
	return buf
}

func decodeExtents(buf []byte) []Extent {
	if len(buf) < 4 {
		return nil
	}
	count := int(getUint32(buf[0:4]))
	extents := make([]Extent, 0, count)
	off := 4
	for i := 0; i < count && off+entrySize <= len(buf); i++ {
		fileID := storage.SmallInt(getUint16(buf[off:]))
		start := storage.Int(getUint32(buf[off+2:]))
		size := storage.Int(getUint32(buf[off+6:]))
		extents = append(extents, Extent{Start: storage.NewFilePage(fileID, start), Size: size})
		off += entrySize
	}
	return extents
}

// usedEntrySize is the wire size of one used-index row: segmentFileId:u16,
// segmentId:u32, extent fileId:u16, extent start:u32, extent size:u32.
const usedEntrySize = 16

func encodeUsed(entries []usedEntry) []byte {
	buf := make([]byte, 4+len(entries)*usedEntrySize)
	putUint32(buf[0:4], uint32(len(entries)))
	off := 4
	for _, en := range entries {
		putUint16(buf[off:], en.FileID)
		putUint32(buf[off+2:], en.SegmentID)
		putUint16(buf[off+6:], uint16(en.Extent.Start.FileID))
		putUint32(buf[off+8:], uint32(en.Extent.Start.PageID))
		putUint32(buf[off+12:], uint32(en.Extent.Size))
		off += usedEntrySize
	}
	return buf
}

func decodeUsed(buf []byte) []usedEntry {
	if len(buf) < 4 {
		return nil
	}
	count := int(getUint32(buf[0:4]))
	entries := make([]usedEntry, 0, count)
	off := 4
	for i := 0; i < count && off+usedEntrySize <= len(buf); i++ {
		fileID := getUint16(buf[off:])
		segID := getUint32(buf[off+2:])
		extFile := storage.SmallInt(getUint16(buf[off+6:]))
		extStart := storage.Int(getUint32(buf[off+8:]))
		extSize := storage.Int(getUint32(buf[off+12:]))
		entries = append(entries, usedEntry{
			FileID:    fileID,
			SegmentID: segID,
			Extent:    Extent{Start: storage.NewFilePage(extFile, extStart), Size: extSize},
		})
		off += usedEntrySize
	}
	return entries
}

func putUint16(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}

func getUint16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
