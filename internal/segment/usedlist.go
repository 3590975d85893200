package segment

import "sort"

// usedEntry is one row of the used-extent catalog: an extent plus the
// segment id it belongs to, since unlike the free index the used index is
// not partitioned one-catalog-page-per-segment.
type usedEntry struct {
	SegmentID uint32 // storage.FilePage packed: fileId<<32 is not needed, PageID alone identifies the segment's bootstrap page within its file
	FileID    uint16
	Extent    Extent
}

// insertUsed inserts e for segID into entries (sorted by segment then
// start), coalescing with an adjacent extent already owned by the same
// segment.
func insertUsed(entries []usedEntry, fileID uint16, segID uint32, e Extent) []usedEntry {
	i := sort.Search(len(entries), func(i int) bool {
		if entries[i].FileID != fileID || entries[i].SegmentID != segID {
			return entries[i].FileID > fileID || (entries[i].FileID == fileID && entries[i].SegmentID > segID)
		}
		return !startLess(entries[i].Extent.Start, e.Start)
	})

	if i > 0 && entries[i-1].FileID == fileID && entries[i-1].SegmentID == segID && entries[i-1].Extent.adjacent(e) {
		e.Start = entries[i-1].Extent.Start
		e.Size += entries[i-1].Extent.Size
		entries = append(entries[:i-1], entries[i:]...)
		i--
	}
	if i < len(entries) && entries[i].FileID == fileID && entries[i].SegmentID == segID && e.adjacent(entries[i].Extent) {
		e.Size += entries[i].Extent.Size
		entries = append(entries[:i], entries[i+1:]...)
	}

	entries = append(entries, usedEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = usedEntry{SegmentID: segID, FileID: fileID, Extent: e}
	return entries
}

// removeAllUsed strips every entry owned by (fileID, segID), returning the
// removed extents and the remaining entries.
func removeAllUsed(entries []usedEntry, fileID uint16, segID uint32) ([]Extent, []usedEntry) {
	var removed []Extent
	rest := entries[:0:0]
	for _, en := range entries {
		if en.FileID == fileID && en.SegmentID == segID {
			removed = append(removed, en.Extent)
			continue
		}
		rest = append(rest, en)
	}
	return removed, rest
}
