// Package segment implements the engine's Segment / Space Manager
// (spec.md §4.11): a space-allocation layer mapping logical segments onto
// on-disk extents, with a free-extent index and a used-extent index, both
// kept as durable, transactionally-logged pages rather than plain
// in-memory tables (spec.md §4.11: "all extent-index mutations are logged
// via the same undo/redo machinery so segment allocation is atomic and
// recoverable").
//
// Grounded on github.com/luigitni/simpledb's engine/btree_page.go for the
// slotted, sorted-entries-in-a-page technique adapted here to a flat
// sorted array (extent counts are small enough per catalog page that a
// full B-tree gains little), and on
// KilimcininKorOglu-oba/internal/storage/freelist.go for the
// coalesce-on-insert/split-on-remove free-space bookkeeping idiom,
// generalized from page-granularity entries to (start, size) extents.
package segment

import "github.com/kwestlund/cooldb/storage"

// Extent is a physically contiguous run of pages within one file.
type Extent struct {
	Start storage.FilePage
	Size  storage.Int
}

func (e Extent) end() storage.Int {
	return e.Start.PageID + e.Size
}

// adjacent reports whether e immediately precedes other within the same
// file, with no gap.
func (e Extent) adjacent(other Extent) bool {
	return e.Start.FileID == other.Start.FileID && e.end() == other.Start.PageID
}

// Segment is the named, growable collection of extents forming the
// physical container for one logical object (table, index, catalog).
type Segment struct {
	ID          storage.FilePage
	Type        uint8
	InitialSize storage.Int
	NextSize    storage.Int
	GrowthRate  storage.Int
	Extents     []Extent
}
