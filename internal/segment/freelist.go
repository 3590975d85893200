package segment

import (
	"sort"

	"github.com/kwestlund/cooldb/storage"
)

func startLess(a, b storage.FilePage) bool {
	if a.FileID != b.FileID {
		return a.FileID < b.FileID
	}
	return a.PageID < b.PageID
}

// insertFree inserts e into extents (sorted by Start), coalescing with
// either physically-adjacent neighbour.
func insertFree(extents []Extent, e Extent) []Extent {
	i := sort.Search(len(extents), func(i int) bool {
		return !startLess(extents[i].Start, e.Start) // first index >= e
	})

	if i > 0 && extents[i-1].adjacent(e) {
		e.Start = extents[i-1].Start
		e.Size += extents[i-1].Size
		extents = append(extents[:i-1], extents[i:]...)
		i--
	}
	if i < len(extents) && e.adjacent(extents[i]) {
		e.Size += extents[i].Size
		extents = append(extents[:i], extents[i+1:]...)
	}

	extents = append(extents, Extent{})
	copy(extents[i+1:], extents[i:])
	extents[i] = e
	return extents
}

// findBestFit returns the smallest free extent at least minSize pages, and
// the remaining list with it removed.
func findBestFit(extents []Extent, minSize storage.Int) (Extent, []Extent, bool) {
	best := -1
	for i, e := range extents {
		if e.Size < minSize {
			continue
		}
		if best == -1 || e.Size < extents[best].Size {
			best = i
		}
	}
	if best == -1 {
		return Extent{}, extents, false
	}

	e := extents[best]
	rest := make([]Extent, 0, len(extents)-1)
	rest = append(rest, extents[:best]...)
	rest = append(rest, extents[best+1:]...)
	return e, rest, true
}
