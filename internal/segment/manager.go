package segment

import (
	"errors"

	"github.com/kwestlund/cooldb/internal/pager"
	"github.com/kwestlund/cooldb/internal/pagetype"
	"github.com/kwestlund/cooldb/internal/txn"
	"github.com/kwestlund/cooldb/storage"
)

// pageTypeExtentCatalog tags both the free-extent and used-extent catalog
// pages, registered with internal/pagetype at init time so recovery's undo
// and redo passes (and txn.Rollback) dispatch catalog mutations through a
// handler this package owns rather than the package-wide generic default
// (spec.md §9 "Recovery callbacks": the segment manager is this registry's
// one in-scope client). The catalogs are a flat byte-overwrite encoding, so
// the handler is today identical to the generic one; registering it
// separately keeps the two independently free to diverge later without
// touching unrelated record types.
const pageTypeExtentCatalog uint8 = 1

func init() {
	pagetype.Register(pageTypeExtentCatalog, func(buf []byte, offset storage.Offset, value []byte) {
		copy(buf[offset:], value)
	})
}

// ErrFailurePoint1 and ErrFailurePoint2 are returned by AllocateNextExtent
// when the Manager's FailurePoint1/FailurePoint2 flag is set: the first
// after the free catalog is updated and before the used-extent insert, the
// second after the used-extent insert and before the top action ends. The
// tests use them to check that rolling the transaction back restores the
// pre-allocation catalogs (spec.md §4.11:
// "two test failure hooks are retained as fault-injection points").
var (
	ErrFailurePoint1 = errors.New("segment: injected failure before used-extent insert")
	ErrFailurePoint2 = errors.New("segment: injected failure after used-extent insert")
)

// Manager allocates and reclaims extents on behalf of segments, keeping a
// free-extent catalog and a used-extent catalog each as a single
// transactionally-logged page (spec.md §4.11's FreeExtentMethod and
// UsedExtentMethod).
type Manager struct {
	pg *pager.Manager

	freePage storage.FilePage
	usedPage storage.FilePage

	FailurePoint1 bool
	FailurePoint2 bool
}

// New returns a Manager whose free and used extent catalogs live at
// freePage and usedPage respectively. The caller is responsible for having
// extended their backing file far enough to hold those pages (normally
// done once, by the bootstrap segment, when the database is created).
func New(pg *pager.Manager, freePage, usedPage storage.FilePage) *Manager {
	return &Manager{pg: pg, freePage: freePage, usedPage: usedPage}
}

func (m *Manager) readFree(tx *txn.Transaction) ([]Extent, error) {
	if err := tx.Pin(m.freePage); err != nil {
		return nil, err
	}
	buf, err := tx.GetBytes(m.freePage, storage.PageHeaderSize, int(m.pg.PageSize())-int(storage.PageHeaderSize))
	if err != nil {
		return nil, err
	}
	return decodeExtents(buf), nil
}

func (m *Manager) writeFree(tx *txn.Transaction, extents []Extent) error {
	encoded := encodeExtents(extents)
	return tx.SetBytes(m.freePage, storage.PageHeaderSize, encoded, pageTypeExtentCatalog, true)
}

func (m *Manager) readUsed(tx *txn.Transaction) ([]usedEntry, error) {
	if err := tx.Pin(m.usedPage); err != nil {
		return nil, err
	}
	buf, err := tx.GetBytes(m.usedPage, storage.PageHeaderSize, int(m.pg.PageSize())-int(storage.PageHeaderSize))
	if err != nil {
		return nil, err
	}
	return decodeUsed(buf), nil
}

func (m *Manager) writeUsed(tx *txn.Transaction, entries []usedEntry) error {
	encoded := encodeUsed(entries)
	return tx.SetBytes(m.usedPage, storage.PageHeaderSize, encoded, pageTypeExtentCatalog, true)
}

func segmentKey(segID storage.FilePage) (uint16, uint32) {
	return uint16(segID.FileID), uint32(segID.PageID)
}

// AllocateNextExtent grows seg by its next extent: the requested size
// comes from seg.NextSize (defaulting to seg.InitialSize on a segment's
// first call), found via best-fit in the free catalog or, failing that,
// by extending the segment's own file. The chosen extent is split if the
// free extent found was larger than requested, moved into the used
// catalog, and appended to seg.Extents; seg.NextSize then grows by
// seg.GrowthRate (spec.md §4.11: "computes the requested size from
// segment.nextSize, growing by growthRate each call").
//
// The whole operation runs as a nested top action (tx.BeginTopAction /
// tx.EndTopAction): once it completes, rolling back tx only undoes the
// catalog bookkeeping if AllocateNextExtent itself never returned
// successfully, never after, so a later caller's rollback can't put an
// extent another allocation has since built on back on the free list.
func (m *Manager) AllocateNextExtent(tx *txn.Transaction, seg *Segment) (Extent, error) {
	barrier := tx.BeginTopAction()

	size := seg.NextSize
	if size == 0 {
		size = seg.InitialSize
	}

	free, err := m.readFree(tx)
	if err != nil {
		return Extent{}, err
	}

	ext, rest, found := findBestFit(free, size)
	if found {
		if ext.Size > size {
			remainder := Extent{
				Start: storage.NewFilePage(ext.Start.FileID, ext.Start.PageID+storage.Int(size)),
				Size:  ext.Size - size,
			}
			rest = insertFree(rest, remainder)
			ext.Size = size
		}
		if err := m.writeFree(tx, rest); err != nil {
			return Extent{}, err
		}
	} else {
		start, err := tx.Append(seg.ID.FileID, m.pg)
		if err != nil {
			return Extent{}, err
		}
		if size > 1 {
			if _, err := m.pg.Extend(seg.ID.FileID, size-1); err != nil {
				return Extent{}, err
			}
		}
		ext = Extent{Start: storage.NewFilePage(seg.ID.FileID, start), Size: size}
	}

	if m.FailurePoint1 {
		return Extent{}, ErrFailurePoint1
	}

	used, err := m.readUsed(tx)
	if err != nil {
		return Extent{}, err
	}
	fileID, segID := segmentKey(seg.ID)
	used = insertUsed(used, fileID, segID, ext)
	if err := m.writeUsed(tx, used); err != nil {
		return Extent{}, err
	}

	if m.FailurePoint2 {
		return Extent{}, ErrFailurePoint2
	}

	if err := tx.EndTopAction(barrier); err != nil {
		return Extent{}, err
	}

	seg.Extents = append(seg.Extents, ext)
	seg.NextSize = size + seg.GrowthRate

	return ext, nil
}

// DropSegment moves every extent seg owns from the used catalog back to
// the free catalog, coalescing with whatever free extents already border
// them.
func (m *Manager) DropSegment(tx *txn.Transaction, seg *Segment) error {
	barrier := tx.BeginTopAction()

	used, err := m.readUsed(tx)
	if err != nil {
		return err
	}
	fileID, segID := segmentKey(seg.ID)
	removed, rest := removeAllUsed(used, fileID, segID)
	if err := m.writeUsed(tx, rest); err != nil {
		return err
	}

	free, err := m.readFree(tx)
	if err != nil {
		return err
	}
	for _, e := range removed {
		free = insertFree(free, e)
	}
	if err := m.writeFree(tx, free); err != nil {
		return err
	}

	if err := tx.EndTopAction(barrier); err != nil {
		return err
	}

	seg.Extents = nil
	return nil
}
