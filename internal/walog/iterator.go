package walog

import "github.com/kwestlund/cooldb/storage"

// Iterator walks the redo log forward from a starting LSN, in original
// write order.
type Iterator struct {
	w   *RedoWriter
	pos storage.LSN
	end storage.LSN
}

// HasNext reports whether there is another record to visit.
func (it *Iterator) HasNext() bool {
	return it.pos < it.end
}

// Next returns the next record and its LSN, advancing the iterator.
func (it *Iterator) Next() (storage.LSN, []byte, error) {
	lsn := it.pos

	it.w.mu.Lock()
	record, err := it.w.readLocked(lsn)
	it.w.mu.Unlock()

	if err != nil {
		return 0, nil, err
	}

	it.pos = lsn + physHeaderSize + storage.LSN(len(record))
	return lsn, record, nil
}

func (it *Iterator) Close() {}
