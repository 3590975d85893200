// Package pager implements the engine's File Manager (spec.md §4.1): it
// maps (fileId, pageId) pairs onto fixed-size reads and writes against raw
// on-disk files. It is the lowest layer of the engine core and has no
// knowledge of logging, buffering or transactions.
//
// Grounded on github.com/luigitni/simpledb's file.FileManager, generalized
// from filename-addressed blocks to spec's numeric (fileId, pageId)
// addressing.
package pager

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/kwestlund/cooldb/storage"
)

// ErrBufferNotFound is returned when a caller addresses a page outside the
// range of pages the file manager knows about.
var ErrBufferNotFound = errors.New("pager: buffer not found")

// Manager maps file ids to open *os.Files and serves fixed-page reads and
// writes against them. Safe for concurrent callers addressing distinct
// pages; same-page overlap is arbitrated by the caller (the buffer pool).
type Manager struct {
	dir      string
	pageSize storage.Offset

	mu    sync.RWMutex
	files map[storage.SmallInt]*fileEntry
}

type fileEntry struct {
	mu      sync.Mutex
	f       *os.File
	name    string
	npages  storage.Int
}

// New opens (or creates) the database directory rooted at dir and returns a
// Manager using the given fixed page size.
func New(dir string, pageSize storage.Offset) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("pager: create data dir: %w", err)
	}

	return &Manager{
		dir:      dir,
		pageSize: pageSize,
		files:    make(map[storage.SmallInt]*fileEntry),
	}, nil
}

// AddFile registers fileId as backed by the given on-disk file name
// (relative to the manager's directory), opening or creating it.
func (m *Manager) AddFile(id storage.SmallInt, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[id]; ok {
		return nil
	}

	path := filepath.Join(m.dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("pager: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("pager: stat %s: %w", path, err)
	}

	m.files[id] = &fileEntry{
		f:      f,
		name:   name,
		npages: storage.Int(info.Size() / int64(m.pageSize)),
	}

	return nil
}

func (m *Manager) entry(id storage.SmallInt) (*fileEntry, error) {
	m.mu.RLock()
	e, ok := m.files[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrBufferNotFound
	}
	return e, nil
}

// Extend grows file id by n pages, returning the id of the first new page.
func (m *Manager) Extend(id storage.SmallInt, n storage.Int) (storage.Int, error) {
	e, err := m.entry(id)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	first := e.npages
	size := int64(m.pageSize) * int64(n)
	off := int64(first) * int64(m.pageSize)

	if _, err := e.f.WriteAt(make([]byte, size), off); err != nil {
		return 0, fmt.Errorf("pager: extend %s: %w", e.name, err)
	}

	e.npages += n
	return first, nil
}

// PageCount returns the number of pages currently allocated to file id.
func (m *Manager) PageCount(id storage.SmallInt) (storage.Int, error) {
	e, err := m.entry(id)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.npages, nil
}

// Fetch reads the page at fp into buf, which must be exactly PageSize
// bytes. Fetching a page at or past the file's current page count returns
// ErrBufferNotFound and leaves buf untouched.
func (m *Manager) Fetch(fp storage.FilePage, buf []byte) error {
	e, err := m.entry(fp.FileID)
	if err != nil {
		return err
	}

	if storage.Int(fp.PageID) >= e.npages {
		return ErrBufferNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	off := int64(fp.PageID) * int64(m.pageSize)
	if _, err := e.f.ReadAt(buf, off); err != nil && err != io.EOF {
		return fmt.Errorf("pager: read %s: %w", e.name, err)
	}
	return nil
}

// Flush persists buf to the page at fp. If forceSync is true, the write is
// followed by fsync so the caller can rely on it being durable.
func (m *Manager) Flush(fp storage.FilePage, buf []byte, forceSync bool) error {
	e, err := m.entry(fp.FileID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	off := int64(fp.PageID) * int64(m.pageSize)
	if _, err := e.f.WriteAt(buf, off); err != nil {
		return fmt.Errorf("pager: write %s: %w", e.name, err)
	}

	if forceSync {
		if err := e.f.Sync(); err != nil {
			return fmt.Errorf("pager: sync %s: %w", e.name, err)
		}
	}

	return nil
}

// Force fsyncs file id, making every write issued against it durable.
func (m *Manager) Force(id storage.SmallInt) error {
	e, err := m.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.f.Sync()
}

func (m *Manager) PageSize() storage.Offset {
	return m.pageSize
}

// Close releases every open file handle.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for _, e := range m.files {
		if err := e.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
