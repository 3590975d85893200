// Package cooldb assembles the engine core's subsystems (spec.md §1-9)
// into a single embeddable database handle: the File Manager, redo/undo
// Log Writers, Buffer Pool, Lock Manager, Deadlock Detector, Transaction
// Pool, Checkpoint Writer, Recovery Manager and Segment/Space Manager all
// live behind internal/* packages; Database wires them together and owns
// their shared lifecycle (construction order, startup recovery, periodic
// checkpointing, orderly shutdown).
//
// Grounded on github.com/luigitni/simpledb's db.DB (db/db.go): NewDB's
// IsNew-branches-into-Init-or-Recover construction shape generalizes
// directly, with engine.MetadataManager's SQL-catalog bootstrap replaced
// by segment.Manager's free/used extent catalog bootstrap (this port has
// no SQL layer at all, per spec.md §1's Non-goals).
package cooldb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/kwestlund/cooldb/internal/bufferpool"
	"github.com/kwestlund/cooldb/internal/checkpoint"
	"github.com/kwestlund/cooldb/internal/deadlock"
	"github.com/kwestlund/cooldb/internal/lock"
	"github.com/kwestlund/cooldb/internal/pager"
	"github.com/kwestlund/cooldb/internal/recovery"
	"github.com/kwestlund/cooldb/internal/segment"
	"github.com/kwestlund/cooldb/internal/systemkey"
	"github.com/kwestlund/cooldb/internal/txn"
	"github.com/kwestlund/cooldb/internal/txnpool"
	"github.com/kwestlund/cooldb/internal/walog"
	"github.com/kwestlund/cooldb/storage"
)

const (
	dataFileName   = "cooldb.dat"
	redoLogName    = "cooldb.redo"
	undoLogName    = "cooldb.undo"
	systemKeyName  = "cooldb.systemkey"
	dataFileID     = storage.SmallInt(0)
	freeCatalogPID = storage.Int(0)
	usedCatalogPID = storage.Int(1)
)

// Options configures a Database. Every field has a usable zero value:
// Open fills in defaults for anything left unset, the same
// constructor-parameter-configuration shape spec.md §6 calls for ("no
// environment variables required").
type Options struct {
	// PageSize is the fixed page size every file in the database uses.
	// Defaults to storage.PageSize.
	PageSize storage.Offset

	// BufferPoolCapacity is how many frames the buffer pool holds.
	// Defaults to 256.
	BufferPoolCapacity int

	// RedoLogPages sizes the circular redo log's preallocated capacity, in
	// pages. Defaults to 1024.
	RedoLogPages int

	// UndoLogGrowBy is how many bytes the undo log's file grows by each
	// time it runs out of room. Defaults to 1 << 20 (1 MiB).
	UndoLogGrowBy int

	// CheckpointInterval is how often the checkpoint writer fires.
	// Defaults to 30s. A non-positive value disables automatic
	// checkpointing; Database.Checkpoint can still be called directly.
	CheckpointInterval time.Duration

	// LockTimeout bounds how long a lock request waits before giving up,
	// a backstop behind the deadlock detector (spec.md §5.3). Defaults to
	// the lock manager's own default (10s).
	LockTimeout time.Duration

	// DeadlockDetectInterval is how often the deadlock detector polls the
	// wait-for graph. Defaults to 500ms.
	DeadlockDetectInterval time.Duration

	// Logger receives every subsystem's sub-logger. Defaults to a
	// zerolog.Logger writing to os.Stderr, timestamped, if left nil.
	Logger *zerolog.Logger
}

func (o *Options) setDefaults() {
	if o.PageSize == 0 {
		o.PageSize = storage.PageSize
	}
	if o.BufferPoolCapacity == 0 {
		o.BufferPoolCapacity = 256
	}
	if o.RedoLogPages == 0 {
		o.RedoLogPages = 1024
	}
	if o.UndoLogGrowBy == 0 {
		o.UndoLogGrowBy = 1 << 20
	}
	if o.CheckpointInterval == 0 {
		o.CheckpointInterval = 30 * time.Second
	}
	if o.DeadlockDetectInterval == 0 {
		o.DeadlockDetectInterval = 500 * time.Millisecond
	}
}

// Database is an open CoolDB instance: the engine core's subsystems wired
// together behind a single handle.
type Database struct {
	opts Options
	log  zerolog.Logger

	pager      *pager.Manager
	wal        *walog.Manager
	bufs       *bufferpool.Pool
	locks      *lock.Manager
	detector   *deadlock.Detector
	pool       *txnpool.Pool
	checkpoint *checkpoint.Writer
	segments   *segment.Manager
	systemKey  *systemkey.File

	cancel context.CancelFunc
}

// Open opens (creating if necessary) a CoolDB instance rooted at dir. A
// fresh directory is bootstrapped with an empty segment catalog; an
// existing one is brought up to date by restart recovery before Open
// returns, so every Transaction a caller begins afterward sees a
// consistent database (spec.md §6: "Recovery... runs once, at startup,
// before any client transaction begins").
func Open(dir string, opts Options) (*Database, error) {
	opts.setDefaults()
	if opts.Logger == nil {
		l := zerolog.New(os.Stderr).With().Timestamp().Logger()
		opts.Logger = &l
	}
	log := opts.Logger.With().Str("component", "cooldb").Logger()

	skPath := filepath.Join(dir, systemKeyName)
	_, statErr := os.Stat(skPath)
	isNew := errors.Is(statErr, os.ErrNotExist)

	pg, err := pager.New(dir, opts.PageSize)
	if err != nil {
		return nil, fmt.Errorf("cooldb: open pager: %w", err)
	}
	if err := pg.AddFile(dataFileID, dataFileName); err != nil {
		return nil, fmt.Errorf("cooldb: open data file: %w", err)
	}

	redo, err := walog.OpenRedoWriter(filepath.Join(dir, redoLogName), opts.RedoLogPages, int(opts.PageSize))
	if err != nil {
		return nil, fmt.Errorf("cooldb: open redo log: %w", err)
	}
	undo, err := walog.OpenUndoWriter(filepath.Join(dir, undoLogName), opts.UndoLogGrowBy)
	if err != nil {
		return nil, fmt.Errorf("cooldb: open undo log: %w", err)
	}
	wal := walog.NewManager(redo, undo)

	bufs := bufferpool.New(pg, wal, opts.BufferPoolCapacity)

	locks := lock.New()
	if opts.LockTimeout > 0 {
		locks.Timeout = opts.LockTimeout
	}

	pool := txnpool.New()

	sk, err := systemkey.Open(skPath)
	if err != nil {
		return nil, fmt.Errorf("cooldb: open system key: %w", err)
	}

	freePage := storage.NewFilePage(dataFileID, freeCatalogPID)
	usedPage := storage.NewFilePage(dataFileID, usedCatalogPID)
	segments := segment.New(pg, freePage, usedPage)

	db := &Database{
		opts:      opts,
		log:       log,
		pager:     pg,
		wal:       wal,
		bufs:      bufs,
		locks:     locks,
		pool:      pool,
		segments:  segments,
		systemKey: sk,
	}

	if isNew {
		log.Info().Str("dir", dir).Msg("initializing new database")
		if err := db.bootstrap(); err != nil {
			return nil, err
		}
	} else {
		log.Info().Str("dir", dir).Msg("recovering existing database")
		rm := recovery.New(wal, bufs, pool).
			WithSystemKey(sk).
			WithLogger(opts.Logger.With().Str("component", "recovery").Logger())
		if err := rm.Run(); err != nil {
			return nil, fmt.Errorf("cooldb: recovery: %w", err)
		}
	}

	db.detector = deadlock.New(locks, opts.DeadlockDetectInterval, nil)
	go db.detector.Run()

	cw := checkpoint.New(wal, bufs, pool, opts.CheckpointInterval)
	cw.WithSystemKey(sk)
	cw.WithLogger(opts.Logger.With().Str("component", "checkpoint").Logger())
	db.checkpoint = cw

	if opts.CheckpointInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		db.cancel = cancel
		go cw.Run(ctx)
	}

	return db, nil
}

// bootstrap allocates the two catalog pages the segment manager addresses
// by a fixed page id (storage.NewFilePage(dataFileID, freeCatalogPID) /
// usedCatalogPID), the way engine.MetadataManager.Init stamps a fresh
// teacher database's catalog tables before any client transaction exists
// (db/db.go's mdm.Init(x) call). pager.Extend zero-fills new pages, and a
// zeroed catalog page decodes as an empty extent list (codec.go's
// count-prefixed encoding), so no further writes are needed: the free and
// used catalogs start out correctly empty.
//
// It also persists the system key's fresh in-memory record to slot 0
// before Open returns. systemkey.Open only holds a fresh record in memory
// for a brand new file; without this write, a database that is opened,
// mutated and killed before the first checkpoint would leave both slots
// zeroed, and the next Open would find no valid slot at all.
func (db *Database) bootstrap() error {
	if _, err := db.pager.Extend(dataFileID, 2); err != nil {
		return fmt.Errorf("cooldb: allocate catalog pages: %w", err)
	}
	rec := db.systemKey.Record()
	if err := db.systemKey.Write(rec.NextTransID, rec.MasterLSN); err != nil {
		return fmt.Errorf("cooldb: persist initial system key: %w", err)
	}
	return nil
}

// Begin starts a new Transaction against this database. A redo-log write
// that finds the log full forces an out-of-band checkpoint and retries,
// rather than failing the transaction (spec.md's ambient stack: "Warn for
// retried conditions (LogExhausted forcing a checkpoint)").
func (db *Database) Begin() (*txn.Transaction, error) {
	t, err := txn.Begin(db.pool, db.locks, db.bufs, db.wal)
	if err != nil {
		return nil, err
	}
	t.WithCheckpointer(db.checkpoint).WithLogger(db.opts.Logger.With().Str("component", "txn").Logger())
	return t, nil
}

// Segments returns the segment/space manager, for callers that allocate
// or drop extents directly (spec.md §4.11).
func (db *Database) Segments() *segment.Manager {
	return db.segments
}

// RedoLog returns the database's write-ahead log manager, mainly for the
// operability CLI's "dump-log" subcommand.
func (db *Database) RedoLog() *walog.Manager {
	return db.wal
}

// Checkpoint forces an immediate fuzzy checkpoint, independent of
// Options.CheckpointInterval's periodic schedule.
func (db *Database) Checkpoint(ctx context.Context) error {
	return db.checkpoint.Checkpoint(ctx)
}

// SystemKey returns the database's persisted master record (instance id,
// next transaction id, last checkpoint LSN), mainly for the operability
// CLI's "check" subcommand.
func (db *Database) SystemKey() systemkey.Record {
	return db.systemKey.Record()
}

// Metrics returns a fresh Prometheus registry with every subsystem's
// collectors registered (spec.md's AMBIENT STACK: "no HTTP server is
// started by the engine itself" — callers expose this registry however
// they like).
func (db *Database) Metrics() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	bufferpool.Register(reg)
	lock.Register(reg)
	checkpoint.Register(reg)
	return reg
}

// Close stops the checkpoint writer and deadlock detector, then closes
// the write-ahead logs, the system key file, and every open data file, in
// that order. Close does not flush the buffer pool; dirty pages still
// cached are not written to the data files.
func (db *Database) Close() error {
	if db.cancel != nil {
		db.cancel()
	}
	if db.detector != nil {
		db.detector.Stop()
	}

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(db.wal.Close())
	record(db.systemKey.Close())
	record(db.pager.Close())

	return firstErr
}
