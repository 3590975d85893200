// Package systemkey implements the engine's System Key (spec.md §4.9): a
// single small file holding the persistent "master record" that survives
// restarts — the instance id, the next transaction id to allocate, and the
// LSN of the last completed checkpoint recovery should start analyzing
// from. It is written atomically by alternating between two fixed slots,
// each guarded by its own checksum, so a crash mid-write to one slot never
// corrupts the other. Each slot also carries a monotonic writeEpoch, so
// Open can always tell which of two valid slots is newer even when
// NextTransID ties across them (a checkpoint can run with no new
// transaction started since the last one).
//
// Grounded directly on spec.md §4.9/§6 (no single close teacher analogue:
// the teacher has no system key at all, relying entirely on scanning the
// undo-only log from its start on every restart). The checksum-then-
// compare validation idiom is grounded on
// KilimcininKorOglu-oba/internal/storage/header.go's page-checksum
// pattern; the per-instance identity stamp uses github.com/google/uuid,
// the same library other_examples' dinodb and SimonWaldherr-tinySQL use
// for identifying resources.
package systemkey

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"

	"github.com/google/uuid"

	"github.com/kwestlund/cooldb/storage"
)

// Magic identifies a well-formed system key file, distinguishing it from
// an empty or foreign file.
const Magic uint32 = 0x434b4442 // "CKDB"

// Version is the on-disk format version this package reads and writes.
const Version uint32 = 1

// slotSize is the fixed size of one slot: magic(4) + version(4) +
// instanceId(16) + nextTransId(4) + masterLSN(8) + writeEpoch(8) +
// checksum(4) = 48, padded to 64 so slots are cheap to address and leave
// headroom for a future format revision.
const slotSize = 64

const recordSize = 4 + 4 + 16 + 4 + 8 + 8 // everything but the trailing checksum

var (
	// ErrNoValidSlot is returned when neither of a key file's two slots has
	// a matching magic, version and checksum — the file is not a system
	// key this package wrote, or both slots were torn by a crash mid-write
	// (impossible in practice, since a write only ever touches one slot at
	// a time, but checked for defensively).
	ErrNoValidSlot = errors.New("systemkey: no valid slot found")
)

// Record is the master record's in-memory form.
type Record struct {
	InstanceID  uuid.UUID
	NextTransID storage.TxID
	MasterLSN   storage.LSN
}

// encodeSlot writes r plus a monotonic writeEpoch (this slot's ordinal
// among every Write this File has ever issued), used only to break ties
// between two otherwise-equally-valid slots on Open: NextTransID alone
// cannot always order them, since it can repeat (a reader is never
// guaranteed to see it change between two consecutive writes when no
// transaction began in between) or, in principle, wrap.
func encodeSlot(r Record, epoch uint64) []byte {
	buf := make([]byte, slotSize)
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	binary.BigEndian.PutUint32(buf[4:8], Version)
	copy(buf[8:24], r.InstanceID[:])
	binary.BigEndian.PutUint32(buf[24:28], uint32(r.NextTransID))
	binary.BigEndian.PutUint64(buf[28:36], uint64(r.MasterLSN))
	binary.BigEndian.PutUint64(buf[36:44], epoch)
	checksum := crc32.ChecksumIEEE(buf[:recordSize])
	binary.BigEndian.PutUint32(buf[44:48], checksum)
	return buf
}

func decodeSlot(buf []byte) (Record, uint64, bool) {
	if len(buf) < slotSize {
		return Record{}, 0, false
	}
	if binary.BigEndian.Uint32(buf[0:4]) != Magic {
		return Record{}, 0, false
	}
	if binary.BigEndian.Uint32(buf[4:8]) != Version {
		return Record{}, 0, false
	}

	wantChecksum := binary.BigEndian.Uint32(buf[44:48])
	if crc32.ChecksumIEEE(buf[:recordSize]) != wantChecksum {
		return Record{}, 0, false
	}

	var r Record
	copy(r.InstanceID[:], buf[8:24])
	r.NextTransID = storage.TxID(binary.BigEndian.Uint32(buf[24:28]))
	r.MasterLSN = storage.LSN(binary.BigEndian.Uint64(buf[28:36]))
	epoch := binary.BigEndian.Uint64(buf[36:44])
	return r, epoch, true
}

// File is the two-slot system key, backed by a single on-disk file.
type File struct {
	f      *os.File
	active int // index (0 or 1) of the slot last written; the next Write targets 1-active
	rec    Record
	epoch  uint64 // writeEpoch of the active slot; the next Write stamps epoch+1
}

// Open opens or creates path as a system key file. If the file is new, it
// is initialized with a fresh instance id, NextTransID storage.TxIDStart,
// and MasterLSN storage.NullLSN. If it already exists, the slot with the
// valid checksum is loaded; if both slots are valid (the normal case after
// at least one prior write), the one with the higher writeEpoch wins,
// since every Write stamps its slot with an epoch one past the last.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("systemkey: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	sk := &File{f: f}

	if info.Size() < 2*slotSize {
		sk.rec = Record{
			InstanceID:  uuid.New(),
			NextTransID: storage.TxIDStart,
			MasterLSN:   storage.NullLSN,
		}
		sk.active = -1 // neither slot written yet; first Write targets slot 0
		sk.epoch = 0
		if err := f.Truncate(2 * slotSize); err != nil {
			f.Close()
			return nil, err
		}
		return sk, nil
	}

	buf := make([]byte, 2*slotSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		f.Close()
		return nil, err
	}

	rec0, epoch0, ok0 := decodeSlot(buf[0:slotSize])
	rec1, epoch1, ok1 := decodeSlot(buf[slotSize : 2*slotSize])

	switch {
	case ok0 && ok1:
		// writeEpoch, not NextTransID, is authoritative here: it is what
		// actually counts Writes, so it orders two valid slots correctly
		// even when NextTransID happens to be equal (no transaction began
		// between the two checkpoints that produced them).
		if epoch1 > epoch0 {
			sk.rec, sk.active, sk.epoch = rec1, 1, epoch1
		} else {
			sk.rec, sk.active, sk.epoch = rec0, 0, epoch0
		}
	case ok0:
		sk.rec, sk.active, sk.epoch = rec0, 0, epoch0
	case ok1:
		sk.rec, sk.active, sk.epoch = rec1, 1, epoch1
	default:
		f.Close()
		return nil, ErrNoValidSlot
	}

	return sk, nil
}

// Record returns the most recently loaded or written master record.
func (sk *File) Record() Record {
	return sk.rec
}

// Write persists a new master record by writing to the slot opposite the
// one last written, then fsyncing: a crash mid-write leaves the previously
// active slot intact and valid, so Open always finds a good record.
func (sk *File) Write(nextTransID storage.TxID, masterLSN storage.LSN) error {
	target := 1 - sk.active
	if sk.active < 0 {
		target = 0
	}

	rec := Record{
		InstanceID:  sk.rec.InstanceID,
		NextTransID: nextTransID,
		MasterLSN:   masterLSN,
	}
	epoch := sk.epoch + 1

	buf := encodeSlot(rec, epoch)
	if _, err := sk.f.WriteAt(buf, int64(target*slotSize)); err != nil {
		return fmt.Errorf("systemkey: write slot %d: %w", target, err)
	}
	if err := sk.f.Sync(); err != nil {
		return fmt.Errorf("systemkey: sync: %w", err)
	}

	sk.active = target
	sk.rec = rec
	sk.epoch = epoch
	return nil
}

func (sk *File) Close() error {
	return sk.f.Close()
}
