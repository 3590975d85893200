package walog

import "errors"

// ErrLogExhausted is returned when a write would advance the log tail past
// the firewall (doNotOverwrite) boundary: the caller should force a
// checkpoint to advance the firewall and retry (spec.md §7).
var ErrLogExhausted = errors.New("walog: log exhausted, advance the firewall")

// ErrLogNotFound is returned when Read is asked for an LSN below the
// firewall: the record has already been recycled.
var ErrLogNotFound = errors.New("walog: record not found below firewall")

// ErrCorrupt is returned when a record's checksum does not match its
// payload — a sign of a torn write or disk corruption.
var ErrCorrupt = errors.New("walog: corrupt log record")
