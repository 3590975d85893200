// Package pagetype is the recovery-callback dispatcher: a small registry,
// keyed by page type tag, of functions that know how to apply a logged
// byte-range change to a page's raw bytes. Both the transaction package's
// immediate rollback and the recovery package's ARIES undo pass share it,
// so client modules (the segment manager, in particular) register once
// and get both for free.
package pagetype

import "github.com/kwestlund/cooldb/storage"

// Generic is the page type used for plain byte-overwrite updates: the
// vast majority of the engine's own records, and the default when a
// caller doesn't need page-type-specific interpretation.
const Generic uint8 = 0

// ApplyFunc writes value at offset into buf, undoing or redoing a single
// logged change.
type ApplyFunc func(buf []byte, offset storage.Offset, value []byte)

var registry = map[uint8]ApplyFunc{
	Generic: applyGeneric,
}

// Register installs fn as the handler for pageType. Intended to be called
// from an init() in the client module that owns that page type (e.g. the
// segment manager registering its extent-catalog page type).
func Register(pageType uint8, fn ApplyFunc) {
	registry[pageType] = fn
}

// Apply dispatches to the handler registered for pageType, falling back to
// the generic overwrite if none was registered.
func Apply(pageType uint8, buf []byte, offset storage.Offset, value []byte) {
	fn, ok := registry[pageType]
	if !ok {
		fn = applyGeneric
	}
	fn(buf, offset, value)
}

func applyGeneric(buf []byte, offset storage.Offset, value []byte) {
	copy(buf[offset:], value)
}
