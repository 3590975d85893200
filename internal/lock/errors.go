package lock

import "errors"

// ErrLockTimeout is returned when a lock request waits longer than the
// manager's configured timeout without being granted.
var ErrLockTimeout = errors.New("lock: request timed out")

// ErrAborted is returned to a waiter chosen as a deadlock victim.
var ErrAborted = errors.New("lock: aborted to break a deadlock")
