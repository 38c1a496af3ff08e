package hotbackup

import (
	"errors"
	"fmt"
	"syscall"
)

// ErrBusy is returned by DoBackup when another run is already in progress
// on the same Manager.
var ErrBusy = errors.New("hotbackup: a backup is already running")

// ErrDead is returned by DoBackup once the manager has taken a fatal error
// and can no longer run backups.
var ErrDead = errors.New("hotbackup: manager is dead after a fatal error")

// ErrNoSession reports that no session is installed. No intercepted
// operation in this package returns it: an operation that finds no session
// performs only the real source-side call.
var ErrNoSession = errors.New("hotbackup: no active session")

// destinationError wraps a failure that happened on the destination side of
// a mirrored operation. It carries the real errno the underlying syscall
// failed with, rather than collapsing every failure to -1.
type destinationError struct {
	op     string
	errno  syscall.Errno
	detail string
}

func (e *destinationError) Error() string {
	if e.detail != "" {
		return fmt.Sprintf("hotbackup: destination %s failed: %s (%v)", e.op, e.detail, e.errno)
	}
	return fmt.Sprintf("hotbackup: destination %s failed: %v", e.op, e.errno)
}

func (e *destinationError) Unwrap() error { return e.errno }

func (e *destinationError) Errno() syscall.Errno { return e.errno }

// newDestinationError builds a destinationError, extracting the underlying
// errno from err if it wraps one, defaulting to EIO otherwise.
func newDestinationError(op string, err error) *destinationError {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		errno = syscall.EIO
	}
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return &destinationError{op: op, errno: errno, detail: detail}
}

// errnoOf extracts the syscall.Errno from err, defaulting to EIO if none is
// present in the chain. Used at the manager's error latch so the recorded
// errnum is always a real value.
func errnoOf(err error) syscall.Errno {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return syscall.EIO
}
