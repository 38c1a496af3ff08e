// Package hints marks "tolerated" conditions — such as a by-path truncate
// whose destination file hasn't been copied yet, or a hook with no command
// configured — so callers can tell them apart from hard
// destination errors without importing a sentinel from every producing
// package. A hint is still a real error; it is just one the caller is free
// to log and continue past instead of latching.
package hints

import "errors"

type hintErr struct {
	err error
}

func (h *hintErr) Error() string {
	if h == nil || h.err == nil {
		return "tolerated condition"
	}
	return h.err.Error()
}

func (h *hintErr) IsHint() bool { return true }
func (h *hintErr) Unwrap() error { return h.err }

// New builds a hint from a message.
func New(msg string) error {
	return &hintErr{err: errors.New(msg)}
}

// Wrap promotes an existing error to a hint, preserving it in the chain so
// errors.Is/As against the original still work.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return &hintErr{err: err}
}

// IsHint reports whether any error in the chain behaves like a hint.
func IsHint(err error) bool {
	var h interface{ IsHint() bool }
	return errors.As(err, &h) && h.IsHint()
}

// Is reports whether err is a hint that also matches target.
func Is(err, target error) bool {
	return IsHint(err) && errors.Is(err, target)
}
