package hotbackup

import "math"

// Callbacks is the collaborator a caller supplies to DoBackup: progress
// polling with abort capability, error reporting, and a throttle rate. The
// engine never constructs one itself.
type Callbacks interface {
	// Poll reports progress (fraction in [0,1]) and a human-readable
	// message. A nonzero return aborts the backup with that code.
	Poll(fraction float64, message string) int
	// ReportError is fire-and-forget: the engine has already decided the
	// backup's outcome by the time this is called.
	ReportError(errno int, message string)
	// GetThrottle returns the current throughput cap in bytes/sec.
	// math.MaxInt64 means unthrottled.
	GetThrottle() int64
}

// NoopCallbacks never aborts, discards errors, and never throttles. Useful
// for tests and for callers that only want the copy performed.
type NoopCallbacks struct{}

func (NoopCallbacks) Poll(float64, string) int   { return 0 }
func (NoopCallbacks) ReportError(int, string)    {}
func (NoopCallbacks) GetThrottle() int64         { return math.MaxInt64 }
