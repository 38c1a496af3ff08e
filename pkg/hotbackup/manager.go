// Package hotbackup implements the interposition and synchronization
// engine: it coordinates an application workload, a background copier, and
// a live-mutation capture layer to produce a consistent point-in-time copy
// of a source directory tree into a destination directory.
package hotbackup

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/paulschiretz/hotbackup/pkg/config"
	"github.com/paulschiretz/hotbackup/pkg/filelock"
	"github.com/paulschiretz/hotbackup/pkg/hints"
	"github.com/paulschiretz/hotbackup/pkg/hook"
	"github.com/paulschiretz/hotbackup/pkg/manifest"
	"github.com/paulschiretz/hotbackup/pkg/metrics"
	"github.com/paulschiretz/hotbackup/pkg/plog"
)

// sourceFileShards is the SourceFileTable's shard count; must be a power
// of two.
const sourceFileShards = 32

// Manager is the top-level orchestrator: it routes every intercepted
// operation, owns the session lock, the capture gate, and the first-error
// latch, and exposes DoBackup as the sole entry point for running a backup.
//
// The lock acquisition order, when more than one of these is held at once,
// is: singleRunMu, sessionLock, SourceFileTable's internal locks,
// SourceFile's name and range locks, Description.mu, errMu. No path in this
// package acquires an earlier lock in that list while holding a later one,
// with one exception: Write acquires a SourceFile range lock while already
// holding Description.mu, because the range it needs to lock can only be
// computed from the offset that same critical section is about to advance.
type Manager struct {
	singleRunMu sync.Mutex

	sessionLock sync.RWMutex
	session     *Session

	captureEnabled atomic.Bool
	dead           atomic.Bool

	errMu      sync.Mutex
	errHappen  bool
	errNum     syscall.Errno
	errMessage string

	table   *SourceFileTable
	files   *FileMap
	metrics metrics.Metrics

	cfg        config.Config
	hookRunner *hook.Runner
}

// NewManager builds a Manager from cfg.
func NewManager(cfg config.Config) *Manager {
	return &Manager{
		table:      NewSourceFileTable(sourceFileShards),
		files:      NewFileMap(),
		metrics:    metrics.New(),
		cfg:        cfg,
		hookRunner: hook.NewRunner(),
	}
}

// Metrics exposes the manager's running counters, e.g. for a caller that
// wants to log them independently of the manifest.
func (m *Manager) Metrics() metrics.Metrics { return m.metrics }

// backupError latches the first destination or user-abort error. Subsequent
// calls are no-ops: only the first error is kept. It also disables capture.
func (m *Manager) backupError(errno syscall.Errno, format string, args ...any) {
	m.captureEnabled.Store(false)
	m.errMu.Lock()
	defer m.errMu.Unlock()
	if m.errHappen {
		return
	}
	m.errHappen = true
	m.errNum = errno
	m.errMessage = fmt.Sprintf(format, args...)
}

// fatalError additionally kills the manager: every subsequent DoBackup call
// fails immediately without running.
func (m *Manager) fatalError(errno syscall.Errno, format string, args ...any) {
	m.backupError(errno, format, args...)
	m.dead.Store(true)
}

func (m *Manager) latchedError() (happened bool, errno syscall.Errno, message string) {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.errHappen, m.errNum, m.errMessage
}

func (m *Manager) resetError() {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	m.errHappen = false
	m.errNum = 0
	m.errMessage = ""
}

// currentSession returns the active session, or nil if none, read under
// the session read lock. The lock is released before returning, so callers
// do not hold it while they use the returned session.
func (m *Manager) currentSession() *Session {
	m.sessionLock.RLock()
	defer m.sessionLock.RUnlock()
	return m.session
}

// DoBackup is the engine's sole entry point. It validates the destination,
// prepares already-open descriptions, enables capture, runs the copier
// synchronously, then tears the session down. Only one DoBackup call runs
// at a time per Manager; a concurrent call returns ErrBusy immediately.
func (m *Manager) DoBackup(ctx context.Context, sourceDir, destDir string, callbacks Callbacks) error {
	if m.dead.Load() {
		return ErrDead
	}

	if m.cfg.PreBackupHook != "" {
		if err := m.hookRunner.Run(ctx, m.cfg.PreBackupHook, m.cfg.HookTimeoutDuration()); err != nil && !hints.IsHint(err) {
			return fmt.Errorf("pre-backup hook: %w", err)
		}
	}

	var plock *filelock.Lock
	if m.cfg.ProcessLockPath != "" {
		l, err := filelock.Acquire(m.cfg.ProcessLockPath)
		if err != nil {
			if errors.Is(err, filelock.ErrLockActive) {
				return ErrBusy
			}
			return fmt.Errorf("process lock: %w", err)
		}
		plock = l
	}

	if !m.singleRunMu.TryLock() {
		if plock != nil {
			_ = plock.Release()
		}
		return ErrBusy
	}
	defer m.singleRunMu.Unlock()
	if plock != nil {
		defer plock.Release()
	}

	m.resetError()
	start := time.Now()

	started, runErr := m.runBackup(ctx, sourceDir, destDir, callbacks)

	happened, errno, message := m.latchedError()
	if happened {
		callbacks.ReportError(int(errno), message)
		if runErr == nil {
			runErr = fmt.Errorf("hotbackup: %s: %w", message, errno)
		}
	}

	report := manifest.Report{
		Source:    sourceDir,
		Dest:      destDir,
		StartedAt: start,
		EndedAt:   time.Now(),
		Metrics:   m.metrics.Snapshot(),
	}
	if runErr != nil {
		report.Error = runErr.Error()
	}
	if started {
		if err := manifest.Write(destDir, report); err != nil {
			plog.Warn("manager: failed to write run manifest", "error", err)
		}
	}

	if m.cfg.PostBackupHook != "" {
		if err := m.hookRunner.Run(ctx, m.cfg.PostBackupHook, m.cfg.HookTimeoutDuration()); err != nil && !hints.IsHint(err) {
			plog.Warn("manager: post-backup hook failed", "error", err)
		}
	}

	return runErr
}

// runBackup reports started = false when it returns before the session is
// installed (canonicalization or preflight failed), so DoBackup leaves the
// destination untouched.
func (m *Manager) runBackup(ctx context.Context, sourceDir, destDir string, callbacks Callbacks) (started bool, err error) {
	sourceCanon, err := canonicalPath(sourceDir)
	if err != nil {
		return false, fmt.Errorf("hotbackup: cannot canonicalize source %s: %w", sourceDir, err)
	}
	destCanon, err := canonicalPath(destDir)
	if err != nil {
		return false, fmt.Errorf("hotbackup: cannot canonicalize destination %s: %w", destDir, err)
	}

	if err := checkPreflight(sourceCanon, destCanon); err != nil {
		return false, err
	}

	session := NewSession(sourceCanon, destCanon, callbacks, m.table, m.metrics)

	m.sessionLock.Lock()
	m.session = session
	m.sessionLock.Unlock()

	defer func() {
		m.captureEnabled.Store(false)
		m.files.Range(func(_ int, d *Description) bool {
			if d.InSourceDir() {
				d.DisableFromBackup()
			}
			return true
		})
		m.sessionLock.Lock()
		m.session = nil
		m.sessionLock.Unlock()
	}()

	// Preparing: bind and open destination files for every description
	// already open under the source prefix before capture goes live, so no
	// write between "session installed" and "capture enabled" is lost.
	m.files.Range(func(_ int, d *Description) bool {
		path := d.SourceFile().Name()
		if dest, ok := session.TranslateToDest(path); ok {
			d.PrepareForBackup(dest)
			if err := d.Open(); err != nil {
				m.backupError(errnoOf(err), "preparing %s for backup: %v", path, err)
			}
		}
		return true
	})

	// Copying: capture is live for the duration of the walk.
	m.captureEnabled.Store(true)
	copier := NewCopier(session)
	walkErr := copier.Run(ctx)

	// Draining happens in the deferred cleanup above.

	if walkErr != nil {
		var ab *abortError
		if errors.As(walkErr, &ab) {
			m.backupError(syscall.EINTR, "backup aborted by callback (code %d)", ab.code)
			return true, nil
		}
		m.backupError(syscall.EIO, "copier failed: %v", walkErr)
	}
	return true, nil
}

// throttleUnlimited is the GetThrottle() value that means "no cap". It is
// unexported and nothing in this package refers to it; NoopCallbacks
// returns math.MaxInt64 directly.
const throttleUnlimited = int64(math.MaxInt64)
