package hotbackup

import (
	"sync"
	"sync/atomic"

	"github.com/paulschiretz/hotbackup/pkg/metrics"
)

// Session is the live state of one backup run: source/dest roots, the
// callbacks collaborator, the abort flag, and the copier's todo list. A
// Manager owns exactly one Session for the duration of DoBackup.
type Session struct {
	sourcePrefix string
	destPrefix   string
	callbacks    Callbacks
	table        *SourceFileTable
	metrics      metrics.Metrics

	abortCode atomic.Int32 // 0 = not aborted; any other value is the latched abort code

	todoMu sync.Mutex
	todo   []string // relative paths, LIFO ("." seeded at construction)
}

// NewSession builds a Session rooted at sourcePrefix/destPrefix, seeding the
// copier's todo list with "." for the depth-first walk.
func NewSession(sourcePrefix, destPrefix string, callbacks Callbacks, table *SourceFileTable, m metrics.Metrics) *Session {
	s := &Session{
		sourcePrefix: sourcePrefix,
		destPrefix:   destPrefix,
		callbacks:    callbacks,
		table:        table,
		metrics:      m,
	}
	s.todo = append(s.todo, ".")
	return s
}

func (s *Session) SourcePrefix() string    { return s.sourcePrefix }
func (s *Session) DestPrefix() string      { return s.destPrefix }
func (s *Session) Callbacks() Callbacks    { return s.callbacks }
func (s *Session) Table() *SourceFileTable { return s.table }
func (s *Session) Metrics() metrics.Metrics {
	return s.metrics
}

// IsUnderSource reports whether canonicalPath lies within the session's
// source prefix (inclusive of the prefix itself).
func (s *Session) IsUnderSource(canonicalPath string) bool {
	return hasPrefixPath(canonicalPath, s.sourcePrefix)
}

// TranslateToDest maps a canonical source path to its destination
// counterpart by substituting the source prefix for the destination
// prefix. ok is false if canonicalPath does not lie under the source
// prefix.
func (s *Session) TranslateToDest(canonicalPath string) (dest string, ok bool) {
	if !s.IsUnderSource(canonicalPath) {
		return "", false
	}
	return translatePrefix(canonicalPath, s.sourcePrefix, s.destPrefix), true
}

// Abort latches an abort code (first one wins) so DoBackup can report why
// the run stopped early.
func (s *Session) Abort(code int) {
	s.abortCode.CompareAndSwap(0, int32(code))
}

// Aborted reports whether Abort has been called.
func (s *Session) Aborted() bool {
	return s.abortCode.Load() != 0
}

// AbortCode returns the latched abort code, or 0 if none.
func (s *Session) AbortCode() int {
	return int(s.abortCode.Load())
}

// PushTodo adds a relative path to the copier's todo list. Used both by the
// walk itself (directory entries) and by Manager.Rename, which pushes a
// rename's destination-side path when the copier hasn't produced it yet.
func (s *Session) PushTodo(relPath string) {
	s.todoMu.Lock()
	s.todo = append(s.todo, relPath)
	s.todoMu.Unlock()
}

// PopTodo removes and returns the most recently pushed relative path (LIFO,
// i.e. depth-first), or ("", false) if the list is empty.
func (s *Session) PopTodo() (string, bool) {
	s.todoMu.Lock()
	defer s.todoMu.Unlock()
	n := len(s.todo)
	if n == 0 {
		return "", false
	}
	p := s.todo[n-1]
	s.todo = s.todo[:n-1]
	return p, true
}

// TodoLen returns the current number of pending todo entries, used only for
// progress message denominators.
func (s *Session) TodoLen() int {
	s.todoMu.Lock()
	defer s.todoMu.Unlock()
	return len(s.todo)
}
