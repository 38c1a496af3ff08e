package hotbackup

import (
	"testing"

	"github.com/paulschiretz/hotbackup/pkg/metrics"
)

func newTestSession(source, dest string) *Session {
	return NewSession(source, dest, NoopCallbacks{}, NewSourceFileTable(4), metrics.Noop{})
}

func TestSessionIsUnderSource(t *testing.T) {
	s := newTestSession("/src", "/dst")

	cases := []struct {
		path string
		want bool
	}{
		{"/src", true},
		{"/src/a/b", true},
		{"/src2", false},
		{"/other", false},
	}
	for _, c := range cases {
		if got := s.IsUnderSource(c.path); got != c.want {
			t.Errorf("IsUnderSource(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestSessionTranslateToDest(t *testing.T) {
	s := newTestSession("/src", "/dst")

	dest, ok := s.TranslateToDest("/src/a/b.txt")
	if !ok {
		t.Fatal("TranslateToDest reported ok = false for a path under the source prefix")
	}
	if dest != "/dst/a/b.txt" {
		t.Fatalf("TranslateToDest() = %q, want %q", dest, "/dst/a/b.txt")
	}

	if _, ok := s.TranslateToDest("/other/a.txt"); ok {
		t.Fatal("TranslateToDest reported ok = true for a path outside the source prefix")
	}
}

func TestSessionTodoIsLIFO(t *testing.T) {
	s := newTestSession("/src", "/dst")
	if got, ok := s.PopTodo(); !ok || got != "." {
		t.Fatalf("PopTodo() = (%q, %v), want (\".\", true) for the seeded entry", got, ok)
	}

	s.PushTodo("a")
	s.PushTodo("b")
	if got, _ := s.PopTodo(); got != "b" {
		t.Fatalf("PopTodo() = %q, want %q (LIFO order)", got, "b")
	}
	if got, _ := s.PopTodo(); got != "a" {
		t.Fatalf("PopTodo() = %q, want %q", got, "a")
	}
	if _, ok := s.PopTodo(); ok {
		t.Fatal("PopTodo() on an empty list reported ok = true")
	}
}

func TestSessionAbortLatchesFirstCode(t *testing.T) {
	s := newTestSession("/src", "/dst")
	if s.Aborted() {
		t.Fatal("Aborted() = true before Abort was called")
	}
	s.Abort(3)
	s.Abort(7) // must not overwrite the first code
	if !s.Aborted() {
		t.Fatal("Aborted() = false after Abort")
	}
	if got := s.AbortCode(); got != 3 {
		t.Fatalf("AbortCode() = %d, want 3 (first abort wins)", got)
	}
}
