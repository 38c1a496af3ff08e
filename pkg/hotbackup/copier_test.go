package hotbackup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulschiretz/hotbackup/pkg/metrics"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCopierCopiesTreeRecursively(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	writeFile(t, filepath.Join(src, "a.txt"), "alpha")
	writeFile(t, filepath.Join(src, "sub", "b.txt"), "bravo")
	writeFile(t, filepath.Join(src, "sub", "deeper", "c.txt"), "charlie")

	table := NewSourceFileTable(4)
	m := metrics.New()
	session := NewSession(src, dst, NoopCallbacks{}, table, m)

	c := NewCopier(session)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	for rel, want := range map[string]string{
		"a.txt":           "alpha",
		"sub/b.txt":       "bravo",
		"sub/deeper/c.txt": "charlie",
	} {
		got, err := os.ReadFile(filepath.Join(dst, rel))
		if err != nil {
			t.Fatalf("reading copied %s: %v", rel, err)
		}
		if string(got) != want {
			t.Errorf("content of %s = %q, want %q", rel, got, want)
		}
	}

	snap := m.Snapshot()
	if snap.FilesCopied != 3 {
		t.Errorf("FilesCopied = %d, want 3", snap.FilesCopied)
	}
	if snap.DirsCreated != 2 {
		t.Errorf("DirsCreated = %d, want 2", snap.DirsCreated)
	}
}

func TestCopierSkipsSymlinks(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	writeFile(t, filepath.Join(src, "real.txt"), "data")
	if err := os.Symlink(filepath.Join(src, "real.txt"), filepath.Join(src, "link.txt")); err != nil {
		t.Skipf("symlinks not supported in this environment: %v", err)
	}

	table := NewSourceFileTable(4)
	m := metrics.New()
	session := NewSession(src, dst, NoopCallbacks{}, table, m)

	if err := NewCopier(session).Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	if _, err := os.Lstat(filepath.Join(dst, "link.txt")); !os.IsNotExist(err) {
		t.Fatalf("symlink was copied into the destination (err=%v)", err)
	}
	if snap := m.Snapshot(); snap.SymlinksSkipped != 1 {
		t.Errorf("SymlinksSkipped = %d, want 1", snap.SymlinksSkipped)
	}
}

type abortAfterNCallbacks struct {
	remaining int
	code      int
}

func (c *abortAfterNCallbacks) Poll(float64, string) int {
	c.remaining--
	if c.remaining <= 0 {
		return c.code
	}
	return 0
}
func (c *abortAfterNCallbacks) ReportError(int, string) {}
func (c *abortAfterNCallbacks) GetThrottle() int64       { return 1 << 62 }

func TestCopierAbortViaPoll(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "alpha")
	writeFile(t, filepath.Join(src, "b.txt"), "bravo")
	writeFile(t, filepath.Join(src, "c.txt"), "charlie")

	table := NewSourceFileTable(4)
	session := NewSession(src, dst, &abortAfterNCallbacks{remaining: 2, code: 9}, table, metrics.New())

	err := NewCopier(session).Run(context.Background())
	if err == nil {
		t.Fatal("Run() succeeded, want an abort error")
	}
	if !session.Aborted() {
		t.Fatal("session.Aborted() = false after Poll requested an abort")
	}
	if got := session.AbortCode(); got != 9 {
		t.Fatalf("AbortCode() = %d, want 9", got)
	}
}
