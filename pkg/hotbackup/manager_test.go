package hotbackup

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/paulschiretz/hotbackup/pkg/config"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.NewDefault()
	return NewManager(cfg)
}

func mustEmptyDir(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}

func TestDoBackupCopiesExistingFiles(t *testing.T) {
	src := t.TempDir()
	dst := mustEmptyDir(t)
	writeFile(t, filepath.Join(src, "a.txt"), "alpha")

	m := newTestManager(t)
	if err := m.DoBackup(context.Background(), src, dst, NoopCallbacks{}); err != nil {
		t.Fatalf("DoBackup() = %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	if err != nil {
		t.Fatalf("reading copied file: %v", err)
	}
	if string(got) != "alpha" {
		t.Fatalf("content = %q, want %q", got, "alpha")
	}
}

func TestDoBackupRejectsNonEmptyDestination(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(dst, "stray.txt"), "x")

	m := newTestManager(t)
	if err := m.DoBackup(context.Background(), src, dst, NoopCallbacks{}); err == nil {
		t.Fatal("DoBackup() into a non-empty destination unexpectedly succeeded")
	}
}

func TestDoBackupRejectsConcurrentRun(t *testing.T) {
	m := newTestManager(t)
	m.singleRunMu.Lock() // simulate a run already in progress
	defer m.singleRunMu.Unlock()

	src := t.TempDir()
	dst := t.TempDir()
	if err := m.DoBackup(context.Background(), src, dst, NoopCallbacks{}); err != ErrBusy {
		t.Fatalf("DoBackup() while busy = %v, want ErrBusy", err)
	}
}

func TestDoBackupDeadManagerRejectsFurtherRuns(t *testing.T) {
	m := newTestManager(t)
	m.dead.Store(true)

	src := t.TempDir()
	dst := t.TempDir()
	if err := m.DoBackup(context.Background(), src, dst, NoopCallbacks{}); err != ErrDead {
		t.Fatalf("DoBackup() on a dead manager = %v, want ErrDead", err)
	}
}

func TestWriteAfterBackupOnHandleOpenedBeforeReachesSource(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	srcFile := filepath.Join(src, "live.txt")
	writeFile(t, srcFile, "")

	m := newTestManager(t)

	// Open the file before the backup starts so runBackup's "preparing"
	// phase has to bind an already-open description.
	fd, err := m.Open(srcFile, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}

	if err := m.DoBackup(context.Background(), src, dst, NoopCallbacks{}); err != nil {
		t.Fatalf("DoBackup() = %v", err)
	}

	n, err := m.Write(fd, []byte("hello"))
	if err != nil {
		t.Fatalf("Write() = %v", err)
	}
	if n != 5 {
		t.Fatalf("Write() returned n=%d, want 5", n)
	}

	if err := m.Close(fd); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	got, err := os.ReadFile(srcFile)
	if err != nil {
		t.Fatalf("reading source: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("source content = %q, want %q", got, "hello")
	}
}

func TestMkdirMirrorsIntoDestinationDuringCapture(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	m := newTestManager(t)
	m.sessionLock.Lock()
	m.session = NewSession(src, dst, NoopCallbacks{}, m.table, m.metrics)
	m.sessionLock.Unlock()
	m.captureEnabled.Store(true)

	newDir := filepath.Join(src, "newdir")
	if err := m.Mkdir(newDir, 0o755); err != nil {
		t.Fatalf("Mkdir() = %v", err)
	}
	if info, err := os.Stat(filepath.Join(dst, "newdir")); err != nil || !info.IsDir() {
		t.Fatalf("destination directory was not created: err=%v", err)
	}
}

func TestUnlinkMirrorsIntoDestinationDuringCapture(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "alpha")
	writeFile(t, filepath.Join(dst, "a.txt"), "alpha")

	m := newTestManager(t)
	m.sessionLock.Lock()
	m.session = NewSession(src, dst, NoopCallbacks{}, m.table, m.metrics)
	m.sessionLock.Unlock()
	m.captureEnabled.Store(true)

	if err := m.Unlink(filepath.Join(src, "a.txt")); err != nil {
		t.Fatalf("Unlink() = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "a.txt")); !os.IsNotExist(err) {
		t.Fatalf("destination file still exists after Unlink: err=%v", err)
	}
}

func TestRenameMirrorsIntoDestinationDuringCapture(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "old.txt"), "alpha")
	writeFile(t, filepath.Join(dst, "old.txt"), "alpha")

	m := newTestManager(t)
	m.sessionLock.Lock()
	m.session = NewSession(src, dst, NoopCallbacks{}, m.table, m.metrics)
	m.sessionLock.Unlock()
	m.captureEnabled.Store(true)

	oldPath := filepath.Join(src, "old.txt")
	newPath := filepath.Join(src, "new.txt")
	if err := m.Rename(oldPath, newPath); err != nil {
		t.Fatalf("Rename() = %v", err)
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Fatalf("source rename did not happen: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "new.txt")); err != nil {
		t.Fatalf("destination rename did not mirror: %v", err)
	}
}

func TestRenameAheadOfCopierPushesTodo(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "old.txt"), "alpha")
	// No copy of "old.txt" exists yet in dst: the copier hasn't run.

	m := newTestManager(t)
	session := NewSession(src, dst, NoopCallbacks{}, m.table, m.metrics)
	m.sessionLock.Lock()
	m.session = session
	m.sessionLock.Unlock()
	m.captureEnabled.Store(true)
	session.PopTodo() // drain the seeded "." so TodoLen reflects only our push

	oldPath := filepath.Join(src, "old.txt")
	newPath := filepath.Join(src, "new.txt")
	if err := m.Rename(oldPath, newPath); err != nil {
		t.Fatalf("Rename() = %v", err)
	}
	if got := session.TodoLen(); got != 1 {
		t.Fatalf("TodoLen() = %d, want 1 (rename target re-pushed for the copier)", got)
	}
	relPath, ok := session.PopTodo()
	if !ok || relPath != "new.txt" {
		t.Fatalf("PopTodo() = (%q, %v), want (\"new.txt\", true)", relPath, ok)
	}
}

func TestFtruncateMirrorsDuringCapture(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	srcFile := filepath.Join(src, "a.txt")
	writeFile(t, srcFile, "hello world")
	writeFile(t, filepath.Join(dst, "a.txt"), "hello world")

	m := newTestManager(t)
	m.sessionLock.Lock()
	m.session = NewSession(src, dst, NoopCallbacks{}, m.table, m.metrics)
	m.sessionLock.Unlock()
	m.captureEnabled.Store(true)

	fd, err := m.Open(srcFile, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	if err := m.Ftruncate(fd, 5); err != nil {
		t.Fatalf("Ftruncate() = %v", err)
	}
	if err := m.Close(fd); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	if err != nil {
		t.Fatalf("reading destination: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("destination content after Ftruncate = %q, want %q", got, "hello")
	}
}

func TestCloseOnUnknownHandleReturnsEBADF(t *testing.T) {
	m := newTestManager(t)
	if err := m.Close(999); err != syscall.EBADF {
		t.Fatalf("Close() on an unknown handle = %v, want EBADF", err)
	}
}
