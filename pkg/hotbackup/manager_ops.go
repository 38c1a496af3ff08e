package hotbackup

import (
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"syscall"

	"github.com/paulschiretz/hotbackup/pkg/hints"
)

// Open performs the real open on the source path and, if a session is
// active and the path lies under its source prefix, prepares and opens the
// mirrored destination file. The returned handle and error always reflect
// the real source-side open; destination-side problems are latched, never
// returned here.
func (m *Manager) Open(path string, flags int, mode os.FileMode) (int, error) {
	f, err := os.OpenFile(path, flags, mode)
	if err != nil {
		return -1, err
	}
	return m.register(f, path), nil
}

// Create is Open with flags implying O_CREATE|O_TRUNC, matching a
// create(2)-style call.
func (m *Manager) Create(path string, mode os.FileMode) (int, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return -1, err
	}
	return m.register(f, path), nil
}

func (m *Manager) register(f *os.File, path string) int {
	canon, err := canonicalPath(path)
	if err != nil {
		// Canonicalization failure (e.g. a component vanished under us)
		// never fails the already-successful real open; the description
		// simply never binds to a session, matching the source syscall's
		// own success.
		canon = path
	}

	sf := m.table.GetOrCreate(canon)
	d := NewDescription(sf, f)
	fd := m.files.Put(d)

	if session := m.currentSession(); session != nil {
		if dest, ok := session.TranslateToDest(canon); ok {
			d.PrepareForBackup(dest)
			if err := d.Open(); err != nil && !hints.IsHint(err) {
				m.backupError(errnoOf(err), "preparing %s for backup: %v", canon, err)
			}
		}
	}
	return fd
}

// Close releases the source and, via the Description, destination handles
// for fd and drops this handle's reference on its SourceFile.
func (m *Manager) Close(fd int) error {
	d := m.files.Erase(fd)
	if d == nil {
		return syscall.EBADF
	}
	sf := d.SourceFile()

	if err := d.Close(); err != nil {
		m.backupError(errnoOf(err), "closing destination for %s: %v", sf.Name(), err)
	}
	srcErr := d.Source().Close()
	m.table.Release(sf)
	return srcErr
}

// Read performs the real read on fd's source handle and advances its
// recorded offset. Reads never mirror to the destination.
func (m *Manager) Read(fd int, buf []byte) (int, error) {
	d := m.files.Get(fd)
	if d == nil {
		return 0, syscall.EBADF
	}
	d.Lock()
	defer d.Unlock()

	n, err := d.Source().Read(buf)
	if n > 0 {
		d.IncrementOffset(int64(n))
	}
	return n, err
}

// Write performs the real write on fd's source handle at its current
// offset, under that byte range's lock, then — if capture is enabled —
// mirrors the same bytes to the destination. The application always
// observes the real write's own result.
//
// The offset read, the real write, and the offset increment happen under
// one unbroken hold of d's lock: the real write is what determines the
// byte range this call ends up mirroring, so that range has to be
// established atomically with the write rather than reconstructed from an
// offset read earlier under a separate critical section. Two concurrent
// writes on the same fd would otherwise be able to read the same starting
// offset, lock two different (and possibly overlapping) byte ranges, and
// race each other on the real write, leaving the mirrored range wrong
// relative to what the source file actually ended up holding.
func (m *Manager) Write(fd int, buf []byte) (int, error) {
	d := m.files.Get(fd)
	if d == nil {
		return 0, syscall.EBADF
	}
	sf := d.SourceFile()

	d.Lock()
	offsetBefore := d.Offset()
	rangeEnd := offsetBefore + int64(len(buf))
	if sf.LockRange(offsetBefore, rangeEnd) {
		m.metrics.AddRangeLockWaits(1)
	}
	n, err := d.Source().Write(buf)
	if n > 0 {
		d.IncrementOffset(int64(n))
	}
	d.Unlock()

	if m.captureEnabled.Load() && n > 0 {
		if perr := d.PWrite(buf[:n], offsetBefore); perr != nil {
			m.metrics.AddDestinationErrors(1)
			m.backupError(errnoOf(perr), "mirroring write to %s: %v", sf.Name(), perr)
		}
	}
	sf.UnlockRange(offsetBefore, rangeEnd)
	return n, err
}

// PWrite is Write without touching the recorded offset.
func (m *Manager) PWrite(fd int, buf []byte, offset int64) (int, error) {
	d := m.files.Get(fd)
	if d == nil {
		return 0, syscall.EBADF
	}
	sf := d.SourceFile()

	rangeEnd := offset + int64(len(buf))
	if sf.LockRange(offset, rangeEnd) {
		m.metrics.AddRangeLockWaits(1)
	}
	defer sf.UnlockRange(offset, rangeEnd)

	n, err := d.Source().WriteAt(buf, offset)

	if m.captureEnabled.Load() && n > 0 {
		if perr := d.PWrite(buf[:n], offset); perr != nil {
			m.metrics.AddDestinationErrors(1)
			m.backupError(errnoOf(perr), "mirroring pwrite to %s: %v", sf.Name(), perr)
		}
	}
	return n, err
}

// Lseek performs the real seek on fd's source handle and records the
// resulting offset.
func (m *Manager) Lseek(fd int, offset int64, whence int) (int64, error) {
	d := m.files.Get(fd)
	if d == nil {
		return -1, syscall.EBADF
	}
	d.Lock()
	defer d.Unlock()

	newOffset, err := d.Source().Seek(offset, whence)
	if err == nil {
		d.Lseek(newOffset)
	}
	return newOffset, err
}

// Ftruncate performs the real ftruncate on fd's source handle under the
// range lock spanning [length, MaxInt64), then mirrors it if capture is
// enabled.
func (m *Manager) Ftruncate(fd int, length int64) error {
	d := m.files.Get(fd)
	if d == nil {
		return syscall.EBADF
	}
	sf := d.SourceFile()

	if sf.LockRange(length, math.MaxInt64) {
		m.metrics.AddRangeLockWaits(1)
	}
	defer sf.UnlockRange(length, math.MaxInt64)

	err := d.Source().Truncate(length)
	if err == nil && m.captureEnabled.Load() {
		if derr := d.Truncate(length); derr != nil {
			m.metrics.AddDestinationErrors(1)
			m.backupError(errnoOf(derr), "mirroring ftruncate on %s: %v", sf.Name(), derr)
		}
	}
	return err
}

// Truncate performs the real truncate on path, then — if the path lies
// under an active session's source prefix — mirrors it to the
// destination. The SourceFile used for locking and mirroring is looked up
// by the canonical *source* path, not the destination path.
func (m *Manager) Truncate(path string, length int64) error {
	canon, err := canonicalPath(path)
	if err != nil {
		canon = path
	}

	if err := os.Truncate(path, length); err != nil {
		return err
	}

	session := m.currentSession()
	if session == nil || !m.captureEnabled.Load() {
		return nil
	}
	dest, ok := session.TranslateToDest(canon)
	if !ok {
		return nil
	}

	sf := m.table.Lookup(canon)
	if sf != nil {
		if sf.LockRange(length, math.MaxInt64) {
			m.metrics.AddRangeLockWaits(1)
		}
		defer sf.UnlockRange(length, math.MaxInt64)
	}

	if derr := truncateDestFile(dest, length); derr != nil && !hints.IsHint(derr) {
		m.metrics.AddDestinationErrors(1)
		m.backupError(errnoOf(derr), "mirroring truncate on %s: %v", dest, derr)
	}
	return nil
}

func truncateDestFile(path string, length int64) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return hints.Wrap(err) // not yet copied; nothing to truncate
		}
		return err
	}
	defer f.Close()
	return f.Truncate(length)
}

// Rename performs the real rename on the source, relocates the
// SourceFileTable entry in place, then — if both paths lie under an
// active, capturing session's source prefix — mirrors the rename to the
// destination. If the destination side hasn't been produced by the copier
// yet, the new path is pushed onto the copier's todo list instead of
// failing.
func (m *Manager) Rename(oldPath, newPath string) error {
	oldCanon, err := canonicalPath(oldPath)
	if err != nil {
		oldCanon = oldPath
	}
	newCanon, err := canonicalPath(newPath)
	if err != nil {
		newCanon = newPath
	}

	if err := os.Rename(oldPath, newPath); err != nil {
		return err
	}

	m.table.Rename(oldCanon, newCanon)

	session := m.currentSession()
	if session == nil || !m.captureEnabled.Load() {
		return nil
	}
	if !session.IsUnderSource(oldCanon) || !session.IsUnderSource(newCanon) {
		return nil
	}

	oldDest, _ := session.TranslateToDest(oldCanon)
	newDest, _ := session.TranslateToDest(newCanon)
	if err := os.Rename(oldDest, newDest); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if rel, relErr := filepath.Rel(session.SourcePrefix(), newCanon); relErr == nil {
				session.PushTodo(rel)
				session.Metrics().AddRenameRediscoveries(1)
			}
			return nil
		}
		m.metrics.AddDestinationErrors(1)
		m.backupError(errnoOf(err), "mirroring rename %s -> %s: %v", oldDest, newDest, err)
	}
	return nil
}

// Unlink performs the real unlink on path, then — if capture is enabled —
// unlinks the mirrored destination path (ENOENT tolerated). The
// SourceFileTable lookup and removal use the canonicalized path, not the
// raw argument, for consistency with every other canonical-path-keyed
// operation.
func (m *Manager) Unlink(path string) error {
	canon, err := canonicalPath(path)
	if err != nil {
		canon = path
	}

	if err := os.Remove(path); err != nil {
		return err
	}

	if sf := m.table.Lookup(canon); sf != nil {
		sf.MarkUnlinked()
	}

	session := m.currentSession()
	if session != nil && m.captureEnabled.Load() {
		if dest, ok := session.TranslateToDest(canon); ok {
			if derr := os.Remove(dest); derr != nil && !errors.Is(derr, fs.ErrNotExist) {
				m.metrics.AddDestinationErrors(1)
				m.backupError(errnoOf(derr), "mirroring unlink of %s: %v", dest, derr)
			}
		}
	}

	m.table.TryRemoveIfUnlinked(canon)
	return nil
}

// Mkdir performs the real mkdir on path, then — if a session is active and
// path lies under its source prefix — creates the corresponding
// destination directory (EEXIST tolerated).
func (m *Manager) Mkdir(path string, mode os.FileMode) error {
	canon, err := canonicalPath(path)
	if err != nil {
		canon = path
	}

	if err := os.Mkdir(path, mode); err != nil {
		return err
	}

	session := m.currentSession()
	if session == nil {
		return nil
	}
	dest, ok := session.TranslateToDest(canon)
	if !ok {
		return nil
	}
	if derr := os.Mkdir(dest, os.FileMode(dirMode())); derr != nil && !errors.Is(derr, fs.ErrExist) {
		m.metrics.AddDestinationErrors(1)
		m.backupError(errnoOf(derr), "mirroring mkdir of %s: %v", dest, derr)
	}
	return nil
}
