package hotbackup

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
)

// Description is the per-open-handle state created on an intercepted
// Open/Create and destroyed on Close. It binds one application file handle
// to a SourceFile and, once a session is active and the path falls under
// its source prefix, to a destination file the engine mirrors writes into.
type Description struct {
	mu sync.Mutex // serializes offset-coupled operations (write, read, lseek)

	sourceFile *SourceFile
	offset     int64

	inSourceDir atomic.Bool // true once PrepareForBackup has run and hasn't been disabled since
	destName    string
	destFile    *os.File // nil sentinel: destination not open

	// source is the real, already-open source-side file handle this
	// description wraps.
	source *os.File
}

// NewDescription binds a fresh Description to sf and the already-opened
// real source handle. sf's reference count is not touched here; the caller
// (Manager.Open/Create) is responsible for the SourceFileTable reference
// this Description will hold for its lifetime.
func NewDescription(sf *SourceFile, source *os.File) *Description {
	return &Description{sourceFile: sf, source: source}
}

// Source returns the real, application-owned source handle.
func (d *Description) Source() *os.File { return d.source }

// SourceFile returns the bound SourceFile.
func (d *Description) SourceFile() *SourceFile { return d.sourceFile }

// Lock/Unlock serialize composite offset-coupled operations. Callers that
// only touch the offset via Offset/IncrementOffset while already holding
// this lock must not call Lock again.
func (d *Description) Lock()   { d.mu.Lock() }
func (d *Description) Unlock() { d.mu.Unlock() }

// Offset returns the recorded logical offset. Caller must hold Lock if the
// value must be consistent with a concurrent IncrementOffset/Lseek.
func (d *Description) Offset() int64 {
	return d.offset
}

// IncrementOffset adjusts the recorded offset by n. Must be called while
// Lock is held if observed concurrently by another goroutine.
func (d *Description) IncrementOffset(n int64) {
	d.offset += n
}

// Lseek records a new offset without performing any syscall; the manager
// performs the real lseek on the source handle itself and passes the
// result here.
func (d *Description) Lseek(newOffset int64) {
	d.offset = newOffset
}

// InSourceDir reports whether this description currently mirrors to the
// destination.
func (d *Description) InSourceDir() bool {
	return d.inSourceDir.Load()
}

// PrepareForBackup records destName and enables mirroring for this
// description. It does not itself open the destination file; callers open
// or create it afterward via Open/Create.
func (d *Description) PrepareForBackup(destName string) {
	d.destName = destName
	d.inSourceDir.Store(true)
}

// DisableFromBackup stops mirroring for this description. Further
// PWrite/Truncate/Close calls become no-ops, matching a backup run that
// aborted or completed while this handle stayed open.
func (d *Description) DisableFromBackup() {
	d.inSourceDir.Store(false)
}

// Open opens the already-prepared destination file, expecting it to exist.
// If it doesn't, Open delegates to Create (the source file was seen before
// the copier produced its destination counterpart).
func (d *Description) Open() error {
	f, err := os.OpenFile(d.destName, os.O_WRONLY, 0)
	if err == nil {
		d.destFile = f
		return nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return d.Create()
	}
	if errors.Is(err, syscall.EISDIR) {
		return nil // directories need no byte mirroring; no handle recorded
	}
	return newDestinationError("open", err)
}

// Create creates the destination file, expecting it not to already exist.
// EEXIST delegates to Open (another path, e.g. the copier, produced it
// first). EISDIR succeeds silently without recording a handle.
func (d *Description) Create() error {
	f, err := os.OpenFile(d.destName, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o700)
	if err == nil {
		d.destFile = f
		return nil
	}
	if errors.Is(err, os.ErrExist) {
		return d.Open()
	}
	if errors.Is(err, syscall.EISDIR) {
		return nil
	}
	return newDestinationError("create", err)
}

// Close closes the destination handle, if one is open. A no-op if capture
// was disabled or no destination handle was ever opened (e.g. a directory).
func (d *Description) Close() error {
	if !d.inSourceDir.Load() || d.destFile == nil {
		return nil
	}
	f := d.destFile
	d.destFile = nil
	if err := f.Close(); err != nil {
		return newDestinationError("close", err)
	}
	return nil
}

// PWrite mirrors nbyte bytes from buf to the destination at offset. A no-op
// if capture is disabled or no destination handle is open. Writes loop
// until every byte is written or an error occurs; a write that returns
// exactly zero bytes without an error is itself treated as a destination
// I/O error, the same as a negative return.
func (d *Description) PWrite(buf []byte, offset int64) error {
	if !d.inSourceDir.Load() || d.destFile == nil {
		return nil
	}
	for len(buf) > 0 {
		n, err := d.destFile.WriteAt(buf, offset)
		if err != nil {
			return newDestinationError("pwrite", err)
		}
		if n == 0 {
			return newDestinationError("pwrite", syscall.EIO)
		}
		buf = buf[n:]
		offset += int64(n)
	}
	return nil
}

// Truncate truncates the destination file to len bytes. A no-op if capture
// is disabled or no destination handle is open.
func (d *Description) Truncate(length int64) error {
	if !d.inSourceDir.Load() || d.destFile == nil {
		return nil
	}
	if err := d.destFile.Truncate(length); err != nil {
		return newDestinationError("truncate", err)
	}
	return nil
}
