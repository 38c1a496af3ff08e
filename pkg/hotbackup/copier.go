package hotbackup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/paulschiretz/hotbackup/pkg/platform"
	"github.com/paulschiretz/hotbackup/pkg/plog"
	"github.com/paulschiretz/hotbackup/pkg/pool"
)

// copyBufferSize is the per-file copy buffer size.
const copyBufferSize = 1 << 20 // 1 MiB

// throttlePollInterval bounds both the throttle sleep increment and the
// minimum re-poll interval during a large file's copy, so callbacks can
// request an abort within about a second even under heavy throttling.
const throttlePollInterval = time.Second

// abortError signals that Poll (or ctx) requested the backup stop; it
// carries the code the caller returned so DoBackup can report it.
type abortError struct{ code int }

func (e *abortError) Error() string { return fmt.Sprintf("hotbackup: backup aborted (code %d)", e.code) }

// Copier walks the session's source tree depth-first via an explicit
// stack (the session's todo list, seeded with "."), copying regular files
// and recreating directories under the destination.
type Copier struct {
	session *Session
	buf     *pool.FixedBufferPool
	nDone   int
}

// NewCopier builds a Copier for session.
func NewCopier(session *Session) *Copier {
	return &Copier{session: session, buf: pool.NewFixedBuffer(copyBufferSize)}
}

// Run drains the todo list until empty or an abort is requested. It never
// modifies the destination beyond what has already been flushed once an
// abort is observed.
func (c *Copier) Run(ctx context.Context) error {
	for {
		relPath, ok := c.session.PopTodo()
		if !ok {
			return nil
		}
		c.nDone++

		if err := ctx.Err(); err != nil {
			c.session.Abort(-1)
			return &abortError{code: -1}
		}
		fraction := float64(c.nDone) / float64(c.nDone+c.session.TodoLen())
		if rc := c.session.Callbacks().Poll(fraction, fmt.Sprintf("%d/%d (%s)", c.nDone, c.nDone+c.session.TodoLen(), relPath)); rc != 0 {
			c.session.Abort(rc)
			return &abortError{code: rc}
		}

		if err := c.visit(ctx, relPath); err != nil {
			var ab *abortError
			if errors.As(err, &ab) {
				return err
			}
			// Non-abort errors for a single entry are reported and the
			// walk continues with the next todo entry.
			plog.Warn("copier: entry failed, continuing", "path", relPath, "error", err)
		}
	}
}

func (c *Copier) visit(ctx context.Context, relPath string) error {
	srcPath := filepath.Join(c.session.SourcePrefix(), relPath)
	destPath := filepath.Join(c.session.DestPrefix(), relPath)

	info, err := os.Lstat(srcPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil // vanished mid-walk; silently skipped
		}
		return fmt.Errorf("stat %s: %w", srcPath, err)
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		plog.Warn("copier: skipping symbolic link", "path", relPath)
		c.session.Metrics().AddSymlinksSkipped(1)
		return nil
	case info.IsDir():
		return c.visitDir(srcPath, destPath, relPath)
	case info.Mode().IsRegular():
		return c.copyRegularFile(ctx, srcPath, destPath, relPath, info.Size())
	default:
		return nil // device, socket, FIFO: ignored
	}
}

func (c *Copier) visitDir(srcPath, destPath, relPath string) error {
	if err := os.Mkdir(destPath, os.FileMode(platform.DirMode())); err != nil {
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("mkdir %s: %w", destPath, err)
		}
	} else {
		c.session.Metrics().AddDirsCreated(1)
	}

	entries, err := os.ReadDir(srcPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("readdir %s: %w", srcPath, err)
	}
	for _, e := range entries {
		name := e.Name()
		if name == "." || name == ".." {
			continue
		}
		c.session.PushTodo(filepath.Join(relPath, name))
	}
	return nil
}

func (c *Copier) copyRegularFile(ctx context.Context, srcPath, destPath, relPath string, size int64) error {
	src, err := os.Open(srcPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open source %s: %w", srcPath, err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			plog.Warn("copier: closing source failed", "path", srcPath, "error", cerr)
		}
	}()

	dst, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o700)
	if errors.Is(err, os.ErrExist) {
		dst, err = os.OpenFile(destPath, os.O_WRONLY, 0)
	}
	if err != nil {
		return fmt.Errorf("open destination %s: %w", destPath, err)
	}
	defer func() {
		if cerr := dst.Close(); cerr != nil {
			c.session.Metrics().AddDestinationErrors(1)
			plog.Warn("copier: closing destination failed", "path", destPath, "error", cerr)
		}
	}()

	buf := c.buf.Get()
	defer c.buf.Put(buf)

	var written int64
	start := time.Now()
	lastPoll := start

	for {
		n, rerr := src.Read(*buf)
		if n > 0 {
			if werr := writeFullAt(dst, (*buf)[:n], written); werr != nil {
				return fmt.Errorf("write destination %s: %w", destPath, werr)
			}
			written += int64(n)
			c.session.Metrics().AddBytesCopied(int64(n))

			if abortCode, err := c.throttle(ctx, relPath, written, size, start, &lastPoll); err != nil {
				return err
			} else if abortCode != 0 {
				c.session.Abort(abortCode)
				return &abortError{code: abortCode}
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("read source %s: %w", srcPath, rerr)
		}
	}

	if err := dst.Truncate(written); err != nil {
		return fmt.Errorf("truncate destination %s: %w", destPath, err)
	}
	c.session.Metrics().AddFilesCopied(1)
	return nil
}

// throttle applies the copier's throttling algorithm: given the current
// throughput cap, sleep in increments no longer than one second so the
// caller's Poll callback (and ctx cancellation) are re-checked at least
// once per second even during a long sleep.
func (c *Copier) throttle(ctx context.Context, relPath string, written, total int64, start time.Time, lastPoll *time.Time) (abortCode int, err error) {
	throttleRate := c.session.Callbacks().GetThrottle()
	if throttleRate > 0 {
		elapsed := time.Since(start)
		budgeted := time.Duration(float64(written) / float64(throttleRate) * float64(time.Second))
		if sleep := budgeted - elapsed; sleep > 0 {
			c.session.Metrics().AddThrottleSleeps(1)
			for sleep > 0 {
				chunk := sleep
				if chunk > throttlePollInterval {
					chunk = throttlePollInterval
				}
				time.Sleep(chunk)
				sleep -= chunk
				if ctx.Err() != nil {
					return -1, nil
				}
				if time.Since(*lastPoll) >= throttlePollInterval {
					msg := fmt.Sprintf("%d/%d bytes of %s to dst (throttled)", written, total, relPath)
					if rc := c.session.Callbacks().Poll(float64(written)/float64(total), msg); rc != 0 {
						return rc, nil
					}
					*lastPoll = time.Now()
				}
			}
		}
	}

	if time.Since(*lastPoll) >= throttlePollInterval {
		msg := fmt.Sprintf("%d/%d bytes of %s to dst", written, total, relPath)
		if rc := c.session.Callbacks().Poll(float64(written)/float64(total), msg); rc != 0 {
			return rc, nil
		}
		*lastPoll = time.Now()
	}
	return 0, nil
}

func writeFullAt(f *os.File, buf []byte, offset int64) error {
	for len(buf) > 0 {
		n, err := f.WriteAt(buf, offset)
		if err != nil {
			return err
		}
		if n == 0 {
			return syscall.EIO
		}
		buf = buf[n:]
		offset += int64(n)
	}
	return nil
}
