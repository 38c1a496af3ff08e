// Package filelock provides a cross-process advisory lock backed by a JSON
// file with a background heartbeat, so two engine processes (not just two
// goroutines within one process, which Manager's own mutex already
// prevents) never target the same destination concurrently.
package filelock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// staleAfter is how long a lock file can go without a heartbeat before a
// competing process is allowed to steal it, on the assumption its owner
// crashed without cleaning up.
const staleAfter = 3 * time.Minute

const heartbeatInterval = 30 * time.Second

// ErrLockActive is returned by Acquire when another live process holds the
// lock.
var ErrLockActive = errors.New("filelock: lock is held by another process")

type lockContent struct {
	PID       int       `json:"pid"`
	Acquired  time.Time `json:"acquired"`
	HeartBeat time.Time `json:"heartbeat"`
}

// Lock is a held advisory lock. Call Release when done.
type Lock struct {
	path   string
	stop   chan struct{}
	done   chan struct{}
}

// Acquire attempts to take the lock at path, creating it if necessary.
// If an existing lock file is present and its heartbeat is recent, Acquire
// returns ErrLockActive. A stale lock file (heartbeat older than
// staleAfter) is treated as abandoned and reclaimed.
func Acquire(path string) (*Lock, error) {
	if err := tryAcquire(path); err != nil {
		return nil, err
	}
	l := &Lock{path: path, stop: make(chan struct{}), done: make(chan struct{})}
	go l.heartbeat()
	return l, nil
}

func tryAcquire(path string) error {
	existing, err := readLockContentSafely(path)
	if err == nil && time.Since(existing.HeartBeat) < staleAfter {
		return ErrLockActive
	}
	return writeLockContent(path, lockContent{
		PID:       os.Getpid(),
		Acquired:  time.Now(),
		HeartBeat: time.Now(),
	})
}

func readLockContentSafely(path string) (lockContent, error) {
	var c lockContent
	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("filelock: corrupt lock file %s: %w", path, err)
	}
	return c, nil
}

func writeLockContent(path string, c lockContent) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (l *Lock) heartbeat() {
	defer close(l.done)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			c, err := readLockContentSafely(l.path)
			if err != nil {
				continue
			}
			c.HeartBeat = time.Now()
			_ = writeLockContent(l.path, c)
		}
	}
}

// Release stops the heartbeat and removes the lock file.
func (l *Lock) Release() error {
	close(l.stop)
	<-l.done
	return os.Remove(l.path)
}
