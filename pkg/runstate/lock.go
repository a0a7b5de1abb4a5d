// Package runstate holds the small files that describe an in-progress
// measurement in a data directory: the single-writer lock and the status
// snapshot.
package runstate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LockedError reports a data directory already held by another writer.
type LockedError struct {
	Path string
	PID  int // 0 if the holder's PID could not be read
}

func (e *LockedError) Error() string {
	if e.PID <= 0 {
		return fmt.Sprintf("data directory is in use (lock %s)", e.Path)
	}
	return fmt.Sprintf("data directory is in use by PID %d (lock %s)", e.PID, e.Path)
}

// errLocked is returned by tryLock when another open file holds the lock.
var errLocked = errors.New("lock held")

// Lock is a held data directory lock. Exclusion comes from an advisory
// flock on the open file, so a lock left behind by a dead process is free
// again as soon as the kernel closes its descriptor. The PID written into
// the file is informational.
type Lock struct {
	path string
	f    *os.File
}

// AcquireLock takes the lock file at path, creating it if needed. It fails
// with *LockedError if another writer holds it.
func AcquireLock(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	for attempt := 0; attempt < 3; attempt++ {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open lock file: %w", err)
		}
		if err := tryLock(f); err != nil {
			_ = f.Close()
			if errors.Is(err, errLocked) {
				pid, _ := ReadLock(path)
				return nil, &LockedError{Path: path, PID: pid}
			}
			return nil, fmt.Errorf("lock %s: %w", path, err)
		}
		// A releasing holder unlinks the file; the inode we locked may no
		// longer be the one at path.
		if !stillLinked(f, path) {
			_ = f.Close()
			continue
		}
		if err := writePID(f); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write lock file: %w", err)
		}
		return &Lock{path: path, f: f}, nil
	}
	return nil, fmt.Errorf("could not acquire lock %s", path)
}

// Release removes the lock file and drops the lock. It is safe to call more
// than once.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	var rerr error
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		rerr = fmt.Errorf("remove lock file: %w", err)
	}
	cerr := l.f.Close()
	l.f = nil
	return errors.Join(rerr, cerr)
}

func stillLinked(f *os.File, path string) bool {
	held, err := f.Stat()
	if err != nil {
		return false
	}
	current, err := os.Stat(path)
	return err == nil && os.SameFile(held, current)
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	_, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0)
	return err
}

// ReadLock reads the PID recorded in a lock file.
func ReadLock(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read lock file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse lock file: %w", err)
	}
	return pid, nil
}
