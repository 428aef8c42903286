// Package lock keeps two daemons from opening the same instance database.
package lock

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// FileName is the lock file created inside an instance directory.
const FileName = "LOCK"

// HeldError is returned when another process holds the instance lock.
type HeldError struct {
	PID   int
	Since string
	Path  string
}

func (e *HeldError) Error() string {
	if e.Since != "" {
		return fmt.Sprintf("instance locked by PID %d since %s (%s)", e.PID, e.Since, e.Path)
	}
	return fmt.Sprintf("instance locked by PID %d (%s)", e.PID, e.Path)
}

// Lock is an acquired instance lock. The flock is held for as long as the
// file stays open.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive, non-blocking flock on dir/LOCK and records the
// owner's PID in it. Returns *HeldError if another process holds it.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create instance dir: %w", err)
	}
	path := filepath.Join(dir, FileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		held := readOwner(path)
		_ = f.Close()
		return nil, held
	}

	if err := writeOwner(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write lock file: %w", err)
	}
	return &Lock{file: f, path: path}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Release drops the lock and removes the file. Safe to call on a nil Lock and
// more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

func writeOwner(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err := fmt.Fprintf(f, "pid=%d\ntime=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	return err
}

func readOwner(path string) *HeldError {
	held := &HeldError{Path: path}
	f, err := os.Open(path)
	if err != nil {
		return held
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			held.PID, _ = strconv.Atoi(value)
		case "time":
			held.Since = value
		}
	}
	return held
}
