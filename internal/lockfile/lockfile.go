// Package lockfile guards the local state file with an advisory exclusive
// lock, so concurrent pipeline steps on one machine serialize their
// read-modify-write cycles instead of clobbering each other.
package lockfile

import (
	"errors"
	"fmt"
	"os"
)

// ErrLockBusy means another process holds the lock.
var ErrLockBusy = errors.New("state lock already held by another process")

// Lock is a held advisory lock. Release it when the critical section ends.
type Lock struct {
	f    *os.File
	path string
}

// Acquire takes an exclusive non-blocking lock on the given lock file,
// creating it if needed. Returns ErrLockBusy when another process holds it.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}
	if err := flockExclusive(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Lock{f: f, path: path}, nil
}

// Release unlocks and closes the lock file. The file itself is left in
// place; removing it would race with other acquirers.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	unlockErr := flockUnlock(l.f)
	closeErr := l.f.Close()
	l.f = nil
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}
