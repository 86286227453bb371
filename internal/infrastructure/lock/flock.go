package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gofrs/flock"

	"TenderWatch/internal/ports"
)

// FileLock is an advisory, host-wide exclusive lock over a well-known file.
// The holder writes a token with its pid and start time into the file.
// The file is left in place on release so every process locks the same inode.
type FileLock struct {
	path    string
	fl      *flock.Flock
	started time.Time
}

var _ ports.Locker = (*FileLock)(nil)

// NewFileLock prepares a lock over path without acquiring it.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path, fl: flock.New(path)}
}

// TryLock attempts a single non-blocking acquisition.
func (l *FileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, errors.Wrap(err, "create lock directory")
	}

	ok, err := l.fl.TryLock()
	if err != nil {
		return false, errors.Wrapf(err, "lock %s", l.path)
	}
	if !ok {
		return false, nil
	}

	l.started = time.Now()
	token := fmt.Sprintf("PID: %d\nStarted: %s\n", os.Getpid(), l.started.Format(time.RFC3339))
	if err := os.WriteFile(l.path, []byte(token), 0o644); err != nil {
		_ = l.fl.Unlock()
		return false, errors.Wrap(err, "write lock token")
	}
	return true, nil
}

// Unlock clears the token and releases the lock. It is a no-op when the
// lock is not held.
func (l *FileLock) Unlock() error {
	if !l.fl.Locked() {
		return nil
	}
	if err := os.Truncate(l.path, 0); err != nil && !os.IsNotExist(err) {
		_ = l.fl.Unlock()
		return errors.Wrap(err, "clear lock token")
	}
	return errors.Wrap(l.fl.Unlock(), "unlock")
}

// Path returns the lock file location.
func (l *FileLock) Path() string {
	return l.path
}
