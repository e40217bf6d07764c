//go:build !windows

package singleinstance

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"agentwatch/internal/userutil"
)

// ErrAlreadyRunning is returned by TryLock when another instance holds the lock.
var ErrAlreadyRunning = errors.New("another instance is already running")

// Lock holds an exclusive flock on a lock file plus the PID file written
// alongside it, mirroring the original daemon's InstanceGuard. The kernel
// releases the flock automatically if the process dies without calling
// Release, so a crashed daemon never wedges the next start permanently.
type Lock struct {
	lockFile *os.File
	pidPath  string
}

// TryLock acquires a non-blocking exclusive lock on a file named name under
// the daemon's runtime directory. If another live process holds it,
// ErrAlreadyRunning is returned. A stale lock file left behind by an
// unclean shutdown is taken over silently, since flock is released by the
// kernel when the owning process exits.
func TryLock(name string) (*Lock, error) {
	if name == "" {
		return nil, errors.New("lock name is required")
	}

	dir := RuntimeDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create runtime dir %q: %w", dir, err)
	}

	lockPath := filepath.Join(dir, name+".lock")
	pidPath := filepath.Join(dir, name+".pid")

	file, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file %q: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		return nil, ErrAlreadyRunning
	}

	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("write pid file %q: %w", pidPath, err)
	}

	return &Lock{lockFile: file, pidPath: pidPath}, nil
}

// Release unlocks and closes the lock file and removes the PID file. Safe
// to call on a nil receiver and idempotent.
func (l *Lock) Release() error {
	if l == nil || l.lockFile == nil {
		return nil
	}
	syscall.Flock(int(l.lockFile.Fd()), syscall.LOCK_UN)
	closeErr := l.lockFile.Close()
	l.lockFile = nil
	os.Remove(l.pidPath)
	return closeErr
}

// RuntimeDir returns the directory single-instance lock/PID files live in,
// following the original daemon's XDG_DATA_HOME → HOME/.local/share → /tmp
// fallback chain.
func RuntimeDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "agentwatch")
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".local", "share", "agentwatch")
	}
	return filepath.Join(os.TempDir(), "agentwatch")
}

// DefaultMutexName returns the single-instance lock name for the current
// user, mirroring the Windows variant's per-user mutex naming.
func DefaultMutexName() string {
	username := strings.TrimSpace(os.Getenv("USER"))
	if username == "" {
		if current, err := user.Current(); err == nil {
			username = current.Username
		}
	}
	return "agentwatchd-" + userutil.SanitizeUsername(username)
}
