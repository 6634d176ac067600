// Package lock serialises dispatches that share one state directory.
//
// The lock is a PID file held with flock(2); it lives as long as the file
// descriptor stays open, so a crashed process never leaves a stale lock.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// FileName is the lock file created next to the ledger.
const FileName = "dispatch.lock"

const pollInterval = 100 * time.Millisecond

// ErrLocked reports that another process holds the lock.
type ErrLocked struct {
	Path string
	// PID of the holder, 0 when unreadable.
	PID int
}

func (e *ErrLocked) Error() string {
	if e.PID > 0 {
		return fmt.Sprintf("lock %s is held by pid %d", e.Path, e.PID)
	}
	return fmt.Sprintf("lock %s is held by another process", e.Path)
}

// DispatchLock is a held lock. Release it when the dispatch finishes.
type DispatchLock struct {
	path string
	f    *os.File
}

// PathFor returns the lock path for a ledger database path.
func PathFor(ledgerPath string) string {
	return filepath.Join(filepath.Dir(ledgerPath), FileName)
}

// TryAcquire takes the lock without waiting.
func TryAcquire(lockPath string) (*DispatchLock, error) {
	if lockPath == "" {
		return nil, fmt.Errorf("lock path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, &ErrLocked{Path: lockPath, PID: readPID(lockPath)}
		}
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	if err := writePID(f); err != nil {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
		return nil, err
	}
	return &DispatchLock{path: lockPath, f: f}, nil
}

// Acquire waits for the lock until ctx is done.
func Acquire(ctx context.Context, lockPath string) (*DispatchLock, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		l, err := TryAcquire(lockPath)
		var locked *ErrLocked
		if !errors.As(err, &locked) {
			return l, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", locked, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *DispatchLock) Path() string { return l.path }

func (l *DispatchLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("seek lock file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		return fmt.Errorf("write pid: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync lock file: %w", err)
	}
	return nil
}

func readPID(path string) int {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0
	}
	return pid
}
