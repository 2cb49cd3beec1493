// Package lock provides the advisory exclusive lock held for the duration of
// a mutating operation (sync, fix --apply, rollback).
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"refcast/pkg/logger"
)

// ErrLocked means another refcast process holds the corpus lock.
var ErrLocked = errors.New("corpus is locked by another operation")

const lockName = "lock"

// Lock is a held advisory lock. Release removes it.
type Lock struct {
	path string
}

// Acquire takes the exclusive lock under stateDir. A lock left behind by a
// dead process is considered stale and replaced.
func Acquire(stateDir string) (*Lock, error) {
	if err := os.MkdirAll(stateDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	path := filepath.Join(stateDir, lockName)

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644) // #nosec G302 G304 -- lock lives in the state dir
		if err == nil {
			fmt.Fprintf(f, "%d %s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
			if cerr := f.Close(); cerr != nil {
				_ = os.Remove(path)
				return nil, cerr
			}
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("acquiring lock: %w", err)
		}
		holder, stale := holderInfo(path)
		if !stale {
			return nil, fmt.Errorf("%w (held by pid %s)", ErrLocked, holder)
		}
		logger.Warn("removing stale lock", logger.String("holder", holder))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("removing stale lock: %w", err)
		}
	}
	return nil, ErrLocked
}

// Release drops the lock. Safe to call once per Acquire.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("releasing lock: %w", err)
	}
	return nil
}

// holderInfo reads the lock file and reports the holder pid plus whether the
// holding process is gone.
func holderInfo(path string) (string, bool) {
	data, err := os.ReadFile(path) // #nosec G304 -- lock lives in the state dir
	if err != nil {
		// Unreadable or vanished; treat as stale
		return "unknown", true
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return "unknown", true
	}
	pid, err := strconv.Atoi(fields[0])
	if err != nil || pid <= 0 {
		return fields[0], true
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fields[0], true
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return fields[0], true
	}
	return fields[0], false
}
