package pipeline

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
)

// staleAfter is the mtime fallback used only when the lock file's PID can't
// be read or no longer identifies a real process on this host (e.g. a lock
// file left by a run on a different machine, or one written by a crashed
// process before it got to write its PID). A live holder is never reclaimed
// by this check regardless of age.
const staleAfter = 10 * time.Minute

// RunLock is the process-exclusive run lock spec.md §5 requires: the
// Version Store and checkpoint are single-writer, and only one Pipeline
// Controller may hold them at a time.
type RunLock struct {
	flock *flock.Flock
	path  string
}

// AcquireLock takes the run lock at path. spec.md §5: "a stale lock (process
// not alive) is reclaimed" — so an existing lock file is reclaimed when the
// PID it records no longer belongs to a live process, checked via
// syscall.Kill(pid, 0) (signal 0 probes existence without actually
// signaling). Only when the recorded PID can't be determined does this fall
// back to the older mtime heuristic.
func AcquireLock(path string) (*RunLock, error) {
	if info, err := os.Stat(path); err == nil {
		if pid, ok := readLockPID(path); ok {
			if processAlive(pid) {
				return nil, fmt.Errorf("pipeline: lock %s is held by live process %d", path, pid)
			}
			fmt.Fprintf(os.Stderr, "pipeline: reclaiming stale lock %s (holder pid %d is no longer running)\n", path, pid)
			_ = os.Remove(path)
		} else if time.Since(info.ModTime()) > staleAfter {
			fmt.Fprintf(os.Stderr, "pipeline: reclaiming stale lock %s (no readable pid, last touched %s ago)\n", path, time.Since(info.ModTime()).Round(time.Second))
			_ = os.Remove(path)
		}
	}

	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("pipeline: acquiring lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("pipeline: lock %s is held by another run", path)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		_ = fl.Unlock()
		return nil, fmt.Errorf("pipeline: writing pid to lock %s: %w", path, err)
	}

	return &RunLock{flock: fl, path: path}, nil
}

// readLockPID parses the PID previously written into path by AcquireLock.
// The second return value is false when the file is empty, unparseable, or
// unreadable — callers fall back to the mtime heuristic in that case.
func readLockPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// processAlive reports whether pid identifies a running process, via the
// signal-0 liveness probe: delivering signal 0 performs no action but still
// reports ESRCH if the process doesn't exist.
func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

// Release unlocks and removes the lock file, the clean-exit half of spec.md
// §5's policy ("removed at clean exit").
func (l *RunLock) Release() error {
	if l == nil {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return err
	}
	return os.Remove(l.path)
}
