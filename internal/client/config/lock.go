package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// LockInfo describes the relay process holding the lock.
type LockInfo struct {
	PID       int    `json:"pid"`
	StartedAt string `json:"started_at"`
	Store     string `json:"store,omitempty"`
}

// ErrAlreadyRunning indicates another relay owns the device store.
var ErrAlreadyRunning = errors.New("another bemfa-relay instance is already running")

// Lock is a held single-instance lock file.
type Lock struct {
	path string
	info LockInfo
}

// LockFilePath returns the path to the lock file.
func LockFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".bemfa-relay.lock"), nil
}

// AcquireLock takes the lock for a relay using storePath. A lock left by
// a dead process is replaced.
func AcquireLock(storePath string) (*Lock, error) {
	path, err := LockFilePath()
	if err != nil {
		return nil, err
	}

	if held, err := ReadLock(path); err == nil {
		if held.PID != os.Getpid() && isProcessRunning(held.PID) {
			return nil, fmt.Errorf("%w (PID: %d, since %s)", ErrAlreadyRunning, held.PID, held.StartedAt)
		}
		// stale
		os.Remove(path)
	}

	l := &Lock{
		path: path,
		info: LockInfo{
			PID:       os.Getpid(),
			StartedAt: time.Now().Format(time.RFC3339),
			Store:     storePath,
		},
	}
	data, err := json.Marshal(l.info)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, fmt.Errorf("write lock file: %w", err)
	}
	return l, nil
}

// Info returns what was written to the lock file.
func (l *Lock) Info() LockInfo {
	return l.info
}

// Release removes the lock file if this process still owns it.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	held, err := ReadLock(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if held.PID != l.info.PID {
		return nil
	}
	return os.Remove(l.path)
}

// ReadLock parses the lock file at path.
func ReadLock(path string) (*LockInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// FindProcess always succeeds on Unix; signal 0 probes for existence.
	return process.Signal(syscall.Signal(0)) == nil
}
