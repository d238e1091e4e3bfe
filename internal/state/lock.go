package state

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

const (
	// LockFileName is the cross-process lock inside the state directory.
	LockFileName = "envmgr.lock"
	// StaleLockThreshold is the age after which a lock is assumed abandoned.
	StaleLockThreshold = 2 * time.Hour
)

// ErrLockExists is returned while another envmgr process holds the lock.
var ErrLockExists = errors.New("another envmgr operation is in progress")

// Lock is an exclusive lock file.
type Lock struct {
	path string
	file *os.File
}

// AcquireLock creates <dir>/envmgr.lock exclusively. A lock left behind by
// a dead process, or older than StaleLockThreshold, is replaced.
func AcquireLock(ctx context.Context, dir string) (*Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	lockPath := filepath.Join(dir, LockFileName)

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		if !isLockStale(ctx, lockPath) {
			return nil, ErrLockExists
		}
		os.Remove(lockPath)
		file, err = os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
		if err != nil {
			return nil, ErrLockExists
		}
	}

	lockData := fmt.Sprintf("pid=%d\ntimestamp=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if _, err := file.WriteString(lockData); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("write lock data: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("sync lock file: %w", err)
	}

	return &Lock{path: lockPath, file: file}, nil
}

// Release removes the lock file. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	if l.path != "" {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove lock file: %w", err)
		}
		l.path = ""
	}
	return nil
}

func isLockStale(ctx context.Context, lockPath string) bool {
	info, err := os.Stat(lockPath)
	if err != nil {
		return false
	}
	if time.Since(info.ModTime()) > StaleLockThreshold {
		return true
	}

	pid, ok := readLockPID(lockPath)
	if !ok {
		return false
	}
	alive, err := process.PidExistsWithContext(ctx, pid)
	if err != nil {
		return false
	}
	return !alive
}

func readLockPID(lockPath string) (int32, bool) {
	f, err := os.Open(lockPath)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		value, found := strings.CutPrefix(scanner.Text(), "pid=")
		if !found {
			continue
		}
		pid, err := strconv.ParseInt(value, 10, 32)
		if err != nil || pid <= 0 {
			return 0, false
		}
		return int32(pid), true
	}
	return 0, false
}
