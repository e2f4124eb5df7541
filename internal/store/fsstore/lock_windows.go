//go:build windows

package fsstore

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sys/windows"

	"huddle/internal/store"
)

type fileLock struct {
	f *os.File
}

// acquire takes a shared or exclusive LockFileEx lock on path, retrying until ctx expires. The OS
// drops the lock when the handle closes, so a crashed process never leaves the workspace locked.
func acquire(ctx context.Context, path string, exclusive bool) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, store.Unavailable("open lock", err)
	}
	flags := uint32(windows.LOCKFILE_FAIL_IMMEDIATELY)
	if exclusive {
		flags |= windows.LOCKFILE_EXCLUSIVE_LOCK
	}
	for {
		ol := new(windows.Overlapped)
		err := windows.LockFileEx(windows.Handle(f.Fd()), flags, 0, 1, 0, ol)
		if err == nil {
			return &fileLock{f: f}, nil
		}
		if !errors.Is(err, windows.ERROR_LOCK_VIOLATION) && !errors.Is(err, windows.ERROR_IO_PENDING) {
			_ = f.Close()
			return nil, store.Unavailable("lock", err)
		}
		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, store.Unavailable("lock", ctx.Err())
		case <-time.After(lockRetry):
		}
	}
}

func (l *fileLock) release() {
	if l == nil || l.f == nil {
		return
	}
	_ = windows.UnlockFileEx(windows.Handle(l.f.Fd()), 0, 1, 0, new(windows.Overlapped))
	_ = l.f.Close()
}
