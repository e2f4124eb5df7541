//go:build !windows

package fsstore

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"

	"huddle/internal/store"
)

type fileLock struct {
	f *os.File
}

// acquire takes a shared or exclusive flock on path, retrying until ctx expires. Each call opens its
// own descriptor, so goroutines in one process exclude each other the same way processes do.
func acquire(ctx context.Context, path string, exclusive bool) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, store.Unavailable("open lock", err)
	}
	how := syscall.LOCK_SH
	if exclusive {
		how = syscall.LOCK_EX
	}
	for {
		err := syscall.Flock(int(f.Fd()), how|syscall.LOCK_NB)
		if err == nil {
			return &fileLock{f: f}, nil
		}
		if !errors.Is(err, syscall.EWOULDBLOCK) && !errors.Is(err, syscall.EINTR) {
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
	_ = syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	_ = l.f.Close()
}
