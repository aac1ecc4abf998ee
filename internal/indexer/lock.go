package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	defaultLockTimeout = 5 * time.Second
	lockRetryDelay     = 100 * time.Millisecond
)

// writerLock serializes writers inside the process with a mutex and across
// processes with an advisory file lock.
type writerLock struct {
	mu      sync.Mutex
	path    string
	timeout time.Duration
}

// acquire takes both locks. It returns ErrLocked when another process holds the
// file lock past the timeout. Cancellation of ctx does not abort the wait.
func (l *writerLock) acquire(ctx context.Context) (func(), error) {
	l.mu.Lock()
	if l.path == "" {
		return l.mu.Unlock, nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		l.mu.Unlock()
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	fl := flock.New(l.path)
	lockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()
	locked, err := fl.TryLockContext(lockCtx, lockRetryDelay)
	if !locked {
		l.mu.Unlock()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("lock %s: %w", l.path, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrLocked, l.path)
	}
	return func() {
		_ = fl.Unlock()
		l.mu.Unlock()
	}, nil
}
