package locator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gofrs/flock"
)

// acquireFileLock acquires an exclusive lock on lockPath, retrying at
// fileLockRetryInterval until it succeeds or the context is done.
func acquireFileLock(ctx context.Context, lockPath string) (*flock.Flock, error) {
	fl := flock.New(lockPath)

	locked, err := fl.TryLockContext(ctx, fileLockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("acquiring file lock %s: %w", lockPath, err)
	}
	if !locked {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("acquiring file lock %s: %w", lockPath, ctx.Err())
		}
		return nil, fmt.Errorf("acquiring file lock %s: lock not acquired", lockPath)
	}
	return fl, nil
}

// releaseFileLock releases the lock and closes its file descriptor. The lock
// file stays on disk: removing it races against another process that may
// have locked it in the meantime. Best-effort cleanup, errors only logged.
func releaseFileLock(logger *slog.Logger, fl *flock.Flock) {
	if fl != nil {
		if err := fl.Close(); err != nil {
			logger.Debug("failed to release file lock", "path", fl.Path(), "err", err)
		}
	}
}
