package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"
)

// PurgeResult summarizes one orphan purge pass.
type PurgeResult struct {
	// Killed counts orphaned daemons that were still alive and got SIGKILL.
	Killed int
	// Removed counts registry rows (and their data directories) cleaned up.
	Removed int
	// Skipped counts rows left alone because their recording process, or
	// the daemon itself, is still running legitimately.
	Skipped int
}

// PurgeOrphans scans the registry for daemons whose rows were never removed,
// meaning the test binary that started them died without cleanup. Dead
// daemons get their data directory and registry row removed; live orphans
// are killed first.
//
// A row is considered orphaned only when its recorded daemon pid no longer
// belongs to a live process, or when kill is true. With kill false and the
// daemon still alive there is no way to tell an orphan from a daemon owned
// by a concurrently running test binary, so the row is skipped.
func PurgeOrphans(ctx context.Context, registry *Registry, kill bool, log *slog.Logger) (PurgeResult, error) {
	if log == nil {
		log = Logger()
	}

	rows, err := registry.List(ctx)
	if err != nil {
		return PurgeResult{}, fmt.Errorf("list registry: %w", err)
	}

	var res PurgeResult
	var errs []error
	for _, row := range rows {
		alive := pidAlive(row.PID)

		if alive {
			if !kill {
				log.Debug("purge: daemon still running, skipping",
					"id", row.ID, "pid", row.PID)
				res.Skipped++
				continue
			}
			if err := syscall.Kill(row.PID, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
				errs = append(errs, fmt.Errorf("kill orphan %s (pid %d): %w", row.ID, row.PID, err))
				res.Skipped++
				continue
			}
			log.Info("purge: killed orphaned daemon", "id", row.ID, "pid", row.PID)
			res.Killed++
		}

		if err := os.RemoveAll(row.DataDir); err != nil {
			errs = append(errs, fmt.Errorf("remove data dir %s: %w", row.DataDir, err))
			continue
		}
		if err := registry.Remove(ctx, row.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		log.Debug("purge: removed orphan", "id", row.ID, "data_dir", row.DataDir)
		res.Removed++
	}

	return res, errors.Join(errs...)
}

// pidAlive reports whether a process with the given pid exists. Signal 0
// performs the existence check without delivering anything; EPERM still
// means the process exists.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
