package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Register the pure-Go SQLite driver (no CGO required).
	_ "modernc.org/sqlite"

	"github.com/walletenv/walletenv/internal/fileutil"
)

// RegistryFileName is the registry database file created under the base
// data directory.
const RegistryFileName = "instances.db"

// RegistryRow describes one running daemon recorded in the registry.
type RegistryRow struct {
	ID        string
	PID       int
	DataDir   string
	RPCPort   int
	StartedAt time.Time
}

// Registry is an on-disk table of daemons started by this library. Each
// instance adds a row after its daemon launches and removes it on a clean
// stop. Rows that survive a crashed test binary point PurgeOrphans at the
// processes and data directories left behind.
//
// Multiple test binaries may share one registry file; SQLite's WAL mode and
// a busy timeout handle the concurrent writers.
type Registry struct {
	db   *sql.DB
	path string
}

// OpenRegistry opens (and if necessary creates) the registry database at
// path.
func OpenRegistry(path string) (*Registry, error) {
	if path == "" {
		return nil, fmt.Errorf("registry path must not be empty")
	}
	if err := fileutil.EnsureDirForFile(path); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)",
		path,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open registry %s: %w", path, err)
	}

	// Registry traffic is a handful of statements per instance lifecycle;
	// one connection avoids writer contention entirely.
	db.SetMaxOpenConns(1)

	const schema = `
		CREATE TABLE IF NOT EXISTS instances (
			id         TEXT PRIMARY KEY,
			pid        INTEGER NOT NULL,
			data_dir   TEXT NOT NULL,
			rpc_port   INTEGER NOT NULL,
			started_at INTEGER NOT NULL
		)
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create registry schema: %w", err)
	}

	return &Registry{db: db, path: path}, nil
}

// Path returns the registry database file path.
func (r *Registry) Path() string {
	return r.path
}

// Add inserts or replaces the row for an instance.
func (r *Registry) Add(ctx context.Context, row RegistryRow) error {
	const stmt = `
		INSERT OR REPLACE INTO instances (id, pid, data_dir, rpc_port, started_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := r.db.ExecContext(ctx, stmt,
		row.ID, row.PID, row.DataDir, row.RPCPort, row.StartedAt.Unix()); err != nil {
		return fmt.Errorf("insert registry row %s: %w", row.ID, err)
	}
	return nil
}

// Remove deletes the row for an instance. Removing an absent row is not an
// error.
func (r *Registry) Remove(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete registry row %s: %w", id, err)
	}
	return nil
}

// List returns all recorded rows ordered by start time.
func (r *Registry) List(ctx context.Context) ([]RegistryRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, pid, data_dir, rpc_port, started_at FROM instances ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("query registry rows: %w", err)
	}
	defer rows.Close() //nolint:errcheck // rows.Err() below catches read errors

	var out []RegistryRow
	for rows.Next() {
		var row RegistryRow
		var startedAt int64
		if err := rows.Scan(&row.ID, &row.PID, &row.DataDir, &row.RPCPort, &startedAt); err != nil {
			return nil, fmt.Errorf("scan registry row: %w", err)
		}
		row.StartedAt = time.Unix(startedAt, 0)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registry rows: %w", err)
	}
	return out, nil
}

// Close closes the registry database.
func (r *Registry) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("close registry: %w", err)
	}
	return nil
}
