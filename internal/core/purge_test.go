package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurgeOrphans_RemovesDeadRows(t *testing.T) {
	t.Parallel()

	r := openTestRegistry(t)
	ctx := context.Background()

	dataDir := filepath.Join(t.TempDir(), "inst-0-dead")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))

	// A pid that cannot exist marks the row as belonging to a dead daemon.
	require.NoError(t, r.Add(ctx, RegistryRow{
		ID: "inst-0-dead", PID: 1 << 30, DataDir: dataDir, RPCPort: 1, StartedAt: time.Now(),
	}))

	res, err := PurgeOrphans(ctx, r, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
	assert.Zero(t, res.Killed)
	assert.Zero(t, res.Skipped)

	assert.NoDirExists(t, dataDir)
	rows, err := r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestPurgeOrphans_SkipsLiveDaemons(t *testing.T) {
	t.Parallel()

	r := openTestRegistry(t)
	ctx := context.Background()

	dataDir := t.TempDir()

	// Our own pid is guaranteed alive; without kill the row must survive.
	require.NoError(t, r.Add(ctx, RegistryRow{
		ID: "inst-0-live", PID: os.Getpid(), DataDir: dataDir, RPCPort: 1, StartedAt: time.Now(),
	}))

	res, err := PurgeOrphans(ctx, r, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Removed)

	assert.DirExists(t, dataDir)
	rows, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestPurgeOrphans_EmptyRegistry(t *testing.T) {
	t.Parallel()

	r := openTestRegistry(t)
	res, err := PurgeOrphans(context.Background(), r, false, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Removed+res.Killed+res.Skipped)
}

func TestPidAlive(t *testing.T) {
	t.Parallel()

	assert.True(t, pidAlive(os.Getpid()))
	assert.False(t, pidAlive(0))
	assert.False(t, pidAlive(-1))
	assert.False(t, pidAlive(1<<30))
}
