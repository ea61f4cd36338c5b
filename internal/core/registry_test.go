package core

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := OpenRegistry(filepath.Join(t.TempDir(), RegistryFileName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRegistry_AddListRemove(t *testing.T) {
	t.Parallel()

	r := openTestRegistry(t)
	ctx := context.Background()

	rows, err := r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)

	row := RegistryRow{
		ID:        "inst-0-deadbeef",
		PID:       4242,
		DataDir:   "/tmp/walletenv/inst-0-deadbeef",
		RPCPort:   7777,
		StartedAt: time.Now().Truncate(time.Second),
	}
	require.NoError(t, r.Add(ctx, row))

	rows, err = r.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, row.ID, rows[0].ID)
	assert.Equal(t, row.PID, rows[0].PID)
	assert.Equal(t, row.DataDir, rows[0].DataDir)
	assert.Equal(t, row.RPCPort, rows[0].RPCPort)
	assert.WithinDuration(t, row.StartedAt, rows[0].StartedAt, time.Second)

	require.NoError(t, r.Remove(ctx, row.ID))
	rows, err = r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)

	// Removing an absent row is not an error.
	require.NoError(t, r.Remove(ctx, "never-existed"))
}

func TestRegistry_AddReplacesExistingRow(t *testing.T) {
	t.Parallel()

	r := openTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Add(ctx, RegistryRow{ID: "a", PID: 1, DataDir: "/x", RPCPort: 1, StartedAt: time.Now()}))
	require.NoError(t, r.Add(ctx, RegistryRow{ID: "a", PID: 2, DataDir: "/y", RPCPort: 2, StartedAt: time.Now()}))

	rows, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].PID)
	assert.Equal(t, "/y", rows[0].DataDir)
}

func TestRegistry_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), RegistryFileName)
	ctx := context.Background()

	r1, err := OpenRegistry(path)
	require.NoError(t, err)
	require.NoError(t, r1.Add(ctx, RegistryRow{ID: "a", PID: 1, DataDir: "/x", RPCPort: 1, StartedAt: time.Now()}))
	require.NoError(t, r1.Close())

	r2, err := OpenRegistry(path)
	require.NoError(t, err)
	defer r2.Close()

	rows, err := r2.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a", rows[0].ID)
}

func TestOpenRegistry_EmptyPath(t *testing.T) {
	t.Parallel()

	_, err := OpenRegistry("")
	require.Error(t, err)
}
