package core

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletenv/walletenv/internal/netutil"
)

func newBareInstance(t *testing.T) *Instance {
	t.Helper()
	return NewInstance(NewInstanceParams{
		ID:       "inst-test",
		DataDir:  t.TempDir(),
		Releaser: nopReleaser{},
		Ports:    netutil.NewPortRegistry(nil),
		Config: InstanceConfig{
			Binary:         "/usr/bin/true",
			Network:        "regtest",
			StartTimeout:   time.Second,
			StopTimeout:    time.Second,
			CleanupTimeout: time.Second,
		},
	})
}

func TestNewInstance_Panics(t *testing.T) {
	t.Parallel()

	ports := netutil.NewPortRegistry(nil)
	cfg := InstanceConfig{
		Binary:         "/usr/bin/true",
		Network:        "regtest",
		StartTimeout:   time.Second,
		StopTimeout:    time.Second,
		CleanupTimeout: time.Second,
	}

	tests := map[string]NewInstanceParams{
		"empty id":       {DataDir: "/tmp/x", Releaser: nopReleaser{}, Ports: ports, Config: cfg},
		"empty data dir": {ID: "a", Releaser: nopReleaser{}, Ports: ports, Config: cfg},
		"nil releaser":   {ID: "a", DataDir: "/tmp/x", Ports: ports, Config: cfg},
		"nil ports":      {ID: "a", DataDir: "/tmp/x", Releaser: nopReleaser{}, Config: cfg},
		"invalid config": {ID: "a", DataDir: "/tmp/x", Releaser: nopReleaser{}, Ports: ports},
	}
	for name, params := range tests {
		params := params
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Panics(t, func() { NewInstance(params) })
		})
	}
}

func TestInstance_GenerationTokens(t *testing.T) {
	t.Parallel()

	i := newBareInstance(t)
	assert.False(t, i.IsBusy())

	tok := i.markAcquired()
	assert.True(t, i.IsBusy())
	assert.True(t, i.isCurrentToken(tok))

	require.True(t, i.tryRelease(tok))
	assert.False(t, i.IsBusy())

	// Stale token from the first acquisition no longer matches.
	tok2 := i.markAcquired()
	assert.NotEqual(t, tok, tok2)
	assert.False(t, i.tryRelease(tok))
	assert.True(t, i.tryRelease(tok2))
}

func TestInstance_AccessBeforeStart(t *testing.T) {
	t.Parallel()

	i := newBareInstance(t)
	i.markAcquired()

	_, err := i.Call(context.Background(), "version", nil)
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = i.RPCURL()
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = i.DataDir()
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestInstance_StopNeverStarted(t *testing.T) {
	t.Parallel()

	i := newBareInstance(t)
	require.NoError(t, i.Stop(context.Background()))
}

func TestInstance_StopAfterFailedStartRemovesDataDir(t *testing.T) {
	t.Setenv(envMode, modeHang)

	i := NewInstance(NewInstanceParams{
		ID:       "inst-failed-start",
		DataDir:  filepath.Join(t.TempDir(), "inst-failed-start"),
		Releaser: nopReleaser{},
		Ports:    netutil.NewPortRegistry(nil),
		Config: InstanceConfig{
			Binary:         fakeDaemonBinary(t),
			Network:        "regtest",
			StartTimeout:   500 * time.Millisecond,
			StopTimeout:    5 * time.Second,
			CleanupTimeout: time.Second,
		},
	})

	err := i.Start(context.Background())
	require.ErrorIs(t, err, ErrStartupTimeout)

	// The start created the directory and wrote the daemon config into it;
	// Stop must reclaim it even though no process handle was recorded.
	require.DirExists(t, i.dataDir)
	require.NoError(t, i.Stop(context.Background()))
	assert.NoDirExists(t, i.dataDir)
}

func TestInstance_StopCanceledContext(t *testing.T) {
	t.Parallel()

	i := newBareInstance(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, i.Stop(ctx))
}

func TestInstance_ErrRecording(t *testing.T) {
	t.Parallel()

	i := newBareInstance(t)
	assert.NoError(t, i.Err())
	i.setErr(ErrStartupTimeout)
	assert.ErrorIs(t, i.Err(), ErrStartupTimeout)
}
