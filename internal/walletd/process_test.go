package walletd

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletenv/walletenv/internal/netutil"
	"github.com/walletenv/walletenv/internal/process"
)

// newTestProcess builds an unstarted Process against the fake daemon with
// short timeouts suitable for tests.
func newTestProcess(t *testing.T, mutate func(*Config)) *Process {
	t.Helper()
	cfg := Config{
		Binary:       fakeDaemonBinary(t),
		DataDir:      t.TempDir(),
		Ports:        netutil.NewPortRegistry(nil),
		StartTimeout: 15 * time.Second,
		StopTimeout:  5 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := New(cfg)
	require.NoError(t, err)
	return p
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	ports := netutil.NewPortRegistry(nil)
	tests := map[string]Config{
		"empty binary":   {DataDir: "/tmp/x", Ports: ports},
		"empty data dir": {Binary: "/bin/true", Ports: ports},
		"nil ports":      {Binary: "/bin/true", DataDir: "/tmp/x"},
		"dashed network": {Binary: "/bin/true", DataDir: "/tmp/x", Ports: ports, Network: "--regtest"},
	}
	for name, cfg := range tests {
		cfg := cfg
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := New(cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := Config{
		Binary:  "/bin/true",
		DataDir: "/tmp/x",
		Ports:   netutil.NewPortRegistry(nil),
	}.withDefaults()
	require.NoError(t, err)

	assert.Equal(t, DefaultNetwork, cfg.Network)
	assert.Equal(t, DefaultRPCUser, cfg.RPCUser)
	assert.NotEmpty(t, cfg.RPCPassword)
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval)
	assert.Equal(t, DefaultStartTimeout, cfg.StartTimeout)
	assert.Equal(t, process.DefaultStopTimeout, cfg.StopTimeout)

	// Generated passwords must differ between launches.
	cfg2, err := Config{
		Binary:  "/bin/true",
		DataDir: "/tmp/x",
		Ports:   netutil.NewPortRegistry(nil),
	}.withDefaults()
	require.NoError(t, err)
	assert.NotEqual(t, cfg.RPCPassword, cfg2.RPCPassword)
}

func TestExpandArgs(t *testing.T) {
	t.Parallel()

	got := expandArgs([]string{"--rpcport={rpc_port}", "--port", "{peer_port}", "--verbose"}, 1234, 5678)
	assert.Equal(t, []string{"--rpcport=1234", "--port", "5678", "--verbose"}, got)

	assert.Nil(t, expandArgs(nil, 1, 2))
}

func TestProcess_Lifecycle(t *testing.T) {
	t.Parallel()

	p := newTestProcess(t, nil)
	ctx := context.Background()

	require.NoError(t, p.Start(ctx))
	defer p.Close()

	assert.True(t, p.IsStarted())
	assert.Positive(t, p.RPCPort())
	assert.Positive(t, p.PeerPort())
	assert.NotEqual(t, p.RPCPort(), p.PeerPort())

	// The config file must carry the reserved port and credentials.
	raw, err := os.ReadFile(filepath.Join(p.DataDir(), DefaultNetwork, "config"))
	require.NoError(t, err)
	var cfg daemonConfig
	require.NoError(t, json.Unmarshal(raw, &cfg))
	assert.Equal(t, p.RPCPort(), cfg.RPCPort)
	assert.Equal(t, DefaultRPCUser, cfg.RPCUser)
	assert.NotEmpty(t, cfg.RPCPassword)
	assert.True(t, cfg.LogToFile)

	// Round-trip RPC through the live client.
	var version string
	require.NoError(t, p.Client().CallInto(ctx, "version", nil, &version))
	assert.Equal(t, "4.1.5", version)

	require.NoError(t, p.SetupWallet(ctx))
	assert.FileExists(t, p.WalletPath())

	require.NoError(t, p.Stop(5*time.Second))
	assert.False(t, p.IsStarted())
	assert.Nil(t, p.Client())

	// Stopping again is a no-op.
	require.NoError(t, p.Stop(time.Second))
}

func TestProcess_StartTwice(t *testing.T) {
	t.Parallel()

	p := newTestProcess(t, nil)
	require.NoError(t, p.Start(context.Background()))
	defer p.Close()
	defer func() { _ = p.Stop(5 * time.Second) }()

	assert.ErrorIs(t, p.Start(context.Background()), process.ErrAlreadyStarted)
}

func TestProcess_RestartAfterStop(t *testing.T) {
	t.Parallel()

	p := newTestProcess(t, nil)
	ctx := context.Background()

	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Stop(5*time.Second))

	require.NoError(t, p.Start(ctx))
	defer p.Close()
	_, err := p.Client().Call(ctx, "version", nil)
	require.NoError(t, err)
	require.NoError(t, p.Stop(5*time.Second))
}

func TestProcess_StartupTimeout(t *testing.T) {
	t.Setenv(envMode, modeHang)

	p := newTestProcess(t, func(cfg *Config) {
		cfg.PollInterval = 20 * time.Millisecond
		cfg.StartTimeout = 500 * time.Millisecond
	})

	err := p.Start(context.Background())
	require.ErrorIs(t, err, ErrStartupTimeout)

	// The failed start must leave nothing behind: no supervisor state, no
	// reserved ports, and no live child process.
	assert.False(t, p.IsStarted())
	assert.Zero(t, p.RPCPort())

	raw, err := os.ReadFile(filepath.Join(p.DataDir(), DefaultNetwork, "daemon"))
	require.NoError(t, err, "daemon should have written its pid lockfile before hanging")
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	require.NoError(t, err)
	assert.ErrorIs(t, syscall.Kill(pid, syscall.Signal(0)), syscall.ESRCH,
		"daemon process must be dead after a failed start")
	p.Close()
}

func TestProcess_ExitsBeforeReady(t *testing.T) {
	t.Setenv(envMode, modeExit)

	p := newTestProcess(t, func(cfg *Config) {
		cfg.PollInterval = 20 * time.Millisecond
	})

	start := time.Now()
	err := p.Start(context.Background())
	require.ErrorIs(t, err, ErrProcessExited)
	assert.Less(t, time.Since(start), 10*time.Second, "daemon death must abort the wait early")
	assert.False(t, p.IsStarted())
	p.Close()
}

func TestProcess_StartWithRetryGivesUp(t *testing.T) {
	t.Setenv(envMode, modeExit)

	p := newTestProcess(t, func(cfg *Config) {
		cfg.PollInterval = 20 * time.Millisecond
	})

	err := p.StartWithRetry(context.Background())
	require.ErrorIs(t, err, ErrProcessExited)
	assert.False(t, p.IsStarted())
	p.Close()
}

// openLogFDs counts this process's open file descriptors that point at
// daemon log files. Skips where /proc is unavailable.
func openLogFDs(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skipf("cannot inspect open file descriptors: %v", err)
	}
	n := 0
	for _, e := range entries {
		target, err := os.Readlink(filepath.Join("/proc/self/fd", e.Name()))
		if err != nil {
			continue
		}
		if strings.Contains(target, "-stdout.log") || strings.Contains(target, "-stderr.log") {
			n++
		}
	}
	return n
}

func TestProcess_FailedStartsDoNotLeakLogFiles(t *testing.T) {
	t.Setenv(envMode, modeExit)

	before := openLogFDs(t)
	p := newTestProcess(t, func(cfg *Config) {
		cfg.PollInterval = 20 * time.Millisecond
	})

	require.Error(t, p.StartWithRetry(context.Background()))
	p.Close()

	assert.Equal(t, before, openLogFDs(t),
		"each failed start attempt must close its log file descriptors")
}

func TestProcess_PortsReleasedOnStop(t *testing.T) {
	t.Parallel()

	ports := netutil.NewPortRegistry(nil)
	p := newTestProcess(t, func(cfg *Config) { cfg.Ports = ports })

	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Stop(5*time.Second))
	p.Close()

	assert.Zero(t, p.RPCPort())
	assert.Zero(t, p.PeerPort())

	// The registry must be empty again: a second full allocation succeeds.
	p1, p2, err := ports.AllocatePair()
	require.NoError(t, err)
	ports.Release(p1)
	ports.Release(p2)
}
