package walletd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/walletenv/walletenv/internal/fileutil"
	"github.com/walletenv/walletenv/internal/process"
	"github.com/walletenv/walletenv/internal/rpc"
	"github.com/walletenv/walletenv/internal/sentinel"
)

// ErrStartupTimeout is returned when the daemon process is running but its
// RPC endpoint did not answer before the configured start timeout.
const ErrStartupTimeout = sentinel.Error("daemon did not become ready before timeout")

// ErrProcessExited is returned when the daemon exited before becoming
// ready, typically because of bad flags or a port taken by another process.
const ErrProcessExited = sentinel.Error("daemon process exited unexpectedly")

// rpcStopTimeout bounds the courtesy RPC "stop" request during shutdown.
// The signal path below it is the one that actually guarantees termination.
const rpcStopTimeout = 2 * time.Second

// startRetries is the number of launch attempts made by StartWithRetry.
// Each attempt reserves fresh ports, so a loss in the bind race with an
// unrelated process is recovered by simply trying again.
const startRetries = 3

// defaultWalletFile is the wallet provisioned for tests inside the data dir.
const defaultWalletFile = "default_wallet"

// Process is one running wallet daemon. It is not safe for concurrent use;
// the owning instance serializes lifecycle calls.
type Process struct {
	process.BaseProcess

	cfg        Config
	rpcPort    int
	peerPort   int
	client     *rpc.Client
	walletPath string
}

// New validates cfg and returns an unstarted Process.
func New(cfg Config) (*Process, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Process{
		BaseProcess: process.NewBaseProcess("walletd", cfg.Logger, cfg.StopTimeout),
		cfg:         cfg,
	}, nil
}

// daemonConfig is the JSON document the daemon reads from
// <datadir>/<network>/config at startup.
type daemonConfig struct {
	RPCPort     int    `json:"rpcport"`
	RPCUser     string `json:"rpcuser"`
	RPCPassword string `json:"rpcpassword"`
	LogToFile   bool   `json:"log_to_file"`
}

// Start reserves ports, writes the daemon config, launches the executable
// and blocks until the RPC endpoint answers.
//
// On any failure Start cleans up after itself: the process is stopped, the
// ports are released and the Process can be started again. Readiness
// failures map to ErrStartupTimeout (endpoint never answered) or
// ErrProcessExited (daemon died first).
func (p *Process) Start(ctx context.Context) error {
	if p.IsStarted() {
		return process.ErrAlreadyStarted
	}

	rpcPort, peerPort, err := p.cfg.Ports.AllocatePair()
	if err != nil {
		return fmt.Errorf("allocate daemon ports: %w", err)
	}
	p.rpcPort, p.peerPort = rpcPort, peerPort

	if err := p.writeConfig(); err != nil {
		p.releasePorts()
		return err
	}

	args := []string{"daemon", "--dir", p.cfg.DataDir, "--" + p.cfg.Network}
	args = append(args, expandArgs(p.cfg.ExtraArgs, rpcPort, peerPort)...)

	// Deliberately not CommandContext: the daemon outlives the Start call
	// and must only die through Stop.
	cmd := exec.Command(p.cfg.Binary, args...)
	if err := p.SetupAndStart(cmd, p.cfg.DataDir); err != nil {
		p.releasePorts()
		return fmt.Errorf("launch daemon: %w", err)
	}

	p.client = rpc.New(p.RPCURL(), p.cfg.RPCUser, p.cfg.RPCPassword)

	if err := p.waitReady(ctx); err != nil {
		p.Logger().Warn("daemon failed to become ready, cleaning up",
			"pid", p.Pid(), "rpc_port", rpcPort, "error", err)
		if stopErr := p.Stop(p.cfg.StopTimeout); stopErr != nil {
			p.Logger().Warn("cleanup stop after failed start", "error", stopErr)
		}
		// The log files stay on disk for the error hint; the descriptors
		// must not, or every retry attempt leaks a pair.
		p.Close()
		return err
	}

	p.Logger().Debug("daemon ready",
		"pid", p.Pid(), "rpc_port", rpcPort, "peer_port", peerPort, "network", p.cfg.Network)
	return nil
}

// StartWithRetry runs Start up to startRetries times, retrying only when the
// daemon exited before becoming ready. That failure mode is what a lost port
// bind race looks like; timeouts and launch errors are not retried because
// repeating them cannot help.
func (p *Process) StartWithRetry(ctx context.Context) error {
	var err error
	for attempt := 1; attempt <= startRetries; attempt++ {
		err = p.Start(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrProcessExited) || ctx.Err() != nil {
			return err
		}
		p.Logger().Warn("daemon exited during startup, retrying with fresh ports",
			"attempt", attempt, "error", err)
	}
	return fmt.Errorf("daemon start failed after %d attempts: %w", startRetries, err)
}

// writeConfig lays out the network subdirectory, the wallets directory and
// the daemon config file.
func (p *Process) writeConfig() error {
	networkDir := filepath.Join(p.cfg.DataDir, p.cfg.Network)
	if err := fileutil.EnsureDir(filepath.Join(networkDir, "wallets")); err != nil {
		return fmt.Errorf("create network dir: %w", err)
	}
	p.walletPath = filepath.Join(networkDir, "wallets", defaultWalletFile)

	raw, err := json.Marshal(daemonConfig{
		RPCPort:     p.rpcPort,
		RPCUser:     p.cfg.RPCUser,
		RPCPassword: p.cfg.RPCPassword,
		LogToFile:   true,
	})
	if err != nil {
		return fmt.Errorf("encode daemon config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(networkDir, "config"), raw, 0o600); err != nil {
		return fmt.Errorf("write daemon config: %w", err)
	}
	return nil
}

// waitReady polls the "version" RPC until the daemon answers. Transport and
// protocol errors mean "not listening yet" and keep the poll going; only the
// daemon dying or the timeout elapsing abort it.
func (p *Process) waitReady(ctx context.Context) error {
	var version string
	err := process.WaitReady(ctx, process.WaitReadyConfig{
		Interval:      p.cfg.PollInterval,
		Timeout:       p.cfg.StartTimeout,
		Name:          "walletd",
		Port:          p.rpcPort,
		Logger:        p.Logger(),
		ProcessExited: p.Exited(),
	}, func(pollCtx context.Context, _ int) (bool, error) {
		callErr := p.client.CallInto(pollCtx, "version", nil, &version)
		return callErr == nil, nil
	})
	switch {
	case err == nil:
		p.Logger().Debug("daemon ready", "version", version)
		return nil
	case errors.Is(err, process.ErrProcessExited):
		return fmt.Errorf("%w: see %s", ErrProcessExited, p.stderrHint())
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w after %s on port %d", ErrStartupTimeout, p.cfg.StartTimeout, p.rpcPort)
	default:
		return err
	}
}

// stderrHint names the daemon stderr log for error messages.
func (p *Process) stderrHint() string {
	return filepath.Join(p.cfg.DataDir, "walletd-stderr.log")
}

// SetupWallet creates and loads the default wallet. Must be called after
// Start; RPC calls that touch wallet state fail until the wallet is loaded.
// The create step is skipped when the wallet file already exists, so setup
// is safe after a restart in the same data directory.
func (p *Process) SetupWallet(ctx context.Context) error {
	if _, err := os.Stat(p.walletPath); err != nil {
		if _, err := p.client.Call(ctx, "create", nil); err != nil {
			return fmt.Errorf("create default wallet: %w", err)
		}
	}
	params := map[string]string{"wallet_path": p.walletPath}
	if _, err := p.client.Call(ctx, "load_wallet", params); err != nil {
		return fmt.Errorf("load default wallet: %w", err)
	}
	return nil
}

// ResetWallet replaces the default wallet with a fresh one while the daemon
// keeps running: the wallet file is removed and SetupWallet provisions a new
// one in its place.
func (p *Process) ResetWallet(ctx context.Context) error {
	if p.walletPath == "" {
		return fmt.Errorf("reset wallet: daemon was never started")
	}
	if err := os.Remove(p.walletPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove wallet file: %w", err)
	}
	return p.SetupWallet(ctx)
}

// Stop shuts the daemon down and releases its ports. A courtesy RPC "stop"
// gives the daemon a chance to flush state; the signal sequence in
// BaseProcess.Stop is the enforcement behind it. Safe to call repeatedly.
func (p *Process) Stop(timeout time.Duration) error {
	if p.IsStarted() && p.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), rpcStopTimeout)
		if _, err := p.client.Call(ctx, "stop", nil); err != nil {
			p.Logger().Debug("rpc stop request failed, falling back to signals", "error", err)
		}
		cancel()
	}

	err := p.BaseProcess.Stop(timeout)
	p.releasePorts()
	p.client = nil
	return err
}

// releasePorts returns the reserved ports to the registry. Idempotent.
func (p *Process) releasePorts() {
	if p.rpcPort != 0 {
		p.cfg.Ports.Release(p.rpcPort)
		p.rpcPort = 0
	}
	if p.peerPort != 0 {
		p.cfg.Ports.Release(p.peerPort)
		p.peerPort = 0
	}
}

// Client returns the RPC client for the running daemon, or nil before Start.
func (p *Process) Client() *rpc.Client {
	return p.client
}

// RPCURL returns the daemon's JSON-RPC endpoint URL.
func (p *Process) RPCURL() string {
	if p.client != nil {
		return p.client.URL()
	}
	return fmt.Sprintf("http://127.0.0.1:%d", p.rpcPort)
}

// RPCPort returns the reserved RPC port, or 0 when not started.
func (p *Process) RPCPort() int {
	return p.rpcPort
}

// PeerPort returns the reserved peer listener port, or 0 when not started.
func (p *Process) PeerPort() int {
	return p.peerPort
}

// DataDir returns the daemon's data directory.
func (p *Process) DataDir() string {
	return p.cfg.DataDir
}

// WalletPath returns the path of the default wallet file, or empty before
// the first Start.
func (p *Process) WalletPath() string {
	return p.walletPath
}

// Network returns the configured chain name.
func (p *Process) Network() string {
	return p.cfg.Network
}
