package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/walletenv/walletenv/internal/fileutil"
	"github.com/walletenv/walletenv/internal/netutil"
	"github.com/walletenv/walletenv/internal/process"
	"github.com/walletenv/walletenv/internal/sentinel"
	"github.com/walletenv/walletenv/internal/walletd"
)

// ErrInstanceReleased is returned by accessors called on an instance that
// has been released back to the pool. After Release the instance may be
// re-acquired by another consumer or stopped, making any previously obtained
// handle stale.
const ErrInstanceReleased = sentinel.Error("instance has been released")

// ErrNotStarted is returned by accessors called before the instance's daemon
// has been launched. This indicates a programming error: the pool starts
// instances during Acquire, so a correctly acquired instance is started.
const ErrNotStarted = sentinel.Error("instance not started")

// InstanceReleaser handles returning an instance to the pool or marking it
// as failed. It breaks the dependency from Instance back to Manager/Pool.
//
// Implementations must be safe for concurrent use; in particular
// ReleaseToPool may race with Shutdown, and every instance must be cleaned
// up exactly once regardless of ordering.
type InstanceReleaser interface {
	// ReleaseToPool returns the instance to the pool for reuse. The token
	// is the generation value from markAcquired; the pool uses it to detect
	// stale (double) releases. Returns true if the instance was pooled,
	// false if the manager was shutting down and it was stopped instead.
	ReleaseToPool(i *Instance, token uint64) bool

	// ReleaseFailed marks the instance as permanently failed. The instance
	// is stopped and never returned to the free stack.
	ReleaseFailed(i *Instance, token uint64)
}

// Instance is a single wallet daemon test environment. It carries both the
// consumer-facing methods (Call, RPCURL, DataDir, Release, ID) exposed
// through the public walletenv.Instance interface and the lifecycle methods
// (Start, Stop, IsStarted, IsBusy, Err) used by Manager and Pool.
//
// Synchronization strategy:
//   - gen, started, lastErr use atomics for lock-free reads.
//   - proc is only accessed under startMu (doStart, Stop, client), so no
//     additional lock is needed; started.Store(true) after setting proc
//     under startMu provides the happens-before edge.
type Instance struct {
	cfg InstanceConfig

	id      string
	dataDir string

	// releaser is the Pool/Manager callback for release.
	// Set once at construction, read-only thereafter.
	releaser InstanceReleaser
	// ports is the shared port registry for cross-instance coordination.
	ports *netutil.PortRegistry
	// registry records running daemons on disk for orphan cleanup.
	// May be nil when the manager runs without a registry.
	registry *Registry

	// gen is a monotonic generation counter: odd = acquired, even = free.
	gen atomic.Uint64
	// started is set by doStart, cleared by Stop.
	started atomic.Bool
	// lastErr is set on start or release failure.
	lastErr atomic.Pointer[error]

	// startMu serializes Start/Stop so only one goroutine launches or tears
	// down the daemon.
	startMu sync.Mutex
	// proc is the running daemon. Protected by startMu only.
	proc *walletd.Process

	log *slog.Logger
}

// NewInstanceParams holds the parameters for creating a new Instance.
// Registry may be nil; all other fields are required.
type NewInstanceParams struct {
	ID       string
	DataDir  string
	Releaser InstanceReleaser
	Ports    *netutil.PortRegistry
	Registry *Registry
	Config   InstanceConfig
}

// NewInstance creates an Instance from the given parameters. Panics on
// missing parameters or invalid config; these are programmer errors caught
// at initialization time.
func NewInstance(params NewInstanceParams) *Instance {
	if params.ID == "" {
		panic("walletenv: instance id must not be empty")
	}
	if params.DataDir == "" {
		panic("walletenv: instance data dir must not be empty")
	}
	if params.Releaser == nil {
		panic("walletenv: instance releaser must not be nil")
	}
	if params.Ports == nil {
		panic("walletenv: instance port registry must not be nil")
	}
	if err := params.Config.Validate(); err != nil {
		panic(fmt.Sprintf("walletenv: invalid instance config: %v", err))
	}
	return &Instance{
		cfg:      params.Config,
		id:       params.ID,
		dataDir:  params.DataDir,
		releaser: params.Releaser,
		ports:    params.Ports,
		registry: params.Registry,
		log:      Logger().With("id", params.ID),
	}
}

// ID returns the instance's unique identifier.
func (i *Instance) ID() string {
	return i.id
}

// IsStarted reports whether the instance's daemon has been launched.
func (i *Instance) IsStarted() bool {
	return i.started.Load()
}

// IsBusy reports whether the instance is currently acquired by a consumer.
// An odd generation value means acquired; even (including 0) means free.
func (i *Instance) IsBusy() bool {
	return i.gen.Load()%2 == 1
}

// markAcquired increments the generation counter and returns the new value
// as a release token. Odd values mean acquired, even mean free. Each
// acquisition produces a unique odd token, so a stale token from a prior
// acquisition can never match the current generation (no ABA races).
func (i *Instance) markAcquired() uint64 {
	return i.gen.Add(1)
}

// tryRelease atomically advances the generation from token (odd) to token+1
// (even). Returns false if the token is stale, meaning the instance was
// already released and possibly re-acquired.
func (i *Instance) tryRelease(token uint64) bool {
	return i.gen.CompareAndSwap(token, token+1)
}

// isCurrentToken reports whether token matches the current generation. This
// is a non-consuming check used to reject stale releases before performing
// irreversible side effects; the release itself still goes through
// tryRelease.
func (i *Instance) isCurrentToken(token uint64) bool {
	return i.gen.Load() == token
}

// Err returns the last error recorded on this instance.
func (i *Instance) Err() error {
	if p := i.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// setErr records the last error on this instance.
func (i *Instance) setErr(e error) {
	i.lastErr.Store(&e)
}

// Start launches the daemon if it is not already running. Safe for
// concurrent calls: startMu serializes callers so only one launches the
// process.
func (i *Instance) Start(ctx context.Context) error {
	i.startMu.Lock()
	defer i.startMu.Unlock()

	if i.IsStarted() {
		return nil
	}
	return i.doStart(ctx)
}

// doStart performs one startup: data dir, daemon launch with port-conflict
// retry, wallet provisioning, registry record. On success proc is set under
// startMu, then started=true is published atomically so any reader that
// observes started==true also sees proc.
func (i *Instance) doStart(ctx context.Context) error {
	startTime := time.Now()
	i.log.Debug("starting instance")

	if err := fileutil.EnsureDir(i.dataDir); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}

	proc, err := walletd.New(walletd.Config{
		Binary:       i.cfg.Binary,
		DataDir:      i.dataDir,
		Network:      i.cfg.Network,
		ExtraArgs:    i.cfg.DaemonArgs,
		Ports:        i.ports,
		StartTimeout: i.cfg.StartTimeout,
		StopTimeout:  i.cfg.StopTimeout,
		Logger:       i.log,
	})
	if err != nil {
		return fmt.Errorf("configure daemon: %w", err)
	}

	if err := proc.StartWithRetry(ctx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	if err := proc.SetupWallet(ctx); err != nil {
		if stopErr := proc.Stop(i.cfg.StopTimeout); stopErr != nil {
			i.log.Warn("cleanup daemon after wallet setup failure", "error", stopErr)
		}
		proc.Close()
		return fmt.Errorf("provision wallet: %w", err)
	}

	i.recordInRegistry(ctx, proc)

	i.proc = proc
	i.started.Store(true)

	i.log.Debug("instance started",
		"rpc_port", proc.RPCPort(), "pid", proc.Pid(), "elapsed", time.Since(startTime))
	return nil
}

// recordInRegistry writes the running daemon into the on-disk registry so an
// orphan purge can find it if this process dies without cleanup.
// Best-effort: registry failures never fail a start.
func (i *Instance) recordInRegistry(ctx context.Context, proc *walletd.Process) {
	if i.registry == nil {
		return
	}
	err := i.registry.Add(ctx, RegistryRow{
		ID:        i.id,
		PID:       proc.Pid(),
		DataDir:   i.dataDir,
		RPCPort:   proc.RPCPort(),
		StartedAt: time.Now(),
	})
	if err != nil {
		i.log.Warn("record instance in registry", "error", err)
	}
}

// removeFromRegistry deletes the instance's registry row. Best-effort.
func (i *Instance) removeFromRegistry(ctx context.Context) {
	if i.registry == nil {
		return
	}
	if err := i.registry.Remove(ctx, i.id); err != nil {
		i.log.Warn("remove instance from registry", "error", err)
	}
}

// Stop shuts down the daemon, deletes the instance's registry row, and
// removes its data directory. The context bounds the stop duration: with a
// deadline the effective timeout is the minimum of the remaining time and
// the configured StopTimeout.
//
// The registry row and the data directory are removed even when proc is
// nil: a failed doStart leaves the directory behind with the daemon config
// and log files in it, and this is the only path that reclaims it.
//
// Idempotent, and safe for concurrent calls with Start via startMu.
func (i *Instance) Stop(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("stop instance: %w", err)
	}

	i.startMu.Lock()
	defer i.startMu.Unlock()

	i.started.Store(false)

	var stopErr error
	if i.proc != nil {
		stopErr = process.StopCloseAndNil(&i.proc, i.effectiveStopTimeout(ctx))
	}

	i.removeFromRegistry(ctx)

	if err := os.RemoveAll(i.dataDir); err != nil {
		i.log.Warn("remove instance data dir", "dir", i.dataDir, "error", err)
	}

	if stopErr != nil {
		return fmt.Errorf("stop daemon: %w", stopErr)
	}
	return nil
}

// effectiveStopTimeout returns the smaller of the context's remaining time
// and the configured StopTimeout, never less than a millisecond.
func (i *Instance) effectiveStopTimeout(ctx context.Context) time.Duration {
	timeout := i.cfg.StopTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	return timeout
}

// checkUsable rejects calls on released or unstarted instances. These checks
// guard against programmer error (using a handle after Release), not against
// concurrent misuse: the contract requires callers to hold the instance via
// Acquire for the entire duration of use.
func (i *Instance) checkUsable() error {
	if i.gen.Load()%2 == 0 {
		return ErrInstanceReleased
	}
	if !i.started.Load() {
		return ErrNotStarted
	}
	return nil
}

// runningProc returns the daemon handle under startMu.
func (i *Instance) runningProc() *walletd.Process {
	i.startMu.Lock()
	defer i.startMu.Unlock()
	return i.proc
}

// Call invokes a JSON-RPC method on this instance's daemon and returns the
// raw result. Must be called while the instance is acquired.
func (i *Instance) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if err := i.checkUsable(); err != nil {
		return nil, err
	}
	proc := i.runningProc()
	if proc == nil || proc.Client() == nil {
		return nil, ErrNotStarted
	}
	return proc.Client().Call(ctx, method, params)
}

// RPCURL returns the daemon's JSON-RPC endpoint URL. Must be called while
// the instance is acquired.
func (i *Instance) RPCURL() (string, error) {
	if err := i.checkUsable(); err != nil {
		return "", err
	}
	proc := i.runningProc()
	if proc == nil {
		return "", ErrNotStarted
	}
	return proc.RPCURL(), nil
}

// DataDir returns the instance's data directory. Must be called while the
// instance is acquired.
func (i *Instance) DataDir() (string, error) {
	if err := i.checkUsable(); err != nil {
		return "", err
	}
	return i.dataDir, nil
}

// Release marks the Instance as free and returns it to the pool.
//
// Behavior depends on the configured ReleaseStrategy:
//
//   - ReleaseRestart: stops the daemon and removes the data directory. The
//     next Acquire starts fresh.
//   - ReleaseClean: replaces the default wallet with a fresh one and
//     returns the running daemon to the pool.
//   - ReleaseNone: returns the instance immediately with no cleanup.
//
// On cleanup failure the instance is marked as permanently failed via
// ReleaseFailed and the error is returned; deferring Release stays safe
// either way. Double releases panic.
func (i *Instance) Release(token uint64) error {
	if i.releaser == nil {
		panic("walletenv: Release called on instance with nil releaser")
	}

	// Validate the token before any side effects. A stale token means this
	// release belongs to a prior acquisition; running cleanup now would
	// corrupt the current holder's state. The token stays valid between
	// this check and the ReleaseToPool/ReleaseFailed call below because the
	// pool guarantees at most one holder per acquisition.
	if !i.isCurrentToken(token) {
		panic("walletenv: double-release of instance " + i.id)
	}

	switch i.cfg.ReleaseStrategy {
	case ReleaseNone:
		// Return to pool as-is.

	case ReleaseClean:
		if i.started.Load() {
			cleanCtx, cancel := context.WithTimeout(context.Background(), i.cfg.CleanupTimeout)
			err := i.resetWallet(cleanCtx)
			cancel()
			if err != nil {
				cleanupErr := fmt.Errorf("wallet reset during release: %w", err)
				i.setErr(cleanupErr)
				i.releaser.ReleaseFailed(i, token)
				return cleanupErr
			}
		}

	case ReleaseRestart:
		ctx, cancel := context.WithTimeout(context.Background(), i.cfg.StopTimeout)
		defer cancel()
		if err := i.Stop(ctx); err != nil {
			stopErr := fmt.Errorf("stop during release: %w", err)
			i.setErr(stopErr)
			i.releaser.ReleaseFailed(i, token)
			return stopErr
		}

	default:
		// Strategies are validated at construction; unreachable.
		panic(fmt.Sprintf("walletenv: unknown release strategy: %v", i.cfg.ReleaseStrategy))
	}

	i.releaser.ReleaseToPool(i, token)
	return nil
}

// resetWallet swaps the daemon's default wallet for a fresh one.
func (i *Instance) resetWallet(ctx context.Context) error {
	proc := i.runningProc()
	if proc == nil {
		return ErrNotStarted
	}
	return proc.ResetWallet(ctx)
}
