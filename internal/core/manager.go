package core

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/walletenv/walletenv/internal/fileutil"
	"github.com/walletenv/walletenv/internal/locator"
	"github.com/walletenv/walletenv/internal/netutil"
	"github.com/walletenv/walletenv/internal/rpc"
	"github.com/walletenv/walletenv/internal/sentinel"
	"github.com/walletenv/walletenv/internal/walletd"
)

// managerState represents the lifecycle state of a Manager.
type managerState uint32

const (
	managerCreated      managerState = iota // zero value; NewManagerWithConfig returns in this state
	managerInitializing                     // Initialize in progress
	managerReady                            // Acquire allowed
	managerShuttingDown                     // Shutdown called
)

// ErrShuttingDown is returned by Acquire when the Manager is shutting down.
const ErrShuttingDown = sentinel.Error("manager is shutting down")

// ErrNotInitialized is returned by Acquire when Initialize has not been called.
const ErrNotInitialized = sentinel.Error("manager not initialized")

// Sentinels re-exported from the internal packages that produce them, so the
// public API imports only from core: public API → core → locator/walletd/rpc.
const (
	ErrExecutableNotFound = locator.ErrExecutableNotFound
	ErrPortUnavailable    = netutil.ErrPortUnavailable
	ErrStartupTimeout     = walletd.ErrStartupTimeout
	ErrProcessExited      = walletd.ErrProcessExited
	ErrTransport          = rpc.ErrTransport
	ErrProtocol           = rpc.ErrProtocol
)

// DefaultVersion is the daemon release used when no version is configured.
const DefaultVersion = locator.DefaultVersion

// RPCError is a method-level error reported by the daemon itself, as opposed
// to transport or protocol failures. Extract with errors.As.
type RPCError = rpc.Error

// Verify Manager implements InstanceReleaser at compile time.
var _ InstanceReleaser = (*Manager)(nil)

// Manager coordinates a Pool of wallet daemon instances for testing.
// Safe for concurrent use.
//
// Synchronization strategy:
//   - state is an atomic managerState enum (created → initializing → ready
//     → shuttingDown); Acquire reads it with one atomic load.
//   - pool is an atomic.Pointer[Pool], set once in Initialize and read
//     lock-free everywhere else.
//   - initMu serializes concurrent Initialize calls.
//   - inflight counts goroutines inside tryReleaseToPool's
//     check-and-release window; Shutdown drains it via inflightDone before
//     tearing instances down.
type Manager struct {
	cfg ManagerConfig

	// binary is the resolved daemon executable, set during Initialize.
	// Kept out of cfg to preserve its immutable-after-construction contract.
	binary string

	// ports coordinates port allocation across all instances.
	ports *netutil.PortRegistry

	// registry is the on-disk instance table, opened during Initialize.
	registry atomic.Pointer[Registry]

	pool atomic.Pointer[Pool]

	state atomic.Uint32 // managerState; zero value is managerCreated

	inflight         atomic.Int64
	inflightDone     chan struct{}
	inflightDoneOnce sync.Once

	initMu sync.Mutex
}

// loadState returns the current manager lifecycle state.
func (m *Manager) loadState() managerState {
	return managerState(m.state.Load())
}

// storeState sets the manager lifecycle state.
func (m *Manager) storeState(s managerState) {
	m.state.Store(uint32(s))
}

// NewManagerWithConfig creates a Manager with the provided configuration.
// Performs no I/O; call Initialize before Acquire.
//
// Panics if cfg.Validate() reports any errors, matching the
// regexp.MustCompile convention for programmer errors.
func NewManagerWithConfig(cfg ManagerConfig) *Manager {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("walletenv: invalid manager config: %v", err))
	}
	return &Manager{
		cfg:          cfg,
		binary:       cfg.Executable,
		ports:        netutil.NewPortRegistry(nil),
		inflightDone: make(chan struct{}),
	}
}

// Initialize resolves the daemon executable, opens the instance registry,
// reaps orphans from previous runs, and builds the pool. Must be called
// before Acquire. Safe to call multiple times: a successful initialization
// makes subsequent calls return nil immediately; a failed one is retried.
func (m *Manager) Initialize(ctx context.Context) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	switch m.loadState() {
	case managerReady:
		return nil
	case managerShuttingDown:
		return ErrShuttingDown
	case managerCreated, managerInitializing:
		// Continue (or retry after prior failure).
	}

	m.storeState(managerInitializing)

	// Defense in depth for Managers built via struct literal.
	if err := m.cfg.Validate(); err != nil {
		m.storeState(managerCreated)
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := m.doInitialize(ctx); err != nil {
		m.rollbackInitialize()
		return fmt.Errorf("initialize: %w", err)
	}

	m.storeState(managerReady)
	return nil
}

// doInitialize contains the actual initialization logic.
func (m *Manager) doInitialize(ctx context.Context) error {
	if err := fileutil.EnsureDir(m.cfg.BaseDataDir); err != nil {
		return fmt.Errorf("init base dir: %w", err)
	}

	binary, err := locator.Resolve(ctx, locator.Config{
		Path:     m.cfg.Executable,
		Version:  m.cfg.Version,
		CacheDir: m.cfg.DownloadDir,
		Download: m.cfg.AllowDownload,
		Logger:   Logger(),
	})
	if err != nil {
		return fmt.Errorf("resolve daemon executable: %w", err)
	}
	m.binary = binary

	registry, err := OpenRegistry(filepath.Join(m.cfg.BaseDataDir, RegistryFileName))
	if err != nil {
		return fmt.Errorf("open instance registry: %w", err)
	}
	m.registry.Store(registry)

	// Reap leftovers from crashed runs sharing this base directory.
	// Best-effort: a purge failure must not block new instances.
	if res, purgeErr := PurgeOrphans(ctx, registry, false, Logger()); purgeErr != nil {
		Logger().Warn("orphan purge during initialize", "error", purgeErr)
	} else if res.Removed > 0 {
		Logger().Info("reaped orphaned instances", "removed", res.Removed, "skipped", res.Skipped)
	}

	instCfg := InstanceConfig{
		Binary:          binary,
		Network:         m.cfg.Network,
		DaemonArgs:      m.cfg.DaemonArgs,
		StartTimeout:    m.cfg.InstanceStartTimeout,
		StopTimeout:     m.cfg.InstanceStopTimeout,
		CleanupTimeout:  m.cfg.CleanupTimeout,
		ReleaseStrategy: m.cfg.ReleaseStrategy,
	}

	factory := m.instanceFactory(m.cfg.BaseDataDir, instCfg)
	m.pool.Store(NewPool(factory, m.cfg.PoolSize))

	return nil
}

// rollbackInitialize undoes partial initialization so Acquire sees
// ErrNotInitialized and a later Initialize can retry from scratch. Any
// instances the pool created are stopped with bounded background contexts;
// the caller's context may already be canceled, which is often the very
// cause of the failure.
func (m *Manager) rollbackInitialize() {
	if p := m.pool.Load(); p != nil {
		var wg sync.WaitGroup
		for _, inst := range p.Instances() {
			if inst == nil {
				continue
			}
			wg.Add(1)
			go func(i *Instance) {
				defer wg.Done()
				stopCtx, stopCancel := context.WithTimeout(context.Background(), m.cfg.InstanceStopTimeout)
				defer stopCancel()
				if stopErr := i.Stop(stopCtx); stopErr != nil {
					Logger().Warn("failed to stop instance during rollback",
						"id", i.ID(), "error", stopErr)
				}
			}(inst)
		}
		wg.Wait()
	}
	m.pool.Store(nil)

	if r := m.registry.Swap(nil); r != nil {
		if err := r.Close(); err != nil {
			Logger().Warn("close registry during rollback", "error", err)
		}
	}
	m.binary = m.cfg.Executable
	m.storeState(managerCreated)
}

// genID generates a random 8-character hex ID for instance naming.
func genID() string {
	return fmt.Sprintf(
		"%08x",
		rand.Uint32(), //nolint:gosec // G404: instance IDs need uniqueness, not cryptographic strength
	)
}

// instanceFactory returns an InstanceFactory creating instances under
// baseDataDir with the manager wired in as releaser.
func (m *Manager) instanceFactory(baseDataDir string, cfg InstanceConfig) InstanceFactory {
	return func(index int) (*Instance, error) {
		instID := fmt.Sprintf("inst-%d-%s", index, genID())
		return NewInstance(NewInstanceParams{
			ID:       instID,
			DataDir:  filepath.Join(baseDataDir, instID),
			Releaser: m,
			Ports:    m.ports,
			Registry: m.registry.Load(),
			Config:   cfg,
		}), nil
	}
}

// Acquire gets an Instance, creating one on demand if none are free, and
// lazily starts its daemon on first acquisition. The configured
// AcquireTimeout covers daemon startup.
//
// Returns ErrNotInitialized before Initialize and ErrShuttingDown once
// Shutdown has begun.
func (m *Manager) Acquire(ctx context.Context) (*Instance, uint64, error) {
	switch m.loadState() {
	case managerShuttingDown:
		return nil, 0, ErrShuttingDown
	case managerReady:
		// Continue to pool acquisition.
	case managerCreated, managerInitializing:
		return nil, 0, ErrNotInitialized
	}

	pool := m.pool.Load()
	if pool == nil {
		return nil, 0, ErrNotInitialized
	}

	acquireCtx, cancel := context.WithTimeout(ctx, m.cfg.AcquireTimeout)
	defer cancel()

	inst, token, err := pool.Acquire(acquireCtx)
	if err != nil {
		return nil, 0, fmt.Errorf("acquire instance from pool: %w", err)
	}

	// Recheck shutdown after the pool handed us an instance: Shutdown may
	// have begun in between, and its iteration over pool.Instances may have
	// already passed this instance. Stop is idempotent, so the double-stop
	// this can cause is harmless.
	if m.loadState() == managerShuttingDown {
		m.stopInstanceDuringShutdown(acquireCtx, inst, token)
		return nil, 0, ErrShuttingDown
	}

	// Lazy start on first acquisition.
	if !inst.IsStarted() {
		if err := inst.Start(acquireCtx); err != nil {
			inst.setErr(err)
			pool.ReleaseFailed(inst, token)
			return nil, 0, fmt.Errorf("start instance: %w", err)
		}
	}

	return inst, token, nil
}

// IsShuttingDown reports whether Shutdown has been called.
func (m *Manager) IsShuttingDown() bool {
	return m.loadState() == managerShuttingDown
}

// Purge runs an orphan purge pass against the manager's registry. kill
// controls whether still-running orphaned daemons are killed.
func (m *Manager) Purge(ctx context.Context, kill bool) (PurgeResult, error) {
	registry := m.registry.Load()
	if registry == nil {
		return PurgeResult{}, ErrNotInitialized
	}
	return PurgeOrphans(ctx, registry, kill, Logger())
}

// ReleaseToPool atomically checks the shutdown state and either returns the
// instance to the pool or stops it. Returns true if the instance was pooled.
//
// The inflight counter guarantees exactly-once cleanup when racing
// Shutdown: releases that win the race complete before Shutdown iterates
// the pool, and releases that lose it see shuttingDown and stop the
// instance themselves.
//
// Implements InstanceReleaser.
func (m *Manager) ReleaseToPool(i *Instance, token uint64) bool {
	if m.tryReleaseToPool(i, token) {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.InstanceStopTimeout)
	defer cancel()
	m.stopInstanceDuringShutdown(ctx, i, token)
	return false
}

// stopInstanceDuringShutdown clears the instance's acquired state and stops
// it. Shared by the Acquire shutdown recheck and the ReleaseToPool shutdown
// path. Panics on double-release.
func (m *Manager) stopInstanceDuringShutdown(ctx context.Context, i *Instance, token uint64) {
	if !i.tryRelease(token) {
		panic("walletenv: double-release of instance " + i.ID())
	}
	if err := i.Stop(ctx); err != nil {
		i.log.Warn("failed to stop instance during shutdown", "error", err)
	}
}

// tryReleaseToPool brackets the state check and pool.Release with the
// inflight counter, so Shutdown cannot slip in between them. The defer
// decrements even if pool.Release panics and closes inflightDone when the
// count reaches zero during shutdown.
func (m *Manager) tryReleaseToPool(i *Instance, token uint64) bool {
	m.inflight.Add(1)
	defer func() {
		if m.inflight.Add(-1) == 0 && m.loadState() == managerShuttingDown {
			m.inflightDoneOnce.Do(func() { close(m.inflightDone) })
		}
	}()

	if m.loadState() == managerShuttingDown {
		return false
	}

	pool := m.pool.Load()
	if pool == nil {
		return false
	}

	pool.Release(i, token)
	return true
}

// ReleaseFailed marks the instance as permanently failed. Delegates to
// Pool.ReleaseFailed.
//
// Implements InstanceReleaser.
func (m *Manager) ReleaseFailed(i *Instance, token uint64) {
	pool := m.pool.Load()
	if pool == nil {
		return
	}
	pool.ReleaseFailed(i, token)
}

// Shutdown stops all instances, removes their data directories, and closes
// the registry. Safe to call without Initialize and idempotent. Returns an
// error if any instance failed to stop.
//
// Shutdown first publishes the shuttingDown state, then waits up to
// ShutdownDrainTimeout for in-flight releases to finish before tearing
// down; see ReleaseToPool for the exactly-once cleanup argument.
func (m *Manager) Shutdown() error {
	// The atomic store is the linearization point: every goroutine that
	// subsequently calls loadState observes shuttingDown.
	m.storeState(managerShuttingDown)

	if m.inflight.Load() == 0 {
		m.inflightDoneOnce.Do(func() { close(m.inflightDone) })
	}
	drainTimer := time.NewTimer(m.cfg.ShutdownDrainTimeout)
	select {
	case <-m.inflightDone:
		drainTimer.Stop()
	case <-drainTimer.C:
		Logger().Warn("shutdown: timed out waiting for inflight operations to drain; proceeding",
			slog.Int64("inflight", m.inflight.Load()),
			slog.Duration("timeout", m.cfg.ShutdownDrainTimeout))
	}

	var shutdownErr error
	if pool := m.pool.Load(); pool != nil {
		// Close the pool before stopping instances: no Release can reach
		// the free stack anymore, and Acquire calls blocked on the bounded
		// semaphore are unblocked via closeCh.
		pool.Close()

		// Stop all instances concurrently; each is independent, so parallel
		// stops reduce worst-case latency from N*StopTimeout to 1*StopTimeout.
		var g errgroup.Group
		for _, inst := range pool.Instances() {
			inst := inst
			if inst == nil {
				continue
			}
			if inst.IsBusy() {
				inst.log.Warn("stopping instance that is still in use; " +
					"ensure all instances are released before calling Shutdown")
			}
			g.Go(func() error {
				ctx, cancel := context.WithTimeout(context.Background(), m.cfg.InstanceStopTimeout)
				defer cancel()
				if err := inst.Stop(ctx); err != nil {
					return fmt.Errorf("stop instance %s: %w", inst.ID(), err)
				}
				return nil
			})
		}
		shutdownErr = g.Wait()
	}

	if r := m.registry.Swap(nil); r != nil {
		if err := r.Close(); err != nil {
			Logger().Warn("close registry during shutdown", "error", err)
		}
	}

	return shutdownErr
}
