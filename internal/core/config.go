package core

import (
	"errors"
	"fmt"
	"time"
)

// ReleaseStrategy controls what happens when an Instance is released back to
// the pool.
type ReleaseStrategy int

const (
	// ReleaseRestart stops the daemon and removes its data directory. The
	// next Acquire starts a fresh daemon with a new wallet. Safest and
	// simplest: full isolation through a clean data directory. This is the
	// default strategy.
	ReleaseRestart ReleaseStrategy = iota

	// ReleaseClean keeps the daemon running but replaces the default wallet
	// with a fresh one before returning the instance to the pool. Faster
	// than ReleaseRestart (no stop/start cycle) but relies on wallet reset
	// correctness for isolation.
	ReleaseClean

	// ReleaseNone returns the instance to the pool as-is with all wallet
	// state intact. Use only when tests never share wallet state or when
	// cleanup overhead is unacceptable.
	ReleaseNone
)

// IsValid reports whether s is a recognized ReleaseStrategy value.
func (s ReleaseStrategy) IsValid() bool {
	switch s {
	case ReleaseRestart, ReleaseClean, ReleaseNone:
		return true
	default:
		return false
	}
}

// String returns the name of the strategy.
func (s ReleaseStrategy) String() string {
	switch s {
	case ReleaseRestart:
		return "ReleaseRestart"
	case ReleaseClean:
		return "ReleaseClean"
	case ReleaseNone:
		return "ReleaseNone"
	default:
		return fmt.Sprintf("ReleaseStrategy(%d)", int(s))
	}
}

// ManagerConfig holds configuration for Manager instances.
//
// All fields are immutable after construction via NewManagerWithConfig.
// Instance goroutines read Executable and DaemonArgs without
// synchronization, relying on this guarantee.
type ManagerConfig struct {
	// Executable is an explicit daemon executable path. Empty means resolve
	// via the WALLETENV_EXE environment variable, the download cache, or a
	// download (see AllowDownload).
	Executable string

	// Version selects the daemon release used for cache lookup and
	// download when Executable is empty.
	Version string

	// DownloadDir overrides the executable cache directory.
	DownloadDir string

	// AllowDownload permits fetching the daemon release when it is neither
	// configured nor cached.
	AllowDownload bool

	// Network is the chain every instance runs on. Default: regtest.
	Network string

	// DaemonArgs are extra command line arguments passed to every daemon.
	DaemonArgs []string

	// BaseDataDir is the directory under which per-instance data
	// directories and the instance registry are created.
	BaseDataDir string

	// PoolSize is the maximum number of instances the pool will create.
	// A positive value caps the pool; Acquire blocks when all instances
	// are in use. 0 means unlimited. Default: 4.
	PoolSize int

	// ReleaseStrategy controls cleanup when an Instance is released.
	// Default: ReleaseRestart.
	ReleaseStrategy ReleaseStrategy

	// AcquireTimeout bounds one Acquire call including lazy daemon startup.
	AcquireTimeout time.Duration

	// InstanceStartTimeout is the maximum time for a daemon to become
	// ready after launch.
	InstanceStartTimeout time.Duration

	// InstanceStopTimeout is the maximum time for one daemon's graceful
	// shutdown sequence.
	InstanceStopTimeout time.Duration

	// CleanupTimeout bounds the wallet reset performed by ReleaseClean.
	// A positive value is always required by Validate because validation
	// does not vary by strategy.
	CleanupTimeout time.Duration

	// ShutdownDrainTimeout is the maximum time Shutdown waits for in-flight
	// release operations to complete before proceeding with teardown.
	ShutdownDrainTimeout time.Duration
}

// Validate checks all ManagerConfig invariants and reports every violation
// found via errors.Join, so callers can fix all problems in one pass.
//
// Called by NewManagerWithConfig (which panics, since invalid config is a
// programmer error) and by Initialize (which returns the error).
func (c ManagerConfig) Validate() error {
	var errs []error

	if c.BaseDataDir == "" {
		errs = append(errs, errors.New("base data directory must not be empty"))
	}
	if c.AcquireTimeout <= 0 {
		errs = append(errs, fmt.Errorf("acquire timeout must be greater than 0, got %s", c.AcquireTimeout))
	}
	if c.InstanceStartTimeout <= 0 {
		errs = append(errs, fmt.Errorf("instance start timeout must be greater than 0, got %s", c.InstanceStartTimeout))
	}
	if c.InstanceStopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("instance stop timeout must be greater than 0, got %s", c.InstanceStopTimeout))
	}
	if c.CleanupTimeout <= 0 {
		errs = append(errs, fmt.Errorf("cleanup timeout must be greater than 0, got %s", c.CleanupTimeout))
	}
	if c.ShutdownDrainTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown drain timeout must be greater than 0, got %s", c.ShutdownDrainTimeout))
	}
	if c.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("pool size must not be negative, got %d", c.PoolSize))
	}
	if !c.ReleaseStrategy.IsValid() {
		errs = append(errs, fmt.Errorf("invalid release strategy: %v", c.ReleaseStrategy))
	}

	return errors.Join(errs...)
}

// InstanceConfig holds configuration for Instance objects.
// All fields are immutable after construction via NewInstance.
type InstanceConfig struct {
	// Binary is the resolved daemon executable path.
	Binary string
	// Network is the chain the daemon runs on.
	Network string
	// DaemonArgs are extra command line arguments for the daemon.
	DaemonArgs []string
	// StartTimeout is the maximum time for the daemon to become ready.
	StartTimeout time.Duration
	// StopTimeout is the maximum time for graceful daemon shutdown.
	StopTimeout time.Duration
	// CleanupTimeout bounds the ReleaseClean wallet reset.
	CleanupTimeout time.Duration
	// ReleaseStrategy controls cleanup on Release.
	ReleaseStrategy ReleaseStrategy
}

// Validate checks all InstanceConfig invariants, reporting every violation
// via errors.Join. Called by NewInstance, which panics on error.
func (c InstanceConfig) Validate() error {
	var errs []error

	if c.Binary == "" {
		errs = append(errs, errors.New("daemon executable path must not be empty"))
	}
	if c.Network == "" {
		errs = append(errs, errors.New("network must not be empty"))
	}
	if c.StartTimeout <= 0 {
		errs = append(errs, fmt.Errorf("start timeout must be greater than 0, got %s", c.StartTimeout))
	}
	if c.StopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("stop timeout must be greater than 0, got %s", c.StopTimeout))
	}
	if c.CleanupTimeout <= 0 {
		errs = append(errs, fmt.Errorf("cleanup timeout must be greater than 0, got %s", c.CleanupTimeout))
	}
	if !c.ReleaseStrategy.IsValid() {
		errs = append(errs, fmt.Errorf("invalid release strategy: %v", c.ReleaseStrategy))
	}

	return errors.Join(errs...)
}
