package walletenv

import (
	"fmt"
	"strings"
	"time"
)

// requirePositive panics if v <= 0 with a descriptive message.
func requirePositive[T int | time.Duration](name string, v T) {
	if v <= 0 {
		panic(fmt.Sprintf("walletenv: %s must be greater than 0, got %v", name, v))
	}
}

// requireNonEmpty panics if s is empty with a descriptive message.
func requireNonEmpty(name, s string) {
	if s == "" {
		panic(fmt.Sprintf("walletenv: %s must not be empty", name))
	}
}

// ManagerOption configures a Manager during construction via NewManager.
// Each With* function returns a ManagerOption that sets a specific field.
//
// Several With* functions panic on invalid input (empty paths, non-positive
// durations). These panics are intentional: option values are typically
// compile-time constants or package-level variables, so an invalid value
// indicates a programmer error rather than a runtime condition. The pattern
// mirrors [regexp.MustCompile]: fail fast during initialization instead of
// returning errors that would be universally fatal anyway.
type ManagerOption func(*managerConfig)

// WithExecutable sets an explicit path to the wallet daemon executable,
// bypassing environment variable, cache, and download resolution. If the
// path does not point to an executable file, Initialize fails with
// ErrExecutableNotFound rather than falling back to another source.
//
// Panics if path is empty.
func WithExecutable(path string) ManagerOption {
	requireNonEmpty("daemon executable path", path)
	return func(c *managerConfig) {
		c.Executable = path
	}
}

// WithVersion selects the daemon release used for cache lookup and download
// when no explicit executable is configured.
//
// Default: DefaultVersion.
//
// Panics if version is empty.
func WithVersion(version string) ManagerOption {
	requireNonEmpty("daemon version", version)
	return func(c *managerConfig) {
		c.Version = version
	}
}

// WithDownload controls whether the daemon release may be downloaded when it
// is neither configured nor cached. Downloads are verified against a pinned
// checksum before installation.
//
// Default: false. Without it, a cache miss fails Initialize with
// ErrExecutableNotFound.
func WithDownload(enabled bool) ManagerOption {
	return func(c *managerConfig) {
		c.AllowDownload = enabled
	}
}

// WithDownloadDir overrides the directory where downloaded daemon releases
// are cached. The directory is shared across processes; a file lock
// serializes concurrent downloads of the same release.
//
// Panics if dir is empty.
func WithDownloadDir(dir string) ManagerOption {
	requireNonEmpty("download directory", dir)
	return func(c *managerConfig) {
		c.DownloadDir = dir
	}
}

// WithNetwork sets the chain every instance runs on, e.g. "regtest",
// "testnet", "signet". The value becomes a --<network> daemon flag, so it
// must not start with a dash.
//
// Default: DefaultNetwork.
//
// Panics if network is empty or starts with a dash.
func WithNetwork(network string) ManagerOption {
	requireNonEmpty("network", network)
	if strings.HasPrefix(network, "-") {
		panic(fmt.Sprintf("walletenv: network must not start with a dash, got %q", network))
	}
	return func(c *managerConfig) {
		c.Network = network
	}
}

// WithDaemonArgs sets extra command line arguments passed to every daemon.
// The placeholders {rpc_port} and {peer_port} expand to the ports allocated
// for each instance.
func WithDaemonArgs(args ...string) ManagerOption {
	return func(c *managerConfig) {
		c.DaemonArgs = args
	}
}

// WithBaseDataDir sets the base directory for instance data and the
// instance registry. Useful in CI environments where multiple projects may
// use walletenv simultaneously and need isolated data directories to
// prevent conflicts.
//
// Default: filepath.Join(os.TempDir(), DefaultBaseDataDirName).
//
// Panics if dir is empty.
func WithBaseDataDir(dir string) ManagerOption {
	requireNonEmpty("base data directory", dir)
	return func(c *managerConfig) {
		c.BaseDataDir = dir
	}
}

// WithPoolSize sets the maximum number of instances the pool will create.
// A positive value caps the pool; Acquire blocks when all instances are in
// use and unblocks when one is released. A value of 0 means unlimited:
// instances are created on demand without an upper bound.
//
// Default: DefaultPoolSize.
//
// The acquire timeout (configured via WithAcquireTimeout) bounds how long
// Acquire can block waiting for a free instance, so set it high enough to
// account for both pool wait time and daemon startup.
//
// Panics if size < 0.
func WithPoolSize(size int) ManagerOption {
	if size < 0 {
		panic(fmt.Sprintf("walletenv: pool size must not be negative, got %d", size))
	}
	return func(c *managerConfig) {
		c.PoolSize = size
	}
}

// WithReleaseStrategy sets the cleanup performed by Instance.Release. See
// the ReleaseStrategy constants for the trade-offs.
//
// Default: DefaultReleaseStrategy.
//
// Panics if s is not a recognized strategy.
func WithReleaseStrategy(s ReleaseStrategy) ManagerOption {
	if !s.IsValid() {
		panic(fmt.Sprintf("walletenv: invalid release strategy: %v", s))
	}
	return func(c *managerConfig) {
		c.ReleaseStrategy = s
	}
}

// WithAcquireTimeout sets the total timeout for Acquire(), covering both
// the wait for a free instance and lazy daemon startup.
//
// Default: DefaultAcquireTimeout.
//
// Panics if d <= 0.
func WithAcquireTimeout(d time.Duration) ManagerOption {
	requirePositive("acquire timeout", d)
	return func(c *managerConfig) {
		c.AcquireTimeout = d
	}
}

// WithInstanceStartTimeout sets the maximum time allowed for a daemon to
// launch and answer its first RPC. Readiness is polled against the daemon's
// JSON-RPC endpoint.
//
// Default: DefaultInstanceStartTimeout.
//
// Panics if d <= 0.
func WithInstanceStartTimeout(d time.Duration) ManagerOption {
	requirePositive("instance start timeout", d)
	return func(c *managerConfig) {
		c.InstanceStartTimeout = d
	}
}

// WithInstanceStopTimeout sets the maximum time allowed for a daemon's
// graceful shutdown sequence during release or Shutdown.
//
// Default: DefaultInstanceStopTimeout.
//
// Panics if d <= 0.
func WithInstanceStopTimeout(d time.Duration) ManagerOption {
	requirePositive("instance stop timeout", d)
	return func(c *managerConfig) {
		c.InstanceStopTimeout = d
	}
}

// WithCleanupTimeout sets the maximum time allowed for the wallet reset
// performed when releasing with ReleaseClean.
//
// Default: DefaultCleanupTimeout.
//
// Panics if d <= 0.
func WithCleanupTimeout(d time.Duration) ManagerOption {
	requirePositive("cleanup timeout", d)
	return func(c *managerConfig) {
		c.CleanupTimeout = d
	}
}

// WithShutdownDrainTimeout sets the maximum time Shutdown() waits for
// in-flight Release operations to complete before proceeding with teardown.
//
// Default: DefaultShutdownDrainTimeout.
//
// Panics if d <= 0.
func WithShutdownDrainTimeout(d time.Duration) ManagerOption {
	requirePositive("shutdown drain timeout", d)
	return func(c *managerConfig) {
		c.ShutdownDrainTimeout = d
	}
}
