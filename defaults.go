package walletenv

import (
	"time"

	"github.com/walletenv/walletenv/internal/core"
)

// Default configuration values for NewManager.
// These constants are exported so callers can reference the defaults
// when building custom configurations relative to them (e.g.,
// 2 * DefaultAcquireTimeout).
const (
	// DefaultPoolSize is the maximum number of instances the pool will create.
	// Acquire blocks when all instances are in use and unblocks when one is
	// released. Set to 0 for unlimited (on-demand creation without bound).
	DefaultPoolSize = 4

	// DefaultVersion is the wallet daemon release used for cache lookup and
	// download when no executable path is configured.
	DefaultVersion = core.DefaultVersion

	// DefaultNetwork is the chain instances run on when WithNetwork is not
	// used. Regtest gives each daemon a private chain with no peers.
	DefaultNetwork = "regtest"

	// DefaultAcquireTimeout is the total time allowed for pool acquisition
	// and daemon startup. Under pool contention, increase this to account
	// for both wait time and startup.
	DefaultAcquireTimeout = 60 * time.Second

	// DefaultBaseDataDirName is the directory name under the system temp
	// directory where instance data is stored. The full path is computed
	// as filepath.Join(os.TempDir(), DefaultBaseDataDirName).
	DefaultBaseDataDirName = "walletenv"

	// DefaultInstanceStartTimeout is the maximum time allowed for a daemon
	// to launch and answer its first RPC.
	DefaultInstanceStartTimeout = 30 * time.Second

	// DefaultInstanceStopTimeout is the maximum time allowed for one
	// daemon's graceful shutdown sequence.
	DefaultInstanceStopTimeout = 10 * time.Second

	// DefaultCleanupTimeout is the maximum time allowed for the wallet
	// reset during release. Although only exercised when ReleaseStrategy is
	// ReleaseClean, a positive value is always required because config
	// validation does not vary by strategy.
	DefaultCleanupTimeout = 30 * time.Second

	// DefaultShutdownDrainTimeout is the maximum time Shutdown() waits
	// for in-flight Release operations to complete before proceeding.
	// If InstanceStopTimeout is configured larger than this value (e.g. for
	// slow CI), an in-flight release performing ReleaseRestart could exceed
	// the drain window, causing Shutdown() to proceed prematurely. Increase
	// this timeout to at least match the longest expected release duration.
	DefaultShutdownDrainTimeout = 30 * time.Second

	// DefaultReleaseStrategy is the strategy used by Instance.Release()
	// when no explicit strategy is configured via WithReleaseStrategy.
	// ReleaseRestart stops the daemon on release; the next Acquire starts
	// fresh with a new data directory and wallet.
	DefaultReleaseStrategy = ReleaseRestart
)
