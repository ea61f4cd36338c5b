package walletenv

import (
	"context"
	"encoding/json"
)

// Manager coordinates a pool of wallet daemon instances for testing.
//
// Callers must follow this lifecycle ordering:
//
//	NewManager → Initialize → Acquire/Release (repeatable) → Shutdown
//
// Initialize must be called before Acquire. Shutdown is safe to call at any
// point, including before Initialize.
type Manager interface {
	// Initialize resolves the daemon executable, opens the instance
	// registry, reaps orphans from crashed earlier runs, and builds the
	// pool. Safe to call multiple times: a successful initialization makes
	// subsequent calls return nil immediately; a failed one is retried.
	Initialize(ctx context.Context) error

	// Acquire gets an instance from the pool, creating one on demand if
	// none are free, and lazily starts its daemon on first acquisition.
	//
	// With a pool size limit (WithPoolSize), Acquire blocks while all
	// instances are in use. The acquire timeout (WithAcquireTimeout)
	// covers both the wait and daemon startup.
	//
	// Returns ErrNotInitialized before Initialize and ErrShuttingDown once
	// Shutdown has begun.
	Acquire(ctx context.Context) (Instance, error)

	// Purge scans the instance registry for daemons left behind by crashed
	// test binaries and removes their data directories. With kill true,
	// still-running orphaned daemons are killed first; otherwise live
	// daemons are skipped because they may belong to a concurrently
	// running test binary.
	Purge(ctx context.Context, kill bool) error

	// Shutdown stops all instances, removes their data directories, and
	// closes the registry. Safe to call even if Initialize was never
	// called. Returns an error if any instance fails to stop.
	Shutdown() error
}

// Instance is an acquired wallet daemon test environment. It exposes only
// the methods test consumers need; lifecycle management is handled by the
// Manager and pool.
//
// All methods must be called between Acquire and Release. Calling them
// concurrently with Release on the same instance is undefined.
type Instance interface {
	// Call invokes a JSON-RPC method on this instance's daemon and returns
	// the raw result payload. A nil params marshals as an empty list.
	//
	// Returns ErrInstanceReleased after Release, ErrTransport when the
	// daemon is unreachable, and ErrProtocol for malformed responses.
	// Method-level daemon errors unwrap to *walletenv.RPCError.
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)

	// RPCURL returns the daemon's JSON-RPC endpoint URL, for tests that
	// want to talk to the daemon with their own client.
	RPCURL() (string, error)

	// DataDir returns the instance's data directory. The directory is
	// owned by the library and removed on teardown; treat it as read-only.
	DataDir() (string, error)

	// Release returns the instance to the pool. The behavior depends on
	// the ReleaseStrategy configured on the Manager:
	//
	//   - ReleaseRestart (default): stops the daemon and removes its data
	//     directory. The next Acquire starts fresh.
	//   - ReleaseClean: replaces the default wallet with a fresh one and
	//     keeps the daemon running.
	//   - ReleaseNone: returns immediately with no cleanup.
	//
	// On success, returns nil; using defer inst.Release() is safe. On
	// cleanup error the instance is marked failed and removed from the
	// pool, so no corrective action is required. A repeated Release
	// returns ErrInstanceReleased.
	Release() error

	// ID returns a unique identifier for this instance.
	ID() string
}
