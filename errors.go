package walletenv

import "github.com/walletenv/walletenv/internal/core"

// Sentinel errors for error inspection with errors.Is.
// These are immutable constants safe for use in wrapped error chain comparison.
const (
	// ErrShuttingDown is returned by Acquire when the manager is shutting down.
	ErrShuttingDown = core.ErrShuttingDown

	// ErrNotInitialized is returned by Acquire when Initialize has not been called.
	ErrNotInitialized = core.ErrNotInitialized

	// ErrPoolClosed is returned when Acquire is called on a pool that has
	// been closed during shutdown.
	ErrPoolClosed = core.ErrPoolClosed

	// ErrInstanceReleased is returned by Instance methods called after Release.
	// After release, the instance may be re-acquired by another consumer or
	// stopped, making any previously obtained handle stale.
	ErrInstanceReleased = core.ErrInstanceReleased

	// ErrNotStarted is returned by Instance methods when the instance's
	// daemon has not been launched yet.
	ErrNotStarted = core.ErrNotStarted

	// ErrExecutableNotFound is returned by Initialize when no daemon
	// executable could be resolved from the configured path, the
	// WALLETENV_EXE environment variable, or the download cache.
	ErrExecutableNotFound = core.ErrExecutableNotFound

	// ErrPortUnavailable is returned when no free listening port could be
	// allocated for a new daemon.
	ErrPortUnavailable = core.ErrPortUnavailable

	// ErrStartupTimeout is returned by Acquire when a daemon launched but
	// did not answer its RPC endpoint before the instance start timeout.
	ErrStartupTimeout = core.ErrStartupTimeout

	// ErrProcessExited is returned by Acquire when a daemon process exited
	// before becoming ready.
	ErrProcessExited = core.ErrProcessExited

	// ErrTransport is returned by Instance.Call when the daemon could not
	// be reached or the HTTP exchange failed.
	ErrTransport = core.ErrTransport

	// ErrProtocol is returned by Instance.Call when the daemon's response
	// was not valid JSON-RPC.
	ErrProtocol = core.ErrProtocol
)

// RPCError is a method-level error reported by the daemon itself, carrying
// the JSON-RPC error code and message. Errors returned by Instance.Call wrap
// it, so extract with errors.As:
//
//	var rpcErr *walletenv.RPCError
//	if errors.As(err, &rpcErr) {
//	    fmt.Println(rpcErr.Code, rpcErr.Message)
//	}
type RPCError = core.RPCError
