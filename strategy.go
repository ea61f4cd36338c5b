package walletenv

import "github.com/walletenv/walletenv/internal/core"

// ReleaseStrategy controls what happens when an Instance is released back to
// the pool. See the individual constant documentation for details on each
// strategy's behavior and trade-offs.
//
// ReleaseStrategy is a type alias (not a named type) so that the underlying
// [core.ReleaseStrategy] methods are part of the public API:
//
//   - IsValid reports whether the value is a recognized strategy.
//   - String returns the strategy name (implements [fmt.Stringer]).
//
// This is intentional: callers can validate and print strategy values without
// the public package needing to redeclare these methods.
type ReleaseStrategy = core.ReleaseStrategy

const (
	// ReleaseRestart stops the daemon and removes its data directory. The
	// next Acquire starts a fresh daemon with a new wallet. Safest and
	// simplest: full isolation through a clean data directory. This is the
	// default strategy.
	ReleaseRestart = core.ReleaseRestart

	// ReleaseClean replaces the default wallet with a fresh one but keeps
	// the daemon running. Faster than ReleaseRestart (no stop/start cycle)
	// but relies on wallet reset correctness for isolation.
	ReleaseClean = core.ReleaseClean

	// ReleaseNone performs no cleanup. The instance is returned to the pool
	// as-is with all wallet state intact. Use only when tests never share
	// wallet state.
	ReleaseNone = core.ReleaseNone
)
