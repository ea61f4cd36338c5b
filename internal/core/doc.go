// Package core implements the wallet daemon test environment manager: the
// instance pool, per-instance lifecycle, the on-disk instance registry used
// for orphan cleanup, and the release strategies. The public walletenv
// package is a thin facade over this package.
package core
