package core

import (
	"log/slog"
	"sync/atomic"
)

// logger is the package-level logger, stored as an atomic pointer so reads
// and writes are safe without a mutex. Nil means no custom logger was set.
var logger atomic.Pointer[slog.Logger]

// defaultLogger caches the slog.Default()-derived logger so Logger does not
// allocate on every call. SetLogger(nil) clears the cache, letting the next
// Logger call pick up a changed slog.Default().
var defaultLogger atomic.Pointer[slog.Logger]

// Logger returns the current package-level logger, falling back to a cached
// logger derived from slog.Default() with the component attribute.
// Safe for concurrent use.
func Logger() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	l := slog.Default().With("component", "walletenv")
	if defaultLogger.CompareAndSwap(nil, l) {
		return l
	}
	if l2 := defaultLogger.Load(); l2 != nil {
		return l2
	}
	return l
}

// SetLogger replaces the package-level logger. Nil resets to the default,
// re-derived from slog.Default() on the next Logger call.
func SetLogger(l *slog.Logger) {
	logger.Store(l)
	defaultLogger.Store(nil)
}
