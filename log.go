package walletenv

import (
	"log/slog"

	"github.com/walletenv/walletenv/internal/core"
)

// SetLogger replaces the package-level logger used by walletenv.
// This allows applications to integrate walletenv logging with their own
// logging infrastructure. The provided logger should already have any
// desired attributes; walletenv will not add additional attributes.
//
// If l is nil, the logger resets to the default: slog.Default() with
// "component" attribute, re-derived on the next internal Logger() call and
// then cached. Call SetLogger(nil) after slog.SetDefault() to pick up
// changes.
//
// SetLogger is safe to call concurrently with other walletenv operations.
// A concurrent log call during SetLogger may briefly use the previous
// logger. For a strict happens-before guarantee, call SetLogger before
// starting goroutines that use the library (e.g., in TestMain before m.Run).
func SetLogger(l *slog.Logger) {
	core.SetLogger(l)
}
