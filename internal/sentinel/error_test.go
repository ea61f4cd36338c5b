package sentinel

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		err  Error
		want string
	}{
		"simple message": {err: Error("something failed"), want: "something failed"},
		"empty message":  {err: Error(""), want: ""},
		"with space":     {err: Error("not found"), want: "not found"},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if got := tc.err.Error(); got != tc.want {
				t.Errorf("Error() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestError_Is(t *testing.T) {
	t.Parallel()

	const sentinelErr = Error("daemon not ready")

	wrapped := fmt.Errorf("start instance: %w", sentinelErr)
	if !errors.Is(wrapped, sentinelErr) {
		t.Error("errors.Is should match the sentinel through a wrapped chain")
	}

	doubleWrapped := fmt.Errorf("acquire: %w", wrapped)
	if !errors.Is(doubleWrapped, sentinelErr) {
		t.Error("errors.Is should match the sentinel through two wraps")
	}

	if errors.Is(wrapped, Error("some other error")) {
		t.Error("errors.Is should not match a different sentinel value")
	}
}
