// Package process provides generic child-process lifecycle management for
// the wallet daemon: BaseProcess owns the single cmd.Wait goroutine and the
// SIGTERM-then-SIGKILL stop sequence, LogFiles capture stdout/stderr,
// WaitReady polls a readiness check until success or timeout, and
// StopCloseAndNil performs one-shot cleanup of a Stoppable.
package process
