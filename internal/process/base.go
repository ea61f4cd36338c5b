package process

import (
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/walletenv/walletenv/internal/sentinel"
)

// ErrAlreadyStarted is returned when Start is called on a process that is
// already running. Callers must Stop the process before starting it again.
const ErrAlreadyStarted = sentinel.Error("process already started")

// ErrNilCmd is returned when SetupAndStart is called with a nil *exec.Cmd.
const ErrNilCmd = sentinel.Error("cmd must not be nil")

// ErrEmptyCmdPath is returned when SetupAndStart is called with an empty cmd.Path.
const ErrEmptyCmdPath = sentinel.Error("cmd.Path must not be empty")

// ErrEmptyDataDir is returned when SetupAndStart is called with an empty data directory.
const ErrEmptyDataDir = sentinel.Error("data directory must not be empty")

// BaseProcess provides common process lifecycle management. The walletd
// process type embeds it to reuse the start/stop/close machinery.
//
// BaseProcess is not safe for concurrent use. Callers must serialize access
// to all methods; in practice each BaseProcess is owned by a single Instance
// whose start mutex serializes lifecycle calls.
type BaseProcess struct {
	cmd         *exec.Cmd
	waitDone    <-chan error    // receives the single cmd.Wait result
	exited      <-chan struct{} // closed when the process exits; safe for many readers
	logFiles    LogFiles
	name        string
	log         *slog.Logger
	stopTimeout time.Duration // fallback for auto-stop in Close; zero uses DefaultStopTimeout
}

// NewBaseProcess creates a BaseProcess. stopTimeout bounds the auto-stop
// performed by Close when the caller forgot to Stop first; zero falls back
// to DefaultStopTimeout. A nil logger falls back to slog.Default(). Panics
// if name is empty, since every error message and log line carries it.
func NewBaseProcess(name string, logger *slog.Logger, stopTimeout time.Duration) BaseProcess {
	if name == "" {
		panic("walletenv: process name must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return BaseProcess{name: name, log: logger, stopTimeout: stopTimeout}
}

// Stop terminates the process with the given timeout. After Stop returns,
// IsStarted reports false regardless of the outcome, because the process is
// no longer in a known-running state. Safe to call when the process was
// never started or already stopped; returns nil immediately in those cases.
func (b *BaseProcess) Stop(timeout time.Duration) error {
	if b.cmd == nil || b.cmd.Process == nil {
		b.cmd = nil
		b.waitDone = nil
		b.exited = nil
		return nil
	}
	pid := b.cmd.Process.Pid
	err := stopWithDone(b.cmd, b.waitDone, timeout, b.name)
	if err != nil {
		b.log.Warn("process stop failed; process may be orphaned",
			"process", b.name, "pid", pid, "error", err)
	}
	b.cmd = nil
	b.waitDone = nil
	b.exited = nil
	return err
}

// Close closes the log file handles. If the process is still running, Close
// stops it first as a safety net and logs a warning; callers should always
// call Stop before Close.
func (b *BaseProcess) Close() {
	if b.cmd != nil {
		b.log.Warn("process.Close called without Stop; stopping automatically",
			"process", b.name)
		timeout := b.stopTimeout
		if timeout <= 0 {
			timeout = DefaultStopTimeout
		}
		if err := b.Stop(timeout); err != nil {
			b.log.Warn("auto-stop during Close failed",
				"process", b.name, "error", err)
		}
	}
	b.logFiles.Close()
}

// Logger returns the logger used by this process.
func (b *BaseProcess) Logger() *slog.Logger {
	return b.log
}

// Exited returns a channel that is closed when the process exits. Safe to
// select on from any number of goroutines. Nil if the process has not been
// started or has already been stopped.
func (b *BaseProcess) Exited() <-chan struct{} {
	return b.exited
}

// IsStarted reports whether the process has been started and not yet stopped.
func (b *BaseProcess) IsStarted() bool {
	return b.cmd != nil
}

// Pid returns the OS process id, or 0 if the process is not running.
func (b *BaseProcess) Pid() int {
	if b.cmd == nil || b.cmd.Process == nil {
		return 0
	}
	return b.cmd.Process.Pid
}

// SetupAndStart creates log files, wires stdout/stderr, and starts the
// command. The cmd must already have Path and Args set; SetupAndStart sets
// Dir, Stdout, Stderr and calls Start.
//
// Exactly one goroutine calling cmd.Wait is started here. cmd.Wait must be
// called once per started process; a second call is undefined behavior. The
// goroutine feeds two channels: waitDone (buffered, consumed once by Stop)
// and exited (closed on exit, broadcast to readiness polls).
//
// Returns ErrAlreadyStarted if the process is already running.
func (b *BaseProcess) SetupAndStart(cmd *exec.Cmd, dataDir string) error {
	if cmd == nil {
		return ErrNilCmd
	}
	if cmd.Path == "" {
		return ErrEmptyCmdPath
	}
	if dataDir == "" {
		return ErrEmptyDataDir
	}
	if b.cmd != nil {
		return ErrAlreadyStarted
	}

	cmd.Dir = dataDir
	configureSysProcAttr(cmd)

	logFiles, err := StartCmd(cmd, dataDir, b.name)
	if err != nil {
		return fmt.Errorf("start command: %w", err)
	}
	b.cmd = cmd
	// Stop leaves the previous run's log files open so error paths can
	// still point at them; a restart replaces them, so close the stale
	// pair before taking ownership of the new one.
	b.logFiles.Close()
	b.logFiles = logFiles

	done := make(chan error, 1)
	exited := make(chan struct{})
	go func() {
		done <- cmd.Wait()
		close(exited)
	}()
	b.waitDone = done
	b.exited = exited

	return nil
}
