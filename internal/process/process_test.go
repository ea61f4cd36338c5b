package process

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func TestNewLogFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l, err := NewLogFiles(dir, "walletd")
	if err != nil {
		t.Fatalf("NewLogFiles() error: %v", err)
	}
	defer l.Close()

	if want := filepath.Join(dir, "walletd-stdout.log"); l.StdoutPath() != want {
		t.Errorf("StdoutPath() = %q, want %q", l.StdoutPath(), want)
	}
	if want := filepath.Join(dir, "walletd-stderr.log"); l.StderrPath() != want {
		t.Errorf("StderrPath() = %q, want %q", l.StderrPath(), want)
	}

	for _, p := range []string{l.StdoutPath(), l.StderrPath()} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("log file %s not created: %v", p, err)
		}
	}
}

func TestNewLogFiles_BadDir(t *testing.T) {
	t.Parallel()

	_, err := NewLogFiles(filepath.Join(t.TempDir(), "does-not-exist"), "walletd")
	if err == nil {
		t.Fatal("expected error for missing directory, got nil")
	}
}

func TestLogFiles_CloseIdempotent(t *testing.T) {
	t.Parallel()

	l, err := NewLogFiles(t.TempDir(), "walletd")
	if err != nil {
		t.Fatalf("NewLogFiles() error: %v", err)
	}
	l.Close()
	l.Close() // second close must not panic
}

func TestBaseProcess_SetupAndStartValidation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	tests := map[string]struct {
		cmd     *exec.Cmd
		dataDir string
		wantErr error
	}{
		"nil cmd":        {cmd: nil, dataDir: dir, wantErr: ErrNilCmd},
		"empty path":     {cmd: &exec.Cmd{}, dataDir: dir, wantErr: ErrEmptyCmdPath},
		"empty data dir": {cmd: exec.Command("true"), dataDir: "", wantErr: ErrEmptyDataDir},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			b := NewBaseProcess("test", nil, 0)
			err := b.SetupAndStart(tc.cmd, tc.dataDir)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("SetupAndStart() = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestBaseProcess_StartStop(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	b := NewBaseProcess("sleeper", nil, time.Second)

	if b.IsStarted() {
		t.Fatal("IsStarted() true before start")
	}

	cmd := exec.Command("sleep", "60")
	if err := b.SetupAndStart(cmd, dir); err != nil {
		t.Fatalf("SetupAndStart() error: %v", err)
	}
	if !b.IsStarted() {
		t.Fatal("IsStarted() false after start")
	}
	if b.Pid() <= 0 {
		t.Fatalf("Pid() = %d, want > 0", b.Pid())
	}

	// Starting again must fail while running.
	if err := b.SetupAndStart(exec.Command("true"), dir); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second SetupAndStart() = %v, want ErrAlreadyStarted", err)
	}

	if err := b.Stop(5 * time.Second); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if b.IsStarted() {
		t.Fatal("IsStarted() true after stop")
	}

	// Stop on a stopped process is a no-op.
	if err := b.Stop(time.Second); err != nil {
		t.Fatalf("second Stop() error: %v", err)
	}

	b.Close()
}

func TestBaseProcess_RestartClosesPreviousLogFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	b := NewBaseProcess("short", nil, time.Second)

	if err := b.SetupAndStart(exec.Command("true"), dir); err != nil {
		t.Fatalf("SetupAndStart() error: %v", err)
	}
	first := b.logFiles.stdoutFile
	if err := b.Stop(5 * time.Second); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	// Restarting must close the previous run's log file handles, otherwise
	// every restart leaks a descriptor pair.
	if err := b.SetupAndStart(exec.Command("true"), dir); err != nil {
		t.Fatalf("second SetupAndStart() error: %v", err)
	}
	defer b.Close()
	defer func() { _ = b.Stop(5 * time.Second) }()

	if _, err := first.Write([]byte("x")); !errors.Is(err, os.ErrClosed) {
		t.Fatalf("previous stdout log write error = %v, want os.ErrClosed", err)
	}
}

func TestBaseProcess_ExitedChannel(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	b := NewBaseProcess("short", nil, time.Second)

	if err := b.SetupAndStart(exec.Command("true"), dir); err != nil {
		t.Fatalf("SetupAndStart() error: %v", err)
	}
	defer b.Close()

	select {
	case <-b.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("Exited() channel not closed after process exit")
	}

	if err := b.Stop(time.Second); err != nil {
		t.Fatalf("Stop() after natural exit: %v", err)
	}
}

func TestNewBaseProcess_EmptyNamePanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for empty name")
		}
	}()
	NewBaseProcess("", nil, 0)
}

// fakeStoppable records Stop/Close calls for StopCloseAndNil tests.
type fakeStoppable struct {
	stopErr  error
	stopped  bool
	closed   bool
	lastStop time.Duration
}

func (f *fakeStoppable) Stop(timeout time.Duration) error {
	f.stopped = true
	f.lastStop = timeout
	return f.stopErr
}

func (f *fakeStoppable) Close() { f.closed = true }

func TestStopCloseAndNil(t *testing.T) {
	t.Parallel()

	t.Run("nil pointer", func(t *testing.T) {
		t.Parallel()
		if err := StopCloseAndNil[*fakeStoppable](nil, time.Second); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("nil target", func(t *testing.T) {
		t.Parallel()
		var p *fakeStoppable
		if err := StopCloseAndNil(&p, time.Second); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("stops closes and nils", func(t *testing.T) {
		t.Parallel()
		f := &fakeStoppable{}
		p := f
		if err := StopCloseAndNil(&p, 3*time.Second); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !f.stopped || !f.closed {
			t.Fatalf("stopped=%v closed=%v, want both true", f.stopped, f.closed)
		}
		if f.lastStop != 3*time.Second {
			t.Fatalf("stop timeout = %v, want 3s", f.lastStop)
		}
		if p != nil {
			t.Fatal("pointer not nilled")
		}
	})

	t.Run("close and nil run despite stop error", func(t *testing.T) {
		t.Parallel()
		stopErr := errors.New("stop failed")
		f := &fakeStoppable{stopErr: stopErr}
		p := f
		if err := StopCloseAndNil(&p, time.Second); !errors.Is(err, stopErr) {
			t.Fatalf("error = %v, want stopErr", err)
		}
		if !f.closed {
			t.Fatal("Close not called after Stop error")
		}
		if p != nil {
			t.Fatal("pointer not nilled after Stop error")
		}
	})
}

func TestExpectSignalExit(t *testing.T) {
	t.Parallel()

	if err := expectSignalExit(nil, "x"); err != nil {
		t.Fatalf("nil error should pass through, got %v", err)
	}

	plain := errors.New("some wait failure")
	if err := expectSignalExit(plain, "x"); !errors.Is(err, plain) {
		t.Fatalf("non-signal error should be wrapped and returned, got %v", err)
	}
}
