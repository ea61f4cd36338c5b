// Package fileutil provides small filesystem helpers shared by the locator
// and instance lifecycle code: directory creation and file copying with an
// optional atomic-rename mode.
package fileutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/walletenv/walletenv/internal/sentinel"
)

// ErrEmptySrc is returned when a source path is empty.
const ErrEmptySrc = sentinel.Error("source path must not be empty")

// ErrEmptyDst is returned when a destination path is empty.
const ErrEmptyDst = sentinel.Error("destination path must not be empty")

// EnsureDir creates dir and any missing parents. Existing directories are
// left untouched.
func EnsureDir(dir string) error {
	if dir == "" {
		return sentinel.Error("directory path must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return nil
}

// EnsureDirForFile creates the parent directory of the given file path.
func EnsureDirForFile(path string) error {
	if path == "" {
		return sentinel.Error("file path must not be empty")
	}
	return EnsureDir(filepath.Dir(path))
}

// CopyFileOptions configures file copy behavior.
type CopyFileOptions struct {
	Mode   *os.FileMode // Optional: permissions for the destination file
	Sync   bool         // If true, fsync before closing the destination
	Atomic bool         // If true, write a temp file then rename over dst
}

// CopyFile copies a file from src to dst, creating parent directories as
// needed. If opts is nil the defaults apply: mode 0644, no fsync, no atomic
// rename.
//
// When opts.Atomic is set, data is written to a temp file in dst's directory
// and renamed into place. Rename is atomic on POSIX systems, so concurrent
// readers never observe a partially written file. Atomic writes always fsync
// before the rename so a crash cannot leave the final name with truncated
// contents.
func CopyFile(src, dst string, opts *CopyFileOptions) (retErr error) {
	if src == "" {
		return ErrEmptySrc
	}
	if dst == "" {
		return ErrEmptyDst
	}

	if err := EnsureDirForFile(dst); err != nil {
		return fmt.Errorf("prepare destination: %w", err)
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() {
		if closeErr := srcFile.Close(); closeErr != nil && retErr == nil {
			retErr = fmt.Errorf("close source: %w", closeErr)
		}
	}()

	var o CopyFileOptions
	if opts != nil {
		o = *opts
	}

	mode := os.FileMode(0o644)
	if o.Mode != nil {
		mode = *o.Mode
	}

	dstFile, writePath, err := openDst(dst, mode, o.Atomic)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = os.Remove(writePath)
		}
	}()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return fmt.Errorf("copy: %w", err)
	}

	if o.Sync || o.Atomic {
		if err := dstFile.Sync(); err != nil {
			_ = dstFile.Close()
			return fmt.Errorf("sync: %w", err)
		}
	}
	if err := dstFile.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}
	if writePath != dst {
		if err := os.Rename(writePath, dst); err != nil {
			return fmt.Errorf("rename temp file to destination: %w", err)
		}
	}
	return nil
}

// openDst opens the destination for writing. In atomic mode it creates a
// temp file beside dst, already chmodded to the target mode, so the later
// rename publishes a fully formed file.
func openDst(dst string, mode os.FileMode, atomic bool) (*os.File, string, error) {
	if atomic {
		tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-copy-*")
		if err != nil {
			return nil, "", fmt.Errorf("create temp file: %w", err)
		}
		if err := tmp.Chmod(mode); err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
			return nil, "", fmt.Errorf("chmod temp file: %w", err)
		}
		return tmp, tmp.Name(), nil
	}

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return nil, "", fmt.Errorf("create destination: %w", err)
	}
	return f, dst, nil
}
