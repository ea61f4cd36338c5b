package locator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/walletenv/walletenv/internal/fileutil"
)

// fileLockRetryInterval is the interval between attempts to acquire the
// download lock while another process holds it.
const fileLockRetryInterval = 50 * time.Millisecond

// downloadTimeout bounds a single artifact fetch when the caller's context
// carries no deadline. Release images are a few tens of megabytes.
const downloadTimeout = 5 * time.Minute

// EnsureBinary downloads the daemon release named by cfg into cacheDir,
// verifies its sha256, marks it executable, and returns its path. If the
// executable already exists the download is skipped.
//
// A file lock next to the target serializes concurrent test binaries that
// share the cache, so exactly one of them performs the download and the
// rest find the installed file after the lock is released.
func EnsureBinary(ctx context.Context, cfg Config, cacheDir string) (string, error) {
	version := cfg.version()
	log := cfg.logger()

	expected := cfg.Checksum
	if expected == "" {
		pinned, ok := ChecksumFor(version)
		if !ok {
			return "", fmt.Errorf("%w: no pinned checksum for version %s, set one explicitly",
				ErrExecutableNotFound, version)
		}
		expected = pinned
	}

	target := cachedPath(cacheDir, version)
	if err := fileutil.EnsureDirForFile(target); err != nil {
		return "", fmt.Errorf("create cache dir for %s: %w", target, err)
	}

	fl, err := acquireFileLock(ctx, target+".lock")
	if err != nil {
		return "", err
	}
	defer releaseFileLock(log, fl)

	// Another process may have finished the install while we waited.
	if err := checkExecutable(target); err == nil {
		return target, nil
	}

	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	url := downloadURL(base, version)

	log.Info("downloading wallet daemon", "version", version, "url", url)
	if err := downloadVerified(ctx, url, expected, target); err != nil {
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	log.Info("wallet daemon installed", "path", target, "version", version)

	return target, nil
}

// downloadVerified streams the artifact to a temp file next to target while
// hashing it, then installs it with rename only after the checksum matches.
// A mismatched or partial download never becomes visible under target.
func downloadVerified(ctx context.Context, url, expectedSum, target string) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, downloadTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	hasher := sha256.New()
	_, err = io.Copy(tmp, io.TeeReader(resp.Body, hasher))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}

	actual := hex.EncodeToString(hasher.Sum(nil))
	if actual != expectedSum {
		return fmt.Errorf("checksum mismatch: got %s, want %s", actual, expectedSum)
	}

	if err := os.Chmod(tmpName, 0o755); err != nil {
		return fmt.Errorf("mark executable: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("install artifact: %w", err)
	}
	return nil
}
