package locator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/walletenv/walletenv/internal/sentinel"
)

// EnvExecutable is the environment variable naming a daemon executable to
// use instead of the cache or a download.
const EnvExecutable = "WALLETENV_EXE"

// ErrExecutableNotFound is returned when no usable daemon executable could
// be resolved from the configured path, the environment, the cache, or a
// download.
const ErrExecutableNotFound = sentinel.Error("wallet daemon executable not found")

// Config controls executable resolution.
type Config struct {
	// Path is an explicitly configured executable. When set it is used
	// verbatim and no other source is consulted.
	Path string

	// Version selects the release to look up in the cache and to download.
	// Empty means DefaultVersion.
	Version string

	// CacheDir is where downloaded executables are kept. Empty means a
	// "walletenv" directory under os.UserCacheDir.
	CacheDir string

	// Checksum overrides the built-in sha256 table for Version. Required
	// when Version has no pinned entry.
	Checksum string

	// Download enables fetching the artifact when it is not cached.
	// When false, resolution stops at the cache.
	Download bool

	// BaseURL overrides the release host. Empty means the upstream host.
	BaseURL string

	Logger *slog.Logger
}

func (c *Config) version() string {
	if c.Version == "" {
		return DefaultVersion
	}
	return c.Version
}

func (c *Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// cacheDir returns the effective cache directory.
func (c *Config) cacheDir() (string, error) {
	if c.CacheDir != "" {
		return c.CacheDir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve user cache dir: %w", err)
	}
	return filepath.Join(base, "walletenv"), nil
}

// cachedPath returns where a version's executable lives inside the cache.
func cachedPath(cacheDir, version string) string {
	return filepath.Join(cacheDir, fmt.Sprintf("electrum-%s", version), "electrum")
}

// Resolve returns the path of a usable daemon executable.
//
// The sources are tried in order: Config.Path, the WALLETENV_EXE
// environment variable, the cache directory, and a download (when enabled).
// An explicitly named executable that does not exist or is not executable
// fails immediately with ErrExecutableNotFound rather than falling through,
// so a typo in configuration is not papered over by a download.
func Resolve(ctx context.Context, cfg Config) (string, error) {
	log := cfg.logger()

	if cfg.Path != "" {
		if err := checkExecutable(cfg.Path); err != nil {
			return "", fmt.Errorf("configured executable %s: %w", cfg.Path, err)
		}
		return cfg.Path, nil
	}

	if envPath := os.Getenv(EnvExecutable); envPath != "" {
		if err := checkExecutable(envPath); err != nil {
			return "", fmt.Errorf("%s=%s: %w", EnvExecutable, envPath, err)
		}
		log.Debug("using daemon executable from environment", "path", envPath)
		return envPath, nil
	}

	cacheDir, err := cfg.cacheDir()
	if err != nil {
		return "", err
	}

	version := cfg.version()
	cached := cachedPath(cacheDir, version)
	if err := checkExecutable(cached); err == nil {
		log.Debug("using cached daemon executable", "path", cached, "version", version)
		return cached, nil
	}

	if !cfg.Download {
		return "", fmt.Errorf("%w: version %s not in cache %s and downloads are disabled",
			ErrExecutableNotFound, version, cacheDir)
	}

	path, err := EnsureBinary(ctx, cfg, cacheDir)
	if err != nil {
		return "", err
	}
	return path, nil
}

// checkExecutable verifies that path names a regular file with at least one
// execute bit set. Missing files map to ErrExecutableNotFound.
func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrExecutableNotFound
		}
		return fmt.Errorf("stat executable: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrExecutableNotFound, path)
	}
	if info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("%w: %s is not executable", ErrExecutableNotFound, path)
	}
	return nil
}
