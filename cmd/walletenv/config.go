package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/walletenv/walletenv"
)

// cliConfig holds the settings shared by the walletenv subcommands. All
// fields are optional; zero values fall back to the library defaults.
type cliConfig struct {
	// Version is the daemon release to download and cache.
	Version string `toml:"version"`

	// DownloadDir overrides the executable cache directory.
	DownloadDir string `toml:"download_dir"`

	// BaseURL overrides the release download host, e.g. for a mirror.
	BaseURL string `toml:"base_url"`

	// Checksum pins the sha256 of the release artifact. Required when
	// Version has no built-in pinned sum.
	Checksum string `toml:"checksum"`

	// BaseDataDir is where test runs keep instance data and the instance
	// registry; purge scans it.
	BaseDataDir string `toml:"base_data_dir"`
}

// defaultConfigPath returns the conventional config file location,
// ~/.config/walletenv/config.toml on Linux.
func defaultConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(base, "walletenv", "config.toml"), nil
}

// loadConfig reads the TOML config from path, or from the default location
// when path is empty. A missing file is not an error: the zero config is
// returned and every field falls back to its default.
func loadConfig(path string) (cliConfig, error) {
	explicit := path != ""
	if !explicit {
		var err error
		if path, err = defaultConfigPath(); err != nil {
			return cliConfig{}, err
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return cliConfig{}, nil
		}
		return cliConfig{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg cliConfig
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return cliConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// version returns the configured release, defaulting to the library's pin.
func (c cliConfig) version() string {
	if c.Version == "" {
		return walletenv.DefaultVersion
	}
	return c.Version
}

// baseDataDir returns the directory purge should scan, matching the data
// directory the library uses by default.
func (c cliConfig) baseDataDir() string {
	if c.BaseDataDir != "" {
		return c.BaseDataDir
	}
	if env := os.Getenv("WALLETENV_TMPDIR"); env != "" {
		return env
	}
	return filepath.Join(os.TempDir(), walletenv.DefaultBaseDataDirName)
}
