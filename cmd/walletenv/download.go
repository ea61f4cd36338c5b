package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/walletenv/walletenv/internal/fileutil"
	"github.com/walletenv/walletenv/internal/locator"
)

func newDownloadCommand(configFlag *string) *cobra.Command {
	var versionFlag string
	var checksumFlag string
	var outFlag string

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download and cache a wallet daemon release",
		Long: `Download fetches the wallet daemon release into the shared executable
cache so that later test runs start without network access. The artifact is
verified against a pinned sha256 checksum before installation; concurrent
downloads of the same release are serialized with a file lock. With --out
the cached binary is additionally copied to the given path, e.g. to bake it
into a container image.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFlag)
			if err != nil {
				return err
			}
			if versionFlag != "" {
				cfg.Version = versionFlag
			}
			if checksumFlag != "" {
				cfg.Checksum = checksumFlag
			}

			path, err := locator.Resolve(cmd.Context(), locator.Config{
				Version:  cfg.version(),
				CacheDir: cfg.DownloadDir,
				Checksum: cfg.Checksum,
				BaseURL:  cfg.BaseURL,
				Download: true,
			})
			if err != nil {
				return fmt.Errorf("download daemon %s: %w", cfg.version(), err)
			}

			if outFlag != "" {
				mode := os.FileMode(0o755)
				err := fileutil.CopyFile(path, outFlag, &fileutil.CopyFileOptions{
					Mode:   &mode,
					Atomic: true,
				})
				if err != nil {
					return fmt.Errorf("copy daemon to %s: %w", outFlag, err)
				}
				path = outFlag
			}

			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&versionFlag, "version", "", "Daemon release to download")
	cmd.Flags().StringVar(&checksumFlag, "checksum", "", "Expected sha256 of the release artifact")
	cmd.Flags().StringVar(&outFlag, "out", "", "Copy the cached binary to this path")

	return cmd
}
