package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/walletenv/walletenv/internal/core"
)

func newPurgeCommand(configFlag *string) *cobra.Command {
	var killFlag bool
	var baseDirFlag string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove wallet daemons left behind by crashed test runs",
		Long: `Purge scans the instance registry under the base data directory for
daemons whose owning test binary is gone: dead entries have their data
directories deleted, and with --kill still-running orphans are killed first.
Live daemons are skipped by default since they may belong to a test binary
that is still running.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFlag)
			if err != nil {
				return err
			}
			if baseDirFlag != "" {
				cfg.BaseDataDir = baseDirFlag
			}

			registryPath := filepath.Join(cfg.baseDataDir(), core.RegistryFileName)
			if _, err := os.Stat(registryPath); errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to purge")
				return nil
			}

			registry, err := core.OpenRegistry(registryPath)
			if err != nil {
				return fmt.Errorf("open instance registry: %w", err)
			}
			defer registry.Close()

			res, err := core.PurgeOrphans(cmd.Context(), registry, killFlag, slog.Default())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "killed %d, removed %d, skipped %d\n",
				res.Killed, res.Removed, res.Skipped)
			return nil
		},
	}

	cmd.Flags().BoolVar(&killFlag, "kill", false, "Kill still-running orphaned daemons")
	cmd.Flags().StringVar(&baseDirFlag, "base-dir", "", "Base data directory to scan")

	return cmd
}
