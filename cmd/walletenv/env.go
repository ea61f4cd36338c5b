package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/walletenv/walletenv/internal/locator"
)

func newEnvCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Print the WALLETENV_EXE export for the resolved daemon",
		Long: `Env resolves the wallet daemon executable the same way the library does
(WALLETENV_EXE, then the download cache) and prints a shell export line:

    eval "$(walletenv env)"

Resolution never downloads; run "walletenv download" first on a fresh host.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFlag)
			if err != nil {
				return err
			}

			path, err := locator.Resolve(cmd.Context(), locator.Config{
				Version:  cfg.version(),
				CacheDir: cfg.DownloadDir,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "export %s=%q\n", locator.EnvExecutable, path)
			return nil
		},
	}
}
