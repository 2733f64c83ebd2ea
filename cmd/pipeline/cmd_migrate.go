package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"jpx-stock-lab/internal/app"
	"jpx-stock-lab/internal/config"
)

// migrateCmd applies the PostgreSQL and ClickHouse schemas.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply PostgreSQL and ClickHouse migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Storage.Backend != config.BackendSQL {
			return fmt.Errorf("migrate needs storage backend %q, got %q", config.BackendSQL, cfg.Storage.Backend)
		}
		ctx, cancel := signalContext()
		defer cancel()

		stores, err := app.OpenStores(ctx, cfg.Storage, true, logger)
		if err != nil {
			return err
		}
		stores.Close()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
