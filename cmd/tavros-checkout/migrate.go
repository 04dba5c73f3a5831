package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create indexes (mongo) or run migrations (postgres) and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close(context.Background()) }()

			if err := store.Setup(ctx); err != nil {
				return fmt.Errorf("store setup failed: %w", err)
			}

			log.Info("store is up to date", zap.String("driver", cfg.Store.Driver))
			return nil
		},
	}
}
