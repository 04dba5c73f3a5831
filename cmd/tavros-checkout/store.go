package main

import (
	"context"
	"fmt"

	"github.com/fjod/tavros-checkout/internal/config"
	"github.com/fjod/tavros-checkout/internal/logger"
	"github.com/fjod/tavros-checkout/internal/repository"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// loadConfig reads the --config flag and builds the process logger.
func loadConfig(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	zap.ReplaceGlobals(log)

	return cfg, log, nil
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		db, err := repository.ConnectPostgres(ctx, &repository.Credentials{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			DBName:   cfg.Postgres.Name,
		})
		if err != nil {
			return nil, err
		}
		return repository.NewPostgresRepository(db, cfg.Postgres.MigrationsPath), nil
	case config.StoreSQLite:
		db, err := repository.ConnectSQLite(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return repository.NewSQLiteRepository(db, cfg.SQLite.MigrationsPath), nil
	default:
		db, err := repository.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, err
		}
		return repository.NewMongoRepository(db), nil
	}
}
