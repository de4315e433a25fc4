package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/desertthunder/melophiliacs/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the example configuration to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	if err := shared.CreateConfigFile(configPath); err != nil {
		return err
	}

	r.logger.Info("config file created", "path", configPath)
	return r.writePlain("Wrote %s. Fill in [credentials.spotify] before running serve.\n", configPath)
}

// SetupDatabase initializes the sqlite store and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	path := config.Store.SQLite.Path
	if path == "" {
		return fmt.Errorf("%w: store.sqlite.path is required", shared.ErrInvalidConfig)
	}
	r.logger.Info("initializing database", "path", path)

	db, err := shared.NewDatabase(path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, path, config.Store.SQLite.MaxOpenConns, config.Store.SQLite.MaxIdleConns)

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	applied, err := shared.AppliedVersions(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to read migration versions: %w", err)
	}
	versions := make([]int, 0, len(applied))
	for v := range applied {
		versions = append(versions, v)
	}
	slices.Sort(versions)

	r.writePlainHeader("Database: " + path)
	r.writePlain("Applied migrations: %v\n", versions)
	if config.Store.Type != "sqlite" {
		r.writePlain("Note: store.type is %q, set it to \"sqlite\" to use this database.\n", config.Store.Type)
	}
	r.logger.Infof("setup complete for database: %v", path)
	return nil
}
