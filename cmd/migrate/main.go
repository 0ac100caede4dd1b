// Package main provides the database migration CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"time"

	"github.com/rewards-settlement/internal/config"
	"github.com/rewards-settlement/internal/logging"
	"github.com/rewards-settlement/internal/storage"
)

func main() {
	var (
		direction  = flag.String("direction", "up", "migration direction: up, down or version")
		path       = flag.String("path", storage.DefaultMigrationsPath, "path to migration files")
		clickhouse = flag.Bool("clickhouse", true, "also bootstrap the ClickHouse analytics schema on up")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()

	databaseURL := postgresURL(&cfg.Database.Postgres)

	switch *direction {
	case "up":
		if err := storage.RunMigrations(databaseURL, *path); err != nil {
			logger.WithError(err).Fatal("Migration failed")
		}
		logger.Info("Postgres migrations applied")

		if *clickhouse {
			db, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
			if err != nil {
				logger.WithError(err).Warn("ClickHouse unavailable, skipping analytics schema")
				return
			}
			defer db.Close() // nolint:errcheck // shutdown path

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := db.EnsureAnalyticsSchema(ctx); err != nil {
				logger.WithError(err).Fatal("ClickHouse schema bootstrap failed")
			}
			logger.Info("ClickHouse analytics schema ensured")
		}
	case "down":
		if err := storage.RollbackMigrations(databaseURL, *path); err != nil {
			logger.WithError(err).Fatal("Rollback failed")
		}
		logger.Info("Rolled back one migration")
	case "version":
		version, dirty, err := storage.MigrationVersion(databaseURL, *path)
		if err != nil {
			logger.WithError(err).Fatal("Failed to read migration version")
		}
		logger.WithFields(map[string]any{
			"version": version,
			"dirty":   dirty,
		}).Info("Current migration version")
	default:
		logger.WithField("direction", *direction).Fatal("Unknown direction, use up, down or version")
	}
}

func postgresURL(cfg *config.PostgresConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)
}
