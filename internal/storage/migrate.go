package storage

import (
	"fmt"
	"log/slog"

	"github.com/cuongbtq/booking-dispatch/shared/postgresql"
	"github.com/pressly/goose"
)

// Migrate applies the SQL migrations found in dir
func Migrate(client *postgresql.Client, dir string, logger *slog.Logger) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	logger.Info("Running database migrations", slog.String("dir", dir))

	if err := goose.Up(client.GetDB().DB, dir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Database migrations applied")
	return nil
}
