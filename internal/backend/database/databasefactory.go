package database

import (
	"fmt"
	"log/slog"
)

func NewDatabase(databaseType, connectionString string) (database DatabaseService, err error) {
	switch databaseType {
	case "sqlite":
		database, err = NewSQLiteDatabase(connectionString)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", databaseType)
	}

	// Ensure the results table exists (idempotent), important for in-memory SQLite
	slog.Info("initializing database schema (ensuring results table exists)", "type", databaseType)
	if _, err = database.CreateDatabase(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	return database, nil
}
