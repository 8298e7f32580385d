package database

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// Service defines the interface for database service operations.
// It owns the connection pool, schema lifecycle and maintenance.
type Service interface {
	// Connection management
	Connect(ctx context.Context, config *Config) error
	Close() error
	Health(ctx context.Context) error

	// Database access
	DB() *sqlx.DB
	Config() *Config

	// Schema management
	Migrate(ctx context.Context) error
	Schema() SchemaManager
	GetMigrationVersion(ctx context.Context) (int64, error)

	// Maintenance operations
	Optimize(ctx context.Context) error
	Analyze(ctx context.Context) error
	GetStats() sql.DBStats
}

// SchemaManager creates and upgrades the versioned schema
type SchemaManager interface {
	EnsureSchema(ctx context.Context) error
	CurrentVersion(ctx context.Context) (int64, error)
	// GooseVersion is the version in goose's bookkeeping table, which can lag
	// the ledger on databases adopted from legacy tooling
	GooseVersion(ctx context.Context) (int64, error)
	ApplyMigration(ctx context.Context, target int64) error
	LatestVersion() (int64, error)
	ValidateMigrations() error
}
