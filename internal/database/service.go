package database

import (
	"context"
	"database/sql"
	"fmt"

	dberrors "odometer/internal/infrastructure/errors"
	"odometer/internal/infrastructure/logging"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// walMaxConns caps the pool even in WAL mode: one writer plus a few readers
const walMaxConns = 4

// SQLiteService implements the Service interface for SQLite
//
// Lifecycle:
// 1. Create service with NewSQLiteService()
// 2. Connect to database with Connect()
// 3. Bring the schema up to date with Migrate()
// 4. Hand DB() to repositories
// 5. Close service with Close()
type SQLiteService struct {
	db              *sqlx.DB
	config          *Config
	migrationRunner *MigrationRunner
	logger          logging.Logger
}

var _ Service = (*SQLiteService)(nil)

// NewSQLiteService creates a new SQLite database service
func NewSQLiteService(logger logging.Logger) *SQLiteService {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &SQLiteService{
		logger: logger,
	}
}

// Connect opens the database described by config and verifies it with a ping
func (s *SQLiteService) Connect(ctx context.Context, config *Config) error {
	if config == nil {
		return dberrors.HandleValidationError("Connect", "config", "nil", "config is required")
	}

	// Close any existing connection to prevent resource leaks
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close existing database connection", "error", err)
		}
		s.db = nil
		s.migrationRunner = nil
	}

	db, err := sqlx.Open(config.Driver, config.GetConnectionString())
	if err != nil {
		return dberrors.HandleConnectionError("Connect", fmt.Sprintf("failed to open database: %v", err))
	}

	s.configureConnectionPool(db.DB, config)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return dberrors.HandleConnectionError("Connect", fmt.Sprintf("failed to ping database: %v", err))
	}

	s.db = db
	s.config = config
	s.migrationRunner = NewMigrationRunner(db.DB, s.logger)

	s.logger.Info("Connected to SQLite database", "path", config.Path, "driver", config.Driver)
	return nil
}

// Close closes the database connection
func (s *SQLiteService) Close() error {
	if s.db == nil {
		return nil
	}

	if err := s.db.Close(); err != nil {
		return dberrors.HandleConnectionError("Close", fmt.Sprintf("failed to close database: %v", err))
	}

	// Null out internal references to prevent accidental reuse
	s.db = nil
	s.migrationRunner = nil

	s.logger.Info("Closed SQLite database connection")
	return nil
}

// Migrate validates the embedded migrations and brings the schema to the latest version
func (s *SQLiteService) Migrate(ctx context.Context) error {
	if s.db == nil {
		return dberrors.NewSchemaError("Migrate", dberrors.HandleConnectionError("Migrate", "database not connected"), nil)
	}

	if err := s.migrationRunner.ValidateMigrations(); err != nil {
		return dberrors.NewSchemaError("Migrate", err, map[string]string{"phase": "validation"})
	}
	if err := s.migrationRunner.EnsureSchema(ctx); err != nil {
		return dberrors.NewSchemaError("Migrate", err, map[string]string{"phase": "execution"})
	}
	return nil
}

// Schema returns the schema manager, or nil before Connect
func (s *SQLiteService) Schema() SchemaManager {
	if s.migrationRunner == nil {
		return nil
	}
	return s.migrationRunner
}

// GetMigrationVersion returns the current schema_version ledger version
func (s *SQLiteService) GetMigrationVersion(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, dberrors.HandleConnectionError("GetMigrationVersion", "database not connected")
	}
	return s.migrationRunner.CurrentVersion(ctx)
}

// Health checks the database connection health
func (s *SQLiteService) Health(ctx context.Context) error {
	if s.db == nil {
		return dberrors.HandleConnectionError("Health", "database not connected")
	}

	if err := s.db.PingContext(ctx); err != nil {
		return dberrors.WrapDatabaseErrorWithContext("Health", err, map[string]string{
			"phase": "ping",
		})
	}

	var result int
	if err := s.db.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return dberrors.WrapDatabaseErrorWithContext("Health", err, map[string]string{
			"phase": "query",
		})
	}
	if result != 1 {
		return dberrors.HandleValidationError("Health", "query_result", fmt.Sprintf("%d", result), "expected result 1")
	}

	return nil
}

// DB returns the underlying database handle for use by repositories
func (s *SQLiteService) DB() *sqlx.DB {
	return s.db
}

// Config returns the configuration passed to Connect
func (s *SQLiteService) Config() *Config {
	return s.config
}

// GetStats returns database connection pool statistics for monitoring
func (s *SQLiteService) GetStats() sql.DBStats {
	if s.db == nil {
		return sql.DBStats{}
	}
	return s.db.Stats()
}

// Analyze refreshes query planner statistics
func (s *SQLiteService) Analyze(ctx context.Context) error {
	if s.db == nil {
		return dberrors.HandleConnectionError("Analyze", "database not connected")
	}
	if _, err := s.db.ExecContext(ctx, "ANALYZE"); err != nil {
		return dberrors.WrapDatabaseError("Analyze", err)
	}
	s.logger.Debug("Database statistics refreshed")
	return nil
}

// Optimize runs ANALYZE, a WAL checkpoint and VACUUM
func (s *SQLiteService) Optimize(ctx context.Context) error {
	if s.db == nil {
		return dberrors.HandleConnectionError("Optimize", "database not connected")
	}

	if _, err := s.db.ExecContext(ctx, "ANALYZE"); err != nil {
		return dberrors.WrapDatabaseErrorWithContext("Optimize", err, map[string]string{
			"phase": "analyze",
		})
	}

	// Best-effort WAL checkpoint to trim the .wal file (ignored on non-WAL)
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Warn("wal_checkpoint failed", "error", err)
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return dberrors.WrapDatabaseErrorWithContext("Optimize", err, map[string]string{
			"phase": "vacuum",
		})
	}

	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		s.logger.Warn("PRAGMA optimize failed", "error", err)
	}

	s.logger.Info("Database optimization completed")
	return nil
}

// configureConnectionPool sets up connection pool settings for SQLite.
// Without WAL (including in-memory databases) a single connection is used;
// with WAL readers may run beside the writer, capped at walMaxConns.
func (s *SQLiteService) configureConnectionPool(db *sql.DB, config *Config) {
	if config.ForceSingleConnection || !config.IsWAL() {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if config.IsInMemory() {
			// Closing the only connection would drop the in-memory database
			db.SetConnMaxLifetime(0)
			db.SetConnMaxIdleTime(0)
		} else {
			db.SetConnMaxLifetime(config.ConnMaxLifetime)
			db.SetConnMaxIdleTime(config.ConnMaxIdleTime)
		}
		s.logger.Debug("Configured SQLite for single connection mode",
			"journalMode", config.JournalMode, "forced", config.ForceSingleConnection)
		return
	}

	maxConns := config.MaxConnections
	if maxConns <= 0 || maxConns > walMaxConns {
		maxConns = walMaxConns
	}
	idleConns := min(config.MaxIdleConns, maxConns)
	if idleConns <= 0 {
		idleConns = 1
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(idleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	s.logger.Debug("Configured SQLite for limited connection pool (WAL mode)",
		"maxOpenConns", maxConns, "maxIdleConns", idleConns)
}
