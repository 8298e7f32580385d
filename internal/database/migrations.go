package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"sync"

	dberrors "odometer/internal/infrastructure/errors"
	"odometer/internal/infrastructure/logging"

	"github.com/pressly/goose/v3"
)

// Embed migration files at compile time
//
//go:embed migrations/*.sql
var embedMigrations embed.FS

const migrationsDir = "migrations"

// goose.SetDialect, SetBaseFS and SetLogger modify package globals, so they are
// configured exactly once across all runners (parallel tests create many).
var (
	gooseConfigOnce sync.Once
	gooseConfigErr  error
)

// expectedObjects lists every table and view the latest schema must contain
var expectedObjects = map[string]string{
	"schema_version":     "table",
	"daily_stats":        "table",
	"hourly_stats":       "table",
	"key_stats":          "table",
	"app_usage_stats":    "table",
	"app_usage_daily":    "view",
	"app_usage_weekly":   "view",
	"app_usage_monthly":  "view",
	"app_usage_lifetime": "view",
}

// MigrationRunner applies the embedded migrations and reads the schema_version ledger.
// It implements the SchemaManager interface.
type MigrationRunner struct {
	db     *sql.DB
	logger logging.Logger
}

var _ SchemaManager = (*MigrationRunner)(nil)

// NewMigrationRunner creates a new migration runner
func NewMigrationRunner(db *sql.DB, logger logging.Logger) *MigrationRunner {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	gooseConfigOnce.Do(func() {
		gooseConfigErr = configureGoose()
	})

	return &MigrationRunner{
		db:     db,
		logger: logger,
	}
}

// configureGoose sets up global goose configuration once
func configureGoose() error {
	// The sqlite3 dialect speaks plain SQLite and works with both drivers
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())
	return nil
}

func (mr *MigrationRunner) ready(op string) error {
	if mr.db == nil {
		return dberrors.NewSchemaError(op, dberrors.HandleConnectionError(op, "database connection is nil"), nil)
	}
	if gooseConfigErr != nil {
		return dberrors.NewSchemaError(op, fmt.Errorf("goose configuration failed: %w", gooseConfigErr), nil)
	}
	return nil
}

// EnsureSchema applies every pending migration and verifies that all expected
// tables and views exist. Safe to call on every startup.
func (mr *MigrationRunner) EnsureSchema(ctx context.Context) error {
	if err := mr.RunMigrations(ctx); err != nil {
		return err
	}
	return mr.verifySchema(ctx)
}

// RunMigrations executes all pending migrations from the embedded filesystem
func (mr *MigrationRunner) RunMigrations(ctx context.Context) error {
	if err := mr.ready("RunMigrations"); err != nil {
		return err
	}

	before, _ := mr.CurrentVersion(ctx)
	if err := goose.UpContext(ctx, mr.db, migrationsDir); err != nil {
		return dberrors.NewSchemaError("RunMigrations", err, map[string]string{
			"from_version": strconv.FormatInt(before, 10),
		})
	}

	after, err := mr.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	if after != before {
		mr.logger.Info("Database schema upgraded", "from_version", before, "to_version", after)
	} else {
		mr.logger.Debug("Database schema up to date", "version", after)
	}
	return nil
}

// ApplyMigration brings the schema up to target. It is a no-op when the ledger
// already records target or later. Each migration commits its DDL and its ledger
// row in one transaction.
func (mr *MigrationRunner) ApplyMigration(ctx context.Context, target int64) error {
	if err := mr.ready("ApplyMigration"); err != nil {
		return err
	}

	latest, err := mr.LatestVersion()
	if err != nil {
		return err
	}
	if target < 1 || target > latest {
		return dberrors.NewSchemaError("ApplyMigration",
			dberrors.HandleValidationError("ApplyMigration", "target", strconv.FormatInt(target, 10),
				fmt.Sprintf("target must be between 1 and %d", latest)), nil)
	}

	current, err := mr.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	if current >= target {
		mr.logger.Debug("Migration already applied", "target", target, "current", current)
		return nil
	}

	if err := goose.UpToContext(ctx, mr.db, migrationsDir, target); err != nil {
		return dberrors.NewSchemaError("ApplyMigration", err, map[string]string{
			"target":  strconv.FormatInt(target, 10),
			"current": strconv.FormatInt(current, 10),
		})
	}

	mr.logger.Info("Applied migrations", "from_version", current, "to_version", target)
	return nil
}

// CurrentVersion returns the highest version recorded in schema_version,
// or 0 when the ledger is missing or empty.
func (mr *MigrationRunner) CurrentVersion(ctx context.Context) (int64, error) {
	if mr.db == nil {
		return 0, dberrors.NewSchemaError("CurrentVersion", dberrors.HandleConnectionError("CurrentVersion", "database connection is nil"), nil)
	}

	var exists int
	err := mr.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'").Scan(&exists)
	if err != nil {
		return 0, dberrors.NewSchemaError("CurrentVersion", err, nil)
	}
	if exists == 0 {
		return 0, nil
	}

	var version int64
	if err := mr.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return 0, dberrors.NewSchemaError("CurrentVersion", err, nil)
	}
	return version, nil
}

// GooseVersion returns the version tracked in goose's own bookkeeping table
func (mr *MigrationRunner) GooseVersion(ctx context.Context) (int64, error) {
	if err := mr.ready("GooseVersion"); err != nil {
		return 0, err
	}
	version, err := goose.GetDBVersionContext(ctx, mr.db)
	if err != nil {
		return 0, dberrors.NewSchemaError("GooseVersion", err, nil)
	}
	return version, nil
}

// LatestVersion returns the newest embedded migration version
func (mr *MigrationRunner) LatestVersion() (int64, error) {
	migrations, err := mr.collect()
	if err != nil {
		return 0, err
	}
	last, err := migrations.Last()
	if err != nil {
		return 0, dberrors.NewSchemaError("LatestVersion", err, nil)
	}
	return last.Version, nil
}

// ValidateMigrations checks that the embedded migrations are present and numbered 1..N without gaps
func (mr *MigrationRunner) ValidateMigrations() error {
	migrations, err := mr.collect()
	if err != nil {
		return err
	}

	for i, m := range migrations {
		if m.Version != int64(i+1) {
			return dberrors.NewSchemaError("ValidateMigrations",
				fmt.Errorf("migration versions must be contiguous from 1: found %d at position %d", m.Version, i+1), nil)
		}
	}

	mr.logger.Debug("Found valid migrations in embedded filesystem", "count", len(migrations))
	return nil
}

func (mr *MigrationRunner) collect() (goose.Migrations, error) {
	if gooseConfigErr != nil {
		return nil, dberrors.NewSchemaError("CollectMigrations", fmt.Errorf("goose configuration failed: %w", gooseConfigErr), nil)
	}
	migrations, err := goose.CollectMigrations(migrationsDir, 0, goose.MaxVersion)
	if err != nil {
		return nil, dberrors.NewSchemaError("CollectMigrations", err, nil)
	}
	if len(migrations) == 0 {
		return nil, dberrors.NewSchemaError("CollectMigrations", fmt.Errorf("no migrations found in embedded filesystem"), nil)
	}
	return migrations, nil
}

// verifySchema reports the first expected table or view that is missing
func (mr *MigrationRunner) verifySchema(ctx context.Context) error {
	rows, err := mr.db.QueryContext(ctx, "SELECT name, type FROM sqlite_master WHERE type IN ('table', 'view')")
	if err != nil {
		return dberrors.NewSchemaError("VerifySchema", err, nil)
	}
	defer rows.Close()

	found := make(map[string]string)
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return dberrors.NewSchemaError("VerifySchema", err, nil)
		}
		found[name] = typ
	}
	if err := rows.Err(); err != nil {
		return dberrors.NewSchemaError("VerifySchema", err, nil)
	}

	names := make([]string, 0, len(expectedObjects))
	for name := range expectedObjects {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		want := expectedObjects[name]
		if got, ok := found[name]; !ok || got != want {
			return dberrors.NewSchemaError("VerifySchema", fmt.Errorf("missing %s %s", want, name),
				map[string]string{"object": name})
		}
	}
	return nil
}
