package repository

import (
	"fmt"
	"time"

	"odometer/internal/database"
	repoerrors "odometer/internal/infrastructure/errors"
	"odometer/internal/infrastructure/logging"

	"github.com/jmoiron/sqlx"
)

// Options tunes a SQLiteRepository. Zero values fall back to defaults.
type Options struct {
	TxTimeout      time.Duration
	PurgeBatchSize int
	RetryConfig    *repoerrors.RetryConfig
}

// DefaultOptions returns sensible defaults for write and retention behaviour
func DefaultOptions() Options {
	return Options{
		TxTimeout:      10 * time.Second,
		PurgeBatchSize: 1000,
		RetryConfig:    repoerrors.ReadRetryConfig(),
	}
}

// OptionsFromConfig derives repository options from the database configuration
func OptionsFromConfig(config *database.Config) Options {
	opts := DefaultOptions()
	if config == nil {
		return opts
	}
	if config.TxTimeout > 0 {
		opts.TxTimeout = config.TxTimeout
	}
	if config.PurgeBatchSize > 0 {
		opts.PurgeBatchSize = config.PurgeBatchSize
	}
	return opts
}

// SQLiteRepository implements StatsRepository on SQLite.
// Writes are serialized through writeSem; reads use the pool directly.
type SQLiteRepository struct {
	db             *sqlx.DB
	dbService      database.Service
	writeSem       chan struct{}
	txTimeout      time.Duration
	purgeBatchSize int
	retryConfig    *repoerrors.RetryConfig
	logger         logging.Logger
}

var _ StatsRepository = (*SQLiteRepository)(nil)

// NewSQLiteRepository creates a repository configured from the service's config
func NewSQLiteRepository(dbService database.Service, logger logging.Logger) (*SQLiteRepository, error) {
	return NewSQLiteRepositoryWithOptions(dbService, OptionsFromConfig(dbService.Config()), logger)
}

// NewSQLiteRepositoryWithOptions creates a repository with explicit options
func NewSQLiteRepositoryWithOptions(dbService database.Service, opts Options, logger logging.Logger) (*SQLiteRepository, error) {
	if dbService == nil || dbService.DB() == nil {
		return nil, repoerrors.HandleConnectionError("NewSQLiteRepository", "database not connected")
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	defaults := DefaultOptions()
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = defaults.TxTimeout
	}
	if opts.PurgeBatchSize <= 0 {
		opts.PurgeBatchSize = defaults.PurgeBatchSize
	}
	if opts.RetryConfig == nil {
		opts.RetryConfig = defaults.RetryConfig
	}
	if opts.RetryConfig.Logger == nil {
		retry := *opts.RetryConfig
		retry.Logger = logger
		opts.RetryConfig = &retry
	}

	return &SQLiteRepository{
		db:             dbService.DB(),
		dbService:      dbService,
		writeSem:       make(chan struct{}, 1),
		txTimeout:      opts.TxTimeout,
		purgeBatchSize: opts.PurgeBatchSize,
		retryConfig:    opts.RetryConfig,
		logger:         logger,
	}, nil
}

// validTable guards identifiers that are interpolated into SQL
func validTable(table string) error {
	for _, known := range StatTables {
		if table == known {
			return nil
		}
	}
	return repoerrors.HandleValidationError("validTable", "table", table, fmt.Sprintf("unknown table %q", table))
}
