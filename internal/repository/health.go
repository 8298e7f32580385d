package repository

import (
	"context"
	"time"

	repoerrors "odometer/internal/infrastructure/errors"
	"odometer/internal/infrastructure/logging"
)

// SetRetryConfig updates the read retry policy
func (r *SQLiteRepository) SetRetryConfig(config *repoerrors.RetryConfig) {
	if config != nil {
		r.retryConfig = config
	}
}

// SetLogger updates the logger for the repository
func (r *SQLiteRepository) SetLogger(logger logging.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// GetRetryConfig returns the current retry configuration
func (r *SQLiteRepository) GetRetryConfig() *repoerrors.RetryConfig {
	return r.retryConfig
}

// HealthCheck verifies connectivity and that the stat tables are readable
func (r *SQLiteRepository) HealthCheck(ctx context.Context) error {
	start := time.Now()

	err := r.read(ctx, "HealthCheck.Ping", func(ctx context.Context) error {
		return r.db.PingContext(ctx)
	})
	if err != nil {
		logging.LogError(r.logger, err, "HealthCheck.Ping", nil)
		return err
	}

	for _, table := range StatTables {
		if _, err := r.CountRows(ctx, table); err != nil {
			logging.LogError(r.logger, err, "HealthCheck.Query", map[string]interface{}{"table": table})
			return err
		}
	}

	logging.LogOperation(r.logger, "HealthCheck", time.Since(start), nil)
	return nil
}
