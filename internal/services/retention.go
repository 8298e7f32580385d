package services

import (
	"context"
	"time"

	repoerrors "odometer/internal/infrastructure/errors"
	"odometer/internal/infrastructure/logging"
	"odometer/internal/repository"
	"odometer/internal/types"
)

// RetentionManager purges rows older than the retention horizon
type RetentionManager struct {
	repo repository.StatsRepository
	opts Options
}

// NewRetentionManager creates a retention manager over repo
func NewRetentionManager(repo repository.StatsRepository, opts Options) *RetentionManager {
	return &RetentionManager{repo: repo, opts: opts.withDefaults()}
}

// Cutoff returns the first retained date for retentionDays as of asOf
func (m *RetentionManager) Cutoff(retentionDays int, asOf time.Time) (string, error) {
	return types.AddDays(types.FormatDate(asOf, m.opts.Location), -retentionDays)
}

// PurgeOlderThan deletes every stat row dated strictly before
// date(asOf) - retentionDays. A retention of zero or less keeps everything.
// All four tables are purged in one write transaction: either every
// qualifying row is removed or none is.
func (m *RetentionManager) PurgeOlderThan(ctx context.Context, retentionDays int, asOf time.Time) (types.PurgeResult, error) {
	const op = "PurgeOlderThan"

	result := types.PurgeResult{RetentionDays: retentionDays, Deleted: map[string]int64{}}
	if retentionDays <= 0 {
		result.Skipped = true
		m.opts.Logger.Debug("Retention disabled, nothing purged", "retention_days", retentionDays)
		return result, nil
	}
	if asOf.IsZero() {
		return result, repoerrors.NewWriteError(op, repoerrors.HandleValidationError(op, "as_of", "", "as-of time is required"), nil)
	}

	cutoff, err := m.Cutoff(retentionDays, asOf)
	if err != nil {
		return result, repoerrors.NewWriteError(op, err, nil)
	}
	result.Cutoff = cutoff

	start := time.Now()
	deleted := make(map[string]int64, len(repository.StatTables))
	err = m.repo.WithWriteTx(ctx, op, func(ctx context.Context, tx *repository.WriteTx) error {
		for _, table := range repository.StatTables {
			n, err := tx.DeleteBefore(ctx, table, cutoff)
			if err != nil {
				return err
			}
			deleted[table] = n
		}
		return nil
	})
	if err != nil {
		m.opts.Metrics.WriteFailed(op)
		logging.LogError(m.opts.Logger, err, op, map[string]interface{}{
			"retention_days": retentionDays,
			"cutoff":         cutoff,
		})
		return result, err
	}

	result.Deleted = deleted
	took := time.Since(start)
	m.opts.Metrics.PurgeCompleted(deleted, took, m.opts.Now())
	m.opts.Logger.Info("Retention purge completed",
		"retention_days", retentionDays,
		"cutoff", cutoff,
		"deleted", result.TotalDeleted(),
		"duration_ms", took.Milliseconds())
	return result, nil
}
