package services

import (
	"context"

	repoerrors "odometer/internal/infrastructure/errors"
	"odometer/internal/infrastructure/logging"
	"odometer/internal/repository"
	"odometer/internal/types"
)

// Aggregator derives daily rollups from hourly buckets
type Aggregator struct {
	repo repository.StatsRepository
	opts Options
}

// NewAggregator creates an aggregator over repo
func NewAggregator(repo repository.StatsRepository, opts Options) *Aggregator {
	return &Aggregator{repo: repo, opts: opts.withDefaults()}
}

// RecomputeDaily rewrites the daily rollup of date from its hourly buckets.
// It reports false when the date has no hourly data, in which case nothing is written.
func (a *Aggregator) RecomputeDaily(ctx context.Context, date string) (bool, error) {
	const op = "RecomputeDaily"
	if _, err := types.AddDays(date, 0); err != nil {
		return false, repoerrors.NewWriteError(op, repoerrors.HandleValidationError(op, "date", date, "date must be YYYY-MM-DD"), nil)
	}

	var updated bool
	err := a.repo.WithWriteTx(ctx, op, func(ctx context.Context, tx *repository.WriteTx) error {
		var err error
		updated, err = tx.RecomputeDaily(ctx, date)
		return err
	})
	if err != nil {
		a.opts.Metrics.WriteFailed(op)
		logging.LogError(a.opts.Logger, err, op, map[string]interface{}{"date": date})
		return false, err
	}

	if updated {
		a.opts.Metrics.DailyRecomputed(1)
	}
	return updated, nil
}

// RecomputeRange recomputes every date in r that has hourly data, in one
// write transaction, and returns the number of rollups rewritten.
func (a *Aggregator) RecomputeRange(ctx context.Context, r types.DateRange) (int, error) {
	const op = "RecomputeRange"

	dates, err := a.repo.GetHourlyDates(ctx, r)
	if err != nil {
		return 0, err
	}
	if len(dates) == 0 {
		return 0, nil
	}

	updated := 0
	err = a.repo.WithWriteTx(ctx, op, func(ctx context.Context, tx *repository.WriteTx) error {
		updated = 0
		for _, date := range dates {
			ok, err := tx.RecomputeDaily(ctx, date)
			if err != nil {
				return err
			}
			if ok {
				updated++
			}
		}
		return nil
	})
	if err != nil {
		a.opts.Metrics.WriteFailed(op)
		logging.LogError(a.opts.Logger, err, op, map[string]interface{}{"from": r.From, "to": r.To})
		return 0, err
	}

	a.opts.Metrics.DailyRecomputed(updated)
	a.opts.Logger.Info("Daily rollups recomputed", "from", r.From, "to", r.To, "dates", updated)
	return updated, nil
}
