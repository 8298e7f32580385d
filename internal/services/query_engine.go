package services

import (
	"context"

	repoerrors "odometer/internal/infrastructure/errors"
	"odometer/internal/repository"
	"odometer/internal/types"
)

// QueryEngine answers time-windowed usage queries. "Today" is the calendar
// day of the injected clock in the configured location.
type QueryEngine struct {
	repo repository.StatsRepository
	opts Options
}

// NewQueryEngine creates a query engine over repo
func NewQueryEngine(repo repository.StatsRepository, opts Options) *QueryEngine {
	return &QueryEngine{repo: repo, opts: opts.withDefaults()}
}

// ParseWindow parses a window name; unknown names are query validation errors
func ParseWindow(s string) (types.Window, error) {
	w, err := types.ParseWindow(s)
	if err != nil {
		return 0, repoerrors.NewQueryError("ParseWindow",
			repoerrors.HandleValidationError("ParseWindow", "window", s, "expected today, weekly, monthly or lifetime"), nil)
	}
	return w, nil
}

// Today returns the current calendar day
func (q *QueryEngine) Today() string {
	return q.opts.today()
}

// WindowRange converts w into an inclusive date range ending today.
// Lifetime is unbounded.
func (q *QueryEngine) WindowRange(w types.Window) (types.DateRange, error) {
	if !w.Valid() {
		return types.DateRange{}, repoerrors.NewQueryError("WindowRange",
			repoerrors.HandleValidationError("WindowRange", "window", w.String(), "unknown window"), nil)
	}

	lookback := w.Lookback()
	if lookback < 0 {
		return types.DateRange{}, nil
	}

	today := q.Today()
	from, err := types.AddDays(today, -lookback)
	if err != nil {
		return types.DateRange{}, repoerrors.NewQueryError("WindowRange", err, nil)
	}
	return types.DateRange{From: from, To: today}, nil
}

// AppUsage returns per-application seconds over w, ordered by seconds
// descending and then by app name.
func (q *QueryEngine) AppUsage(ctx context.Context, w types.Window) ([]types.AppUsageTotal, error) {
	r, err := q.WindowRange(w)
	if err != nil {
		return nil, err
	}
	return q.repo.GetAppUsageTotals(ctx, r)
}

// AppUsageStats returns the raw (date, hour, app) slots in r ordered by date, hour and app name
func (q *QueryEngine) AppUsageStats(ctx context.Context, r types.DateRange) ([]types.AppUsageStat, error) {
	return q.repo.GetAppUsageStats(ctx, r)
}

// DailyStats returns daily rollups in r ordered by date
func (q *QueryEngine) DailyStats(ctx context.Context, r types.DateRange) ([]types.DailyStat, error) {
	return q.repo.GetDailyStats(ctx, r)
}

// HourlyStats returns the hourly buckets of date ordered by hour
func (q *QueryEngine) HourlyStats(ctx context.Context, date string) ([]types.HourlyStat, error) {
	return q.repo.GetHourlyStats(ctx, date)
}

// KeyStats returns per-bucket key counts in r
func (q *QueryEngine) KeyStats(ctx context.Context, r types.DateRange) ([]types.KeyStat, error) {
	return q.repo.GetKeyStats(ctx, r)
}

// TopKeys returns the most pressed keys in r; limit <= 0 returns every key
func (q *QueryEngine) TopKeys(ctx context.Context, r types.DateRange, limit int) ([]types.KeyTotal, error) {
	return q.repo.GetTopKeys(ctx, r, limit)
}
