package repository

import (
	"context"
	"errors"
	"strings"

	repoerrors "odometer/internal/infrastructure/errors"
	"odometer/internal/types"
)

const measureColumns = `
    COALESCE(key_count, 0) AS key_count,
    COALESCE(mouse_distance, 0) AS mouse_distance,
    COALESCE(left_clicks, 0) AS left_clicks,
    COALESCE(right_clicks, 0) AS right_clicks,
    COALESCE(middle_clicks, 0) AS middle_clicks,
    COALESCE(scroll_distance, 0) AS scroll_distance`

// read runs an idempotent read with the retry policy and tags failures as query errors
func (r *SQLiteRepository) read(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := repoerrors.Retry(ctx, r.retryConfig, op, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var repoErr *repoerrors.RepositoryError
		if errors.As(err, &repoErr) {
			return err
		}
		return repoerrors.WrapDatabaseError(op, err)
	})
	if err != nil {
		return repoerrors.NewQueryError(op, err, nil)
	}
	return nil
}

// rangeWhere renders an inclusive date filter; open bounds are omitted
func rangeWhere(op string, r types.DateRange) (string, []any, error) {
	var conds []string
	var args []any

	if r.From != "" {
		if _, err := types.AddDays(r.From, 0); err != nil {
			return "", nil, repoerrors.NewQueryError(op, repoerrors.HandleValidationError(op, "from", r.From, "date must be YYYY-MM-DD"), nil)
		}
		conds = append(conds, "date >= ?")
		args = append(args, r.From)
	}
	if r.To != "" {
		if _, err := types.AddDays(r.To, 0); err != nil {
			return "", nil, repoerrors.NewQueryError(op, repoerrors.HandleValidationError(op, "to", r.To, "date must be YYYY-MM-DD"), nil)
		}
		conds = append(conds, "date <= ?")
		args = append(args, r.To)
	}
	if r.From != "" && r.To != "" && r.From > r.To {
		return "", nil, repoerrors.NewQueryError(op, repoerrors.HandleValidationError(op, "range", r.From+".."+r.To, "from must not be after to"), nil)
	}

	if len(conds) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// GetDailyStats returns daily rollups in the range ordered by date
func (r *SQLiteRepository) GetDailyStats(ctx context.Context, dr types.DateRange) ([]types.DailyStat, error) {
	where, args, err := rangeWhere("GetDailyStats", dr)
	if err != nil {
		return nil, err
	}

	query := "SELECT date," + measureColumns + " FROM daily_stats" + where + " ORDER BY date"
	stats := []types.DailyStat{}
	err = r.read(ctx, "GetDailyStats", func(ctx context.Context) error {
		stats = stats[:0]
		return r.db.SelectContext(ctx, &stats, query, args...)
	})
	return stats, err
}

// GetHourlyStats returns the hourly buckets of one date ordered by hour
func (r *SQLiteRepository) GetHourlyStats(ctx context.Context, date string) ([]types.HourlyStat, error) {
	if _, err := types.AddDays(date, 0); err != nil {
		return nil, repoerrors.NewQueryError("GetHourlyStats",
			repoerrors.HandleValidationError("GetHourlyStats", "date", date, "date must be YYYY-MM-DD"), nil)
	}

	query := "SELECT date, hour," + measureColumns + " FROM hourly_stats WHERE date = ? ORDER BY hour"
	stats := []types.HourlyStat{}
	err := r.read(ctx, "GetHourlyStats", func(ctx context.Context) error {
		stats = stats[:0]
		return r.db.SelectContext(ctx, &stats, query, date)
	})
	return stats, err
}

// GetKeyStats returns per-bucket key counts ordered by date, hour, key code
func (r *SQLiteRepository) GetKeyStats(ctx context.Context, dr types.DateRange) ([]types.KeyStat, error) {
	where, args, err := rangeWhere("GetKeyStats", dr)
	if err != nil {
		return nil, err
	}

	query := "SELECT date, hour, key_code, COALESCE(count, 0) AS count FROM key_stats" + where +
		" ORDER BY date, hour, key_code"
	stats := []types.KeyStat{}
	err = r.read(ctx, "GetKeyStats", func(ctx context.Context) error {
		stats = stats[:0]
		return r.db.SelectContext(ctx, &stats, query, args...)
	})
	return stats, err
}

// GetTopKeys returns per-key totals ordered by count desc, then key code. limit <= 0 means all.
func (r *SQLiteRepository) GetTopKeys(ctx context.Context, dr types.DateRange, limit int) ([]types.KeyTotal, error) {
	where, args, err := rangeWhere("GetTopKeys", dr)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	query := "SELECT key_code, SUM(COALESCE(count, 0)) AS total FROM key_stats" + where +
		" GROUP BY key_code ORDER BY total DESC, key_code ASC LIMIT ?"
	args = append(args, limit)

	totals := []types.KeyTotal{}
	err = r.read(ctx, "GetTopKeys", func(ctx context.Context) error {
		totals = totals[:0]
		return r.db.SelectContext(ctx, &totals, query, args...)
	})
	return totals, err
}

// GetAppUsageTotals sums seconds per application over the range, ordered by
// seconds desc and then app name.
func (r *SQLiteRepository) GetAppUsageTotals(ctx context.Context, dr types.DateRange) ([]types.AppUsageTotal, error) {
	where, args, err := rangeWhere("GetAppUsageTotals", dr)
	if err != nil {
		return nil, err
	}

	query := "SELECT app_name, SUM(COALESCE(seconds_used, 0)) AS total_seconds FROM app_usage_stats" + where +
		" GROUP BY app_name ORDER BY total_seconds DESC, app_name ASC"
	totals := []types.AppUsageTotal{}
	err = r.read(ctx, "GetAppUsageTotals", func(ctx context.Context) error {
		totals = totals[:0]
		return r.db.SelectContext(ctx, &totals, query, args...)
	})
	return totals, err
}

// GetAppUsageStats returns raw app usage slots ordered by date, hour, app name
func (r *SQLiteRepository) GetAppUsageStats(ctx context.Context, dr types.DateRange) ([]types.AppUsageStat, error) {
	where, args, err := rangeWhere("GetAppUsageStats", dr)
	if err != nil {
		return nil, err
	}

	query := "SELECT date, hour, app_name, COALESCE(seconds_used, 0) AS seconds_used FROM app_usage_stats" + where +
		" ORDER BY date, hour, app_name"
	stats := []types.AppUsageStat{}
	err = r.read(ctx, "GetAppUsageStats", func(ctx context.Context) error {
		stats = stats[:0]
		return r.db.SelectContext(ctx, &stats, query, args...)
	})
	return stats, err
}

// GetHourlyDates lists the distinct dates with hourly data in the range
func (r *SQLiteRepository) GetHourlyDates(ctx context.Context, dr types.DateRange) ([]string, error) {
	where, args, err := rangeWhere("GetHourlyDates", dr)
	if err != nil {
		return nil, err
	}

	query := "SELECT DISTINCT date FROM hourly_stats" + where + " ORDER BY date"
	dates := []string{}
	err = r.read(ctx, "GetHourlyDates", func(ctx context.Context) error {
		dates = dates[:0]
		return r.db.SelectContext(ctx, &dates, query, args...)
	})
	return dates, err
}
