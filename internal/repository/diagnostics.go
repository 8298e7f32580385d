package repository

import (
	"context"
	"fmt"

	repoerrors "odometer/internal/infrastructure/errors"
	"odometer/internal/types"
)

// DateCount is a grouped row returned by the diagnostics reads.
// Key carries the non-date part of the grouping key, if any.
type DateCount struct {
	Date  string `db:"date"`
	Key   string `db:"grp_key"`
	Count int64  `db:"n"`
}

// DailyComparison pairs a stored daily rollup with the sum of its hourly buckets
type DailyComparison struct {
	Date   string         `db:"date"`
	Daily  types.Measures `db:"daily"`
	Hourly types.Measures `db:"hourly"`
}

// groupingKeys holds the non-date primary key columns of each table, rendered as text
var groupingKeys = map[string]string{
	TableDailyStats:    "''",
	TableHourlyStats:   "'hour=' || hour",
	TableKeyStats:      "'hour=' || hour || ' key=' || key_code",
	TableAppUsageStats: "'hour=' || hour || ' app=' || app_name",
}

// FindDuplicateKeys reports primary keys that occur more than once. Tables
// created by this engine cannot hold such rows; legacy copies without a
// primary key can.
func (r *SQLiteRepository) FindDuplicateKeys(ctx context.Context, table string) ([]DateCount, error) {
	if err := validTable(table); err != nil {
		return nil, repoerrors.NewQueryError("FindDuplicateKeys", err, nil)
	}

	key := groupingKeys[table]
	query := fmt.Sprintf(
		"SELECT date, %s AS grp_key, COUNT(*) AS n FROM %s GROUP BY date, grp_key HAVING COUNT(*) > 1 ORDER BY date, grp_key",
		key, table)

	rows := []DateCount{}
	err := r.read(ctx, "FindDuplicateKeys", func(ctx context.Context) error {
		rows = rows[:0]
		return r.db.SelectContext(ctx, &rows, query)
	})
	return rows, err
}

// FindDatesAfter reports, per date, rows of table dated strictly after date
func (r *SQLiteRepository) FindDatesAfter(ctx context.Context, table, date string) ([]DateCount, error) {
	if err := validTable(table); err != nil {
		return nil, repoerrors.NewQueryError("FindDatesAfter", err, nil)
	}

	query := fmt.Sprintf("SELECT date, '' AS grp_key, COUNT(*) AS n FROM %s WHERE date > ? GROUP BY date ORDER BY date", table)
	rows := []DateCount{}
	err := r.read(ctx, "FindDatesAfter", func(ctx context.Context) error {
		rows = rows[:0]
		return r.db.SelectContext(ctx, &rows, query, date)
	})
	return rows, err
}

// GetDateRange returns the min and max date of table; both empty when it has no rows
func (r *SQLiteRepository) GetDateRange(ctx context.Context, table string) (types.TableRange, error) {
	if err := validTable(table); err != nil {
		return types.TableRange{}, repoerrors.NewQueryError("GetDateRange", err, nil)
	}

	var row struct {
		Min string `db:"min_date"`
		Max string `db:"max_date"`
	}
	query := fmt.Sprintf("SELECT COALESCE(MIN(date), '') AS min_date, COALESCE(MAX(date), '') AS max_date FROM %s", table)
	err := r.read(ctx, "GetDateRange", func(ctx context.Context) error {
		return r.db.GetContext(ctx, &row, query)
	})
	return types.TableRange{Table: table, Min: row.Min, Max: row.Max}, err
}

// CountRows returns the number of rows in table
func (r *SQLiteRepository) CountRows(ctx context.Context, table string) (int64, error) {
	if err := validTable(table); err != nil {
		return 0, repoerrors.NewQueryError("CountRows", err, nil)
	}

	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	err := r.read(ctx, "CountRows", func(ctx context.Context) error {
		return r.db.GetContext(ctx, &n, query)
	})
	return n, err
}

// CompareDailyWithHourly returns every daily row that has hourly data, next to the hourly sums
func (r *SQLiteRepository) CompareDailyWithHourly(ctx context.Context) ([]DailyComparison, error) {
	const query = `
SELECT
    d.date AS date,
    COALESCE(d.key_count, 0) AS "daily.key_count",
    COALESCE(d.mouse_distance, 0) AS "daily.mouse_distance",
    COALESCE(d.left_clicks, 0) AS "daily.left_clicks",
    COALESCE(d.right_clicks, 0) AS "daily.right_clicks",
    COALESCE(d.middle_clicks, 0) AS "daily.middle_clicks",
    COALESCE(d.scroll_distance, 0) AS "daily.scroll_distance",
    h.key_count AS "hourly.key_count",
    h.mouse_distance AS "hourly.mouse_distance",
    h.left_clicks AS "hourly.left_clicks",
    h.right_clicks AS "hourly.right_clicks",
    h.middle_clicks AS "hourly.middle_clicks",
    h.scroll_distance AS "hourly.scroll_distance"
FROM daily_stats d
JOIN (
    SELECT
        date,
        SUM(COALESCE(key_count, 0)) AS key_count,
        SUM(COALESCE(mouse_distance, 0)) AS mouse_distance,
        SUM(COALESCE(left_clicks, 0)) AS left_clicks,
        SUM(COALESCE(right_clicks, 0)) AS right_clicks,
        SUM(COALESCE(middle_clicks, 0)) AS middle_clicks,
        SUM(COALESCE(scroll_distance, 0)) AS scroll_distance
    FROM hourly_stats
    GROUP BY date
) h ON h.date = d.date
ORDER BY d.date`

	rows := []DailyComparison{}
	err := r.read(ctx, "CompareDailyWithHourly", func(ctx context.Context) error {
		rows = rows[:0]
		return r.db.SelectContext(ctx, &rows, query)
	})
	return rows, err
}

// FindDailyWithoutHourly lists daily dates that have no hourly rows
func (r *SQLiteRepository) FindDailyWithoutHourly(ctx context.Context) ([]string, error) {
	return r.selectDates(ctx, "FindDailyWithoutHourly", `
SELECT d.date FROM daily_stats d
WHERE NOT EXISTS (SELECT 1 FROM hourly_stats h WHERE h.date = d.date)
ORDER BY d.date`)
}

// FindHourlyWithoutDaily lists hourly dates that have no daily rollup
func (r *SQLiteRepository) FindHourlyWithoutDaily(ctx context.Context) ([]string, error) {
	return r.selectDates(ctx, "FindHourlyWithoutDaily", `
SELECT DISTINCT h.date FROM hourly_stats h
WHERE NOT EXISTS (SELECT 1 FROM daily_stats d WHERE d.date = h.date)
ORDER BY h.date`)
}

// GetDistinctDates lists the distinct dates present in table
func (r *SQLiteRepository) GetDistinctDates(ctx context.Context, table string) ([]string, error) {
	if err := validTable(table); err != nil {
		return nil, repoerrors.NewQueryError("GetDistinctDates", err, nil)
	}
	return r.selectDates(ctx, "GetDistinctDates", fmt.Sprintf("SELECT DISTINCT date FROM %s ORDER BY date", table))
}

func (r *SQLiteRepository) selectDates(ctx context.Context, op, query string) ([]string, error) {
	dates := []string{}
	err := r.read(ctx, op, func(ctx context.Context) error {
		dates = dates[:0]
		return r.db.SelectContext(ctx, &dates, query)
	})
	return dates, err
}

// IntegrityCheck runs PRAGMA integrity_check and returns its messages; a
// healthy database yields exactly ["ok"].
func (r *SQLiteRepository) IntegrityCheck(ctx context.Context) ([]string, error) {
	return r.selectDates(ctx, "IntegrityCheck", "PRAGMA integrity_check")
}

// JournalMode returns the active journal mode
func (r *SQLiteRepository) JournalMode(ctx context.Context) (string, error) {
	var mode string
	err := r.read(ctx, "JournalMode", func(ctx context.Context) error {
		return r.db.GetContext(ctx, &mode, "PRAGMA journal_mode")
	})
	return mode, err
}
