package repository

import (
	"context"

	"odometer/internal/types"
)

// Stat tables, in the order retention and diagnostics visit them
const (
	TableDailyStats    = "daily_stats"
	TableHourlyStats   = "hourly_stats"
	TableKeyStats      = "key_stats"
	TableAppUsageStats = "app_usage_stats"
)

// StatTables lists every date-keyed table
var StatTables = []string{TableDailyStats, TableHourlyStats, TableKeyStats, TableAppUsageStats}

// WriteFunc runs inside a write transaction. It must use tx for every statement.
type WriteFunc func(ctx context.Context, tx *WriteTx) error

// StatsRepository defines persistence for the telemetry tables
type StatsRepository interface {
	// Serialized write access
	WithWriteTx(ctx context.Context, op string, fn WriteFunc) error
	WithWriteLock(ctx context.Context, op string, fn func(ctx context.Context) error) error

	// Read-throughs
	GetDailyStats(ctx context.Context, r types.DateRange) ([]types.DailyStat, error)
	GetHourlyStats(ctx context.Context, date string) ([]types.HourlyStat, error)
	GetKeyStats(ctx context.Context, r types.DateRange) ([]types.KeyStat, error)
	GetTopKeys(ctx context.Context, r types.DateRange, limit int) ([]types.KeyTotal, error)
	GetAppUsageTotals(ctx context.Context, r types.DateRange) ([]types.AppUsageTotal, error)
	GetAppUsageStats(ctx context.Context, r types.DateRange) ([]types.AppUsageStat, error)
	GetHourlyDates(ctx context.Context, r types.DateRange) ([]string, error)

	// Diagnostics reads
	FindDuplicateKeys(ctx context.Context, table string) ([]DateCount, error)
	FindDatesAfter(ctx context.Context, table, date string) ([]DateCount, error)
	GetDateRange(ctx context.Context, table string) (types.TableRange, error)
	CountRows(ctx context.Context, table string) (int64, error)
	CompareDailyWithHourly(ctx context.Context) ([]DailyComparison, error)
	FindDailyWithoutHourly(ctx context.Context) ([]string, error)
	FindHourlyWithoutDaily(ctx context.Context) ([]string, error)
	GetDistinctDates(ctx context.Context, table string) ([]string, error)
	IntegrityCheck(ctx context.Context) ([]string, error)
	JournalMode(ctx context.Context) (string, error)

	HealthCheck(ctx context.Context) error
}
