package services

import (
	"context"
	"testing"
	"time"

	"odometer/internal/repository"
	"odometer/internal/types"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertDaily(t *testing.T, env *testEnv, date string, keys int64) {
	t.Helper()
	_, err := env.service.DB().ExecContext(context.Background(),
		"INSERT INTO daily_stats (date, key_count) VALUES (?, ?)", date, keys)
	require.NoError(t, err)
}

func TestDiagnostics_FindFutureDates(t *testing.T) {
	t.Parallel()
	env := setupTestEnv(t)
	insertDaily(t, env, "2025-08-09", 1)
	insertDaily(t, env, "2025-08-10", 1)
	diag := NewDiagnostics(env.repo, nil, env.opts)

	asOf := time.Date(2025, 8, 9, 12, 0, 0, 0, time.UTC)
	findings, err := diag.FindFutureDates(context.Background(), asOf)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, types.CheckFutureDate, findings[0].Check)
	assert.Equal(t, repository.TableDailyStats, findings[0].Table)
	assert.Equal(t, "2025-08-10", findings[0].Date)
	assert.Equal(t, types.SeverityWarning, findings[0].Severity)
}

func TestDiagnostics_FindDuplicateDates(t *testing.T) {
	t.Parallel()
	env := setupTestEnv(t)
	ctx := context.Background()
	diag := NewDiagnostics(env.repo, nil, env.opts)

	findings, err := diag.FindDuplicateDates(ctx)
	require.NoError(t, err)
	assert.Empty(t, findings)

	// A legacy daily table without a primary key
	db := env.service.DB()
	_, err = db.ExecContext(ctx, "DROP TABLE daily_stats")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `CREATE TABLE daily_stats (
		date TEXT, key_count INTEGER, mouse_distance REAL, left_clicks INTEGER,
		right_clicks INTEGER, middle_clicks INTEGER, scroll_distance REAL)`)
	require.NoError(t, err)
	insertDaily(t, env, "2025-08-01", 1)
	insertDaily(t, env, "2025-08-01", 2)

	findings, err = diag.FindDuplicateDates(ctx)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, types.Finding{
		Check:    types.CheckDuplicateDate,
		Severity: types.SeverityError,
		Table:    repository.TableDailyStats,
		Date:     "2025-08-01",
		Detail:   "2 rows share this key",
	}, findings[0])
}

func TestDiagnostics_CheckConsistency(t *testing.T) {
	t.Parallel()
	env := setupTestEnv(t)
	ctx := context.Background()
	rec := NewRecorder(env.repo, env.opts)

	// Consistent date written through the recorder
	require.NoError(t, rec.RecordInputEvent(ctx, types.InputEvent{Timestamp: at(t, "2025-08-01", 1), Kind: types.EventMouseMove, Distance: 0.1}))
	require.NoError(t, rec.RecordInputEvent(ctx, types.InputEvent{Timestamp: at(t, "2025-08-01", 2), Kind: types.EventMouseMove, Distance: 0.2}))

	// Stale rollup, hourly without daily, daily without hourly
	err := env.repo.WithWriteTx(ctx, "seed", func(ctx context.Context, tx *repository.WriteTx) error {
		if err := tx.AddHourly(ctx, "2025-08-02", 1, types.Measures{KeyCount: 5}); err != nil {
			return err
		}
		return tx.AddHourly(ctx, "2025-08-03", 1, types.Measures{KeyCount: 1})
	})
	require.NoError(t, err)
	insertDaily(t, env, "2025-08-02", 4)
	insertDaily(t, env, "2025-07-31", 9)

	diag := NewDiagnostics(env.repo, nil, env.opts)
	findings, err := diag.CheckConsistency(ctx)
	require.NoError(t, err)

	assert.Equal(t, []types.Finding{
		{
			Check:    types.CheckSumMismatch,
			Severity: types.SeverityError,
			Table:    repository.TableDailyStats,
			Date:     "2025-08-02",
			Detail:   "daily differs from hourly sum: key_count 4 != 5",
		},
		{
			Check:    types.CheckHourlyNoDaily,
			Severity: types.SeverityWarning,
			Table:    repository.TableHourlyStats,
			Date:     "2025-08-03",
			Detail:   "hourly data has no daily rollup",
		},
		{
			Check:    types.CheckDailyWithoutHour,
			Severity: types.SeverityInfo,
			Table:    repository.TableDailyStats,
			Date:     "2025-07-31",
			Detail:   "daily rollup has no hourly data",
		},
	}, findings)
}

func TestMeasureDiff(t *testing.T) {
	t.Parallel()

	a := types.Measures{KeyCount: 3, MouseDistance: 0.3}
	b := types.Measures{KeyCount: 3, MouseDistance: 0.1 + 0.2}
	assert.Empty(t, measureDiff(a, b))

	b.MouseDistance = 0.31
	b.RightClicks = 1
	assert.Equal(t, "right_clicks 0 != 1, mouse_distance 0.3 != 0.31", measureDiff(a, b))
}

func TestDiagnostics_FindGaps(t *testing.T) {
	t.Parallel()
	env := setupTestEnv(t)
	for _, date := range []string{"2025-07-30", "2025-07-31", "2025-08-02", "2025-08-06"} {
		insertDaily(t, env, date, 1)
	}
	diag := NewDiagnostics(env.repo, nil, env.opts)

	findings, err := diag.FindGaps(context.Background())
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, "2025-08-01", findings[0].Date)
	assert.Equal(t, "no data on 2025-08-01", findings[0].Detail)
	assert.Equal(t, "2025-08-03", findings[1].Date)
	assert.Equal(t, "no data for 3 days, 2025-08-03 to 2025-08-05", findings[1].Detail)
}

func TestDiagnostics_Report(t *testing.T) {
	t.Parallel()
	env := setupTestEnv(t)
	seedAllTables(t, env.repo, "2025-08-01", "2025-08-03")
	insertDaily(t, env, "2025-08-12", 1)
	diag := NewDiagnostics(env.repo, env.service.Schema(), env.opts)

	report, err := diag.Report(context.Background(), testNow)
	require.NoError(t, err)

	assert.Equal(t, "2025-08-09", report.AsOf)
	assert.Equal(t, testNow, report.GeneratedAt)
	assert.Equal(t, int64(4), report.SchemaVersion)
	assert.Equal(t, "wal", report.JournalMode)
	assert.Equal(t, map[string]int64{
		repository.TableDailyStats:    3,
		repository.TableHourlyStats:   2,
		repository.TableKeyStats:      2,
		repository.TableAppUsageStats: 2,
	}, report.RowCounts)
	require.Len(t, report.Ranges, 4)
	assert.Equal(t, types.TableRange{Table: repository.TableDailyStats, Min: "2025-08-01", Max: "2025-08-12"}, report.Ranges[0])

	var checks []string
	for _, f := range report.Findings {
		checks = append(checks, f.Check)
	}
	// Sorted in report order: future date, then daily without hourly, then gaps
	assert.Equal(t, []string{
		types.CheckFutureDate,
		types.CheckDailyWithoutHour,
		types.CheckDateGap,
		types.CheckDateGap,
	}, checks)
	assert.False(t, report.HasErrors())

	assert.InDelta(t, 2, promtest.ToFloat64(env.metrics.FindingsGauge(types.CheckDateGap)), 0)
	assert.InDelta(t, 0, promtest.ToFloat64(env.metrics.FindingsGauge(types.CheckIntegrity)), 0)
}

func TestDiagnostics_ReportCancelled(t *testing.T) {
	t.Parallel()
	env := setupTestEnv(t)
	diag := NewDiagnostics(env.repo, nil, env.opts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := diag.Report(ctx, testNow)
	require.Error(t, err)
}
