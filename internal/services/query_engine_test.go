package services

import (
	"context"
	"testing"
	"time"

	repoerrors "odometer/internal/infrastructure/errors"
	"odometer/internal/repository"
	"odometer/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAppUsage(t *testing.T, repo *repository.SQLiteRepository, rows []types.AppUsageStat) {
	t.Helper()
	err := repo.WithWriteTx(context.Background(), "seed", func(ctx context.Context, tx *repository.WriteTx) error {
		for _, r := range rows {
			if err := tx.AddAppSeconds(ctx, r.Date, r.Hour, r.AppName, r.SecondsUsed); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestQueryEngine_WindowRange(t *testing.T) {
	t.Parallel()
	env := setupTestEnv(t)
	q := NewQueryEngine(env.repo, env.opts)

	tests := []struct {
		window types.Window
		want   types.DateRange
	}{
		{types.WindowToday, types.DateRange{From: "2025-08-09", To: "2025-08-09"}},
		{types.WindowWeekly, types.DateRange{From: "2025-08-02", To: "2025-08-09"}},
		{types.WindowMonthly, types.DateRange{From: "2025-07-10", To: "2025-08-09"}},
		{types.WindowLifetime, types.DateRange{}},
	}
	for _, tt := range tests {
		t.Run(tt.window.String(), func(t *testing.T) {
			got, err := q.WindowRange(tt.window)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := q.WindowRange(types.Window(42))
	assert.True(t, repoerrors.IsQueryError(err))
}

func TestQueryEngine_TodayUsesConfiguredLocation(t *testing.T) {
	t.Parallel()
	env := setupTestEnv(t)
	env.opts.Location = time.FixedZone("UTC+10", 10*60*60)
	q := NewQueryEngine(env.repo, env.opts)

	// 15:30 UTC is already the next day at UTC+10
	assert.Equal(t, "2025-08-10", q.Today())
}

func TestQueryEngine_AppUsageToday(t *testing.T) {
	t.Parallel()
	env := setupTestEnv(t)
	q := NewQueryEngine(env.repo, env.opts)
	ctx := context.Background()

	seedAppUsage(t, env.repo, []types.AppUsageStat{
		{Date: "2025-08-09", Hour: 9, AppName: "terminal", SecondsUsed: 200},
		{Date: "2025-08-09", Hour: 10, AppName: "terminal", SecondsUsed: 200},
		{Date: "2025-08-09", Hour: 9, AppName: "browser", SecondsUsed: 900},
		{Date: "2025-08-09", Hour: 11, AppName: "editor", SecondsUsed: 400},
		{Date: "2025-08-08", Hour: 9, AppName: "terminal", SecondsUsed: 3600},
		{Date: "2025-08-10", Hour: 9, AppName: "mail", SecondsUsed: 10},
	})

	usage, err := q.AppUsage(ctx, types.WindowToday)
	require.NoError(t, err)
	assert.Equal(t, []types.AppUsageTotal{
		{AppName: "browser", Seconds: 900},
		{AppName: "editor", Seconds: 400},
		{AppName: "terminal", Seconds: 400},
	}, usage)
}

func TestQueryEngine_AppUsageWindows(t *testing.T) {
	t.Parallel()
	env := setupTestEnv(t)
	q := NewQueryEngine(env.repo, env.opts)
	ctx := context.Background()

	seedAppUsage(t, env.repo, []types.AppUsageStat{
		{Date: "2025-08-09", Hour: 1, AppName: "a", SecondsUsed: 10},
		{Date: "2025-08-02", Hour: 1, AppName: "b", SecondsUsed: 20}, // first day of the weekly window
		{Date: "2025-08-01", Hour: 1, AppName: "c", SecondsUsed: 30},
		{Date: "2025-07-10", Hour: 1, AppName: "d", SecondsUsed: 40}, // first day of the monthly window
		{Date: "2025-07-09", Hour: 1, AppName: "e", SecondsUsed: 50},
	})

	names := func(totals []types.AppUsageTotal) []string {
		out := []string{}
		for _, t := range totals {
			out = append(out, t.AppName)
		}
		return out
	}

	weekly, err := q.AppUsage(ctx, types.WindowWeekly)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, names(weekly))

	monthly, err := q.AppUsage(ctx, types.WindowMonthly)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c", "b", "a"}, names(monthly))

	lifetime, err := q.AppUsage(ctx, types.WindowLifetime)
	require.NoError(t, err)
	assert.Equal(t, []string{"e", "d", "c", "b", "a"}, names(lifetime))
}

func TestParseWindow(t *testing.T) {
	t.Parallel()

	w, err := ParseWindow("Weekly")
	require.NoError(t, err)
	assert.Equal(t, types.WindowWeekly, w)

	_, err = ParseWindow("fortnight")
	require.Error(t, err)
	assert.True(t, repoerrors.IsQueryError(err))
	assert.True(t, repoerrors.IsValidation(err))
}

func TestQueryEngine_ReadThroughs(t *testing.T) {
	t.Parallel()
	env := setupTestEnv(t)
	seedAllTables(t, env.repo, "2025-08-07", "2025-08-08")
	q := NewQueryEngine(env.repo, env.opts)
	ctx := context.Background()

	daily, err := q.DailyStats(ctx, types.DateRange{From: "2025-08-08"})
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, "2025-08-08", daily[0].Date)

	hourly, err := q.HourlyStats(ctx, "2025-08-07")
	require.NoError(t, err)
	require.Len(t, hourly, 1)
	assert.Equal(t, 10, hourly[0].Hour)

	keys, err := q.KeyStats(ctx, types.DateRange{})
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	top, err := q.TopKeys(ctx, types.DateRange{}, 1)
	require.NoError(t, err)
	assert.Equal(t, []types.KeyTotal{{KeyCode: "KeyA", Count: 2}}, top)

	_, err = q.DailyStats(ctx, types.DateRange{From: "2025-08-09", To: "2025-08-01"})
	assert.True(t, repoerrors.IsQueryError(err))
}

func TestQueryEngine_AppUsageStats(t *testing.T) {
	t.Parallel()
	env := setupTestEnv(t)
	seedAppUsage(t, env.repo, []types.AppUsageStat{
		{Date: "2025-08-08", Hour: 9, AppName: "editor", SecondsUsed: 600},
		{Date: "2025-08-09", Hour: 14, AppName: "terminal", SecondsUsed: 120},
		{Date: "2025-08-09", Hour: 14, AppName: "browser", SecondsUsed: 300},
		{Date: "2025-08-09", Hour: 14, AppName: "browser", SecondsUsed: 4000},
		{Date: "2025-08-09", Hour: 8, AppName: "editor", SecondsUsed: 60},
	})
	q := NewQueryEngine(env.repo, env.opts)
	ctx := context.Background()

	slots, err := q.AppUsageStats(ctx, types.DateRange{From: "2025-08-09", To: "2025-08-09"})
	require.NoError(t, err)
	assert.Equal(t, []types.AppUsageStat{
		{Date: "2025-08-09", Hour: 8, AppName: "editor", SecondsUsed: 60},
		{Date: "2025-08-09", Hour: 14, AppName: "browser", SecondsUsed: types.MaxSecondsPerSlot},
		{Date: "2025-08-09", Hour: 14, AppName: "terminal", SecondsUsed: 120},
	}, slots)

	all, err := q.AppUsageStats(ctx, types.DateRange{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	_, err = q.AppUsageStats(ctx, types.DateRange{From: "2025-8-9"})
	assert.True(t, repoerrors.IsQueryError(err))
}
