package services

import (
	"context"
	"math"
	"testing"
	"time"

	repoerrors "odometer/internal/infrastructure/errors"
	"odometer/internal/types"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_KeyEventsSameHour(t *testing.T) {
	t.Parallel()
	env := setupTestEnv(t)
	rec := NewRecorder(env.repo, env.opts)
	ctx := context.Background()

	for range 3 {
		require.NoError(t, rec.RecordInputEvent(ctx, types.InputEvent{
			Timestamp: at(t, "2025-08-09", 14),
			Kind:      types.EventKey,
			KeyCode:   "A",
		}))
	}

	keys, err := env.repo.GetKeyStats(ctx, types.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, []types.KeyStat{{Date: "2025-08-09", Hour: 14, KeyCode: "A", Count: 3}}, keys)

	daily, err := env.repo.GetDailyStats(ctx, types.DateRange{})
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, int64(3), daily[0].KeyCount)
}

func TestRecorder_KeyEventsAcrossHours(t *testing.T) {
	t.Parallel()
	env := setupTestEnv(t)
	rec := NewRecorder(env.repo, env.opts)
	ctx := context.Background()

	require.NoError(t, rec.RecordInputEvent(ctx, types.InputEvent{Timestamp: at(t, "2025-08-09", 9), Kind: types.EventKey, KeyCode: "A"}))
	require.NoError(t, rec.RecordInputEvent(ctx, types.InputEvent{Timestamp: at(t, "2025-08-09", 10), Kind: types.EventKey, KeyCode: "A"}))

	keys, err := env.repo.GetKeyStats(ctx, types.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, []types.KeyStat{
		{Date: "2025-08-09", Hour: 9, KeyCode: "A", Count: 1},
		{Date: "2025-08-09", Hour: 10, KeyCode: "A", Count: 1},
	}, keys)
}

func TestRecorder_AllKinds(t *testing.T) {
	t.Parallel()
	env := setupTestEnv(t)
	rec := NewRecorder(env.repo, env.opts)
	ctx := context.Background()
	ts := at(t, "2025-08-09", 8)

	events := []types.InputEvent{
		{Timestamp: ts, Kind: types.EventKey, KeyCode: "Space"},
		{Timestamp: ts, Kind: types.EventMouseMove, Distance: 1.5},
		{Timestamp: ts, Kind: types.EventMouseMove, Distance: 0.25},
		{Timestamp: ts, Kind: types.EventLeftClick},
		{Timestamp: ts, Kind: types.EventRightClick},
		{Timestamp: ts, Kind: types.EventMiddleClick},
		{Timestamp: ts, Kind: types.EventScroll, Distance: 3},
	}
	for _, ev := range events {
		require.NoError(t, rec.RecordInputEvent(ctx, ev))
	}

	hourly, err := env.repo.GetHourlyStats(ctx, "2025-08-09")
	require.NoError(t, err)
	require.Len(t, hourly, 1)
	assert.Equal(t, types.Measures{
		KeyCount:       1,
		MouseDistance:  1.75,
		LeftClicks:     1,
		RightClicks:    1,
		MiddleClicks:   1,
		ScrollDistance: 3,
	}, hourly[0].Measures)

	assert.InDelta(t, 2, promtest.ToFloat64(env.metrics.EventsRecordedCounter(string(types.EventMouseMove))), 0)
}

func TestRecorder_BucketsInConfiguredLocation(t *testing.T) {
	t.Parallel()
	env := setupTestEnv(t)
	loc := time.FixedZone("UTC+3", 3*60*60)
	env.opts.Location = loc
	rec := NewRecorder(env.repo, env.opts)
	ctx := context.Background()

	// 22:30 UTC on the 8th is 01:30 on the 9th in UTC+3
	require.NoError(t, rec.RecordInputEvent(ctx, types.InputEvent{
		Timestamp: at(t, "2025-08-08", 22),
		Kind:      types.EventLeftClick,
	}))

	hourly, err := env.repo.GetHourlyStats(ctx, "2025-08-09")
	require.NoError(t, err)
	require.Len(t, hourly, 1)
	assert.Equal(t, 1, hourly[0].Hour)
}

func TestRecorder_Validation(t *testing.T) {
	t.Parallel()
	env := setupTestEnv(t)
	rec := NewRecorder(env.repo, env.opts)
	ts := at(t, "2025-08-09", 8)

	tests := []struct {
		name string
		ev   types.InputEvent
	}{
		{"zero timestamp", types.InputEvent{Kind: types.EventLeftClick}},
		{"unknown kind", types.InputEvent{Timestamp: ts, Kind: "double_click"}},
		{"key without code", types.InputEvent{Timestamp: ts, Kind: types.EventKey, KeyCode: " "}},
		{"negative distance", types.InputEvent{Timestamp: ts, Kind: types.EventMouseMove, Distance: -1}},
		{"nan distance", types.InputEvent{Timestamp: ts, Kind: types.EventScroll, Distance: math.NaN()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rec.RecordInputEvent(context.Background(), tt.ev)
			require.Error(t, err)
			assert.True(t, repoerrors.IsWriteError(err))
			assert.True(t, repoerrors.IsValidation(err))
		})
	}

	assert.Equal(t, int64(0), rowCounts(t, env.repo)["hourly_stats"])
}

func TestRecorder_WriteFailureIsReported(t *testing.T) {
	t.Parallel()
	env := setupTestEnv(t)
	env.mock.SetFailureModes(true)
	rec := NewRecorder(env.mock, env.opts)

	err := rec.RecordInputEvent(context.Background(), types.InputEvent{
		Timestamp: at(t, "2025-08-09", 8),
		Kind:      types.EventLeftClick,
	})
	require.Error(t, err)
	assert.True(t, repoerrors.IsWriteError(err))

	// No retry inside the recorder
	writes, failed := env.mock.GetCallCounts()
	assert.Equal(t, 1, writes)
	assert.Equal(t, []string{"RecordInputEvent"}, failed)
	assert.InDelta(t, 1, promtest.ToFloat64(env.metrics.WriteFailuresCounter("RecordInputEvent")), 0)
}

func TestRecorder_RecordInputEvents_Batches(t *testing.T) {
	t.Parallel()
	env := setupTestEnv(t)
	env.opts.BatchSize = 4
	rec := NewRecorder(env.mock, env.opts)
	ctx := context.Background()

	var events []types.InputEvent
	for i := range 10 {
		events = append(events, types.InputEvent{
			Timestamp: at(t, "2025-08-09", i%2),
			Kind:      types.EventKey,
			KeyCode:   "K",
		})
	}
	events = append(events, types.InputEvent{Timestamp: at(t, "2025-08-10", 0), Kind: types.EventLeftClick})

	n, err := rec.RecordInputEvents(ctx, events)
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	writes, _ := env.mock.GetCallCounts()
	assert.Equal(t, 3, writes)

	totals, err := env.repo.GetTopKeys(ctx, types.DateRange{}, 0)
	require.NoError(t, err)
	assert.Equal(t, []types.KeyTotal{{KeyCode: "K", Count: 10}}, totals)

	daily, err := env.repo.GetDailyStats(ctx, types.DateRange{})
	require.NoError(t, err)
	require.Len(t, daily, 2)
	assert.Equal(t, int64(10), daily[0].KeyCount)
	assert.Equal(t, int64(1), daily[1].LeftClicks)
}

func TestRecorder_RecordInputEvents_InvalidRejectsAll(t *testing.T) {
	t.Parallel()
	env := setupTestEnv(t)
	rec := NewRecorder(env.mock, env.opts)

	n, err := rec.RecordInputEvents(context.Background(), []types.InputEvent{
		{Timestamp: at(t, "2025-08-09", 1), Kind: types.EventLeftClick},
		{Timestamp: at(t, "2025-08-09", 1), Kind: "bogus"},
	})
	require.Error(t, err)
	assert.Equal(t, 0, n)
	assert.True(t, repoerrors.IsValidation(err))

	var repoErr *repoerrors.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.Equal(t, "1", repoErr.Context["index"])

	writes, _ := env.mock.GetCallCounts()
	assert.Zero(t, writes)
}

func TestRecorder_RecordAppUsage(t *testing.T) {
	t.Parallel()
	env := setupTestEnv(t)
	rec := NewRecorder(env.repo, env.opts)
	ctx := context.Background()
	ts := at(t, "2025-08-09", 11)

	require.NoError(t, rec.RecordAppUsage(ctx, ts, "editor", 1200))
	require.NoError(t, rec.RecordAppUsageBatch(ctx, ts, map[string]int64{
		"editor":  3000,
		"browser": 30,
		"idle":    0,
	}))

	stats, err := env.repo.GetAppUsageStats(ctx, types.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, []types.AppUsageStat{
		{Date: "2025-08-09", Hour: 11, AppName: "browser", SecondsUsed: 30},
		{Date: "2025-08-09", Hour: 11, AppName: "editor", SecondsUsed: 3600},
	}, stats)

	assert.InDelta(t, 4230, promtest.ToFloat64(env.metrics.AppSecondsCounter()), 0)
}

func TestRecorder_RecordAppUsage_Validation(t *testing.T) {
	t.Parallel()
	env := setupTestEnv(t)
	rec := NewRecorder(env.repo, env.opts)
	ctx := context.Background()
	ts := at(t, "2025-08-09", 11)

	for _, err := range []error{
		rec.RecordAppUsage(ctx, time.Time{}, "editor", 1),
		rec.RecordAppUsage(ctx, ts, "", 1),
		rec.RecordAppUsage(ctx, ts, "editor", -1),
	} {
		require.Error(t, err)
		assert.True(t, repoerrors.IsWriteError(err))
		assert.True(t, repoerrors.IsValidation(err))
	}
}
