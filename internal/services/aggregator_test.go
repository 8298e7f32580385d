package services

import (
	"context"
	"testing"

	repoerrors "odometer/internal/infrastructure/errors"
	"odometer/internal/repository"
	"odometer/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregator_RecomputeDailyMatchesHourlySum(t *testing.T) {
	t.Parallel()
	env := setupTestEnv(t)
	agg := NewAggregator(env.repo, env.opts)
	ctx := context.Background()

	// Hourly rows written without the recorder, so the rollup is stale
	hours := map[int]int64{0: 5, 7: 11, 23: 2}
	err := env.repo.WithWriteTx(ctx, "seed", func(ctx context.Context, tx *repository.WriteTx) error {
		for hour, keys := range hours {
			if err := tx.AddHourly(ctx, "2025-08-03", hour, types.Measures{KeyCount: keys, MouseDistance: 0.1}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	updated, err := agg.RecomputeDaily(ctx, "2025-08-03")
	require.NoError(t, err)
	assert.True(t, updated)

	daily, err := env.repo.GetDailyStats(ctx, types.DateRange{From: "2025-08-03", To: "2025-08-03"})
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, int64(18), daily[0].KeyCount)
	assert.InDelta(t, 0.3, daily[0].MouseDistance, 1e-9)

	// Idempotent
	_, err = agg.RecomputeDaily(ctx, "2025-08-03")
	require.NoError(t, err)
	again, err := env.repo.GetDailyStats(ctx, types.DateRange{From: "2025-08-03", To: "2025-08-03"})
	require.NoError(t, err)
	assert.Equal(t, daily, again)
}

func TestAggregator_RecomputeDaily_NoHourlyData(t *testing.T) {
	t.Parallel()
	env := setupTestEnv(t)
	agg := NewAggregator(env.repo, env.opts)

	updated, err := agg.RecomputeDaily(context.Background(), "2025-08-03")
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, int64(0), rowCounts(t, env.repo)[repository.TableDailyStats])

	_, err = agg.RecomputeDaily(context.Background(), "Aug 3")
	assert.True(t, repoerrors.IsValidation(err))
}

func TestAggregator_RecomputeRange(t *testing.T) {
	t.Parallel()
	env := setupTestEnv(t)
	agg := NewAggregator(env.repo, env.opts)
	ctx := context.Background()

	err := env.repo.WithWriteTx(ctx, "seed", func(ctx context.Context, tx *repository.WriteTx) error {
		for _, date := range []string{"2025-08-01", "2025-08-02", "2025-08-05"} {
			if err := tx.AddHourly(ctx, date, 3, types.Measures{LeftClicks: 2}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	n, err := agg.RecomputeRange(ctx, types.DateRange{From: "2025-08-02"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	dates, err := env.repo.GetDistinctDates(ctx, repository.TableDailyStats)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-08-02", "2025-08-05"}, dates)

	n, err = agg.RecomputeRange(ctx, types.DateRange{From: "2025-09-01"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAggregator_WriteFailure(t *testing.T) {
	t.Parallel()
	env := setupTestEnv(t)
	seedAllTables(t, env.repo, "2025-08-01")
	env.mock.SetFailureModes(true)
	agg := NewAggregator(env.mock, env.opts)

	_, err := agg.RecomputeRange(context.Background(), types.DateRange{})
	require.Error(t, err)
	assert.True(t, repoerrors.IsWriteError(err))
}
