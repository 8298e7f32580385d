package services

import (
	"context"
	"testing"
	"time"

	"odometer/internal/database"
	"odometer/internal/infrastructure/logging"
	"odometer/internal/metrics"
	"odometer/internal/repository"
	"odometer/internal/testutils/dbtest"
	"odometer/internal/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// testNow is the fixed clock used across the package tests
var testNow = time.Date(2025, 8, 9, 15, 30, 0, 0, time.UTC)

type testEnv struct {
	service *database.SQLiteService
	repo    *repository.SQLiteRepository
	mock    *MockRepository
	opts    Options
	metrics *metrics.Metrics
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	service := dbtest.New(t)
	repo, err := repository.NewSQLiteRepository(service, logging.NewNopLogger())
	require.NoError(t, err)

	m, err := metrics.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	return &testEnv{
		service: service,
		repo:    repo,
		mock:    NewMockRepository(repo),
		metrics: m,
		opts: Options{
			Location:  time.UTC,
			Now:       func() time.Time { return testNow },
			BatchSize: 100,
			Metrics:   m,
			Logger:    logging.NewNopLogger(),
		},
	}
}

// at returns a UTC timestamp on date at hour:30
func at(t *testing.T, date string, hour int) time.Time {
	t.Helper()
	d, err := time.Parse(types.DateLayout, date)
	require.NoError(t, err)
	return d.Add(time.Duration(hour)*time.Hour + 30*time.Minute)
}

// seedAllTables writes one row per table for each date
func seedAllTables(t *testing.T, repo *repository.SQLiteRepository, dates ...string) {
	t.Helper()
	err := repo.WithWriteTx(context.Background(), "seed", func(ctx context.Context, tx *repository.WriteTx) error {
		for _, date := range dates {
			if err := tx.AddHourly(ctx, date, 10, types.Measures{KeyCount: 1}); err != nil {
				return err
			}
			if err := tx.AddKeyCount(ctx, date, 10, "KeyA", 1); err != nil {
				return err
			}
			if err := tx.AddAppSeconds(ctx, date, 10, "editor", 60); err != nil {
				return err
			}
			if _, err := tx.RecomputeDaily(ctx, date); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func rowCounts(t *testing.T, repo *repository.SQLiteRepository) map[string]int64 {
	t.Helper()
	counts := map[string]int64{}
	for _, table := range repository.StatTables {
		n, err := repo.CountRows(context.Background(), table)
		require.NoError(t, err)
		counts[table] = n
	}
	return counts
}
