package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	repoerrors "odometer/internal/infrastructure/errors"
	"odometer/internal/infrastructure/logging"
	"odometer/internal/testutils/dbtest"
	"odometer/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithWriteTx_Commit(t *testing.T) {
	t.Parallel()
	repo := setupTestRepository(t)
	ctx := context.Background()

	write(t, repo, func(ctx context.Context, tx *WriteTx) error {
		if err := tx.AddHourly(ctx, "2025-08-09", 13, sampleMeasures()); err != nil {
			return err
		}
		return tx.AddKeyCount(ctx, "2025-08-09", 13, "KeyA", 3)
	})

	hourly, err := repo.GetHourlyStats(ctx, "2025-08-09")
	require.NoError(t, err)
	require.Len(t, hourly, 1)
	assert.Equal(t, sampleMeasures(), hourly[0].Measures)
}

func TestWithWriteTx_RollbackOnError(t *testing.T) {
	t.Parallel()
	repo := setupTestRepository(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := repo.WithWriteTx(ctx, "RecordInputEvent", func(ctx context.Context, tx *WriteTx) error {
		if err := tx.AddHourly(ctx, "2025-08-09", 13, sampleMeasures()); err != nil {
			return err
		}
		return boom
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, repoerrors.IsWriteError(err))

	hourly, err := repo.GetHourlyStats(ctx, "2025-08-09")
	require.NoError(t, err)
	assert.Empty(t, hourly)
}

func TestWithWriteTx_ValidationIsWriteError(t *testing.T) {
	t.Parallel()
	repo := setupTestRepository(t)

	err := repo.WithWriteTx(context.Background(), "AddKeyCount", func(ctx context.Context, tx *WriteTx) error {
		return tx.AddKeyCount(ctx, "2025-08-09", 13, "  ", 1)
	})
	require.Error(t, err)
	assert.True(t, repoerrors.IsWriteError(err))
	assert.True(t, repoerrors.IsValidation(err))
	assert.False(t, repoerrors.IsRetryable(err))
}

func TestWithWriteTx_Serialized(t *testing.T) {
	t.Parallel()
	repo := setupTestRepository(t)
	ctx := context.Background()

	var inFlight, maxInFlight atomic.Int32
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.WithWriteTx(ctx, "concurrent", func(ctx context.Context, tx *WriteTx) error {
				n := inFlight.Add(1)
				defer inFlight.Add(-1)
				for {
					current := maxInFlight.Load()
					if n <= current || maxInFlight.CompareAndSwap(current, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				return tx.AddHourly(ctx, "2025-08-09", i%2, types.Measures{KeyCount: 1})
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load())

	hourly, err := repo.GetHourlyStats(ctx, "2025-08-09")
	require.NoError(t, err)
	var total int64
	for _, h := range hourly {
		total += h.KeyCount
	}
	assert.Equal(t, int64(8), total)
}

func TestWithWriteTx_QueuedCallerHonoursContext(t *testing.T) {
	t.Parallel()
	repo := setupTestRepository(t)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- repo.WithWriteTx(context.Background(), "holder", func(ctx context.Context, tx *WriteTx) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := repo.WithWriteTx(ctx, "waiter", func(ctx context.Context, tx *WriteTx) error { return nil })
	require.Error(t, err)
	assert.True(t, repoerrors.IsWriteError(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)
}

func TestWithWriteTx_TxTimeout(t *testing.T) {
	t.Parallel()

	repo, err := NewSQLiteRepositoryWithOptions(dbtest.New(t), Options{TxTimeout: 10 * time.Millisecond}, logging.NewNopLogger())
	require.NoError(t, err)

	err = repo.WithWriteTx(context.Background(), "slow", func(ctx context.Context, tx *WriteTx) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	assert.True(t, repoerrors.IsWriteError(err))
	assert.True(t, repoerrors.IsTimeout(err))
}

func TestWithWriteLock_ExcludesWriters(t *testing.T) {
	t.Parallel()
	repo := setupTestRepository(t)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- repo.WithWriteLock(context.Background(), "maintenance", func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := repo.WithWriteTx(ctx, "blocked", func(ctx context.Context, tx *WriteTx) error { return nil })
	require.Error(t, err)
	assert.True(t, repoerrors.IsWriteError(err))

	close(release)
	require.NoError(t, <-done)

	err = repo.WithWriteLock(context.Background(), "failing", func(ctx context.Context) error {
		return errors.New("boom")
	})
	assert.True(t, repoerrors.IsWriteError(err))
}
