package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	dberrors "odometer/internal/infrastructure/errors"
	"odometer/internal/infrastructure/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConnectedService(t *testing.T, mutate func(*Config)) *SQLiteService {
	t.Helper()

	config := DefaultConfig()
	config.Path = filepath.Join(t.TempDir(), "service.db")
	if mutate != nil {
		mutate(config)
	}

	service := NewSQLiteService(logging.NewNopLogger())
	require.NoError(t, service.Connect(context.Background(), config))
	t.Cleanup(func() { service.Close() })
	return service
}

func TestSQLiteService_ConnectAndMigrate(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{DriverMattn, DriverModernc} {
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			service := newConnectedService(t, func(c *Config) { c.Driver = driver })
			ctx := context.Background()

			require.NoError(t, service.Health(ctx))
			_, err := os.Stat(service.Config().Path)
			require.NoError(t, err)

			require.NoError(t, service.Migrate(ctx))
			version, err := service.GetMigrationVersion(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(4), version)

			var mode string
			require.NoError(t, service.DB().GetContext(ctx, &mode, "PRAGMA journal_mode"))
			assert.Equal(t, "wal", mode)

			for _, table := range []string{"daily_stats", "hourly_stats", "key_stats", "app_usage_stats"} {
				var n int
				require.NoError(t, service.DB().GetContext(ctx, &n, "SELECT COUNT(*) FROM "+table), table)
			}
		})
	}
}

func TestSQLiteService_InMemory(t *testing.T) {
	t.Parallel()

	service := NewSQLiteService(logging.NewNopLogger())
	ctx := context.Background()
	require.NoError(t, service.Connect(ctx, TestConfig()))
	defer service.Close()

	require.NoError(t, service.Migrate(ctx))
	assert.Equal(t, 1, service.GetStats().MaxOpenConnections)

	// The single connection keeps the schema alive across calls
	version, err := service.Schema().CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), version)
}

func TestSQLiteService_ConnectionPool(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(*Config)
		expected int
	}{
		{"wal caps at four", func(c *Config) { c.MaxConnections = 10; c.MaxIdleConns = 5 }, 4},
		{"wal honours smaller pool", func(c *Config) { c.MaxConnections = 2; c.MaxIdleConns = 1 }, 2},
		{"non-wal is single", func(c *Config) { c.JournalMode = "DELETE" }, 1},
		{"forced single", func(c *Config) { c.ForceSingleConnection = true }, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			service := newConnectedService(t, tt.mutate)
			assert.Equal(t, tt.expected, service.GetStats().MaxOpenConnections)
		})
	}
}

func TestSQLiteService_NotConnected(t *testing.T) {
	t.Parallel()

	service := NewSQLiteService(nil)
	ctx := context.Background()

	assert.True(t, dberrors.IsConnection(service.Health(ctx)))
	assert.True(t, dberrors.IsConnection(service.Optimize(ctx)))
	assert.True(t, dberrors.IsConnection(service.Analyze(ctx)))

	err := service.Migrate(ctx)
	assert.True(t, dberrors.IsSchemaError(err))
	assert.True(t, dberrors.IsConnection(err))

	_, err = service.GetMigrationVersion(ctx)
	assert.True(t, dberrors.IsConnection(err))

	assert.Nil(t, service.DB())
	assert.Nil(t, service.Schema())
	assert.NoError(t, service.Close())
	assert.Equal(t, 0, service.GetStats().OpenConnections)
}

func TestSQLiteService_ConnectNilConfig(t *testing.T) {
	t.Parallel()
	err := NewSQLiteService(nil).Connect(context.Background(), nil)
	assert.True(t, dberrors.IsValidation(err))
}

func TestSQLiteService_ConnectInvalidPath(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	config.Path = filepath.Join(t.TempDir(), "missing", "dir", "db.sqlite")

	err := NewSQLiteService(nil).Connect(context.Background(), config)
	require.Error(t, err)
	assert.True(t, dberrors.IsConnection(err))
}

func TestSQLiteService_Reconnect(t *testing.T) {
	t.Parallel()
	service := newConnectedService(t, nil)
	ctx := context.Background()
	first := service.DB()

	config := service.Config().Clone()
	config.Path = filepath.Join(t.TempDir(), "second.db")
	require.NoError(t, service.Connect(ctx, config))

	assert.NotSame(t, first, service.DB())
	assert.Error(t, first.PingContext(ctx))
	require.NoError(t, service.Health(ctx))
}

func TestSQLiteService_OptimizeAndAnalyze(t *testing.T) {
	t.Parallel()
	service := newConnectedService(t, nil)
	ctx := context.Background()

	require.NoError(t, service.Migrate(ctx))
	_, err := service.DB().ExecContext(ctx, "INSERT INTO daily_stats (date, key_count) VALUES ('2025-08-09', 3)")
	require.NoError(t, err)

	require.NoError(t, service.Analyze(ctx))
	require.NoError(t, service.Optimize(ctx))
	require.NoError(t, service.Health(ctx))
}

func TestSQLiteService_CloseNullsReferences(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	config.Path = filepath.Join(t.TempDir(), "close.db")
	service := NewSQLiteService(nil)
	require.NoError(t, service.Connect(context.Background(), config))

	require.NoError(t, service.Close())
	assert.Nil(t, service.DB())
	assert.Nil(t, service.Schema())
	assert.NoError(t, service.Close())
}
