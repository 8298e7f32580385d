// Package dbtest opens migrated throwaway databases for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"odometer/internal/database"
	"odometer/internal/infrastructure/logging"

	"github.com/stretchr/testify/require"
)

// Config returns a WAL configuration pointing at a fresh file under t.TempDir().
// A real file is used instead of :memory: so readers and the writer can run on
// separate connections.
func Config(t testing.TB) *database.Config {
	t.Helper()

	config := database.TestConfig()
	config.Path = filepath.Join(t.TempDir(), "odometer_test.db")
	config.JournalMode = "WAL"
	config.SynchronousMode = "NORMAL"
	config.Timezone = "UTC"
	return config
}

// Open connects to config, applies all migrations and closes the service on cleanup
func Open(t testing.TB, config *database.Config) *database.SQLiteService {
	t.Helper()

	service := database.NewSQLiteService(logging.NewNopLogger())
	ctx := context.Background()
	require.NoError(t, service.Connect(ctx, config))
	t.Cleanup(func() { _ = service.Close() })

	require.NoError(t, service.Migrate(ctx))
	return service
}

// New opens a migrated WAL database with default test settings
func New(t testing.TB) *database.SQLiteService {
	t.Helper()
	return Open(t, Config(t))
}
