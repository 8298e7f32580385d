// Package cli implements the odometer command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"odometer/internal/app"
	"odometer/internal/database"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags shared by every command
type rootOptions struct {
	configFile string
	dbPath     string
	env        string
	timezone   string
	driver     string
	logLevel   string

	stdin  io.Reader
	stdout io.Writer
	// now is overridden by tests
	now func() time.Time
}

// NewRootCommand builds the odometer command tree
func NewRootCommand(stdin io.Reader, stdout io.Writer) *cobra.Command {
	return newRootCommand(stdin, stdout, time.Now)
}

func newRootCommand(stdin io.Reader, stdout io.Writer, now func() time.Time) *cobra.Command {
	opts := &rootOptions{stdin: stdin, stdout: stdout, now: now}

	root := &cobra.Command{
		Use:   "odometer",
		Short: "Local usage-telemetry aggregation and retention engine",
		Long: `odometer stores keyboard, mouse and application usage telemetry in a local
SQLite database. It folds raw events into hourly buckets, keeps daily rollups
in sync, answers time-windowed usage queries and purges data past the
retention horizon.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "YAML configuration file")
	flags.StringVar(&opts.dbPath, "db", "", "database file path (overrides config)")
	flags.StringVar(&opts.env, "env", "production", "environment preset: development, test or production")
	flags.StringVar(&opts.timezone, "tz", "", "IANA timezone used for calendar days (overrides config)")
	flags.StringVar(&opts.driver, "driver", "", "SQLite driver: sqlite3 (cgo) or sqlite (pure Go)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newMigrateCommand(opts),
		newVersionCommand(opts),
		newUsageCommand(opts),
		newDailyCommand(opts),
		newHourlyCommand(opts),
		newKeysCommand(opts),
		newSlotsCommand(opts),
		newIngestCommand(opts),
		newRebuildCommand(opts),
		newPurgeCommand(opts),
		newDiagnoseCommand(opts),
		newOptimizeCommand(opts),
		newRunCommand(opts),
	)
	return root
}

// Execute runs the CLI against the process streams
func Execute() int {
	if err := NewRootCommand(os.Stdin, os.Stdout).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// loadConfig resolves the configuration: environment preset, then the YAML
// file, then ODOMETER_* environment variables, then flags
func (o *rootOptions) loadConfig() (*database.Config, error) {
	config := database.ConfigForEnvironment(o.env)
	if o.configFile != "" {
		if err := config.LoadFile(o.configFile); err != nil {
			return nil, err
		}
	}
	if err := config.LoadFromEnvironment(); err != nil {
		return nil, err
	}

	if o.dbPath != "" {
		config.Path = o.dbPath
	}
	if o.timezone != "" {
		config.Timezone = o.timezone
	}
	if o.driver != "" {
		config.Driver = o.driver
	}
	if o.logLevel != "" {
		config.LogLevel = o.logLevel
	}
	// In-memory databases cannot use WAL
	if config.IsInMemory() && config.IsWAL() {
		config.JournalMode = "MEMORY"
	}
	return config, config.Validate()
}

// openApp builds the engine for one command invocation
func (o *rootOptions) openApp(ctx context.Context, reg prometheus.Registerer, skipSchema bool) (*app.App, error) {
	config, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, app.Options{
		Config:     config,
		Registerer: reg,
		Now:        o.now,
		SkipSchema: skipSchema,
	})
}

// withApp opens the engine, runs fn and shuts the engine down
func (o *rootOptions) withApp(cmd *cobra.Command, skipSchema bool, fn func(ctx context.Context, a *app.App) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := o.openApp(ctx, nil, skipSchema)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if shutdownErr := a.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
			err = shutdownErr
		}
	}()

	return fn(ctx, a)
}
