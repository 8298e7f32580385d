package app

import (
	"context"
	"fmt"
	"time"

	"odometer/internal/database"
	"odometer/internal/infrastructure/errors"
	"odometer/internal/infrastructure/logging"
	"odometer/internal/metrics"
	"odometer/internal/repository"
	"odometer/internal/services"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// connectTimeout bounds opening and pinging the database
	connectTimeout = 10 * time.Second
	// migrateTimeout bounds schema setup at startup
	migrateTimeout = 30 * time.Second
)

// Options configures New
type Options struct {
	Config *database.Config
	Logger logging.Logger
	// Registerer receives the engine metrics; nil keeps them unregistered
	Registerer prometheus.Registerer
	// Now overrides the clock used for "today" and retention
	Now func() time.Time
	// SkipSchema leaves the schema untouched. Only the migrate command sets it.
	SkipSchema bool
}

// App wires the engine components together and owns their lifecycle
type App struct {
	config    *database.Config
	dbService *database.SQLiteService
	repo      *repository.SQLiteRepository
	logger    logging.Logger
	metrics   *metrics.Metrics

	recorder    *services.Recorder
	aggregator  *services.Aggregator
	queries     *services.QueryEngine
	retention   *services.RetentionManager
	diagnostics *services.Diagnostics
	scheduler   *services.RetentionScheduler
}

// New validates the configuration, opens the database, gates startup on the
// schema and builds every service. Schema failures are fatal.
func New(ctx context.Context, opts Options) (*App, error) {
	config := opts.Config
	if config == nil {
		config = database.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		zl, err := logging.NewLogger(config.LogLevel, config.Environment)
		if err != nil {
			return nil, err
		}
		logger = zl
	}

	dbService := database.NewSQLiteService(logger)
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := dbService.Connect(connectCtx, config); err != nil {
		return nil, err
	}

	a := &App{config: config, dbService: dbService, logger: logger}
	if !opts.SkipSchema {
		if err := a.initializeSchema(ctx); err != nil {
			a.closeQuietly()
			return nil, err
		}
	}

	if err := a.initializeServices(opts); err != nil {
		a.closeQuietly()
		return nil, err
	}

	logger.Info("Engine initialized",
		"environment", config.Environment,
		"path", config.Path,
		"driver", config.Driver,
		"retention_days", config.RetentionDays)
	return a, nil
}

// initializeSchema applies pending migrations, or with AutoMigrate disabled
// refuses to start on an outdated schema
func (a *App) initializeSchema(ctx context.Context) error {
	migrateCtx, cancel := context.WithTimeout(ctx, migrateTimeout)
	defer cancel()

	if a.config.AutoMigrate {
		return a.dbService.Migrate(migrateCtx)
	}

	schema := a.dbService.Schema()
	current, err := schema.CurrentVersion(migrateCtx)
	if err != nil {
		return errors.NewSchemaError("startup", err, nil)
	}
	latest, err := schema.LatestVersion()
	if err != nil {
		return errors.NewSchemaError("startup", err, nil)
	}
	if current < latest {
		return errors.NewSchemaError("startup",
			fmt.Errorf("schema version %d is behind %d and auto-migrate is disabled", current, latest),
			map[string]string{
				"current": fmt.Sprint(current),
				"latest":  fmt.Sprint(latest),
			})
	}
	return nil
}

func (a *App) initializeServices(opts Options) error {
	repo, err := repository.NewSQLiteRepository(a.dbService, a.logger)
	if err != nil {
		return err
	}
	a.repo = repo

	m, err := metrics.NewMetrics(opts.Registerer)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	a.metrics = m

	svcOpts, err := services.OptionsFromConfig(a.config, m, a.logger)
	if err != nil {
		return err
	}
	if opts.Now != nil {
		svcOpts.Now = opts.Now
	}

	a.recorder = services.NewRecorder(repo, svcOpts)
	a.aggregator = services.NewAggregator(repo, svcOpts)
	a.queries = services.NewQueryEngine(repo, svcOpts)
	a.retention = services.NewRetentionManager(repo, svcOpts)
	a.diagnostics = services.NewDiagnostics(repo, a.dbService.Schema(), svcOpts)

	scheduler, err := services.NewRetentionScheduler(a.retention, repo, a.dbService,
		services.SchedulerConfigFromConfig(a.config), svcOpts)
	if err != nil {
		return err
	}
	a.scheduler = scheduler
	return nil
}

// Start runs the background retention and maintenance jobs
func (a *App) Start() {
	a.scheduler.Start()
}

// Shutdown stops background jobs and closes the database, giving up when ctx is done
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Starting engine shutdown")
	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	if err := a.closeDatabaseConnection(ctx); err != nil {
		a.logger.Error("Error during database closure", "error", err)
		return err
	}

	if zl, ok := a.logger.(*logging.ZapLogger); ok {
		_ = zl.Sync()
	}
	return nil
}

// closeDatabaseConnection closes the database, honouring ctx
func (a *App) closeDatabaseConnection(ctx context.Context) error {
	if a.dbService == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- a.dbService.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return errors.NewRepositoryErrorWithContext("shutdown",
				err,
				errors.ClassifyError(err),
				map[string]string{"operation": "close_connection"})
		}
		return nil
	case <-ctx.Done():
		return errors.NewRepositoryError("shutdown", ctx.Err(), errors.ErrCodeTimeout)
	}
}

func (a *App) closeQuietly() {
	if err := a.dbService.Close(); err != nil {
		a.logger.Warn("Failed to close database after startup failure", "error", err)
	}
}

// Optimize runs database maintenance while holding the write lock
func (a *App) Optimize(ctx context.Context) error {
	return a.repo.WithWriteLock(ctx, "Optimize", a.dbService.Optimize)
}

// Config returns the active configuration
func (a *App) Config() *database.Config { return a.config }

// Database returns the database service
func (a *App) Database() database.Service { return a.dbService }

// Schema returns the schema manager
func (a *App) Schema() database.SchemaManager { return a.dbService.Schema() }

// Recorder returns the event recorder
func (a *App) Recorder() *services.Recorder { return a.recorder }

// Aggregator returns the daily rollup aggregator
func (a *App) Aggregator() *services.Aggregator { return a.aggregator }

// Queries returns the query engine
func (a *App) Queries() *services.QueryEngine { return a.queries }

// Retention returns the retention manager
func (a *App) Retention() *services.RetentionManager { return a.retention }

// Diagnostics returns the diagnostics runner
func (a *App) Diagnostics() *services.Diagnostics { return a.diagnostics }

// Scheduler returns the retention scheduler
func (a *App) Scheduler() *services.RetentionScheduler { return a.scheduler }

// GetLogger returns the application's structured logger
func (a *App) GetLogger() logging.Logger { return a.logger }
