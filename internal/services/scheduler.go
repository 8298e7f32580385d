package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"odometer/internal/database"
	"odometer/internal/infrastructure/logging"
	"odometer/internal/repository"
	"odometer/internal/types"

	"github.com/robfig/cron/v3"
)

// Maintainer runs database maintenance
type Maintainer interface {
	Optimize(ctx context.Context) error
	Analyze(ctx context.Context) error
}

// SchedulerConfig selects which background jobs run and how often
type SchedulerConfig struct {
	EnableCleanup     bool
	RetentionDays     int
	RetentionSchedule string
	VacuumInterval    time.Duration
	AnalyzeInterval   time.Duration
}

// SchedulerConfigFromConfig extracts the scheduler settings
func SchedulerConfigFromConfig(config *database.Config) SchedulerConfig {
	return SchedulerConfig{
		EnableCleanup:     config.EnableCleanup,
		RetentionDays:     config.RetentionDays,
		RetentionSchedule: config.RetentionSchedule,
		VacuumInterval:    config.VacuumInterval,
		AnalyzeInterval:   config.AnalyzeInterval,
	}
}

// RetentionScheduler runs retention purges and database maintenance on cron schedules
type RetentionScheduler struct {
	cron       *cron.Cron
	retention  *RetentionManager
	repo       repository.StatsRepository
	maintainer Maintainer
	config     SchedulerConfig
	opts       Options

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	lastRun types.PurgeResult
	lastErr error
}

// NewRetentionScheduler registers the configured jobs. maintainer may be nil,
// in which case only the purge job is scheduled.
func NewRetentionScheduler(
	retention *RetentionManager,
	repo repository.StatsRepository,
	maintainer Maintainer,
	config SchedulerConfig,
	opts Options,
) (*RetentionScheduler, error) {
	opts = opts.withDefaults()
	logger := cronLogger{logger: opts.Logger}

	s := &RetentionScheduler{
		cron: cron.New(
			cron.WithLocation(opts.Location),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		retention:  retention,
		repo:       repo,
		maintainer: maintainer,
		config:     config,
		opts:       opts,
		ctx:        context.Background(),
	}

	if config.EnableCleanup {
		if _, err := s.cron.AddFunc(config.RetentionSchedule, s.purgeJob); err != nil {
			return nil, fmt.Errorf("invalid retention schedule %q: %w", config.RetentionSchedule, err)
		}
	}
	if maintainer != nil && config.VacuumInterval > 0 {
		if _, err := s.cron.AddFunc("@every "+config.VacuumInterval.String(), s.optimizeJob); err != nil {
			return nil, fmt.Errorf("invalid vacuum interval: %w", err)
		}
	}
	if maintainer != nil && config.AnalyzeInterval > 0 {
		if _, err := s.cron.AddFunc("@every "+config.AnalyzeInterval.String(), s.analyzeJob); err != nil {
			return nil, fmt.Errorf("invalid analyze interval: %w", err)
		}
	}

	return s, nil
}

// Start begins running scheduled jobs in the background
func (s *RetentionScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true
	s.cron.Start()
	s.opts.Logger.Info("Retention scheduler started",
		"cleanup", s.config.EnableCleanup,
		"retention_days", s.config.RetentionDays,
		"schedule", s.config.RetentionSchedule,
		"jobs", len(s.cron.Entries()))
}

// Stop cancels running jobs and waits for them to return
func (s *RetentionScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	<-s.cron.Stop().Done()
	s.opts.Logger.Info("Retention scheduler stopped")
}

// RunPurge purges with the configured retention as of the injected clock
func (s *RetentionScheduler) RunPurge(ctx context.Context) (types.PurgeResult, error) {
	result, err := s.retention.PurgeOlderThan(ctx, s.config.RetentionDays, s.opts.Now())

	s.mu.Lock()
	s.lastRun, s.lastErr = result, err
	s.mu.Unlock()
	return result, err
}

// LastPurge returns the outcome of the most recent purge run
func (s *RetentionScheduler) LastPurge() (types.PurgeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}

// Entries returns the number of scheduled jobs
func (s *RetentionScheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *RetentionScheduler) jobContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *RetentionScheduler) purgeJob() {
	// Errors are logged by the retention manager
	_, _ = s.RunPurge(s.jobContext())
}

func (s *RetentionScheduler) optimizeJob() {
	if err := s.repo.WithWriteLock(s.jobContext(), "Optimize", s.maintainer.Optimize); err != nil {
		s.opts.Logger.Warn("Scheduled optimize failed", "error", err)
	}
}

func (s *RetentionScheduler) analyzeJob() {
	if err := s.repo.WithWriteLock(s.jobContext(), "Analyze", s.maintainer.Analyze); err != nil {
		s.opts.Logger.Warn("Scheduled analyze failed", "error", err)
	}
}

// cronLogger adapts logging.Logger to cron.Logger
type cronLogger struct {
	logger logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
