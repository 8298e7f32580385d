package services

import (
	"time"

	"odometer/internal/database"
	"odometer/internal/infrastructure/logging"
	"odometer/internal/metrics"
	"odometer/internal/types"
)

// Options carries the collaborators shared by the engine services
type Options struct {
	// Location is used for calendar-day bucketing and "today"
	Location *time.Location
	// Now is the injected clock
	Now func() time.Time
	// BatchSize bounds the events committed per write transaction
	BatchSize int
	Metrics   *metrics.Metrics
	Logger    logging.Logger
}

const defaultBatchSize = 500

// OptionsFromConfig derives service options from the database configuration
func OptionsFromConfig(config *database.Config, m *metrics.Metrics, logger logging.Logger) (Options, error) {
	opts := Options{Metrics: m, Logger: logger}
	if config == nil {
		return opts.withDefaults(), nil
	}

	loc, err := config.Location()
	if err != nil {
		return Options{}, err
	}
	opts.Location = loc
	opts.BatchSize = config.BatchSize
	return opts.withDefaults(), nil
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.Logger == nil {
		o.Logger = logging.NewDefaultLogger()
	}
	return o
}

// today returns the current calendar day in the configured location
func (o Options) today() string {
	return types.FormatDate(o.Now(), o.Location)
}
