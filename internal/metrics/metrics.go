// Package metrics exposes engine counters and gauges to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "odometer"

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	eventsRecorded  *prometheus.CounterVec
	appSeconds      prometheus.Counter
	writeFailures   *prometheus.CounterVec
	rowsPurged      *prometheus.CounterVec
	purgeDuration   prometheus.Histogram
	lastPurge       prometheus.Gauge
	findings        *prometheus.GaugeVec
	dailyRecomputed prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg when it is non-nil
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		eventsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_recorded_total",
			Help:      "Total number of input events folded into hourly buckets.",
		}, []string{"kind"}),
		appSeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "app_seconds_recorded_total",
			Help:      "Total application focus seconds submitted for recording.",
		}),
		writeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_failures_total",
			Help:      "Total number of failed write transactions.",
		}, []string{"operation"}),
		rowsPurged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_purged_total",
			Help:      "Total number of rows deleted by retention.",
		}, []string{"table"}),
		purgeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "purge_duration_seconds",
			Help:      "Duration of retention purge runs.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		lastPurge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_purge_timestamp_seconds",
			Help:      "Unix timestamp of the last successful purge.",
		}),
		findings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "diagnostics_findings",
			Help:      "Number of findings per check in the last diagnostics report.",
		}, []string{"check"}),
		dailyRecomputed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "daily_recomputed_total",
			Help:      "Total number of daily rollups rewritten from hourly data.",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.eventsRecorded,
			m.appSeconds,
			m.writeFailures,
			m.rowsPurged,
			m.purgeDuration,
			m.lastPurge,
			m.findings,
			m.dailyRecomputed,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

// EventsRecorded counts n committed input events of kind
func (m *Metrics) EventsRecorded(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.eventsRecorded.WithLabelValues(kind).Add(float64(n))
}

// AppSecondsRecorded adds committed focus seconds
func (m *Metrics) AppSecondsRecorded(seconds int64) {
	if m == nil || seconds <= 0 {
		return
	}
	m.appSeconds.Add(float64(seconds))
}

// WriteFailed counts a failed write transaction for operation
func (m *Metrics) WriteFailed(operation string) {
	if m == nil {
		return
	}
	m.writeFailures.WithLabelValues(operation).Inc()
}

// DailyRecomputed counts rewritten daily rollups
func (m *Metrics) DailyRecomputed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.dailyRecomputed.Add(float64(n))
}

// PurgeCompleted records a committed purge and its per-table deletes
func (m *Metrics) PurgeCompleted(deleted map[string]int64, took time.Duration, at time.Time) {
	if m == nil {
		return
	}
	for table, n := range deleted {
		m.rowsPurged.WithLabelValues(table).Add(float64(n))
	}
	m.purgeDuration.Observe(took.Seconds())
	m.lastPurge.Set(float64(at.Unix()))
}

// FindingsReported replaces the per-check finding gauges with counts.
// Checks absent from counts are reset to zero.
func (m *Metrics) FindingsReported(checks []string, counts map[string]int) {
	if m == nil {
		return
	}
	for _, check := range checks {
		m.findings.WithLabelValues(check).Set(float64(counts[check]))
	}
}

// EventsRecordedCounter returns the events counter for kind
func (m *Metrics) EventsRecordedCounter(kind string) prometheus.Counter {
	return m.eventsRecorded.WithLabelValues(kind)
}

// WriteFailuresCounter returns the write failure counter for operation
func (m *Metrics) WriteFailuresCounter(operation string) prometheus.Counter {
	return m.writeFailures.WithLabelValues(operation)
}

// AppSecondsCounter returns the app seconds counter
func (m *Metrics) AppSecondsCounter() prometheus.Counter {
	return m.appSeconds
}

// RowsPurgedCounter returns the purged rows counter for table
func (m *Metrics) RowsPurgedCounter(table string) prometheus.Counter {
	return m.rowsPurged.WithLabelValues(table)
}

// FindingsGauge returns the findings gauge for check
func (m *Metrics) FindingsGauge(check string) prometheus.Gauge {
	return m.findings.WithLabelValues(check)
}
