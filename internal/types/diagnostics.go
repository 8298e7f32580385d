package types

import "time"

// Severity grades a finding
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Finding checks
const (
	CheckDuplicateDate    = "duplicate_date"
	CheckFutureDate       = "future_date"
	CheckDateGap          = "date_gap"
	CheckSumMismatch      = "sum_mismatch"
	CheckDailyWithoutHour = "daily_without_hourly"
	CheckHourlyNoDaily    = "hourly_without_daily"
	CheckIntegrity        = "integrity"
)

// Finding is a structured anomaly report. It is data, not an error.
type Finding struct {
	Check    string   `json:"check"`
	Severity Severity `json:"severity"`
	Table    string   `json:"table,omitempty"`
	Date     string   `json:"date,omitempty"`
	Detail   string   `json:"detail"`
}

// TableRange is the min/max date present in a table
type TableRange struct {
	Table string `json:"table"`
	Min   string `json:"min,omitempty"`
	Max   string `json:"max,omitempty"`
}

// DiagnosticsReport aggregates every diagnostics check
type DiagnosticsReport struct {
	GeneratedAt   time.Time        `json:"generatedAt"`
	AsOf          string           `json:"asOf"`
	SchemaVersion int64            `json:"schemaVersion"`
	JournalMode   string           `json:"journalMode"`
	RowCounts     map[string]int64 `json:"rowCounts"`
	Ranges        []TableRange     `json:"ranges"`
	Findings      []Finding        `json:"findings"`
}

// HasErrors reports whether any finding has error severity
func (r *DiagnosticsReport) HasErrors() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}
