package services

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"odometer/internal/repository"
	"odometer/internal/types"

	"golang.org/x/sync/errgroup"
)

// sumEpsilon is the tolerance for comparing summed distances
const sumEpsilon = 1e-6

// Checks lists every check a report can produce, in report order
var Checks = []string{
	types.CheckIntegrity,
	types.CheckDuplicateDate,
	types.CheckFutureDate,
	types.CheckSumMismatch,
	types.CheckHourlyNoDaily,
	types.CheckDailyWithoutHour,
	types.CheckDateGap,
}

// VersionReader reports the applied schema version
type VersionReader interface {
	CurrentVersion(ctx context.Context) (int64, error)
}

// Diagnostics runs read-only consistency checks. Anomalies are returned as
// findings; errors are reserved for failed reads.
type Diagnostics struct {
	repo   repository.StatsRepository
	schema VersionReader
	opts   Options
}

// NewDiagnostics creates a diagnostics runner. schema may be nil.
func NewDiagnostics(repo repository.StatsRepository, schema VersionReader, opts Options) *Diagnostics {
	return &Diagnostics{repo: repo, schema: schema, opts: opts.withDefaults()}
}

// FindDuplicateDates reports primary keys stored more than once in any stat table
func (d *Diagnostics) FindDuplicateDates(ctx context.Context) ([]types.Finding, error) {
	findings := []types.Finding{}
	for _, table := range repository.StatTables {
		rows, err := d.repo.FindDuplicateKeys(ctx, table)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			detail := fmt.Sprintf("%d rows share this key", row.Count)
			if row.Key != "" {
				detail = fmt.Sprintf("%d rows share key %s", row.Count, row.Key)
			}
			findings = append(findings, types.Finding{
				Check:    types.CheckDuplicateDate,
				Severity: types.SeverityError,
				Table:    table,
				Date:     row.Date,
				Detail:   detail,
			})
		}
	}
	return findings, nil
}

// FindFutureDates reports rows dated after the calendar day of asOf
func (d *Diagnostics) FindFutureDates(ctx context.Context, asOf time.Time) ([]types.Finding, error) {
	today := types.FormatDate(asOf, d.opts.Location)

	findings := []types.Finding{}
	for _, table := range repository.StatTables {
		rows, err := d.repo.FindDatesAfter(ctx, table, today)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			findings = append(findings, types.Finding{
				Check:    types.CheckFutureDate,
				Severity: types.SeverityWarning,
				Table:    table,
				Date:     row.Date,
				Detail:   fmt.Sprintf("%d rows dated after %s", row.Count, today),
			})
		}
	}
	return findings, nil
}

// DateRange returns the min and max date of every stat table
func (d *Diagnostics) DateRange(ctx context.Context) ([]types.TableRange, error) {
	ranges := make([]types.TableRange, 0, len(repository.StatTables))
	for _, table := range repository.StatTables {
		r, err := d.repo.GetDateRange(ctx, table)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	return ranges, nil
}

// RowCounts returns the number of rows of every stat table
func (d *Diagnostics) RowCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(repository.StatTables))
	for _, table := range repository.StatTables {
		n, err := d.repo.CountRows(ctx, table)
		if err != nil {
			return nil, err
		}
		counts[table] = n
	}
	return counts, nil
}

// CheckConsistency compares daily rollups with their hourly sums and reports
// dates present on one side only
func (d *Diagnostics) CheckConsistency(ctx context.Context) ([]types.Finding, error) {
	findings := []types.Finding{}

	rows, err := d.repo.CompareDailyWithHourly(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if diff := measureDiff(row.Daily, row.Hourly); diff != "" {
			findings = append(findings, types.Finding{
				Check:    types.CheckSumMismatch,
				Severity: types.SeverityError,
				Table:    repository.TableDailyStats,
				Date:     row.Date,
				Detail:   "daily differs from hourly sum: " + diff,
			})
		}
	}

	missing, err := d.repo.FindHourlyWithoutDaily(ctx)
	if err != nil {
		return nil, err
	}
	for _, date := range missing {
		findings = append(findings, types.Finding{
			Check:    types.CheckHourlyNoDaily,
			Severity: types.SeverityWarning,
			Table:    repository.TableHourlyStats,
			Date:     date,
			Detail:   "hourly data has no daily rollup",
		})
	}

	orphans, err := d.repo.FindDailyWithoutHourly(ctx)
	if err != nil {
		return nil, err
	}
	for _, date := range orphans {
		findings = append(findings, types.Finding{
			Check:    types.CheckDailyWithoutHour,
			Severity: types.SeverityInfo,
			Table:    repository.TableDailyStats,
			Date:     date,
			Detail:   "daily rollup has no hourly data",
		})
	}

	return findings, nil
}

// measureDiff describes the measures that differ; empty when they match
func measureDiff(daily, hourly types.Measures) string {
	var diffs []string
	ints := []struct {
		name string
		a, b int64
	}{
		{"key_count", daily.KeyCount, hourly.KeyCount},
		{"left_clicks", daily.LeftClicks, hourly.LeftClicks},
		{"right_clicks", daily.RightClicks, hourly.RightClicks},
		{"middle_clicks", daily.MiddleClicks, hourly.MiddleClicks},
	}
	for _, m := range ints {
		if m.a != m.b {
			diffs = append(diffs, fmt.Sprintf("%s %d != %d", m.name, m.a, m.b))
		}
	}
	floats := []struct {
		name string
		a, b float64
	}{
		{"mouse_distance", daily.MouseDistance, hourly.MouseDistance},
		{"scroll_distance", daily.ScrollDistance, hourly.ScrollDistance},
	}
	for _, m := range floats {
		if math.Abs(m.a-m.b) > sumEpsilon {
			diffs = append(diffs, fmt.Sprintf("%s %g != %g", m.name, m.a, m.b))
		}
	}
	return strings.Join(diffs, ", ")
}

// FindGaps reports runs of missing dates between the first and last daily rollup
func (d *Diagnostics) FindGaps(ctx context.Context) ([]types.Finding, error) {
	dates, err := d.repo.GetDistinctDates(ctx, repository.TableDailyStats)
	if err != nil {
		return nil, err
	}

	findings := []types.Finding{}
	for i := 1; i < len(dates); i++ {
		prev, err := time.Parse(types.DateLayout, dates[i-1])
		if err != nil {
			continue
		}
		next, err := time.Parse(types.DateLayout, dates[i])
		if err != nil {
			continue
		}

		missing := int(next.Sub(prev).Hours()/24) - 1
		if missing <= 0 {
			continue
		}
		first := prev.AddDate(0, 0, 1).Format(types.DateLayout)
		last := next.AddDate(0, 0, -1).Format(types.DateLayout)
		detail := fmt.Sprintf("no data on %s", first)
		if missing > 1 {
			detail = fmt.Sprintf("no data for %d days, %s to %s", missing, first, last)
		}
		findings = append(findings, types.Finding{
			Check:    types.CheckDateGap,
			Severity: types.SeverityInfo,
			Table:    repository.TableDailyStats,
			Date:     first,
			Detail:   detail,
		})
	}
	return findings, nil
}

// IntegrityCheck runs SQLite's integrity check; anything but "ok" is an error finding
func (d *Diagnostics) IntegrityCheck(ctx context.Context) ([]types.Finding, error) {
	messages, err := d.repo.IntegrityCheck(ctx)
	if err != nil {
		return nil, err
	}

	findings := []types.Finding{}
	if len(messages) == 1 && messages[0] == "ok" {
		return findings, nil
	}
	for _, msg := range messages {
		findings = append(findings, types.Finding{
			Check:    types.CheckIntegrity,
			Severity: types.SeverityError,
			Detail:   msg,
		})
	}
	return findings, nil
}

// JournalMode returns the active SQLite journal mode
func (d *Diagnostics) JournalMode(ctx context.Context) (string, error) {
	return d.repo.JournalMode(ctx)
}

// Report runs every check concurrently as of asOf
func (d *Diagnostics) Report(ctx context.Context, asOf time.Time) (*types.DiagnosticsReport, error) {
	report := &types.DiagnosticsReport{
		GeneratedAt: d.opts.Now(),
		AsOf:        types.FormatDate(asOf, d.opts.Location),
	}

	var mu sync.Mutex
	collect := func(fn func(ctx context.Context) ([]types.Finding, error)) func() error {
		return func() error {
			findings, err := fn(ctx)
			if err != nil {
				return err
			}
			mu.Lock()
			report.Findings = append(report.Findings, findings...)
			mu.Unlock()
			return nil
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(collect(d.IntegrityCheck))
	g.Go(collect(d.FindDuplicateDates))
	g.Go(collect(func(ctx context.Context) ([]types.Finding, error) { return d.FindFutureDates(ctx, asOf) }))
	g.Go(collect(d.CheckConsistency))
	g.Go(collect(d.FindGaps))
	g.Go(func() error {
		counts, err := d.RowCounts(ctx)
		report.RowCounts = counts
		return err
	})
	g.Go(func() error {
		ranges, err := d.DateRange(ctx)
		report.Ranges = ranges
		return err
	})
	g.Go(func() error {
		mode, err := d.JournalMode(ctx)
		report.JournalMode = mode
		return err
	})
	if d.schema != nil {
		g.Go(func() error {
			version, err := d.schema.CurrentVersion(ctx)
			report.SchemaVersion = version
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sortFindings(report.Findings)
	if report.Findings == nil {
		report.Findings = []types.Finding{}
	}

	counts := make(map[string]int, len(Checks))
	for _, f := range report.Findings {
		counts[f.Check]++
	}
	d.opts.Metrics.FindingsReported(Checks, counts)
	d.opts.Logger.Info("Diagnostics report generated",
		"as_of", report.AsOf,
		"findings", len(report.Findings),
		"has_errors", report.HasErrors())

	return report, nil
}

// sortFindings orders findings by check, then table, then date
func sortFindings(findings []types.Finding) {
	rank := func(check string) int {
		if i := slices.Index(Checks, check); i >= 0 {
			return i
		}
		return len(Checks)
	}
	slices.SortStableFunc(findings, func(a, b types.Finding) int {
		return cmp.Or(
			cmp.Compare(rank(a.Check), rank(b.Check)),
			cmp.Compare(tableRank(a.Table), tableRank(b.Table)),
			cmp.Compare(a.Date, b.Date),
		)
	})
}

func tableRank(table string) int {
	if i := slices.Index(repository.StatTables, table); i >= 0 {
		return i
	}
	return -1
}
