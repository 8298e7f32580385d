package cli

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"odometer/internal/app"
	"odometer/internal/types"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newRebuildCommand(opts *rootOptions) *cobra.Command {
	var r types.DateRange

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Recompute daily rollups from hourly data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				n, err := a.Aggregator().RecomputeRange(ctx, r)
				if err != nil {
					return err
				}
				fmt.Fprintf(opts.stdout, "recomputed %s daily rollups\n", formatCount(int64(n)))
				return nil
			})
		},
	}
	addRangeFlags(cmd, &r)
	return cmd
}

func newPurgeCommand(opts *rootOptions) *cobra.Command {
	var days int
	var asOf string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete data older than the retention horizon",
		Long: `Deletes every row dated before (as-of date - days). The cutoff day itself is
kept. Zero or negative days keep everything. All tables are purged in one
transaction.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				retention := a.Config().RetentionDays
				if cmd.Flags().Changed("days") {
					retention = days
				}

				when := opts.now()
				if asOf != "" {
					loc, err := a.Config().Location()
					if err != nil {
						return err
					}
					when, err = types.ParseDate(asOf, loc)
					if err != nil {
						return fmt.Errorf("invalid --as-of %q: %w", asOf, err)
					}
				}

				result, err := a.Retention().PurgeOlderThan(ctx, retention, when)
				if err != nil {
					return err
				}
				if result.Skipped {
					fmt.Fprintf(opts.stdout, "retention is %d days: keeping everything\n", retention)
					return nil
				}

				tw := newTable(opts.stdout)
				fmt.Fprintf(tw, "cutoff\t%s\n", result.Cutoff)
				for _, table := range slices.Sorted(maps.Keys(result.Deleted)) {
					fmt.Fprintf(tw, "%s\t%s\n", table, formatCount(result.Deleted[table]))
				}
				fmt.Fprintf(tw, "total\t%s\n", formatCount(result.TotalDeleted()))
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "retention in days (default from config)")
	cmd.Flags().StringVar(&asOf, "as-of", "", "reference date, YYYY-MM-DD (default today)")
	return cmd
}

// errFindings makes diagnose exit non-zero when error findings exist
var errFindings = errors.New("diagnostics reported errors")

func newDiagnoseCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Run read-only consistency checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				report, err := a.Diagnostics().Report(ctx, opts.now())
				if err != nil {
					return err
				}

				if asJSON {
					if err := writeJSON(opts.stdout, report); err != nil {
						return err
					}
				} else {
					printReport(opts, report)
				}

				if report.HasErrors() {
					return errFindings
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func printReport(opts *rootOptions, report *types.DiagnosticsReport) {
	w := opts.stdout
	fmt.Fprintf(w, "as of %s, schema v%d, journal mode %s\n\n", report.AsOf, report.SchemaVersion, report.JournalMode)

	tw := newTable(w)
	fmt.Fprintln(tw, "TABLE\tROWS\tFIRST\tLAST")
	for _, r := range report.Ranges {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Table, formatCount(report.RowCounts[r.Table]), orDash(r.Min), orDash(r.Max))
	}
	_ = tw.Flush()

	if len(report.Findings) == 0 {
		fmt.Fprintln(w, "\nno findings")
		return
	}

	fmt.Fprintf(w, "\n%s findings\n", humanize.Comma(int64(len(report.Findings))))
	tw = newTable(w)
	fmt.Fprintln(tw, "SEVERITY\tCHECK\tTABLE\tDATE\tDETAIL")
	for _, f := range report.Findings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", f.Severity, f.Check, orDash(f.Table), orDash(f.Date), f.Detail)
	}
	_ = tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newOptimizeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "optimize",
		Short: "Analyze, checkpoint and vacuum the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				if err := a.Optimize(ctx); err != nil {
					return err
				}
				stats := a.Database().GetStats()
				fmt.Fprintf(opts.stdout, "optimized (%d open connections)\n", stats.OpenConnections)
				return nil
			})
		},
	}
}
