package cli

import (
	"context"
	"fmt"

	"odometer/internal/app"
	"odometer/internal/services"
	"odometer/internal/types"

	"github.com/spf13/cobra"
)

func addRangeFlags(cmd *cobra.Command, r *types.DateRange) {
	cmd.Flags().StringVar(&r.From, "from", "", "first date, YYYY-MM-DD (inclusive)")
	cmd.Flags().StringVar(&r.To, "to", "", "last date, YYYY-MM-DD (inclusive)")
}

func newUsageCommand(opts *rootOptions) *cobra.Command {
	var window string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show per-application usage for a window",
		Long:  "Shows focused time per application for today, weekly (7d), monthly (30d) or lifetime.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := services.ParseWindow(window)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				totals, err := a.Queries().AppUsage(ctx, w)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(opts.stdout, totals)
				}

				tw := newTable(opts.stdout)
				fmt.Fprintln(tw, "APP\tTIME\tSECONDS")
				for _, t := range totals {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", t.AppName, formatSeconds(t.Seconds), formatCount(t.Seconds))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVarP(&window, "window", "w", "today", "today, weekly, monthly or lifetime")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newDailyCommand(opts *rootOptions) *cobra.Command {
	var r types.DateRange
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Show daily rollups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				stats, err := a.Queries().DailyStats(ctx, r)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(opts.stdout, stats)
				}

				tw := newTable(opts.stdout)
				printMeasureHeader(tw, "DATE")
				for _, s := range stats {
					printMeasures(tw, s.Date, s.Measures)
				}
				return tw.Flush()
			})
		},
	}
	addRangeFlags(cmd, &r)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newHourlyCommand(opts *rootOptions) *cobra.Command {
	var date string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "hourly",
		Short: "Show the hourly buckets of one day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				day := date
				if day == "" {
					day = a.Queries().Today()
				}
				stats, err := a.Queries().HourlyStats(ctx, day)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(opts.stdout, stats)
				}

				tw := newTable(opts.stdout)
				printMeasureHeader(tw, "HOUR")
				for _, s := range stats {
					printMeasures(tw, fmt.Sprintf("%02d:00", s.Hour), s.Measures)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to show, YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newKeysCommand(opts *rootOptions) *cobra.Command {
	var r types.DateRange
	var top int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Show the most pressed keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				totals, err := a.Queries().TopKeys(ctx, r, top)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(opts.stdout, totals)
				}

				tw := newTable(opts.stdout)
				fmt.Fprintln(tw, "KEY\tPRESSES")
				for _, t := range totals {
					fmt.Fprintf(tw, "%s\t%s\n", t.KeyCode, formatCount(t.Count))
				}
				return tw.Flush()
			})
		},
	}
	addRangeFlags(cmd, &r)
	cmd.Flags().IntVar(&top, "top", 20, "number of keys to show (0 = all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newSlotsCommand(opts *rootOptions) *cobra.Command {
	var r types.DateRange
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Show per-hour application usage slots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				stats, err := a.Queries().AppUsageStats(ctx, r)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(opts.stdout, stats)
				}

				tw := newTable(opts.stdout)
				fmt.Fprintln(tw, "DATE\tHOUR\tAPP\tTIME")
				for _, s := range stats {
					fmt.Fprintf(tw, "%s\t%02d:00\t%s\t%s\n", s.Date, s.Hour, s.AppName, formatSeconds(s.SecondsUsed))
				}
				return tw.Flush()
			})
		},
	}
	addRangeFlags(cmd, &r)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
