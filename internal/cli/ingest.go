package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"odometer/internal/app"
	"odometer/internal/types"

	"github.com/spf13/cobra"
)

// ingestRecord is one JSON line. Lines with "app" set are application focus
// time; every other line is an input event.
type ingestRecord struct {
	types.InputEvent
	App     string `json:"app,omitempty"`
	Seconds int64  `json:"seconds,omitempty"`
}

type ingestSummary struct {
	events     int
	appRecords int
	appSeconds int64
}

type appSlot struct {
	bucket types.Bucket
	app    string
}

func newIngestCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Record JSON-lines telemetry from stdin",
		Long: `Reads one JSON object per line from stdin and records it.

Input events:     {"ts":"2025-08-09T14:03:00Z","kind":"key","key":"KeyA"}
                  {"ts":"2025-08-09T14:03:01Z","kind":"mouse_move","distance":0.42}
Application time: {"ts":"2025-08-09T14:00:00Z","app":"editor","seconds":60}

Events are committed in batches; a malformed line stops the import after the
batches before it have been committed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				summary, err := ingest(ctx, a, opts)
				fmt.Fprintf(opts.stdout, "recorded %s events and %s app records (%s)\n",
					formatCount(int64(summary.events)),
					formatCount(int64(summary.appRecords)),
					formatSeconds(summary.appSeconds))
				return err
			})
		},
	}
}

func ingest(ctx context.Context, a *app.App, opts *rootOptions) (ingestSummary, error) {
	var summary ingestSummary
	batchSize := a.Config().BatchSize
	loc, err := a.Config().Location()
	if err != nil {
		return summary, err
	}
	// seconds counted per slot in this run; a slot stores at most MaxSecondsPerSlot
	slots := make(map[appSlot]int64)
	pending := make([]types.InputEvent, 0, batchSize)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		n, err := a.Recorder().RecordInputEvents(ctx, pending)
		summary.events += n
		pending = pending[:0]
		return err
	}

	scanner := bufio.NewScanner(opts.stdin)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var rec ingestRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			err = flushThen(flush, err)
			return summary, fmt.Errorf("line %d: %w", line, err)
		}

		if rec.App != "" {
			if err := a.Recorder().RecordAppUsage(ctx, rec.Timestamp, rec.App, rec.Seconds); err != nil {
				err = flushThen(flush, err)
				return summary, fmt.Errorf("line %d: %w", line, err)
			}
			summary.appRecords++
			slot := appSlot{bucket: types.BucketOf(rec.Timestamp, loc), app: rec.App}
			added := min(rec.Seconds, types.MaxSecondsPerSlot-slots[slot])
			slots[slot] += added
			summary.appSeconds += added
			continue
		}

		pending = append(pending, rec.InputEvent)
		if len(pending) >= batchSize {
			if err := flush(); err != nil {
				return summary, fmt.Errorf("line %d: %w", line, err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		err = flushThen(flush, err)
		return summary, err
	}
	err = flush()
	return summary, err
}

// flushThen commits pending events and returns cause, or the flush error if it failed
func flushThen(flush func() error, cause error) error {
	if err := flush(); err != nil {
		return err
	}
	return cause
}
