package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	repoerrors "odometer/internal/infrastructure/errors"
	"odometer/internal/infrastructure/logging"
	"odometer/internal/repository"
	"odometer/internal/types"
)

// Recorder folds raw input events and application focus time into hourly
// buckets. Every write recomputes the affected daily rollups in the same
// transaction. Failures are returned to the caller and never retried here.
type Recorder struct {
	repo repository.StatsRepository
	opts Options
}

// NewRecorder creates a recorder over repo
func NewRecorder(repo repository.StatsRepository, opts Options) *Recorder {
	return &Recorder{repo: repo, opts: opts.withDefaults()}
}

// validateEvent checks an event before anything is written
func validateEvent(op string, ev types.InputEvent) error {
	invalid := func(field, value, reason string) error {
		return repoerrors.NewWriteError(op, repoerrors.HandleValidationError(op, field, value, reason), nil)
	}

	if ev.Timestamp.IsZero() {
		return invalid("timestamp", "", "timestamp is required")
	}
	if !ev.Kind.Valid() {
		return invalid("kind", string(ev.Kind), "unknown event kind")
	}
	if ev.Kind == types.EventKey && strings.TrimSpace(ev.KeyCode) == "" {
		return invalid("key", ev.KeyCode, "key events need a key code")
	}
	if ev.Distance < 0 || math.IsNaN(ev.Distance) || math.IsInf(ev.Distance, 0) {
		return invalid("distance", strconv.FormatFloat(ev.Distance, 'g', -1, 64), "distance must be finite and non-negative")
	}
	return nil
}

// RecordInputEvent records a single event in its own write transaction
func (r *Recorder) RecordInputEvent(ctx context.Context, ev types.InputEvent) error {
	const op = "RecordInputEvent"
	if err := validateEvent(op, ev); err != nil {
		return err
	}

	delta, err := ev.Delta()
	if err != nil {
		return repoerrors.NewWriteError(op, err, nil)
	}
	bucket := types.BucketOf(ev.Timestamp, r.opts.Location)

	err = r.repo.WithWriteTx(ctx, op, func(ctx context.Context, tx *repository.WriteTx) error {
		if err := tx.AddHourly(ctx, bucket.Date, bucket.Hour, delta); err != nil {
			return err
		}
		if ev.Kind == types.EventKey {
			if err := tx.AddKeyCount(ctx, bucket.Date, bucket.Hour, ev.KeyCode, 1); err != nil {
				return err
			}
		}
		_, err := tx.RecomputeDaily(ctx, bucket.Date)
		return err
	})
	if err != nil {
		r.writeFailed(op, err, map[string]interface{}{"kind": string(ev.Kind), "date": bucket.Date})
		return err
	}

	r.opts.Metrics.EventsRecorded(string(ev.Kind), 1)
	r.opts.Metrics.DailyRecomputed(1)
	return nil
}

type keyBucket struct {
	types.Bucket
	KeyCode string
}

// RecordInputEvents records events in transactions of at most BatchSize
// events. All events are validated first; an invalid event rejects the whole
// call before anything is written. It returns how many events were committed,
// which on failure is a whole number of batches.
func (r *Recorder) RecordInputEvents(ctx context.Context, events []types.InputEvent) (int, error) {
	const op = "RecordInputEvents"
	for i, ev := range events {
		if err := validateEvent(op, ev); err != nil {
			var repoErr *repoerrors.RepositoryError
			if errors.As(err, &repoErr) {
				repoErr.WithContext("index", strconv.Itoa(i))
			}
			return 0, err
		}
	}

	committed := 0
	for batch := range slices.Chunk(events, r.opts.BatchSize) {
		if err := r.recordBatch(ctx, op, batch); err != nil {
			return committed, err
		}
		committed += len(batch)
	}
	return committed, nil
}

// recordBatch folds a batch in memory and writes each touched bucket once
func (r *Recorder) recordBatch(ctx context.Context, op string, batch []types.InputEvent) error {
	hourly := make(map[types.Bucket]types.Measures)
	keys := make(map[keyBucket]int64)
	kinds := make(map[types.EventKind]int)

	for _, ev := range batch {
		delta, err := ev.Delta()
		if err != nil {
			return repoerrors.NewWriteError(op, err, nil)
		}
		bucket := types.BucketOf(ev.Timestamp, r.opts.Location)
		hourly[bucket] = hourly[bucket].Add(delta)
		if ev.Kind == types.EventKey {
			keys[keyBucket{Bucket: bucket, KeyCode: ev.KeyCode}]++
		}
		kinds[ev.Kind]++
	}

	buckets := slices.SortedFunc(maps.Keys(hourly), compareBuckets)
	keyBuckets := slices.SortedFunc(maps.Keys(keys), func(a, b keyBucket) int {
		return cmp.Or(compareBuckets(a.Bucket, b.Bucket), cmp.Compare(a.KeyCode, b.KeyCode))
	})
	dates := make([]string, 0, len(buckets))
	for _, b := range buckets {
		if len(dates) == 0 || dates[len(dates)-1] != b.Date {
			dates = append(dates, b.Date)
		}
	}

	err := r.repo.WithWriteTx(ctx, op, func(ctx context.Context, tx *repository.WriteTx) error {
		for _, b := range buckets {
			if err := tx.AddHourly(ctx, b.Date, b.Hour, hourly[b]); err != nil {
				return err
			}
		}
		for _, kb := range keyBuckets {
			if err := tx.AddKeyCount(ctx, kb.Date, kb.Hour, kb.KeyCode, keys[kb]); err != nil {
				return err
			}
		}
		for _, date := range dates {
			if _, err := tx.RecomputeDaily(ctx, date); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.writeFailed(op, err, map[string]interface{}{"events": len(batch), "buckets": len(buckets)})
		return err
	}

	for kind, n := range kinds {
		r.opts.Metrics.EventsRecorded(string(kind), n)
	}
	r.opts.Metrics.DailyRecomputed(len(dates))
	return nil
}

func compareBuckets(a, b types.Bucket) int {
	return cmp.Or(cmp.Compare(a.Date, b.Date), cmp.Compare(a.Hour, b.Hour))
}

// RecordAppUsage adds seconds of focus time for appName to the hour slot of ts
func (r *Recorder) RecordAppUsage(ctx context.Context, ts time.Time, appName string, seconds int64) error {
	return r.RecordAppUsageBatch(ctx, ts, map[string]int64{appName: seconds})
}

// RecordAppUsageBatch adds focus seconds for several applications to the
// hour slot of ts in one transaction. Each slot saturates at one hour.
func (r *Recorder) RecordAppUsageBatch(ctx context.Context, ts time.Time, seconds map[string]int64) error {
	const op = "RecordAppUsage"
	if ts.IsZero() {
		return repoerrors.NewWriteError(op, repoerrors.HandleValidationError(op, "timestamp", "", "timestamp is required"), nil)
	}
	for app, s := range seconds {
		if strings.TrimSpace(app) == "" {
			return repoerrors.NewWriteError(op, repoerrors.HandleValidationError(op, "app_name", app, "app name cannot be empty"), nil)
		}
		if s < 0 {
			return repoerrors.NewWriteError(op, repoerrors.HandleValidationError(op, "seconds", fmt.Sprint(s), "seconds cannot be negative"), nil)
		}
	}

	bucket := types.BucketOf(ts, r.opts.Location)
	apps := slices.Sorted(maps.Keys(seconds))
	var total int64

	err := r.repo.WithWriteTx(ctx, op, func(ctx context.Context, tx *repository.WriteTx) error {
		for _, app := range apps {
			if seconds[app] == 0 {
				continue
			}
			if err := tx.AddAppSeconds(ctx, bucket.Date, bucket.Hour, app, seconds[app]); err != nil {
				return err
			}
			total += seconds[app]
		}
		return nil
	})
	if err != nil {
		r.writeFailed(op, err, map[string]interface{}{"date": bucket.Date, "hour": bucket.Hour, "apps": len(apps)})
		return err
	}

	r.opts.Metrics.AppSecondsRecorded(total)
	return nil
}

func (r *Recorder) writeFailed(op string, err error, fields map[string]interface{}) {
	r.opts.Metrics.WriteFailed(op)
	logging.LogError(r.opts.Logger, err, op, fields)
}
