package repository

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	repoerrors "odometer/internal/infrastructure/errors"
	"odometer/internal/types"
)

const upsertHourlyQuery = `
INSERT INTO hourly_stats (date, hour, key_count, mouse_distance, left_clicks, right_clicks, middle_clicks, scroll_distance)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(date, hour) DO UPDATE SET
    key_count = COALESCE(key_count, 0) + excluded.key_count,
    mouse_distance = COALESCE(mouse_distance, 0) + excluded.mouse_distance,
    left_clicks = COALESCE(left_clicks, 0) + excluded.left_clicks,
    right_clicks = COALESCE(right_clicks, 0) + excluded.right_clicks,
    middle_clicks = COALESCE(middle_clicks, 0) + excluded.middle_clicks,
    scroll_distance = COALESCE(scroll_distance, 0) + excluded.scroll_distance`

const upsertKeyStatQuery = `
INSERT INTO key_stats (date, hour, key_code, count)
VALUES (?, ?, ?, ?)
ON CONFLICT(date, hour, key_code) DO UPDATE SET
    count = COALESCE(count, 0) + excluded.count`

func validateBucket(op string, date string, hour int) error {
	if _, err := types.AddDays(date, 0); err != nil {
		return repoerrors.HandleValidationError(op, "date", date, "date must be YYYY-MM-DD")
	}
	if hour < 0 || hour > 23 {
		return repoerrors.HandleValidationError(op, "hour", strconv.Itoa(hour), "hour must be between 0 and 23")
	}
	return nil
}

// AddHourly adds delta to the (date, hour) bucket, creating it at zero when absent
func (w *WriteTx) AddHourly(ctx context.Context, date string, hour int, delta types.Measures) error {
	if err := validateBucket("AddHourly", date, hour); err != nil {
		return err
	}
	if delta.KeyCount < 0 || delta.LeftClicks < 0 || delta.RightClicks < 0 || delta.MiddleClicks < 0 ||
		delta.MouseDistance < 0 || delta.ScrollDistance < 0 ||
		math.IsNaN(delta.MouseDistance) || math.IsInf(delta.MouseDistance, 0) ||
		math.IsNaN(delta.ScrollDistance) || math.IsInf(delta.ScrollDistance, 0) {
		return repoerrors.HandleValidationError("AddHourly", "delta", fmt.Sprintf("%+v", delta), "measures must be finite and non-negative")
	}

	_, err := w.exec(ctx, upsertHourlyQuery,
		date, hour,
		delta.KeyCount, delta.MouseDistance,
		delta.LeftClicks, delta.RightClicks, delta.MiddleClicks,
		delta.ScrollDistance,
	)
	if err != nil {
		return repoerrors.WrapDatabaseErrorWithContext("AddHourly", err, map[string]string{
			"date": date,
			"hour": strconv.Itoa(hour),
		})
	}
	return nil
}

// AddKeyCount adds count presses of keyCode to the (date, hour) bucket
func (w *WriteTx) AddKeyCount(ctx context.Context, date string, hour int, keyCode string, count int64) error {
	if err := validateBucket("AddKeyCount", date, hour); err != nil {
		return err
	}
	if strings.TrimSpace(keyCode) == "" {
		return repoerrors.HandleValidationError("AddKeyCount", "key_code", keyCode, "key code cannot be empty")
	}
	if count <= 0 {
		return repoerrors.HandleValidationError("AddKeyCount", "count", strconv.FormatInt(count, 10), "count must be positive")
	}

	if _, err := w.exec(ctx, upsertKeyStatQuery, date, hour, keyCode, count); err != nil {
		return repoerrors.WrapDatabaseErrorWithContext("AddKeyCount", err, map[string]string{
			"date":     date,
			"hour":     strconv.Itoa(hour),
			"key_code": keyCode,
		})
	}
	return nil
}
