package repository

import (
	"context"
	"strconv"
	"strings"

	repoerrors "odometer/internal/infrastructure/errors"
	"odometer/internal/types"
)

const upsertAppUsageQuery = `
INSERT INTO app_usage_stats (date, hour, app_name, seconds_used)
VALUES (?, ?, ?, ?)
ON CONFLICT(date, hour, app_name) DO UPDATE SET
    seconds_used = MIN(?, COALESCE(seconds_used, 0) + excluded.seconds_used)`

// AddAppSeconds adds focus seconds to the (date, hour, app) slot. The slot
// saturates at types.MaxSecondsPerSlot.
func (w *WriteTx) AddAppSeconds(ctx context.Context, date string, hour int, appName string, seconds int64) error {
	if err := validateBucket("AddAppSeconds", date, hour); err != nil {
		return err
	}
	if strings.TrimSpace(appName) == "" {
		return repoerrors.HandleValidationError("AddAppSeconds", "app_name", appName, "app name cannot be empty")
	}
	if seconds < 0 {
		return repoerrors.HandleValidationError("AddAppSeconds", "seconds", strconv.FormatInt(seconds, 10), "seconds cannot be negative")
	}

	initial := min(seconds, types.MaxSecondsPerSlot)
	if _, err := w.exec(ctx, upsertAppUsageQuery, date, hour, appName, initial, types.MaxSecondsPerSlot); err != nil {
		return repoerrors.WrapDatabaseErrorWithContext("AddAppSeconds", err, map[string]string{
			"date":     date,
			"hour":     strconv.Itoa(hour),
			"app_name": appName,
		})
	}
	return nil
}
