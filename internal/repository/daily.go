package repository

import (
	"context"

	repoerrors "odometer/internal/infrastructure/errors"
	"odometer/internal/types"
)

const recomputeDailyQuery = `
INSERT INTO daily_stats (date, key_count, mouse_distance, left_clicks, right_clicks, middle_clicks, scroll_distance)
SELECT
    date,
    SUM(COALESCE(key_count, 0)),
    SUM(COALESCE(mouse_distance, 0)),
    SUM(COALESCE(left_clicks, 0)),
    SUM(COALESCE(right_clicks, 0)),
    SUM(COALESCE(middle_clicks, 0)),
    SUM(COALESCE(scroll_distance, 0))
FROM hourly_stats
WHERE date = ?
GROUP BY date
ON CONFLICT(date) DO UPDATE SET
    key_count = excluded.key_count,
    mouse_distance = excluded.mouse_distance,
    left_clicks = excluded.left_clicks,
    right_clicks = excluded.right_clicks,
    middle_clicks = excluded.middle_clicks,
    scroll_distance = excluded.scroll_distance`

// RecomputeDaily rewrites daily_stats(date) as the sum of that date's hourly
// buckets. It reports false, and writes nothing, when the date has no hourly rows.
func (w *WriteTx) RecomputeDaily(ctx context.Context, date string) (bool, error) {
	if _, err := types.AddDays(date, 0); err != nil {
		return false, repoerrors.HandleValidationError("RecomputeDaily", "date", date, "date must be YYYY-MM-DD")
	}

	result, err := w.exec(ctx, recomputeDailyQuery, date)
	if err != nil {
		return false, repoerrors.WrapDatabaseErrorWithContext("RecomputeDaily", err, map[string]string{"date": date})
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, repoerrors.WrapDatabaseErrorWithContext("RecomputeDaily", err, map[string]string{"date": date})
	}
	return affected > 0, nil
}
