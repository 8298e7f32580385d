package repository

import (
	"context"
	"fmt"

	repoerrors "odometer/internal/infrastructure/errors"
	"odometer/internal/types"
)

// DeleteBefore deletes every row of table whose date is strictly before cutoff.
// Rows go in rowid batches of the configured purge size, and ctx is checked
// between batches so a cancelled purge stops promptly. Nothing is committed here:
// the enclosing write transaction decides.
func (w *WriteTx) DeleteBefore(ctx context.Context, table, cutoff string) (int64, error) {
	if err := validTable(table); err != nil {
		return 0, err
	}
	if _, err := types.AddDays(cutoff, 0); err != nil {
		return 0, repoerrors.HandleValidationError("DeleteBefore", "cutoff", cutoff, "cutoff must be YYYY-MM-DD")
	}

	query := fmt.Sprintf(
		"DELETE FROM %s WHERE rowid IN (SELECT rowid FROM %s WHERE date < ? LIMIT ?)", table, table)

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, repoerrors.NewRepositoryErrorWithContext("DeleteBefore", err, repoerrors.ClassifyError(err),
				map[string]string{"table": table, "deleted_so_far": fmt.Sprint(total)})
		}

		result, err := w.exec(ctx, query, cutoff, w.purgeBatchSize)
		if err != nil {
			return total, repoerrors.WrapDatabaseErrorWithContext("DeleteBefore", err, map[string]string{
				"table":  table,
				"cutoff": cutoff,
			})
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return total, repoerrors.WrapDatabaseErrorWithContext("DeleteBefore", err, map[string]string{"table": table})
		}

		total += affected
		if affected < int64(w.purgeBatchSize) {
			return total, nil
		}
	}
}
