package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	repoerrors "odometer/internal/infrastructure/errors"
	"odometer/internal/infrastructure/logging"

	"github.com/jmoiron/sqlx"
)

// WriteTx is the handle passed to WriteFunc. All of its methods run on the
// underlying transaction and share a per-transaction statement cache.
type WriteTx struct {
	tx             *sqlx.Tx
	stmts          map[string]*sqlx.Stmt
	purgeBatchSize int
}

// WithWriteTx runs fn inside a single write transaction. At most one write
// transaction is in flight per repository; later callers queue until the
// current one finishes or their context is done. The transaction is bounded by
// the configured TxTimeout and rolled back when fn fails.
func (r *SQLiteRepository) WithWriteTx(ctx context.Context, op string, fn WriteFunc) error {
	start := time.Now()

	select {
	case r.writeSem <- struct{}{}:
	case <-ctx.Done():
		return repoerrors.NewWriteError(op, ctx.Err(), map[string]string{"phase": "acquire"})
	}
	defer func() { <-r.writeSem }()

	txCtx, cancel := context.WithTimeout(ctx, r.txTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(txCtx, nil)
	if err != nil {
		repoErr := repoerrors.NewWriteError(op, err, map[string]string{"phase": "begin"})
		logging.LogError(r.logger, repoErr, op, nil)
		return repoErr
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			r.logger.Debug("Failed to rollback write transaction",
				"operation", op,
				"rollback_error", rollbackErr)
		}
	}()

	w := &WriteTx{
		tx:             tx,
		stmts:          make(map[string]*sqlx.Stmt),
		purgeBatchSize: r.purgeBatchSize,
	}

	if err := fn(txCtx, w); err != nil {
		// Report the caller's context error rather than our derived one
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return repoerrors.NewWriteError(op, err, map[string]string{
				"phase":      "execute",
				"tx_timeout": r.txTimeout.String(),
			})
		}
		return repoerrors.NewWriteError(op, err, map[string]string{"phase": "execute"})
	}

	if err := tx.Commit(); err != nil {
		repoErr := repoerrors.NewWriteError(op, err, map[string]string{"phase": "commit"})
		logging.LogError(r.logger, repoErr, op, nil)
		return repoErr
	}
	committed = true

	logging.LogOperation(r.logger, op, time.Since(start), nil)
	return nil
}

// WithWriteLock runs fn while holding the write lock but outside any
// transaction. Maintenance such as VACUUM uses it so it never races a writer.
func (r *SQLiteRepository) WithWriteLock(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	select {
	case r.writeSem <- struct{}{}:
	case <-ctx.Done():
		return repoerrors.NewWriteError(op, ctx.Err(), map[string]string{"phase": "acquire"})
	}
	defer func() { <-r.writeSem }()

	start := time.Now()
	if err := fn(ctx); err != nil {
		repoErr := repoerrors.NewWriteError(op, err, nil)
		logging.LogError(r.logger, repoErr, op, nil)
		return repoErr
	}
	logging.LogOperation(r.logger, op, time.Since(start), nil)
	return nil
}

// exec runs query through the statement cache
func (w *WriteTx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	stmt, ok := w.stmts[query]
	if !ok {
		prepared, err := w.tx.PreparexContext(ctx, query)
		if err != nil {
			return nil, err
		}
		// Statements prepared on a transaction are closed when it ends
		w.stmts[query] = prepared
		stmt = prepared
	}
	return stmt.ExecContext(ctx, args...)
}
