// Package batch applies per-row updates inside size-bounded transactions.
//
// A run opens a transaction, walks the rows in order, commits after every
// BatchSize successful updates (counted across the whole run), reopens, and
// always commits once more after the last row. A row that fails to compute or
// write is logged and counted, and the run moves on to the next row.
package batch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hurttlocker/tripletags/internal/logger"
)

// ErrSkip is returned by Step.Compute to leave a row untouched.
var ErrSkip = errors.New("batch: skip row")

// Row outcomes reported to an Observer.
const (
	OutcomeUpdated = "updated"
	OutcomeSkipped = "skipped"
	OutcomeErrored = "errored"
)

// Beginner opens transactions. *sql.DB and *store.Store satisfy it.
type Beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Step describes how to derive and persist one row's new value.
type Step[R, V any] struct {
	// ID identifies the row in logs and errors.
	ID func(R) int64
	// Compute derives the value, or returns ErrSkip.
	Compute func(R) (V, error)
	// Write persists the value inside tx.
	Write func(ctx context.Context, tx *sql.Tx, row R, value V) error
}

// Observer receives run progress. Implementations must be cheap.
type Observer interface {
	RowDone(outcome string)
	Committed(d time.Duration)
}

// Options tune a run.
type Options struct {
	// BatchSize is the number of updates per transaction. <= 0 commits once at the end.
	BatchSize int
	// ProgressEvery logs progress every N updates in addition to each commit.
	ProgressEvery int
	// Logger defaults to the one carried by ctx.
	Logger   *zap.Logger
	Observer Observer
}

// Result counts what a run did.
type Result struct {
	Total   int
	Updated int
	Skipped int
	Errored int
	Commits int
}

// RowError is a failure confined to a single row.
type RowError struct {
	RowID int64
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.RowID, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Run processes rows with step. The returned error is fatal (begin, commit,
// or context cancellation); per-row failures only show up in Result.Errored.
// On a fatal error the open transaction is rolled back and the counts so far
// are returned.
func Run[R, V any](ctx context.Context, db Beginner, rows []R, step Step[R, V], opts Options) (Result, error) {
	log := opts.Logger
	if log == nil {
		log = logger.FromContext(ctx)
	}
	obs := opts.Observer
	if obs == nil {
		obs = nopObserver{}
	}

	res := Result{}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("beginning transaction: %w", err)
	}
	batchStart := time.Now()

	commit := func() error {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing batch at %d updates: %w", res.Updated, err)
		}
		res.Commits++
		obs.Committed(time.Since(batchStart))
		log.Info("batch committed",
			zap.Int("updated", res.Updated),
			zap.Int("seen", res.Total),
			zap.Int("total", len(rows)),
			zap.Int("commits", res.Commits),
		)
		return nil
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			tx.Rollback()
			return res, fmt.Errorf("run interrupted after %d rows: %w", res.Total, err)
		}
		res.Total++

		err := applyRow(ctx, tx, row, step)
		switch {
		case errors.Is(err, ErrSkip):
			res.Skipped++
			obs.RowDone(OutcomeSkipped)
			continue
		case err != nil:
			res.Errored++
			obs.RowDone(OutcomeErrored)
			rowErr := &RowError{RowID: step.ID(row), Err: err}
			log.Warn("row failed", zap.Int64("row_id", rowErr.RowID), zap.Error(rowErr.Err))
			continue
		}

		res.Updated++
		obs.RowDone(OutcomeUpdated)

		if opts.ProgressEvery > 0 && res.Updated%opts.ProgressEvery == 0 {
			log.Info("progress", zap.Int("updated", res.Updated), zap.Int("total", len(rows)))
		}

		if opts.BatchSize > 0 && res.Updated%opts.BatchSize == 0 {
			if err := commit(); err != nil {
				tx.Rollback()
				return res, err
			}
			tx, err = db.BeginTx(ctx, nil)
			if err != nil {
				return res, fmt.Errorf("reopening transaction: %w", err)
			}
			batchStart = time.Now()
		}
	}

	if err := commit(); err != nil {
		tx.Rollback()
		return res, err
	}
	return res, nil
}

func applyRow[R, V any](ctx context.Context, tx *sql.Tx, row R, step Step[R, V]) error {
	value, err := step.Compute(row)
	if err != nil {
		return err
	}
	return step.Write(ctx, tx, row, value)
}

type nopObserver struct{}

func (nopObserver) RowDone(string)          {}
func (nopObserver) Committed(time.Duration) {}
