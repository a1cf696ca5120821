package batch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hurttlocker/tripletags/internal/logger"

	_ "modernc.org/sqlite"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type item struct {
	id    int64
	value string
}

func openTestDB(t *testing.T, n int) (*sql.DB, []item) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY, derived TEXT)`)
	require.NoError(t, err)

	tx, err := db.Begin()
	require.NoError(t, err)
	rows := make([]item, 0, n)
	for i := 1; i <= n; i++ {
		_, err := tx.Exec(`INSERT INTO items (id) VALUES (?)`, i)
		require.NoError(t, err)
		rows = append(rows, item{id: int64(i)})
	}
	require.NoError(t, tx.Commit())
	return db, rows
}

func writeDerived(ctx context.Context, tx *sql.Tx, row item, v string) error {
	_, err := tx.ExecContext(ctx, `UPDATE items SET derived = ? WHERE id = ?`, v, row.id)
	return err
}

func derivedStep(compute func(item) (string, error)) Step[item, string] {
	return Step[item, string]{
		ID:      func(r item) int64 { return r.id },
		Compute: compute,
		Write:   writeDerived,
	}
}

func countDerived(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM items WHERE derived IS NOT NULL`).Scan(&n))
	return n
}

type countingObserver struct {
	outcomes map[string]int
	commits  int
}

func (o *countingObserver) RowDone(outcome string) {
	if o.outcomes == nil {
		o.outcomes = map[string]int{}
	}
	o.outcomes[outcome]++
}

func (o *countingObserver) Committed(time.Duration) { o.commits++ }

func TestRun_CommitBoundaries(t *testing.T) {
	tests := []struct {
		rows        int
		batchSize   int
		wantCommits int
	}{
		{2500, 1000, 3},
		{2000, 1000, 3},
		{999, 1000, 1},
		{0, 1000, 1},
		{250, 0, 1},
		{10, 3, 4},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_rows_batch_%d", tt.rows, tt.batchSize), func(t *testing.T) {
			db, rows := openTestDB(t, tt.rows)
			obs := &countingObserver{}

			res, err := Run(context.Background(), db, rows, derivedStep(func(r item) (string, error) {
				return fmt.Sprintf("v%d", r.id), nil
			}), Options{BatchSize: tt.batchSize, Observer: obs})
			require.NoError(t, err)

			assert.Equal(t, tt.wantCommits, res.Commits)
			assert.Equal(t, tt.wantCommits, obs.commits)
			assert.Equal(t, tt.rows, res.Total)
			assert.Equal(t, tt.rows, res.Updated)
			assert.Equal(t, tt.rows, countDerived(t, db))
		})
	}
}

func TestRun_PerRowFaultIsolation(t *testing.T) {
	db, rows := openTestDB(t, 100)
	core, logs := observer.New(zap.WarnLevel)

	res, err := Run(context.Background(), db, rows, derivedStep(func(r item) (string, error) {
		if r.id == 57 {
			return "", errors.New("boom")
		}
		return "ok", nil
	}), Options{BatchSize: 10, Logger: zap.New(core)})
	require.NoError(t, err)

	assert.Equal(t, 100, res.Total)
	assert.Equal(t, 99, res.Updated)
	assert.Equal(t, 1, res.Errored)
	assert.Equal(t, 99, countDerived(t, db))

	var derived sql.NullString
	require.NoError(t, db.QueryRow(`SELECT derived FROM items WHERE id = 57`).Scan(&derived))
	assert.False(t, derived.Valid)

	failed := logs.FilterMessage("row failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, int64(57), failed[0].ContextMap()["row_id"])
}

func TestRun_LoggerFromContext(t *testing.T) {
	db, rows := openTestDB(t, 3)
	core, logs := observer.New(zap.InfoLevel)
	ctx := logger.ContextWithLogger(context.Background(), zap.New(core))

	_, err := Run(ctx, db, rows, derivedStep(func(r item) (string, error) {
		return "x", nil
	}), Options{BatchSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("batch committed").Len())
}

func TestRun_WriteErrorIsIsolated(t *testing.T) {
	db, rows := openTestDB(t, 5)

	step := derivedStep(func(r item) (string, error) { return "ok", nil })
	step.Write = func(ctx context.Context, tx *sql.Tx, row item, v string) error {
		if row.id == 3 {
			_, err := tx.ExecContext(ctx, `UPDATE no_such_table SET x = 1`)
			return err
		}
		return writeDerived(ctx, tx, row, v)
	}

	res, err := Run(context.Background(), db, rows, step, Options{BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, Result{Total: 5, Updated: 4, Errored: 1, Commits: 3}, res)
	assert.Equal(t, 4, countDerived(t, db))
}

func TestRun_SkipIsNotCounted(t *testing.T) {
	db, rows := openTestDB(t, 2500)
	obs := &countingObserver{}

	res, err := Run(context.Background(), db, rows, derivedStep(func(r item) (string, error) {
		if r.id%2 == 0 {
			return "", ErrSkip
		}
		return "odd", nil
	}), Options{BatchSize: 1000, Observer: obs})
	require.NoError(t, err)

	assert.Equal(t, 2500, res.Total)
	assert.Equal(t, 1250, res.Updated)
	assert.Equal(t, 1250, res.Skipped)
	assert.Equal(t, 0, res.Errored)
	// Boundaries count successful updates, not rows seen.
	assert.Equal(t, 2, res.Commits)
	assert.Equal(t, 1250, obs.outcomes[OutcomeSkipped])
	assert.Equal(t, 1250, obs.outcomes[OutcomeUpdated])
}

func TestRun_CancelKeepsCommittedBatches(t *testing.T) {
	db, rows := openTestDB(t, 2500)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := Run(ctx, db, rows, derivedStep(func(r item) (string, error) {
		if r.id == 1500 {
			cancel()
		}
		return "v", nil
	}), Options{BatchSize: 1000})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, res.Commits)
	assert.Equal(t, 1000, countDerived(t, db), "only the first batch survives")
}

type failingBeginner struct{}

func (failingBeginner) BeginTx(context.Context, *sql.TxOptions) (*sql.Tx, error) {
	return nil, errors.New("database is locked")
}

func TestRun_BeginFailureIsFatal(t *testing.T) {
	_, err := Run(context.Background(), failingBeginner{}, []item{{id: 1}}, derivedStep(func(item) (string, error) {
		t.Fatal("compute must not run without a transaction")
		return "", nil
	}), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "beginning transaction")
}

func TestRowError(t *testing.T) {
	inner := errors.New("bad json")
	err := &RowError{RowID: 42, Err: inner}
	assert.Equal(t, "row 42: bad json", err.Error())
	assert.True(t, errors.Is(err, inner))
}
