// Package migrate composes the forward-only passes that maintain derived
// columns: top-N cluster classification, fallback assignment, and full-text
// ingestion. Every pass is safe to re-run.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hurttlocker/tripletags/internal/batch"
	"github.com/hurttlocker/tripletags/internal/cluster"
	"github.com/hurttlocker/tripletags/internal/ingest"
	"github.com/hurttlocker/tripletags/internal/store"
)

// Compiled-in tuning.
const (
	BatchSize           = 1000
	TopN                = cluster.DefaultTopN
	IngestProgressEvery = 100
)

// Pass names, used for logs and metric labels.
const (
	PassClassify   = "classify"
	PassAssignMisc = "assign-misc"
	PassIngestText = "ingest-text"
)

// Observers supplies a batch.Observer per pass. *metrics.Metrics satisfies it.
type Observers interface {
	ForPass(pass string) batch.Observer
	PassCompleted(pass string, d time.Duration, at time.Time)
}

// Summary is the outcome of one pass.
type Summary struct {
	Pass     string
	RunID    string
	Result   batch.Result
	Duration time.Duration
	// FallbackID is set by the assign-misc pass.
	FallbackID int
	// ColumnAdded reports whether this run created the derived column.
	ColumnAdded bool
}

// Runner executes passes against one store.
type Runner struct {
	store     *store.Store
	log       *zap.Logger
	observers Observers
	now       func() time.Time
}

// NewRunner creates a Runner. obs may be nil.
func NewRunner(s *store.Store, log *zap.Logger, obs Observers) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{store: s, log: log, observers: obs, now: time.Now}
}

// TopClusters adds top_cluster_ids to rdf_triples and fills it with each
// triple's best-matching cluster ids. Rows whose stored value already equals
// the computed one are skipped.
func (r *Runner) TopClusters(ctx context.Context, reg cluster.Registry) (*Summary, error) {
	log, sum := r.begin(PassClassify)
	log.Info("loaded tag clusters", zap.Int("clusters", reg.Len()))

	added, err := r.ensureColumn(ctx, log, store.TriplesTable, store.TopClustersColumn)
	if err != nil {
		return nil, err
	}
	sum.ColumnAdded = added
	if err := r.ensureIndex(ctx, log, store.TriplesTable, store.TopClustersColumn); err != nil {
		return nil, err
	}

	triples, err := r.store.ListTriples(ctx)
	if err != nil {
		return nil, err
	}
	log.Info("processing triples", zap.Int("total", len(triples)))

	// A triple left unmatched and already parked on the fallback cluster
	// stays there, so classify and assign-misc converge on re-runs.
	var parked store.ClusterIDs
	if misc, ok := reg.Fallback(); ok {
		parked = store.ClusterIDs{misc.ID}
	}

	step := batch.Step[store.Triple, store.ClusterIDs]{
		ID: tripleID,
		Compute: func(t store.Triple) (store.ClusterIDs, error) {
			tags, err := t.Tags()
			if err != nil {
				return nil, err
			}
			next := store.ClusterIDs(reg.Classify(tags, TopN))
			if t.RawTopClusters == nil {
				return next, nil
			}
			current, err := t.TopClusters()
			if err != nil {
				return next, nil
			}
			if current.Equal(next) || (len(next) == 0 && parked != nil && current.Equal(parked)) {
				return nil, batch.ErrSkip
			}
			return next, nil
		},
		Write: writeTopClusters,
	}

	return finishPass(ctx, r, log, sum, triples, step, BatchSize, 0)
}

// AssignFallback gives every triple with no cluster ids the fallback
// cluster. Triples that already have ids are never touched.
func (r *Runner) AssignFallback(ctx context.Context, reg cluster.Registry) (*Summary, error) {
	log, sum := r.begin(PassAssignMisc)

	misc, ok := reg.Fallback()
	if !ok {
		return nil, fmt.Errorf("registry has no %q cluster", cluster.FallbackName)
	}
	sum.FallbackID = misc.ID
	log.Info("using fallback cluster", zap.Int("cluster_id", misc.ID))

	added, err := r.ensureColumn(ctx, log, store.TriplesTable, store.TopClustersColumn)
	if err != nil {
		return nil, err
	}
	sum.ColumnAdded = added

	triples, err := r.store.ListTriples(ctx)
	if err != nil {
		return nil, err
	}
	log.Info("processing triples", zap.Int("total", len(triples)))

	fallback := store.ClusterIDs{misc.ID}
	step := batch.Step[store.Triple, store.ClusterIDs]{
		ID: tripleID,
		Compute: func(t store.Triple) (store.ClusterIDs, error) {
			current, err := t.TopClusters()
			if err != nil {
				return nil, err
			}
			if len(current) > 0 {
				return nil, batch.ErrSkip
			}
			return fallback, nil
		},
		Write: writeTopClusters,
	}

	return finishPass(ctx, r, log, sum, triples, step, BatchSize, 0)
}

// IngestFullText adds full_text to documents and fills it from each
// document's file. Unreadable files are counted as errors; all successful
// writes are committed together at the end.
func (r *Runner) IngestFullText(ctx context.Context, reader ingest.Reader) (*Summary, error) {
	log, sum := r.begin(PassIngestText)

	added, err := r.ensureColumn(ctx, log, store.DocumentsTable, store.FullTextColumn)
	if err != nil {
		return nil, err
	}
	sum.ColumnAdded = added

	docs, err := r.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	log.Info("migrating documents", zap.Int("total", len(docs)), zap.String("base_dir", reader.BaseDir))

	step := batch.Step[store.Document, string]{
		ID: func(d store.Document) int64 { return d.ID },
		Compute: func(d store.Document) (string, error) {
			return reader.Read(d.FilePath)
		},
		Write: func(ctx context.Context, tx *sql.Tx, d store.Document, text string) error {
			return store.UpdateFullText(ctx, tx, d.ID, text)
		},
	}

	return finishPass(ctx, r, log, sum, docs, step, 0, IngestProgressEvery)
}

func (r *Runner) begin(pass string) (*zap.Logger, *Summary) {
	id := uuid.NewString()
	return r.log.With(zap.String("pass", pass), zap.String("run_id", id)), &Summary{Pass: pass, RunID: id}
}

func (r *Runner) ensureColumn(ctx context.Context, log *zap.Logger, table, column string) (bool, error) {
	res, err := r.store.EnsureColumn(ctx, table, column, "TEXT")
	if err != nil {
		return false, err
	}
	log.Info("ensured column", zap.String("table", table), zap.String("column", column), zap.Stringer("result", res))
	return res == store.ColumnAdded, nil
}

func (r *Runner) ensureIndex(ctx context.Context, log *zap.Logger, table, column string) error {
	res, err := r.store.EnsureIndex(ctx, table, column)
	if err != nil {
		return err
	}
	log.Info("ensured index", zap.String("index", store.IndexName(column)), zap.Stringer("result", res))
	return nil
}

func finishPass[R, V any](ctx context.Context, r *Runner, log *zap.Logger, sum *Summary, rows []R, step batch.Step[R, V], batchSize, progressEvery int) (*Summary, error) {
	start := r.now()
	opts := batch.Options{
		BatchSize:     batchSize,
		ProgressEvery: progressEvery,
		Logger:        log,
	}
	if r.observers != nil {
		opts.Observer = r.observers.ForPass(sum.Pass)
	}

	res, err := batch.Run(ctx, r.store, rows, step, opts)
	sum.Result = res
	sum.Duration = r.now().Sub(start)
	if err != nil {
		return sum, fmt.Errorf("%s pass: %w", sum.Pass, err)
	}

	if r.observers != nil {
		r.observers.PassCompleted(sum.Pass, sum.Duration, r.now())
	}
	log.Info("pass complete",
		zap.Int("total", res.Total),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
		zap.Int("errored", res.Errored),
		zap.Int("commits", res.Commits),
		zap.Duration("duration", sum.Duration),
	)
	return sum, nil
}

func tripleID(t store.Triple) int64 { return t.ID }

func writeTopClusters(ctx context.Context, tx *sql.Tx, t store.Triple, ids store.ClusterIDs) error {
	return store.UpdateTopClusters(ctx, tx, t.ID, ids)
}
