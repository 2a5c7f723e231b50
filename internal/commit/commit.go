// Package commit implements the execute phase of the migration: it writes
// a BatchPlan to the target store in a single transaction.
package commit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/juju/clock"
	"golang.org/x/sync/errgroup"

	"github.com/johnwards/prefmigrate/internal/database"
	"github.com/johnwards/prefmigrate/internal/domain"
	"github.com/johnwards/prefmigrate/internal/metrics"
	"github.com/johnwards/prefmigrate/internal/store"
	"github.com/johnwards/prefmigrate/internal/value"
)

// DefaultChunkSize is the number of updates issued concurrently before the
// next chunk starts.
const DefaultChunkSize = 50

// ErrValidation is wrapped by every *ValidationError.
var ErrValidation = errors.New("invalid batch plan")

// ValidationError lists every problem found in a plan before any write.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Committer writes batch plans to the target store.
type Committer struct {
	db        *sql.DB
	prefs     store.PreferenceStore
	chunkSize int
	clock     clock.Clock
	logger    *slog.Logger
	metrics   *metrics.Collector
}

// Option configures a Committer.
type Option func(*Committer)

// WithChunkSize sets the update chunk size. Values below 1 are ignored.
func WithChunkSize(n int) Option {
	return func(c *Committer) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithClock sets the clock used to time commits.
func WithClock(clk clock.Clock) Option {
	return func(c *Committer) { c.clock = clk }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Committer) { c.logger = l }
}

// WithMetrics records commit outcomes on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Committer) { c.metrics = m }
}

// New creates a Committer that opens its transactions on db and writes
// through prefs.
func New(db *sql.DB, prefs store.PreferenceStore, opts ...Option) *Committer {
	c := &Committer{
		db:        db,
		prefs:     prefs,
		chunkSize: DefaultChunkSize,
		clock:     clock.WallClock,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "commit")
	return c
}

// Validate checks a plan without touching the store. It returns a
// *ValidationError listing every problem, or nil.
func Validate(plan *domain.BatchPlan) error {
	if plan == nil {
		return &ValidationError{Problems: []string{"plan is nil"}}
	}

	var problems []string
	seen := make(map[string]bool, plan.Records())
	check := func(set string, records []domain.PreparedRecord) {
		for i, r := range records {
			if strings.TrimSpace(r.TargetKey) == "" {
				problems = append(problems, fmt.Sprintf("%s[%d]: empty target key", set, i))
				continue
			}
			if r.Value.Kind() == value.Undefined {
				problems = append(problems, fmt.Sprintf("%s[%d]: undefined value for %q", set, i, r.TargetKey))
			} else if _, err := r.Value.MarshalJSON(); err != nil {
				problems = append(problems, fmt.Sprintf("%s[%d]: value for %q cannot be encoded: %v", set, i, r.TargetKey, err))
			}
			if seen[r.TargetKey] {
				problems = append(problems, fmt.Sprintf("%s[%d]: duplicate target key %q", set, i, r.TargetKey))
			}
			seen[r.TargetKey] = true
		}
	}
	check("newRecords", plan.New)
	check("updatedRecords", plan.Updated)

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Commit validates plan and writes it in one transaction: a bulk insert of
// the new records, then the updates in sequential chunks whose statements
// run concurrently. Any failure rolls the whole transaction back. One
// progress event is sent on events after the insert and after each chunk;
// events may be nil.
func (c *Committer) Commit(ctx context.Context, plan *domain.BatchPlan, events chan<- domain.ProgressEvent) error {
	if err := Validate(plan); err != nil {
		c.logger.Error("rejected batch plan", "error", err)
		return err
	}

	started := c.clock.Now()
	total := plan.Records()

	err := database.Txn(ctx, c.db, func(ctx context.Context, tx *sql.Tx) error {
		prefs := c.prefs.WithTx(tx)

		if err := prefs.InsertBatch(ctx, plan.New); err != nil {
			return fmt.Errorf("insert new records: %w", err)
		}
		done := len(plan.New)
		if err := c.send(ctx, events, done, total, fmt.Sprintf("Inserted %d new preferences", len(plan.New))); err != nil {
			return err
		}

		for start := 0; start < len(plan.Updated); start += c.chunkSize {
			chunk := plan.Updated[start:min(start+c.chunkSize, len(plan.Updated))]

			var g errgroup.Group
			g.SetLimit(c.chunkSize)
			for _, rec := range chunk {
				g.Go(func() error {
					return prefs.Update(ctx, rec.TargetKey, rec.Value)
				})
			}
			if err := g.Wait(); err != nil {
				return fmt.Errorf("update chunk at %d: %w", start, err)
			}

			done += len(chunk)
			if err := c.send(ctx, events, done, total, fmt.Sprintf("Updated %d of %d preferences", done-len(plan.New), len(plan.Updated))); err != nil {
				return err
			}
		}
		return nil
	})

	elapsed := c.clock.Now().Sub(started)
	c.metrics.CommitFinished(elapsed, len(plan.New), len(plan.Updated), err)
	if err != nil {
		c.logger.Error("batch commit rolled back", "records", total, "error", err)
		return fmt.Errorf("commit batch plan: %w", err)
	}

	c.logger.Info("batch committed", "inserted", len(plan.New), "updated", len(plan.Updated), "duration", elapsed)
	return nil
}

func (c *Committer) send(ctx context.Context, events chan<- domain.ProgressEvent, done, total int, msg string) error {
	if events == nil {
		return nil
	}
	ev := domain.ProgressEvent{Phase: domain.PhaseExecute, Done: done, Total: total, Message: msg}
	select {
	case events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
