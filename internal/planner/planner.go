// Package planner implements the prepare phase of the migration: it reads
// every mapped legacy value, fills defaults, coerces types and splits the
// results into new and updated records.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/johnwards/prefmigrate/internal/coerce"
	"github.com/johnwards/prefmigrate/internal/domain"
	"github.com/johnwards/prefmigrate/internal/metrics"
	"github.com/johnwards/prefmigrate/internal/value"
)

// FlatReader reads a value from the legacy flat store. Absent values are
// Undefined.
type FlatReader interface {
	Read(key string) value.Value
}

// NestedReader reads a dotted key inside one category of the legacy
// snapshot. Absent values are Undefined.
type NestedReader interface {
	Read(category, key string) value.Value
}

// KeyLister returns the keys already present in the target store.
type KeyLister interface {
	Keys(ctx context.Context) (map[string]struct{}, error)
}

// Planner builds a BatchPlan from mapping items.
type Planner struct {
	flat    FlatReader
	nested  NestedReader
	keys    KeyLister
	logger  *slog.Logger
	metrics *metrics.Collector
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Planner) { p.logger = l }
}

// WithMetrics records item outcomes on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(p *Planner) { p.metrics = m }
}

// New creates a Planner. Either reader may be nil, in which case every item
// of that source resolves to absent.
func New(flat FlatReader, nested NestedReader, keys KeyLister, opts ...Option) *Planner {
	p := &Planner{flat: flat, nested: nested, keys: keys, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "planner")
	return p
}

type outcome int

const (
	outcomeNew outcome = iota
	outcomeUpdated
	outcomeSkipped
)

// Plan resolves every item and returns the resulting plan. One progress
// event is sent on events after each item; events may be nil. Failures of
// single items are recorded in the plan and never stop the run. An error
// is returned only when the existing target keys cannot be listed or ctx
// is done.
func (p *Planner) Plan(ctx context.Context, items []domain.Item, events chan<- domain.ProgressEvent) (*domain.BatchPlan, error) {
	existing, err := p.keys.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list existing preferences: %w", err)
	}

	plan := &domain.BatchPlan{
		New:               []domain.PreparedRecord{},
		Updated:           []domain.PreparedRecord{},
		PreparationErrors: []domain.PreparationError{},
	}

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec, out, err := p.prepare(item, existing)
		switch {
		case err != nil:
			p.logger.Warn("failed to prepare item", "key", item.OriginalKey, "target", item.TargetKey, "error", err)
			plan.PreparationErrors = append(plan.PreparationErrors, domain.PreparationError{
				Key:   item.OriginalKey,
				Error: err.Error(),
			})
			p.metrics.ItemPlanned(metrics.OutcomeFailed)
		case out == outcomeSkipped:
			plan.Skipped++
			p.metrics.ItemPlanned(metrics.OutcomeSkipped)
		case out == outcomeUpdated:
			plan.Updated = append(plan.Updated, rec)
			p.metrics.ItemPlanned(metrics.OutcomeUpdated)
		default:
			plan.New = append(plan.New, rec)
			p.metrics.ItemPlanned(metrics.OutcomeNew)
		}

		ev := domain.ProgressEvent{
			Phase:   domain.PhasePrepare,
			Done:    i + 1,
			Total:   len(items),
			Message: fmt.Sprintf("Preparing %s", item.TargetKey),
		}
		if err := send(ctx, events, ev); err != nil {
			return nil, err
		}
	}

	p.logger.Info("prepared migration plan",
		"new", len(plan.New),
		"updated", len(plan.Updated),
		"skipped", plan.Skipped,
		"errors", len(plan.PreparationErrors),
	)
	return plan, nil
}

func (p *Planner) prepare(item domain.Item, existing map[string]struct{}) (rec domain.PreparedRecord, out outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while preparing item: %v", r)
		}
	}()

	v, err := p.resolve(item)
	if err != nil {
		return domain.PreparedRecord{}, 0, err
	}

	if v.IsAbsent() {
		if !item.HasDefault() {
			p.logger.Debug("skipping absent item", "key", item.OriginalKey)
			return domain.PreparedRecord{}, outcomeSkipped, nil
		}
		v = item.Default
	}
	v = coerce.Coerce(v, item.Type)

	rec = domain.PreparedRecord{
		TargetKey:   item.TargetKey,
		Value:       v,
		Source:      item.Source,
		OriginalKey: item.OriginalKey,
	}
	if _, ok := existing[item.TargetKey]; ok {
		return rec, outcomeUpdated, nil
	}
	return rec, outcomeNew, nil
}

func (p *Planner) resolve(item domain.Item) (value.Value, error) {
	if item.OriginalKey == "" {
		return value.Value{}, errors.New("empty original key")
	}
	switch item.Source.Kind {
	case domain.SourceFlat:
		if p.flat == nil {
			return value.Value{}, nil
		}
		return p.flat.Read(item.OriginalKey), nil
	case domain.SourceNested:
		if item.Source.Category == "" {
			return value.Value{}, errors.New("nested source without category")
		}
		if p.nested == nil {
			return value.Value{}, nil
		}
		return p.nested.Read(item.Source.Category, item.OriginalKey), nil
	default:
		return value.Value{}, fmt.Errorf("unknown source kind %q", item.Source.Kind)
	}
}

func send(ctx context.Context, events chan<- domain.ProgressEvent, ev domain.ProgressEvent) error {
	if events == nil {
		return nil
	}
	select {
	case events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
