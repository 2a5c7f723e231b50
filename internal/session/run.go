package session

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/juju/retry"

	"github.com/johnwards/prefmigrate/internal/commit"
	"github.com/johnwards/prefmigrate/internal/domain"
	"github.com/johnwards/prefmigrate/internal/legacy"
	"github.com/johnwards/prefmigrate/internal/planner"
)

// StartMigration enters the migration stage and runs the prepare and
// execute phases in the background; use Wait to block until they finish.
// Calling it again while a run is in flight does nothing. ctx bounds the
// background run.
func (c *Controller) StartMigration(ctx context.Context) error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return ErrNotActive
	}
	if c.running || c.stage == StageMigration {
		c.mu.Unlock()
		c.log.Info("migration already running")
		return nil
	}
	p, err := c.transition(StageMigration, prepareStart, "Starting data migration...", "")
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.running = true
	c.runErr = nil
	c.done = make(chan struct{})
	done := c.done
	snap := c.snapshot
	log := c.log
	c.unlockAndNotify(p)

	go func() {
		err := c.migrate(ctx, snap)
		if err != nil {
			log.Error("migration failed", "error", err)
		}
		c.mu.Lock()
		c.running = false
		c.runErr = err
		c.mu.Unlock()
		close(done)
	}()
	return nil
}

// Wait blocks until the current background run finishes and returns its
// error. It returns nil immediately when nothing was started.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}

	select {
	case <-done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.runErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) migrate(ctx context.Context, snap *legacy.Snapshot) error {
	c.mu.Lock()
	log := c.log
	c.mu.Unlock()

	events := make(chan domain.ProgressEvent)
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		for ev := range events {
			c.applyEvent(ev)
		}
	}()

	p := planner.New(
		legacy.NewFlatAdapter(c.legacyStore, log),
		legacy.NewNestedAdapter(snap, log),
		c.store.Preferences,
		planner.WithLogger(log),
		planner.WithMetrics(c.metrics),
	)
	plan, err := p.Plan(ctx, c.items, events)
	if err == nil {
		cm := commit.New(c.store.DB, c.store.Preferences,
			commit.WithChunkSize(c.chunkSize),
			commit.WithClock(c.clock),
			commit.WithLogger(log),
			commit.WithMetrics(c.metrics),
		)
		err = cm.Commit(ctx, plan, events)
	}
	close(events)
	<-consumed

	if err != nil {
		c.fail(err)
		return err
	}
	c.complete(ctx, plan)
	return nil
}

// applyEvent maps phase-local progress onto the migration stage windows.
// Progress never moves backwards.
func (c *Controller) applyEvent(ev domain.ProgressEvent) {
	var pct int
	switch ev.Phase {
	case domain.PhasePrepare:
		pct = prepareStart + int(math.Round(ev.Fraction()*(prepareEnd-prepareStart)))
	case domain.PhaseExecute:
		pct = prepareEnd + int(math.Round(ev.Fraction()*(executeEnd-prepareEnd)))
	default:
		return
	}

	c.mu.Lock()
	if c.stage != StageMigration {
		c.mu.Unlock()
		return
	}
	c.progress.Progress = max(pct, c.progress.Progress)
	c.progress.Message = ev.Message
	c.unlockAndNotify(c.progress)
}

func (c *Controller) fail(err error) {
	msg := "Migration failed. No preferences were changed; you can retry or keep using the previous settings."
	var verr *commit.ValidationError
	if errors.As(err, &verr) {
		msg = "Migration failed: the migration plan is invalid. No preferences were changed."
	}

	c.mu.Lock()
	p, terr := c.transition(StageError, 0, msg, err.Error())
	if terr != nil {
		c.mu.Unlock()
		c.log.Error("cannot enter error stage", "error", terr)
		return
	}
	c.unlockAndNotify(p)
}

func (c *Controller) complete(ctx context.Context, plan *domain.BatchPlan) {
	c.mu.Lock()
	c.progress.Progress = markerWriting
	c.progress.Message = "Saving migration status..."
	log := c.log
	c.unlockAndNotify(c.progress)

	msg := fmt.Sprintf("Migration completed: %d items migrated", plan.Records())
	if plan.Skipped > 0 {
		msg += fmt.Sprintf(", %d skipped", plan.Skipped)
	}
	if n := len(plan.PreparationErrors); n > 0 {
		msg += fmt.Sprintf(", %d could not be read", n)
	}
	if err := c.writeMarker(ctx); err != nil {
		log.Error("failed to record migration completion", "error", err)
		msg += ". The completion status could not be saved; please restart the application manually."
	} else {
		msg += ". Please restart the application."
	}

	c.mu.Lock()
	p, err := c.transition(StageCompleted, finished, msg, "")
	if err != nil {
		c.mu.Unlock()
		log.Error("cannot enter completed stage", "error", err)
		return
	}
	c.unlockAndNotify(p)
}

// writeMarker upserts the completion marker and verifies it by reading it
// back. A failed attempt is retried exactly once.
func (c *Controller) writeMarker(ctx context.Context) error {
	at := c.clock.Now().UnixMilli()
	status := domain.MigrationStatus{Completed: true, CompletedAt: &at, Version: c.version}
	appState := c.store.AppState

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			if err := appState.SetMigrationStatus(ctx, status); err != nil {
				return err
			}
			got, err := appState.MigrationStatus(ctx)
			if err != nil {
				return fmt.Errorf("verify migration status: %w", err)
			}
			if !got.Completed {
				return errors.New("verify migration status: marker not persisted")
			}
			return nil
		},
		NotifyFunc: func(err error, attempt int) {
			c.logger.Warn("completion marker write failed", "attempt", attempt, "error", err)
		},
		Attempts: 2,
		Delay:    c.markerRetryDelay,
		Clock:    c.retryClock,
		Stop:     ctx.Done(),
	})
	if err != nil {
		return retry.LastError(err)
	}
	return nil
}
