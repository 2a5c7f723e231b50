// Package session implements the migration session controller: the stage
// state machine that drives backup confirmation, runs the prepare and
// execute phases and records completion.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/johnwards/prefmigrate/internal/domain"
	"github.com/johnwards/prefmigrate/internal/legacy"
	"github.com/johnwards/prefmigrate/internal/metrics"
	"github.com/johnwards/prefmigrate/internal/store"
)

var (
	// ErrNotActive is returned by stage operations when no session is open.
	ErrNotActive = errors.New("no migration session is active")
	// ErrMigrationInProgress is returned when an operation would interfere
	// with a running migration.
	ErrMigrationInProgress = errors.New("migration in progress")
)

// DefaultMarkerRetryDelay is the pause before the completion marker is
// written a second time.
const DefaultMarkerRetryDelay = 500 * time.Millisecond

// DefaultBackupTimeout bounds how long RequestBackup waits for the backup
// collaborator.
const DefaultBackupTimeout = 5 * time.Minute

// Config holds the collaborators of a Controller. Store and Items are
// required.
type Config struct {
	Store *store.Store
	Items []domain.Item

	// LegacyStore is the legacy flat store. When it also has a
	// Dump() []byte method its document is included in backups.
	LegacyStore legacy.FlatStore
	Backuper    Backuper
	Host        Host

	Clock      clock.Clock
	RetryClock clock.Clock
	Logger     *slog.Logger
	Metrics    *metrics.Collector

	Version          string
	BackupDir        string
	SkipBackupFiles  bool
	ChunkSize        int
	MarkerRetryDelay time.Duration
	BackupTimeout    time.Duration
}

// Controller owns one migration session at a time. It is safe for
// concurrent use.
type Controller struct {
	store            *store.Store
	items            []domain.Item
	legacyStore      legacy.FlatStore
	backuper         Backuper
	host             Host
	clock            clock.Clock
	retryClock       clock.Clock
	logger           *slog.Logger
	metrics          *metrics.Collector
	version          string
	backupDir        string
	skipBackupFiles  bool
	chunkSize        int
	markerRetryDelay time.Duration
	backupTimeout    time.Duration

	// notifyMu orders host notifications. It is taken before mu is
	// released so callbacks observe changes in the order they were made.
	notifyMu sync.Mutex

	mu           sync.Mutex
	id           string
	log          *slog.Logger
	active       bool
	stage        Stage
	progress     Progress
	snapshot     *legacy.Snapshot
	epoch        uint64
	cancelBackup context.CancelFunc
	running      bool
	done         chan struct{}
	runErr       error
}

// New creates a Controller. No session is open until Open is called.
func New(cfg Config) *Controller {
	c := &Controller{
		store:            cfg.Store,
		items:            cfg.Items,
		legacyStore:      cfg.LegacyStore,
		backuper:         cfg.Backuper,
		host:             cfg.Host,
		clock:            cfg.Clock,
		retryClock:       cfg.RetryClock,
		logger:           cfg.Logger,
		metrics:          cfg.Metrics,
		version:          cfg.Version,
		backupDir:        cfg.BackupDir,
		skipBackupFiles:  cfg.SkipBackupFiles,
		chunkSize:        cfg.ChunkSize,
		markerRetryDelay: cfg.MarkerRetryDelay,
		backupTimeout:    cfg.BackupTimeout,
	}
	if c.host == nil {
		c.host = NopHost{}
	}
	if c.clock == nil {
		c.clock = clock.WallClock
	}
	if c.retryClock == nil {
		c.retryClock = clock.WallClock
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.backupDir == "" {
		c.backupDir = "backups"
	}
	if c.markerRetryDelay <= 0 {
		c.markerRetryDelay = DefaultMarkerRetryDelay
	}
	if c.backupTimeout <= 0 {
		c.backupTimeout = DefaultBackupTimeout
	}
	c.logger = c.logger.With("component", "session")
	c.log = c.logger
	c.stage = StageIntroduction
	c.progress = Progress{Stage: StageIntroduction, Total: finished, Message: "Ready to migrate"}
	return c
}

// IsMigrationNeeded reports whether the completion marker is missing or
// incomplete. A failed status check counts as needed.
func (c *Controller) IsMigrationNeeded(ctx context.Context) bool {
	st, err := c.store.AppState.MigrationStatus(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("failed to check migration status, assuming migration is needed", "error", err)
		}
		return true
	}
	if st.Completed {
		c.logger.Info("migration already completed", "version", st.Version)
		return false
	}
	return true
}

// Open starts a session when migration is needed. When a session is
// already open its current progress is returned unchanged. The boolean
// reports whether a session is open afterwards.
func (c *Controller) Open(ctx context.Context) (Progress, bool) {
	if p, ok := c.activeProgress(); ok {
		return p, true
	}
	if !c.IsMigrationNeeded(ctx) {
		return c.GetCurrentProgress(), false
	}

	c.mu.Lock()
	if c.active {
		p := c.progress
		c.mu.Unlock()
		return p, true
	}
	c.active = true
	c.newSession()
	c.setStage(StageIntroduction, 0, "Ready to migrate", "")
	p := c.progress
	c.unlockAndNotify(p)
	return p, true
}

// ProceedToBackup moves from introduction to backup_required.
func (c *Controller) ProceedToBackup() error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return ErrNotActive
	}
	p, err := c.transition(StageBackupRequired, 0, "Backup is required before migration", "")
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.unlockAndNotify(p)
	return nil
}

// RetryMigration resets a failed session to introduction. The supplied
// legacy snapshot is kept.
func (c *Controller) RetryMigration() error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return ErrNotActive
	}
	if err := checkTransition(c.stage, StageIntroduction); err != nil {
		c.mu.Unlock()
		return err
	}
	c.newSession()
	p, _ := c.transition(StageIntroduction, 0, "Ready to migrate", "")
	c.unlockAndNotify(p)
	return nil
}

// CancelMigration tears the session down and asks the host to close. It
// does nothing when no session is open and returns ErrMigrationInProgress,
// leaving the session untouched, once the migration stage was entered.
func (c *Controller) CancelMigration() error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return nil
	}
	if !c.stage.Cancellable() {
		c.mu.Unlock()
		c.log.Warn("refusing to cancel a running migration")
		return ErrMigrationInProgress
	}

	c.log.Info("cancelling migration session", "stage", c.stage)
	c.active = false
	c.epoch++
	if c.cancelBackup != nil {
		c.cancelBackup()
		c.cancelBackup = nil
	}
	c.snapshot = nil
	c.setStage(StageIntroduction, 0, "Migration cancelled by user", "")
	p := c.progress

	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()
	c.host.ProgressChanged(p)
	c.host.CloseRequested()
	return nil
}

// SupplyLegacySnapshot caches the legacy client-state snapshot used by the
// nested adapter. It cannot be replaced while a migration runs.
func (c *Controller) SupplyLegacySnapshot(data []byte) error {
	snap, err := legacy.ParseSnapshot(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active && c.stage == StageMigration {
		return ErrMigrationInProgress
	}
	c.snapshot = snap
	c.log.Info("legacy snapshot supplied", "categories", snap.Len())
	return nil
}

// GetCurrentProgress returns the latest progress.
func (c *Controller) GetCurrentProgress() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// Stage returns the current stage.
func (c *Controller) Stage() Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage
}

// Active reports whether a session is open.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// SessionID returns the correlation id of the open session, or "".
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return ""
	}
	return c.id
}

func (c *Controller) activeProgress() (Progress, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress, c.active
}

// newSession must be called with c.mu held.
func (c *Controller) newSession() {
	c.id = uuid.NewString()
	c.log = c.logger.With("session", c.id)
	c.log.Info("migration session opened")
}

// transition must be called with c.mu held.
func (c *Controller) transition(to Stage, pct int, msg, detail string) (Progress, error) {
	if err := checkTransition(c.stage, to); err != nil {
		return Progress{}, err
	}
	c.setStage(to, pct, msg, detail)
	return c.progress, nil
}

// setStage must be called with c.mu held.
func (c *Controller) setStage(to Stage, pct int, msg, detail string) {
	if c.stage != to {
		c.log.Info("migration stage changed", "from", c.stage, "to", to)
	}
	c.stage = to
	c.progress = Progress{Stage: to, Progress: pct, Total: finished, Message: msg, Error: detail}
	c.metrics.StageChanged(string(to))
}

// unlockAndNotify must be called with c.mu held. It releases c.mu and
// delivers ps to the host in order.
func (c *Controller) unlockAndNotify(ps ...Progress) {
	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()
	for _, p := range ps {
		c.host.ProgressChanged(p)
	}
}
