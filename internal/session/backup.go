package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Backuper writes a safety archive before migration. It returns the path
// of the archive.
type Backuper interface {
	Backup(ctx context.Context, destDir, filename string, payload []byte, skipBackupFiles bool) (string, error)
}

// BackupResult is the outcome of RequestBackup.
type BackupResult struct {
	Success bool   `json:"success"`
	Path    string `json:"path,omitempty"`
	Error   string `json:"error,omitempty"`
}

const backupTimeLayout = "20060102150405"

var errBackupCancelled = errors.New("backup was cancelled")

type backupPayload struct {
	AppVersion     string          `json:"appVersion"`
	CreatedAt      int64           `json:"createdAt"`
	SessionID      string          `json:"sessionId"`
	LegacyStore    json.RawMessage `json:"legacyStore,omitempty"`
	LegacySnapshot json.RawMessage `json:"legacySnapshot,omitempty"`
}

// RequestBackup runs the backup collaborator. The session moves to
// backup_progress while it runs, then to backup_confirmed on success or
// back to backup_required on failure. Backup failures are reported in the
// result; the error is only set when the current stage does not allow a
// backup. A result that arrives after the session was cancelled is
// discarded. A backup still running after the configured backup timeout is
// cancelled and reported as failed.
func (c *Controller) RequestBackup(ctx context.Context) (BackupResult, error) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return BackupResult{}, ErrNotActive
	}
	p, err := c.transition(StageBackupProgress, 0, "Creating backup...", "")
	if err != nil {
		c.mu.Unlock()
		return BackupResult{}, err
	}
	epoch := c.epoch
	timeout := c.backupTimeout
	bctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	c.cancelBackup = cancel
	now := c.clock.Now()
	filename := fmt.Sprintf("prefmigrate-backup-%s.zip", now.Format(backupTimeLayout))
	payload, payloadErr := c.backupPayload(now.UnixMilli())
	log := c.log
	c.unlockAndNotify(p)

	var path string
	switch {
	case payloadErr != nil:
		err = payloadErr
	case c.backuper == nil:
		err = errors.New("no backup collaborator configured")
	default:
		path, err = c.backuper.Backup(bctx, c.backupDir, filename, payload, c.skipBackupFiles)
		if err != nil && errors.Is(bctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("backup timed out after %s: %w", timeout, err)
		}
	}
	c.metrics.BackupFinished(err)

	c.mu.Lock()
	if c.epoch != epoch || !c.active {
		c.mu.Unlock()
		log.Info("discarding backup result of a cancelled attempt", "path", path, "error", err)
		return BackupResult{Error: errBackupCancelled.Error()}, nil
	}
	c.cancelBackup = nil
	if c.stage != StageBackupProgress {
		confirmed := c.stage == StageBackupConfirmed
		c.mu.Unlock()
		if confirmed {
			return BackupResult{Success: true, Path: path}, nil
		}
		return BackupResult{Error: errBackupCancelled.Error()}, nil
	}
	if err != nil {
		log.Error("backup failed", "error", err)
		p, _ = c.transition(StageBackupRequired, 0, "Backup failed: "+err.Error(), err.Error())
		c.unlockAndNotify(p)
		return BackupResult{Error: err.Error()}, nil
	}

	log.Info("backup created", "path", path)
	p, _ = c.transition(StageBackupConfirmed, finished, "Backup completed successfully", "")
	c.unlockAndNotify(p)
	return BackupResult{Success: true, Path: path}, nil
}

// CancelBackup abandons a running backup and returns to backup_required.
// It fails unless the session is in backup_progress.
func (c *Controller) CancelBackup() error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return ErrNotActive
	}
	if c.stage != StageBackupProgress {
		err := fmt.Errorf("%w: no backup is running in stage %s", ErrInvalidTransition, c.stage)
		c.mu.Unlock()
		return err
	}
	p, err := c.transition(StageBackupRequired, 0, "Backup was cancelled. A backup is required to proceed with migration", "")
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.epoch++
	if c.cancelBackup != nil {
		c.cancelBackup()
		c.cancelBackup = nil
	}
	c.unlockAndNotify(p)
	return nil
}

// NotifyBackupCompleted confirms a backup made outside the controller. From
// backup_required it passes through backup_progress.
func (c *Controller) NotifyBackupCompleted() error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return ErrNotActive
	}

	var ps []Progress
	if c.stage == StageBackupRequired {
		p, err := c.transition(StageBackupProgress, 0, "Backup in progress...", "")
		if err != nil {
			c.mu.Unlock()
			return err
		}
		ps = append(ps, p)
	}
	p, err := c.transition(StageBackupConfirmed, finished, "Backup completed successfully", "")
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.log.Info("backup confirmed by host")
	c.unlockAndNotify(append(ps, p)...)
	return nil
}

// backupPayload must be called with c.mu held.
func (c *Controller) backupPayload(createdAt int64) ([]byte, error) {
	payload := backupPayload{
		AppVersion: c.version,
		CreatedAt:  createdAt,
		SessionID:  c.id,
	}
	if d, ok := c.legacyStore.(interface{ Dump() []byte }); ok {
		if raw := d.Dump(); json.Valid(raw) {
			payload.LegacyStore = raw
		}
	}
	if c.snapshot != nil {
		payload.LegacySnapshot = c.snapshot.Raw()
	}
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode backup payload: %w", err)
	}
	return b, nil
}
