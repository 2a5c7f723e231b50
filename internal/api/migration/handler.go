// Package migration exposes the migration session over HTTP.
package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/johnwards/prefmigrate/internal/api"
	"github.com/johnwards/prefmigrate/internal/session"
)

// maxSnapshotBytes caps the size of an uploaded legacy snapshot.
const maxSnapshotBytes = 32 << 20

// Handler handles migration session HTTP requests.
type Handler struct {
	ctrl   *session.Controller
	events *Broadcaster
	logger *slog.Logger
}

type neededResponse struct {
	Needed bool `json:"needed"`
}

type openResponse struct {
	Open     bool             `json:"open"`
	Progress session.Progress `json:"progress"`
}

type sessionResponse struct {
	SessionID string           `json:"sessionId,omitempty"`
	Progress  session.Progress `json:"progress"`
}

// Needed handles GET /migration/needed.
func (h *Handler) Needed(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, neededResponse{Needed: h.ctrl.IsMigrationNeeded(r.Context())})
}

// Open handles POST /migration/open.
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	p, open := h.ctrl.Open(r.Context())
	api.WriteJSON(w, http.StatusOK, openResponse{Open: open, Progress: p})
}

// Proceed handles POST /migration/proceed.
func (h *Handler) Proceed(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.ctrl.ProceedToBackup())
}

// Backup handles POST /migration/backup. The request blocks until the
// backup finishes or is cancelled.
func (h *Handler) Backup(w http.ResponseWriter, r *http.Request) {
	res, err := h.ctrl.RequestBackup(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, res)
}

// CancelBackup handles POST /migration/backup/cancel.
func (h *Handler) CancelBackup(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.ctrl.CancelBackup())
}

// BackupCompleted handles POST /migration/backup/completed.
func (h *Handler) BackupCompleted(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.ctrl.NotifyBackupCompleted())
}

// Snapshot handles PUT /migration/snapshot.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	corrID := api.CorrelationID(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSnapshotBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.WriteError(w, http.StatusRequestEntityTooLarge, api.NewValidationError(
				fmt.Sprintf("snapshot exceeds %d bytes", tooLarge.Limit), corrID, nil))
			return
		}
		api.WriteError(w, http.StatusBadRequest, api.NewValidationError("failed to read snapshot", corrID, nil))
		return
	}

	if err := h.ctrl.SupplyLegacySnapshot(body); err != nil {
		if errors.Is(err, session.ErrMigrationInProgress) {
			h.writeErr(w, r, err)
			return
		}
		api.WriteError(w, http.StatusBadRequest, api.NewValidationError(err.Error(), corrID, []api.ErrorDetail{
			{Message: err.Error(), Code: "INVALID_SNAPSHOT", In: "body"},
		}))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Start handles POST /migration/start. The migration runs in the
// background; progress is reported on the event stream.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.StartMigration(context.WithoutCancel(r.Context())); err != nil {
		h.writeErr(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusAccepted, h.current())
}

// Cancel handles POST /migration/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.ctrl.CancelMigration())
}

// Retry handles POST /migration/retry.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.ctrl.RetryMigration())
}

// Progress handles GET /migration/progress.
func (h *Handler) Progress(w http.ResponseWriter, _ *http.Request) {
	api.WriteJSON(w, http.StatusOK, h.current())
}

// Events handles GET /migration/events as a server-sent event stream. The
// current progress is sent first, then every change until the client
// disconnects.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sub, unsubscribe := h.events.Subscribe()
	defer unsubscribe()

	var id uint64
	send := func(name string, data any) bool {
		b, err := json.Marshal(data)
		if err != nil {
			h.logger.Error("failed to marshal progress event", "event", name, "error", err)
			return true
		}
		id++
		if _, err := fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", name, id, b); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	if !send("progress", h.ctrl.GetCurrentProgress()) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("progress stream client disconnected")
			return
		case <-h.events.Done():
			h.logger.Debug("progress stream closed for shutdown")
			return
		case <-sub.Ready():
			for _, ev := range sub.Drain() {
				var data any = ev.Progress
				if ev.Name == "close" {
					data = struct{}{}
				}
				if !send(ev.Name, data) {
					return
				}
			}
		}
	}
}

func (h *Handler) current() sessionResponse {
	return sessionResponse{SessionID: h.ctrl.SessionID(), Progress: h.ctrl.GetCurrentProgress()}
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, h.current())
}

// writeErr maps session errors to responses. Guard violations are 409.
func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	corrID := api.CorrelationID(r.Context())
	switch {
	case errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, session.ErrMigrationInProgress),
		errors.Is(err, session.ErrNotActive):
		api.WriteError(w, http.StatusConflict, api.NewConflictError(err.Error(), corrID))
	default:
		h.logger.Error("migration request failed", "path", r.URL.Path, "error", err, "correlation_id", corrID)
		api.WriteError(w, http.StatusInternalServerError, api.NewInternalError(err.Error(), corrID))
	}
}
