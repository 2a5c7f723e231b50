package migration

import (
	"log/slog"
	"net/http"

	"github.com/johnwards/prefmigrate/internal/session"
)

// RegisterRoutes adds all migration session endpoints to the given mux.
func RegisterRoutes(mux *http.ServeMux, ctrl *session.Controller, events *Broadcaster, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{ctrl: ctrl, events: events, logger: logger.With("component", "migration-api")}

	mux.HandleFunc("GET /migration/needed", h.Needed)
	mux.HandleFunc("POST /migration/open", h.Open)
	mux.HandleFunc("POST /migration/proceed", h.Proceed)
	mux.HandleFunc("POST /migration/backup", h.Backup)
	mux.HandleFunc("POST /migration/backup/cancel", h.CancelBackup)
	mux.HandleFunc("POST /migration/backup/completed", h.BackupCompleted)
	mux.HandleFunc("PUT /migration/snapshot", h.Snapshot)
	mux.HandleFunc("POST /migration/start", h.Start)
	mux.HandleFunc("POST /migration/cancel", h.Cancel)
	mux.HandleFunc("POST /migration/retry", h.Retry)
	mux.HandleFunc("GET /migration/progress", h.Progress)
	mux.HandleFunc("GET /migration/events", h.Events)
}
