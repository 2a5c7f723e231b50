// Package admin serves development endpoints for inspecting and resetting
// the preference database.
package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/johnwards/prefmigrate/internal/api"
	"github.com/johnwards/prefmigrate/internal/database"
	"github.com/johnwards/prefmigrate/internal/domain"
	"github.com/johnwards/prefmigrate/internal/seed"
	"github.com/johnwards/prefmigrate/internal/session"
	"github.com/johnwards/prefmigrate/internal/store"
)

// SessionState reports whether a migration is running.
type SessionState interface {
	Active() bool
	Stage() session.Stage
}

// Handler serves the admin API at /_prefmigrate/.
type Handler struct {
	store   *store.Store
	items   []domain.Item
	session SessionState
}

type resetResponse struct {
	Status  string `json:"status"`
	Deleted int64  `json:"deleted"`
	Seeded  int    `json:"seeded"`
}

type statusResponse struct {
	Needed      bool                    `json:"needed"`
	Marker      *domain.MigrationStatus `json:"marker,omitempty"`
	Preferences int                     `json:"preferences"`
	Items       int                     `json:"items"`
}

// Reset deletes every preference and the completion marker so the
// migration can run again. With ?seed=true the defaults are seeded
// afterwards.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	corrID := api.CorrelationID(ctx)

	if h.busy() {
		api.WriteError(w, http.StatusConflict, api.NewConflictError(session.ErrMigrationInProgress.Error(), corrID))
		return
	}

	deleted, err := ResetData(ctx, h.store)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, api.NewInternalError(err.Error(), corrID))
		return
	}

	resp := resetResponse{Status: "ok", Deleted: deleted}
	if r.URL.Query().Get("seed") == "true" {
		n, err := seed.Seed(ctx, h.store.DB, h.store.Preferences, h.items)
		if err != nil {
			api.WriteError(w, http.StatusInternalServerError, api.NewInternalError(fmt.Sprintf("failed to re-seed: %s", err), corrID))
			return
		}
		resp.Seeded = n
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

// SeedData inserts missing default preferences without touching existing
// ones.
func (h *Handler) SeedData(w http.ResponseWriter, r *http.Request) {
	corrID := api.CorrelationID(r.Context())
	if h.busy() {
		api.WriteError(w, http.StatusConflict, api.NewConflictError(session.ErrMigrationInProgress.Error(), corrID))
		return
	}

	n, err := seed.Seed(r.Context(), h.store.DB, h.store.Preferences, h.items)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, api.NewInternalError(fmt.Sprintf("failed to seed: %s", err), corrID))
		return
	}
	api.WriteJSON(w, http.StatusOK, resetResponse{Status: "ok", Seeded: n})
}

// Preferences lists every stored preference ordered by key.
func (h *Handler) Preferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.store.Preferences.List(r.Context())
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, api.NewInternalError(err.Error(), api.CorrelationID(r.Context())))
		return
	}

	results := make([]any, len(prefs))
	for i, p := range prefs {
		results[i] = p
	}
	api.WriteJSON(w, http.StatusOK, api.CollectionResponse{Results: results, Total: len(results)})
}

// Preference returns a single preference.
func (h *Handler) Preference(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	corrID := api.CorrelationID(r.Context())

	p, err := h.store.Preferences.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			api.WriteError(w, http.StatusNotFound, api.NewNotFoundError(fmt.Sprintf("preference %s not found", key), corrID))
			return
		}
		api.WriteError(w, http.StatusInternalServerError, api.NewInternalError(err.Error(), corrID))
		return
	}
	api.WriteJSON(w, http.StatusOK, p)
}

// Status reports the completion marker and row counts.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	corrID := api.CorrelationID(ctx)

	resp := statusResponse{Needed: true, Items: len(h.items)}
	st, err := h.store.AppState.MigrationStatus(ctx)
	switch {
	case err == nil:
		resp.Marker = st
		resp.Needed = !st.Completed
	case !errors.Is(err, store.ErrNotFound):
		api.WriteError(w, http.StatusInternalServerError, api.NewInternalError(err.Error(), corrID))
		return
	}

	keys, err := h.store.Preferences.Keys(ctx)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, api.NewInternalError(err.Error(), corrID))
		return
	}
	resp.Preferences = len(keys)
	api.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) busy() bool {
	return h.session != nil && h.session.Active() && h.session.Stage() == session.StageMigration
}

// ResetData deletes all preferences and the completion marker in one
// transaction. It returns the number of preferences deleted.
func ResetData(ctx context.Context, s *store.Store) (int64, error) {
	var deleted int64
	err := database.Txn(ctx, s.DB, func(ctx context.Context, tx *sql.Tx) error {
		n, err := s.Preferences.WithTx(tx).DeleteAll(ctx)
		if err != nil {
			return err
		}
		deleted = n
		return s.AppState.WithTx(tx).ClearMigrationStatus(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("reset data: %w", err)
	}
	return deleted, nil
}
