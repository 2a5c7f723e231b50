package admin

import (
	"net/http"

	"github.com/johnwards/prefmigrate/internal/domain"
	"github.com/johnwards/prefmigrate/internal/store"
)

// RegisterRoutes registers all admin API endpoints on the mux. sess may be
// nil when no migration session is hosted.
func RegisterRoutes(mux *http.ServeMux, s *store.Store, items []domain.Item, sess SessionState) {
	h := &Handler{store: s, items: items, session: sess}

	mux.HandleFunc("POST /_prefmigrate/reset", h.Reset)
	mux.HandleFunc("POST /_prefmigrate/seed", h.SeedData)
	mux.HandleFunc("GET /_prefmigrate/preferences", h.Preferences)
	mux.HandleFunc("GET /_prefmigrate/preferences/{key}", h.Preference)
	mux.HandleFunc("GET /_prefmigrate/status", h.Status)
}
