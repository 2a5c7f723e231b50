package store

import (
	"context"
	"database/sql"

	"github.com/juju/clock"
)

// DBTX is the query surface shared by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ DBTX = (*sql.DB)(nil)
	_ DBTX = (*sql.Tx)(nil)
)

// Store holds all sub-stores used by the application.
type Store struct {
	DB          *sql.DB
	Preferences PreferenceStore
	AppState    AppStateStore
}

// New creates a Store with all sub-stores initialized. Timestamps are taken
// from clk; pass clock.WallClock outside of tests.
func New(db *sql.DB, clk clock.Clock) *Store {
	return &Store{
		DB:          db,
		Preferences: NewSQLitePreferenceStore(db, clk),
		AppState:    NewSQLiteAppStateStore(db, clk),
	}
}
