package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/juju/clock"

	"github.com/johnwards/prefmigrate/internal/domain"
)

// AppStateStore defines the interface for application state persistence.
type AppStateStore interface {
	MigrationStatus(ctx context.Context) (*domain.MigrationStatus, error)
	SetMigrationStatus(ctx context.Context, status domain.MigrationStatus) error
	ClearMigrationStatus(ctx context.Context) error
	WithTx(tx *sql.Tx) AppStateStore
}

// SQLiteAppStateStore implements AppStateStore backed by SQLite.
type SQLiteAppStateStore struct {
	q   DBTX
	clk clock.Clock
}

// NewSQLiteAppStateStore creates a new SQLiteAppStateStore.
func NewSQLiteAppStateStore(q DBTX, clk clock.Clock) *SQLiteAppStateStore {
	return &SQLiteAppStateStore{q: q, clk: clk}
}

// WithTx returns a store that runs its queries inside tx.
func (s *SQLiteAppStateStore) WithTx(tx *sql.Tx) AppStateStore {
	return &SQLiteAppStateStore{q: tx, clk: s.clk}
}

// MigrationStatus returns the persisted completion marker, or ErrNotFound
// when it was never written.
func (s *SQLiteAppStateStore) MigrationStatus(ctx context.Context) (*domain.MigrationStatus, error) {
	var raw string
	err := s.q.QueryRowContext(ctx,
		`SELECT value FROM app_state WHERE key = ?`, domain.MigrationStatusKey,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("migration status: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("get migration status: %w", err)
	}

	var st domain.MigrationStatus
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("decode migration status: %w", err)
	}
	return &st, nil
}

// SetMigrationStatus writes the completion marker, replacing any earlier
// value.
func (s *SQLiteAppStateStore) SetMigrationStatus(ctx context.Context, status domain.MigrationStatus) error {
	encoded, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode migration status: %w", err)
	}
	ts := nowMillis(s.clk)

	_, err = s.q.ExecContext(ctx,
		`INSERT INTO app_state (key, value, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		domain.MigrationStatusKey, string(encoded), "Preference data migration status", ts, ts,
	)
	if err != nil {
		return fmt.Errorf("set migration status: %w", err)
	}
	return nil
}

// ClearMigrationStatus deletes the completion marker.
func (s *SQLiteAppStateStore) ClearMigrationStatus(ctx context.Context) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM app_state WHERE key = ?`, domain.MigrationStatusKey); err != nil {
		return fmt.Errorf("clear migration status: %w", err)
	}
	return nil
}
