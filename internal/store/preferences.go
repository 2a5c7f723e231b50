package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/juju/clock"

	"github.com/johnwards/prefmigrate/internal/domain"
	"github.com/johnwards/prefmigrate/internal/value"
)

// maxRowsPerInsert bounds a single multi-row INSERT well below SQLite's
// host parameter limit.
const maxRowsPerInsert = 1000

// Preference is one row of the target preference table.
type Preference struct {
	Scope     string      `json:"scope"`
	Key       string      `json:"key"`
	Value     value.Value `json:"value"`
	CreatedAt int64       `json:"createdAt"`
	UpdatedAt int64       `json:"updatedAt"`
}

// PreferenceStore defines the interface for target preference persistence.
type PreferenceStore interface {
	Keys(ctx context.Context) (map[string]struct{}, error)
	Get(ctx context.Context, key string) (*Preference, error)
	List(ctx context.Context) ([]*Preference, error)
	InsertBatch(ctx context.Context, records []domain.PreparedRecord) error
	Update(ctx context.Context, key string, v value.Value) error
	InsertMissing(ctx context.Context, defaults map[string]value.Value) (int, error)
	DeleteAll(ctx context.Context) (int64, error)
	WithTx(tx *sql.Tx) PreferenceStore
}

// SQLitePreferenceStore implements PreferenceStore backed by SQLite.
type SQLitePreferenceStore struct {
	q   DBTX
	clk clock.Clock
}

// NewSQLitePreferenceStore creates a new SQLitePreferenceStore.
func NewSQLitePreferenceStore(q DBTX, clk clock.Clock) *SQLitePreferenceStore {
	return &SQLitePreferenceStore{q: q, clk: clk}
}

// WithTx returns a store that runs every statement inside tx.
func (s *SQLitePreferenceStore) WithTx(tx *sql.Tx) PreferenceStore {
	return &SQLitePreferenceStore{q: tx, clk: s.clk}
}

// Keys returns the set of keys present in the default scope.
func (s *SQLitePreferenceStore) Keys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT key FROM preference WHERE scope = ?`, DefaultScope)
	if err != nil {
		return nil, fmt.Errorf("query preference keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	keys := make(map[string]struct{})
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan preference key: %w", err)
		}
		keys[k] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate preference keys: %w", err)
	}
	return keys, nil
}

// Get returns a single preference of the default scope.
func (s *SQLitePreferenceStore) Get(ctx context.Context, key string) (*Preference, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT scope, key, value, created_at, updated_at FROM preference WHERE scope = ? AND key = ?`,
		DefaultScope, key,
	)
	p, err := scanPreference(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("preference %q: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("get preference: %w", err)
	}
	return p, nil
}

// List returns every preference of the default scope ordered by key.
func (s *SQLitePreferenceStore) List(ctx context.Context) ([]*Preference, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT scope, key, value, created_at, updated_at FROM preference WHERE scope = ? ORDER BY key`,
		DefaultScope,
	)
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Preference
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate preferences: %w", err)
	}
	return out, nil
}

// InsertBatch inserts all records with multi-row INSERT statements. Every
// row gets the same created and updated timestamp.
func (s *SQLitePreferenceStore) InsertBatch(ctx context.Context, records []domain.PreparedRecord) error {
	if len(records) == 0 {
		return nil
	}
	ts := nowMillis(s.clk)

	for start := 0; start < len(records); start += maxRowsPerInsert {
		end := min(start+maxRowsPerInsert, len(records))
		chunk := records[start:end]

		var b strings.Builder
		b.WriteString(`INSERT INTO preference (scope, key, value, created_at, updated_at) VALUES `)
		args := make([]any, 0, len(chunk)*5)
		for i, r := range chunk {
			encoded, err := r.Value.MarshalJSON()
			if err != nil {
				return fmt.Errorf("encode preference %q: %w", r.TargetKey, err)
			}
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(?, ?, ?, ?, ?)")
			args = append(args, DefaultScope, r.TargetKey, string(encoded), ts, ts)
		}

		if _, err := s.q.ExecContext(ctx, b.String(), args...); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert preferences: %w", ErrConflict)
			}
			return fmt.Errorf("insert preferences: %w", err)
		}
	}
	return nil
}

// Update replaces the value of an existing preference. Updating a key that
// does not exist returns ErrNotFound.
func (s *SQLitePreferenceStore) Update(ctx context.Context, key string, v value.Value) error {
	encoded, err := v.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode preference %q: %w", key, err)
	}

	res, err := s.q.ExecContext(ctx,
		`UPDATE preference SET value = ?, updated_at = ? WHERE scope = ? AND key = ?`,
		string(encoded), nowMillis(s.clk), DefaultScope, key,
	)
	if err != nil {
		return fmt.Errorf("update preference %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update preference %q: %w", key, ErrNotFound)
	}
	return nil
}

// InsertMissing inserts the given defaults for keys that are not present
// yet and leaves existing keys untouched. It returns the number of rows
// inserted.
func (s *SQLitePreferenceStore) InsertMissing(ctx context.Context, defaults map[string]value.Value) (int, error) {
	ts := nowMillis(s.clk)
	inserted := 0
	for key, v := range defaults {
		encoded, err := v.MarshalJSON()
		if err != nil {
			return inserted, fmt.Errorf("encode preference %q: %w", key, err)
		}
		res, err := s.q.ExecContext(ctx,
			`INSERT INTO preference (scope, key, value, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(scope, key) DO NOTHING`,
			DefaultScope, key, string(encoded), ts, ts,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert default %q: %w", key, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}
	return inserted, nil
}

// DeleteAll removes every preference of the default scope.
func (s *SQLitePreferenceStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM preference WHERE scope = ?`, DefaultScope)
	if err != nil {
		return 0, fmt.Errorf("delete preferences: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPreference(sc scanner) (*Preference, error) {
	var (
		p   Preference
		raw sql.NullString
	)
	if err := sc.Scan(&p.Scope, &p.Key, &raw, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if !raw.Valid {
		p.Value = value.NewNull()
		return &p, nil
	}
	v, err := value.Parse([]byte(raw.String))
	if err != nil {
		return nil, fmt.Errorf("decode preference %q: %w", p.Key, err)
	}
	p.Value = v
	return &p, nil
}
