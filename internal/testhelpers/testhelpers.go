package testhelpers

import (
	"context"
	"database/sql"
	"testing"

	"github.com/johnwards/prefmigrate/internal/database"
)

// NewTestDB returns an in-memory SQLite database configured the same way as
// production. The database is automatically closed when the test completes.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// NewMigratedDB returns a test database with all schema migrations applied.
func NewMigratedDB(t *testing.T) *sql.DB {
	t.Helper()

	db := NewTestDB(t)
	if err := database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}

// FailOnKey installs a trigger that aborts any insert or update of the given
// preference key, so tests can force a failure in the middle of a batch.
func FailOnKey(t *testing.T, db *sql.DB, key string) {
	t.Helper()

	for _, op := range []string{"INSERT", "UPDATE"} {
		stmt := `CREATE TRIGGER fail_` + op + `_` + sanitize(key) + ` BEFORE ` + op + ` ON preference
			WHEN NEW.key = '` + key + `'
			BEGIN SELECT RAISE(ABORT, 'injected failure'); END`
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("install failure trigger: %v", err)
		}
	}
}

func sanitize(s string) string {
	out := []byte(s)
	for i, c := range out {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			out[i] = '_'
		}
	}
	return string(out)
}
