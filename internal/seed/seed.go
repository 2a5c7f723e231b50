// Package seed inserts default preferences.
package seed

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/johnwards/prefmigrate/internal/database"
	"github.com/johnwards/prefmigrate/internal/domain"
	"github.com/johnwards/prefmigrate/internal/mapping"
	"github.com/johnwards/prefmigrate/internal/store"
)

// Seed inserts the default of every item whose target key is not stored
// yet. It is idempotent: existing rows are left untouched. It returns the
// number of rows inserted.
func Seed(ctx context.Context, db *sql.DB, prefs store.PreferenceStore, items []domain.Item) (int, error) {
	defaults := mapping.Defaults(items)
	if len(defaults) == 0 {
		return 0, nil
	}

	var inserted int
	err := database.Txn(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
		n, err := prefs.WithTx(tx).InsertMissing(ctx, defaults)
		inserted = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("seed default preferences: %w", err)
	}
	return inserted, nil
}
