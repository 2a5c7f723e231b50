package database

// migrations is an ordered list of SQL migration groups. Each entry is a slice
// of SQL statements that are executed together in a single transaction. The
// version number is the 1-based index into this slice.
var migrations = [][]string{
	// Migration 1: target preference store and application state
	{
		`CREATE TABLE preference (
			scope TEXT NOT NULL DEFAULT 'default',
			key TEXT NOT NULL,
			value TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (scope, key)
		)`,

		`CREATE TABLE app_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			description TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE INDEX idx_preference_updated ON preference(updated_at)`,
	},
}
