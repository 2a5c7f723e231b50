package store

import (
	"errors"
	"strings"

	"github.com/juju/clock"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a unique constraint is violated.
var ErrConflict = errors.New("conflict")

// DefaultScope is the preference scope written by the migration.
const DefaultScope = "default"

// nowMillis returns the current time of clk as Unix milliseconds, the
// timestamp format of every table in the target store.
func nowMillis(clk clock.Clock) int64 {
	return clk.Now().UnixMilli()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
