package session

import (
	"errors"
	"fmt"
)

// Stage is one state of the migration session.
type Stage string

const (
	StageIntroduction    Stage = "introduction"
	StageBackupRequired  Stage = "backup_required"
	StageBackupProgress  Stage = "backup_progress"
	StageBackupConfirmed Stage = "backup_confirmed"
	StageMigration       Stage = "migration"
	StageCompleted       Stage = "completed"
	StageError           Stage = "error"
)

// Stages lists every stage in flow order.
var Stages = []Stage{
	StageIntroduction,
	StageBackupRequired,
	StageBackupProgress,
	StageBackupConfirmed,
	StageMigration,
	StageCompleted,
	StageError,
}

// ErrInvalidTransition is returned when an operation is not allowed in the
// current stage.
var ErrInvalidTransition = errors.New("invalid stage transition")

// transitions is the only place stage legality is defined.
var transitions = map[Stage][]Stage{
	StageIntroduction:    {StageBackupRequired},
	StageBackupRequired:  {StageBackupProgress},
	StageBackupProgress:  {StageBackupConfirmed, StageBackupRequired},
	StageBackupConfirmed: {StageMigration},
	StageMigration:       {StageCompleted, StageError},
	StageCompleted:       nil,
	StageError:           {StageIntroduction},
}

// CanTransition reports whether the session may move from one stage to
// another.
func CanTransition(from, to Stage) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Cancellable reports whether a user cancellation is honoured in s. Once the
// migration stage is entered the session cannot be backed out of.
func (s Stage) Cancellable() bool {
	return s != StageMigration
}

// Terminal reports whether s can never be left without a restart.
func (s Stage) Terminal() bool {
	return len(transitions[s]) == 0
}

func checkTransition(from, to Stage) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
