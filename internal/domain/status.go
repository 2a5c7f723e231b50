package domain

// MigrationStatusKey is the app_state key holding the completion marker.
const MigrationStatusKey = "data_refactor_migration_status"

// MigrationStatus is the persisted completion marker. CompletedAt is Unix
// milliseconds.
type MigrationStatus struct {
	Completed   bool   `json:"completed"`
	CompletedAt *int64 `json:"completedAt,omitempty"`
	Version     string `json:"version,omitempty"`
}

// Phase identifies which half of the migration emitted a progress event.
type Phase string

const (
	PhasePrepare Phase = "prepare"
	PhaseExecute Phase = "execute"
)

// ProgressEvent reports fractional progress of one phase. Done/Total is the
// fraction of the phase that has finished.
type ProgressEvent struct {
	Phase   Phase
	Done    int
	Total   int
	Message string
}

// Fraction returns Done/Total clamped to [0,1]. An empty phase is complete.
func (e ProgressEvent) Fraction() float64 {
	if e.Total <= 0 {
		return 1
	}
	f := float64(e.Done) / float64(e.Total)
	return min(max(f, 0), 1)
}
