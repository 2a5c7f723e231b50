package domain

import "github.com/johnwards/prefmigrate/internal/value"

// PreparedRecord is a fully resolved, type-coerced preference ready to be
// written to the target store.
type PreparedRecord struct {
	TargetKey   string      `json:"targetKey"`
	Value       value.Value `json:"value"`
	Source      Source      `json:"source"`
	OriginalKey string      `json:"originalKey"`
}

// PreparationError records an item that could not be prepared.
type PreparationError struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// BatchPlan is the output of the prepare phase. Every target key appears in
// at most one of New and Updated.
type BatchPlan struct {
	New               []PreparedRecord   `json:"newRecords"`
	Updated           []PreparedRecord   `json:"updatedRecords"`
	Skipped           int                `json:"skippedCount"`
	PreparationErrors []PreparationError `json:"preparationErrors"`
}

// Records returns the number of records the plan will write.
func (p *BatchPlan) Records() int {
	return len(p.New) + len(p.Updated)
}
