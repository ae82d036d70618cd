package store

import "time"

// Job states
const (
	StatePending   = "pending"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
	StateCancelled = "cancelled"
)

// Job kinds
const (
	KindBulkAdd = "bulk_add"
	KindUndo    = "undo"
)

// Scope modes
const (
	ScopeAll      = "all"
	ScopeSelected = "selected"
)

// Dispatch lanes
const (
	LaneInteractive = "interactive"
	LaneBulk        = "bulk"
)

// IsTerminal reports whether state is one of the final states.
func IsTerminal(state string) bool {
	switch state {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Scope says which ids a job acts on. IDs is the immutable snapshot captured
// at admission for selected scope; it is empty for all.
type Scope struct {
	Mode string  `json:"mode"`
	IDs  []int64 `json:"company_ids,omitempty"`
}

// Job is one membership mutation tracked through the state machine.
//
// Current counts candidate ids processed so far. Affected counts the ids the
// job actually changed: inserted for bulk_add, removed for undo.
type Job struct {
	ID                 string     `json:"id"`
	Kind               string     `json:"kind"`
	SourceCollectionID string     `json:"source_collection_id,omitempty"`
	TargetCollectionID string     `json:"target_collection_id"`
	UndoOf             string     `json:"undo_of,omitempty"`
	Scope              Scope      `json:"scope"`
	Lane               string     `json:"lane"`
	State              string     `json:"state"`
	Total              int        `json:"total"`
	Current            int        `json:"current"`
	Affected           int        `json:"affected"`
	CancelRequested    bool       `json:"cancel_requested"`
	Message            string     `json:"message,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the job reached a final state.
func (j *Job) Terminal() bool {
	return IsTerminal(j.State)
}

// Event is one entry of a job's lifecycle log.
type Event struct {
	ID        int64     `json:"id"`
	JobID     string    `json:"job_id"`
	Type      string    `json:"type"`
	Data      string    `json:"data,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
