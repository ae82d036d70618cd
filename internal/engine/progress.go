package engine

import (
	"context"
	"time"

	"github.com/user/shuttle/internal/store"
)

// Display statuses reported alongside the job state.
const (
	StatusQueued     = "queued"
	StatusInProgress = "in_progress"
	StatusPaused     = "paused"
	StatusCancelling = "cancelling"
)

// Status is the pollable view of a job.
type Status struct {
	TaskID      string   `json:"task_id"`
	Kind        string   `json:"kind"`
	Lane        string   `json:"lane"`
	State       string   `json:"state"`
	Status      string   `json:"status"`
	Current     int      `json:"current"`
	Total       int      `json:"total"`
	Affected    int      `json:"affected"`
	Percent     float64  `json:"percent"`
	ETASeconds  *float64 `json:"eta_seconds,omitempty"`
	Message     string   `json:"message,omitempty"`
	UndoOf      string   `json:"undo_of,omitempty"`
	Undoable    bool     `json:"undoable"`
	CreatedAt   string   `json:"created_at"`
	CompletedAt string   `json:"completed_at,omitempty"`
}

// Status returns the current progress of a job.
func (e *Engine) Status(ctx context.Context, jobID string) (*Status, error) {
	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	_, paused := e.paused.Load(jobID)
	return statusOf(job, paused, time.Now()), nil
}

// List returns the newest jobs first.
func (e *Engine) List(ctx context.Context, limit int) ([]Status, error) {
	jobs, err := e.jobs.ListJobs(ctx, "", limit)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	out := make([]Status, 0, len(jobs))
	for i := range jobs {
		_, paused := e.paused.Load(jobs[i].ID)
		out = append(out, *statusOf(&jobs[i], paused, now))
	}
	return out, nil
}

func statusOf(j *store.Job, paused bool, now time.Time) *Status {
	s := &Status{
		TaskID:    j.ID,
		Kind:      j.Kind,
		Lane:      j.Lane,
		State:     j.State,
		Current:   j.Current,
		Total:     j.Total,
		Affected:  j.Affected,
		Percent:   Percent(j.Current, j.Total),
		Message:   j.Message,
		UndoOf:    j.UndoOf,
		Undoable:  j.Kind == store.KindBulkAdd && j.Terminal(),
		CreatedAt: j.CreatedAt.Format(time.RFC3339Nano),
	}
	if j.CompletedAt != nil {
		s.CompletedAt = j.CompletedAt.Format(time.RFC3339Nano)
	}

	switch {
	case j.Terminal():
		s.Status = j.State
		if j.State == store.StateCompleted {
			zero := 0.0
			s.ETASeconds = &zero
		}
	case j.CancelRequested:
		s.Status = StatusCancelling
	case j.State == store.StatePending:
		s.Status = StatusQueued
	case paused:
		s.Status = StatusPaused
	default:
		s.Status = StatusInProgress
		if j.StartedAt != nil {
			s.ETASeconds = ETA(j.Current, j.Total, now.Sub(*j.StartedAt))
		}
	}
	return s
}

// Percent is current/total*100, or 0 for an empty job.
func Percent(current, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(current) / float64(total) * 100
}

// ETA extrapolates the throughput observed over elapsed to the remaining
// candidates. It returns nil until some progress has been made.
func ETA(current, total int, elapsed time.Duration) *float64 {
	if current <= 0 || elapsed <= 0 {
		return nil
	}
	rate := float64(current) / elapsed.Seconds()
	eta := float64(max(total-current, 0)) / rate
	return &eta
}
