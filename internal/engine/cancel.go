package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/user/shuttle/internal/store"
)

// Cancel outcomes.
const (
	CancelCancelled  = "cancelled"  // withdrawn before a worker claimed it
	CancelCancelling = "cancelling" // running; stops at the next checkpoint
)

// Cancel requests cancellation. A queued job is withdrawn from its lane and
// finished immediately; a running job observes the flag at its next
// checkpoint. For a job that already finished the returned status is its
// terminal state and nothing changes.
func (e *Engine) Cancel(ctx context.Context, jobID string) (string, error) {
	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.Terminal() {
		return job.State, nil
	}

	if err := e.flags.RequestCancel(ctx, jobID); err != nil {
		return "", fmt.Errorf("set cancel flag: %w", err)
	}
	live, err := e.jobs.RequestCancel(ctx, jobID)
	if err != nil {
		return "", err
	}
	if !live {
		j, err := e.jobs.GetJob(ctx, jobID)
		if err != nil {
			return "", err
		}
		return j.State, nil
	}
	slog.Info("cancel requested", "job_id", jobID, "state", job.State)

	if e.lanes.remove(jobID) {
		e.finish(ctx, job, store.StateCancelled, "cancelled before start")
		return CancelCancelled, nil
	}
	return CancelCancelling, nil
}
