package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/user/shuttle/internal/dedup"
	"github.com/user/shuttle/internal/store"
)

// BulkAddRequest asks for companies in a source collection to be added to a
// target collection.
type BulkAddRequest struct {
	SourceCollectionID string
	TargetCollectionID string
	Mode               string  // store.ScopeAll or store.ScopeSelected
	CompanyIDs         []int64 // required for selected, ignored for all
}

// StartBulkAdd validates a request, persists a pending job, and queues it.
// A rejected request creates nothing.
func (e *Engine) StartBulkAdd(ctx context.Context, req BulkAddRequest) (*store.Job, error) {
	if !e.accepting() {
		return nil, ErrStopped
	}
	if req.SourceCollectionID == "" || req.TargetCollectionID == "" {
		return nil, validationf("source and target collection ids are required")
	}
	if req.SourceCollectionID == req.TargetCollectionID {
		return nil, validationf("source and target collection must differ")
	}
	for _, id := range []string{req.SourceCollectionID, req.TargetCollectionID} {
		if _, err := e.members.GetCollection(ctx, id); err != nil {
			return nil, err
		}
	}

	job := &store.Job{
		Kind:               store.KindBulkAdd,
		SourceCollectionID: req.SourceCollectionID,
		TargetCollectionID: req.TargetCollectionID,
	}
	switch req.Mode {
	case store.ScopeAll:
		n, err := e.members.Count(ctx, req.SourceCollectionID)
		if err != nil {
			return nil, fmt.Errorf("count source members: %w", err)
		}
		job.Scope = store.Scope{Mode: store.ScopeAll}
		job.Total = n
	case store.ScopeSelected:
		ids := dedup.Unique(req.CompanyIDs)
		if len(ids) == 0 {
			return nil, validationf("company_ids must not be empty when mode is %q", store.ScopeSelected)
		}
		job.Scope = store.Scope{Mode: store.ScopeSelected, IDs: ids}
		job.Total = len(ids)
	default:
		return nil, validationf("mode must be %q or %q, got %q", store.ScopeAll, store.ScopeSelected, req.Mode)
	}

	if err := e.admit(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// laneFor routes small jobs to the interactive lane.
func (e *Engine) laneFor(total int) string {
	if total < e.cfg.InteractiveThreshold {
		return store.LaneInteractive
	}
	return store.LaneBulk
}

func (e *Engine) admit(ctx context.Context, job *store.Job) error {
	job.Lane = e.laneFor(job.Total)
	if err := e.jobs.CreateJob(ctx, job); err != nil {
		return fmt.Errorf("admit job: %w", err)
	}
	e.lanes.push(job.Lane, job.ID)
	e.metrics.admitted.WithLabelValues(job.Kind, job.Lane).Inc()
	slog.Info("job admitted",
		"job_id", job.ID,
		"kind", job.Kind,
		"lane", job.Lane,
		"total", job.Total,
		"source", job.SourceCollectionID,
		"target", job.TargetCollectionID,
	)
	return nil
}
