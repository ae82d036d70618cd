package engine

import (
	"context"

	"github.com/user/shuttle/internal/store"
)

// Undo admits a job that removes exactly the ids a terminal bulk_add job
// inserted from its target. The undo job goes through the same lanes and
// checkpoints as any other job; it cannot itself be undone.
func (e *Engine) Undo(ctx context.Context, jobID, targetCollectionID string) (*store.Job, error) {
	if !e.accepting() {
		return nil, ErrStopped
	}
	orig, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if orig.Kind != store.KindBulkAdd {
		return nil, validationf("job %s is an undo and cannot be undone", orig.ID)
	}
	if !orig.Terminal() {
		return nil, validationf("job %s is %s; only finished jobs can be undone", orig.ID, orig.State)
	}
	if targetCollectionID == "" {
		targetCollectionID = orig.TargetCollectionID
	}
	if targetCollectionID != orig.TargetCollectionID {
		return nil, validationf("job %s inserted into %s, not %s", orig.ID, orig.TargetCollectionID, targetCollectionID)
	}
	if _, err := e.members.GetCollection(ctx, targetCollectionID); err != nil {
		return nil, err
	}

	ids, err := e.jobs.AffectedIDs(ctx, orig.ID)
	if err != nil {
		return nil, err
	}
	job := &store.Job{
		Kind:               store.KindUndo,
		TargetCollectionID: targetCollectionID,
		UndoOf:             orig.ID,
		Scope:              store.Scope{Mode: store.ScopeSelected, IDs: ids},
		Total:              len(ids),
	}
	if err := e.admit(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

