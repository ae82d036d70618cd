package engine

import (
	"context"
	"log/slog"
	"math"

	"github.com/user/shuttle/internal/dedup"
	"github.com/user/shuttle/internal/store"
)

// RemoveRequest selects members to delete from a collection.
type RemoveRequest struct {
	Mode       string  // store.ScopeAll or store.ScopeSelected
	CompanyIDs []int64 // members to delete for selected
	ExcludeIDs []int64 // members to keep for all
}

// RemoveMembers synchronously deletes members of a collection and returns
// how many were removed. It runs outside the lanes and leaves no job record.
func (e *Engine) RemoveMembers(ctx context.Context, collectionID string, req RemoveRequest) (int, error) {
	if req.Mode != store.ScopeAll && req.Mode != store.ScopeSelected {
		return 0, validationf("mode must be %q or %q, got %q", store.ScopeAll, store.ScopeSelected, req.Mode)
	}
	if _, err := e.members.GetCollection(ctx, collectionID); err != nil {
		return 0, err
	}
	exclude := make(map[int64]struct{}, len(req.ExcludeIDs))
	for _, id := range req.ExcludeIDs {
		exclude[id] = struct{}{}
	}

	deleted := 0
	removeBatch := func(ids []int64) error {
		ids = dedup.Difference(ids, exclude)
		if len(ids) == 0 {
			return nil
		}
		removed, err := e.retry(ctx, func() ([]int64, error) {
			return e.members.Remove(ctx, collectionID, ids)
		}, "collection_id", collectionID)
		deleted += len(removed)
		return err
	}

	switch req.Mode {
	case store.ScopeSelected:
		ids := dedup.Unique(req.CompanyIDs)
		for start := 0; start < len(ids); start += e.cfg.BatchSize {
			if err := removeBatch(ids[start:min(start+e.cfg.BatchSize, len(ids))]); err != nil {
				return deleted, err
			}
		}
	case store.ScopeAll:
		from := int64(math.MinInt64)
		for {
			page, err := e.members.Members(ctx, collectionID, from, e.cfg.BatchSize)
			if err != nil {
				return deleted, err
			}
			if len(page) == 0 {
				break
			}
			if err := removeBatch(page); err != nil {
				return deleted, err
			}
			last := page[len(page)-1]
			if len(page) < e.cfg.BatchSize || last == math.MaxInt64 {
				break
			}
			from = last + 1
		}
	}

	slog.Info("members removed", "collection_id", collectionID, "mode", req.Mode, "deleted", deleted)
	return deleted, nil
}
