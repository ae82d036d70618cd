package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/user/shuttle/internal/dedup"
	"github.com/user/shuttle/internal/membership"
	"github.com/user/shuttle/internal/store"
)

// candidates yields a job's candidate ids a batch at a time. An empty batch
// means the candidate set is exhausted.
type candidates interface {
	next(ctx context.Context, limit int) ([]int64, error)
}

// snapshot walks an immutable id list captured at admission.
type snapshot struct {
	ids []int64
	pos int
}

func (s *snapshot) next(_ context.Context, limit int) ([]int64, error) {
	end := min(s.pos+limit, len(s.ids))
	batch := s.ids[s.pos:end]
	s.pos = end
	return batch, nil
}

// liveMembers pages through a collection's current members in ascending id
// order, resolved lazily batch by batch.
type liveMembers struct {
	members      membership.Store
	collectionID string
	from         int64
	done         bool
}

func (m *liveMembers) next(ctx context.Context, limit int) ([]int64, error) {
	if m.done {
		return nil, nil
	}
	ids, err := m.members.Members(ctx, m.collectionID, m.from, limit)
	if err != nil {
		return nil, err
	}
	if len(ids) < limit {
		m.done = true
	}
	if n := len(ids); n > 0 {
		if last := ids[n-1]; last == math.MaxInt64 {
			m.done = true
		} else {
			m.from = last + 1
		}
	}
	return ids, nil
}

func (e *Engine) candidatesFor(j *store.Job) candidates {
	if j.Scope.Mode == store.ScopeAll {
		return &liveMembers{members: e.members, collectionID: j.SourceCollectionID, from: math.MinInt64}
	}
	return &snapshot{ids: j.Scope.IDs}
}

// run claims a pending job and drives it to a terminal state.
func (e *Engine) run(ctx context.Context, id string) {
	e.claimed.Store(id, struct{}{})
	defer e.claimed.Delete(id)

	job, err := e.jobs.GetJob(ctx, id)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("load job", "job_id", id, "error", err)
		}
		return
	}
	if job.State != store.StatePending {
		return
	}
	// Terminal writes must land even while shutting down.
	finishCtx := context.WithoutCancel(ctx)
	if job.CancelRequested || e.cancelRequested(ctx, id) {
		e.finish(finishCtx, job, store.StateCancelled, "cancelled before start")
		return
	}
	if err := e.jobs.MarkRunning(ctx, id); err != nil {
		if !errors.Is(err, store.ErrInvalidTransition) {
			slog.Error("mark job running", "job_id", id, "error", err)
		}
		return
	}

	e.metrics.running.Inc()
	defer e.metrics.running.Dec()

	ctx, span := e.tracer.Start(ctx, "engine.job", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.kind", job.Kind),
		attribute.String("job.lane", job.Lane),
		attribute.Int("job.total", job.Total),
	))
	defer span.End()

	slog.Info("job started", "job_id", job.ID, "kind", job.Kind, "lane", job.Lane, "total", job.Total)
	state, msg := e.execute(ctx, job)
	span.SetAttributes(attribute.String("job.state", state))
	if state == store.StateFailed {
		span.SetStatus(codes.Error, msg)
	}
	e.finish(finishCtx, job, state, msg)
}

// execute processes batches until the candidate set is exhausted, the job is
// cancelled, or an error stops it. It returns the terminal state and message.
func (e *Engine) execute(ctx context.Context, job *store.Job) (string, string) {
	if e.cancelRequested(ctx, job.ID) {
		return store.StateCancelled, "cancelled before first batch"
	}
	src := e.candidatesFor(job)
	current := job.Current
	for current < job.Total {
		if ctx.Err() != nil {
			return store.StateFailed, "interrupted: shutting down"
		}
		batch, err := src.next(ctx, min(e.cfg.BatchSize, job.Total-current))
		if err != nil {
			return e.failure(ctx, job, err)
		}
		if len(batch) == 0 {
			return store.StateCompleted, fmt.Sprintf("source collection has fewer members than admitted: processed %d of %d", current, job.Total)
		}
		if err := e.processBatch(ctx, job, current, batch); err != nil {
			return e.failure(ctx, job, err)
		}
		current += len(batch)

		if e.cancelRequested(ctx, job.ID) {
			return store.StateCancelled, fmt.Sprintf("cancelled after %d of %d", current, job.Total)
		}
		if job.Lane == store.LaneBulk {
			e.yield(ctx, job.ID)
		}
	}
	return store.StateCompleted, ""
}

func (e *Engine) failure(ctx context.Context, job *store.Job, err error) (string, string) {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return store.StateFailed, "interrupted: shutting down"
	}
	slog.Error("job failed", "job_id", job.ID, "kind", job.Kind, "error", err)
	switch {
	case errors.Is(err, membership.ErrCollectionNotFound):
		return store.StateFailed, fmt.Sprintf("collection deleted while job was running: %v", err)
	case membership.IsOverloadedError(err):
		return store.StateFailed, fmt.Sprintf("membership store overloaded after %d attempts: %v", e.cfg.RetryAttempts, err)
	default:
		return store.StateFailed, err.Error()
	}
}

// processBatch dedups one batch against the target, applies it, and
// checkpoints the ids that actually changed.
func (e *Engine) processBatch(ctx context.Context, job *store.Job, current int, batch []int64) error {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "engine.batch", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.Int("batch.offset", current),
		attribute.Int("batch.size", len(batch)),
	))
	defer span.End()

	changed, err := e.applyWithRetry(ctx, job, batch)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := e.checkpoint(ctx, job.ID, current+len(batch), changed); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(attribute.Int("batch.changed", len(changed)))
	e.metrics.processed.WithLabelValues(job.Kind).Add(float64(len(batch)))
	e.metrics.mutated.WithLabelValues(job.Kind).Add(float64(len(changed)))
	e.metrics.batchSeconds.Observe(time.Since(start).Seconds())
	slog.Debug("batch checkpointed", "job_id", job.ID, "current", current+len(batch), "total", job.Total, "changed", len(changed))
	return nil
}

// checkpoint records a batch whose membership write already committed. It
// ignores cancellation of ctx so a shutdown cannot drop the batch's ids from
// the job record, and retries transient failures before giving up.
func (e *Engine) checkpoint(ctx context.Context, jobID string, current int, changed []int64) error {
	ctx = context.WithoutCancel(ctx)
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.RetryBaseDelay
	b.MaxInterval = e.cfg.RetryMaxDelay

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := e.jobs.Checkpoint(ctx, jobID, current, changed)
		if errors.Is(err, store.ErrInvalidTransition) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(e.cfg.RetryAttempts)),
		backoff.WithNotify(func(err error, d time.Duration) {
			slog.Warn("checkpoint failed, retrying", "job_id", jobID, "current", current, "delay", d, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("record batch ending at %d: %w", current, err)
	}
	return nil
}

func (e *Engine) applyWithRetry(ctx context.Context, job *store.Job, batch []int64) ([]int64, error) {
	return e.retry(ctx, func() ([]int64, error) {
		return e.apply(ctx, job, batch)
	}, "job_id", job.ID)
}

// apply performs one attempt at a batch. Only the ids the store reports as
// changed are returned, so two jobs racing on the same target never both
// claim an id.
func (e *Engine) apply(ctx context.Context, job *store.Job, batch []int64) ([]int64, error) {
	if job.Kind == store.KindUndo {
		present, err := dedup.ToRemove(ctx, e.members, job.TargetCollectionID, batch)
		if err != nil || len(present) == 0 {
			return []int64{}, err
		}
		return e.members.Remove(ctx, job.TargetCollectionID, present)
	}

	if job.SourceCollectionID != "" {
		if _, err := e.members.GetCollection(ctx, job.SourceCollectionID); err != nil {
			return nil, err
		}
	}
	missing, err := dedup.ToInsert(ctx, e.members, job.TargetCollectionID, batch)
	if err != nil || len(missing) == 0 {
		return []int64{}, err
	}
	return e.members.Add(ctx, job.TargetCollectionID, missing)
}

// retry runs op, backing off while the membership store reports overload.
// Any other error stops immediately. logAttrs are added to retry logs.
func (e *Engine) retry(ctx context.Context, op func() ([]int64, error), logAttrs ...any) ([]int64, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.RetryBaseDelay
	b.MaxInterval = e.cfg.RetryMaxDelay

	return backoff.Retry(ctx, func() ([]int64, error) {
		ids, err := op()
		if err == nil {
			return ids, nil
		}
		if membership.IsOverloadedError(err) {
			if ms, ok := membership.OverloadRetryAfterMs(err); ok {
				select {
				case <-ctx.Done():
					return nil, backoff.Permanent(ctx.Err())
				case <-time.After(time.Duration(ms) * time.Millisecond):
				}
			}
			return nil, err
		}
		return nil, backoff.Permanent(err)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(e.cfg.RetryAttempts)),
		backoff.WithNotify(func(err error, d time.Duration) {
			e.metrics.retries.Inc()
			slog.Warn("membership store overloaded, retrying batch", append([]any{"delay", d, "error", err}, logAttrs...)...)
		}),
	)
}

// yield runs every queued interactive job to completion before a bulk job
// takes its next batch.
func (e *Engine) yield(ctx context.Context, bulkID string) {
	for ctx.Err() == nil {
		id, ok := e.lanes.pop(false)
		if !ok {
			return
		}
		e.paused.Store(bulkID, struct{}{})
		e.run(ctx, id)
		e.paused.Delete(bulkID)
	}
}

// cancelRequested reads the coordinator flag, falling back to the job record
// when the coordinator is unreachable.
func (e *Engine) cancelRequested(ctx context.Context, id string) bool {
	ok, err := e.flags.CancelRequested(ctx, id)
	if err == nil {
		return ok
	}
	slog.Warn("cancel flag unavailable, reading job record", "job_id", id, "error", err)
	j, err := e.jobs.GetJob(ctx, id)
	return err == nil && j.CancelRequested
}

func (e *Engine) finish(ctx context.Context, job *store.Job, state, msg string) {
	if err := e.jobs.FinishJob(ctx, job.ID, state, msg); err != nil {
		slog.Error("finish job", "job_id", job.ID, "state", state, "error", err)
		return
	}
	if err := e.flags.Clear(ctx, job.ID); err != nil {
		slog.Warn("clear cancel flag", "job_id", job.ID, "error", err)
	}
	e.metrics.finished.WithLabelValues(job.Kind, state).Inc()
	slog.Info("job finished", "job_id", job.ID, "kind", job.Kind, "state", state, "message", msg)
}
