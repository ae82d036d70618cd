// Package engine runs membership mutation jobs.
//
// Jobs are admitted into one of two lanes, executed in fixed-size batches by a
// worker pool, checkpointed after every batch, and observe cancellation
// between batches. Interactive jobs are dispatched ahead of bulk jobs: a
// reserved share of the pool never takes bulk work, and a running bulk job
// drains the interactive lane at each checkpoint before continuing.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/user/shuttle/internal/coord"
	"github.com/user/shuttle/internal/membership"
	"github.com/user/shuttle/internal/store"
)

// Engine owns the lanes and the worker pool.
type Engine struct {
	cfg     Config
	jobs    *store.Store
	members membership.Store
	flags   coord.Flags
	lanes   *lanes
	metrics *Metrics
	tracer  trace.Tracer

	claimed sync.Map // job id -> struct{} from pop until the job finishes
	paused  sync.Map // job id -> struct{} while a bulk job yields to interactive work

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an engine. Call Start to recover persisted work and begin
// executing jobs.
func New(cfg Config, jobs *store.Store, members membership.Store, flags coord.Flags) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	l := newLanes(cfg.Workers)
	return &Engine{
		cfg:     cfg,
		jobs:    jobs,
		members: members,
		flags:   flags,
		lanes:   l,
		metrics: newMetrics(l),
		tracer:  otel.Tracer("github.com/user/shuttle/internal/engine"),
	}, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Metrics returns the engine's collectors.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// Start recovers jobs persisted by a previous process and launches the
// worker pool. Workers stop when ctx is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("engine already started")
	}
	if err := e.recover(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true
	for i := range e.cfg.Workers {
		reserved := i < e.cfg.ReservedInteractive
		e.wg.Add(1)
		go e.worker(ctx, i, reserved)
	}
	slog.Info("engine started",
		"workers", e.cfg.Workers,
		"reserved_interactive", e.cfg.ReservedInteractive,
		"interactive_threshold", e.cfg.InteractiveThreshold,
		"batch_size", e.cfg.BatchSize,
	)
	return nil
}

// Stop cancels in-flight work and waits for workers to exit. Jobs that were
// running are marked failed; queued jobs stay pending and are picked up again
// by the next Start.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	cancel()
	e.wg.Wait()
	slog.Info("engine stopped")
}

func (e *Engine) accepting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// recover fails jobs that were running when the previous process exited and
// re-queues pending ones in admission order.
func (e *Engine) recover(ctx context.Context) error {
	running, err := e.jobs.JobIDsByState(ctx, store.StateRunning)
	if err != nil {
		return fmt.Errorf("recover running jobs: %w", err)
	}
	for _, id := range running {
		if err := e.jobs.FinishJob(ctx, id, store.StateFailed, "interrupted by restart"); err != nil {
			return fmt.Errorf("recover job %s: %w", id, err)
		}
		slog.Warn("job interrupted by restart", "job_id", id)
	}

	pending, err := e.jobs.JobIDsByState(ctx, store.StatePending)
	if err != nil {
		return fmt.Errorf("recover pending jobs: %w", err)
	}
	for _, id := range pending {
		j, err := e.jobs.GetJob(ctx, id)
		if err != nil {
			return fmt.Errorf("recover job %s: %w", id, err)
		}
		e.lanes.push(j.Lane, j.ID)
	}
	if len(running)+len(pending) > 0 {
		slog.Info("recovered jobs", "failed", len(running), "requeued", len(pending))
	}
	return nil
}

// RequeueOrphans re-queues pending jobs that are in neither lane, which can
// happen when a job is admitted by another process sharing the job store.
func (e *Engine) RequeueOrphans(ctx context.Context) (int, error) {
	pending, err := e.jobs.JobIDsByState(ctx, store.StatePending)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range pending {
		if e.lanes.contains(id) || e.isClaimed(id) {
			continue
		}
		j, err := e.jobs.GetJob(ctx, id)
		if err != nil {
			return n, err
		}
		if j.State != store.StatePending {
			continue
		}
		e.lanes.push(j.Lane, j.ID)
		n++
	}
	return n, nil
}

func (e *Engine) isClaimed(id string) bool {
	_, ok := e.claimed.Load(id)
	return ok
}

func (e *Engine) worker(ctx context.Context, n int, reserved bool) {
	defer e.wg.Done()
	allowBulk := !reserved
	slog.Debug("worker started", "worker", n, "reserved_interactive", reserved)
	for {
		if ctx.Err() != nil {
			return
		}
		id, ok := e.lanes.pop(allowBulk)
		if !ok {
			if err := e.lanes.wait(ctx, allowBulk); err != nil {
				return
			}
			continue
		}
		e.run(ctx, id)
	}
}
