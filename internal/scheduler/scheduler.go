package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Config holds scheduler configuration.
type Config struct {
	Interval        time.Duration // base tick cadence (default 1s)
	RequeueInterval time.Duration // re-queue pending jobs missing from the lanes
	PruneInterval   time.Duration // delete old job lifecycle events
	EventRetention  time.Duration // how long lifecycle events are kept
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:        1 * time.Second,
		RequeueInterval: 5 * time.Second,
		PruneInterval:   1 * time.Hour,
		EventRetention:  7 * 24 * time.Hour,
	}
}

// Requeuer puts pending jobs that no lane holds back into their lane.
type Requeuer interface {
	RequeueOrphans(ctx context.Context) (int, error)
}

// EventPruner deletes job lifecycle events older than a cutoff.
type EventPruner interface {
	PruneEvents(ctx context.Context, before time.Time) (int64, error)
}

// Scheduler runs periodic maintenance tasks.
type Scheduler struct {
	requeuer    Requeuer
	pruner      EventPruner
	config      Config
	lastRequeue time.Time
	lastPrune   time.Time
}

// New creates a new Scheduler.
func New(r Requeuer, p EventPruner, config Config) *Scheduler {
	def := DefaultConfig()
	if config.Interval == 0 {
		config.Interval = def.Interval
	}
	if config.RequeueInterval == 0 {
		config.RequeueInterval = def.RequeueInterval
	}
	if config.PruneInterval == 0 {
		config.PruneInterval = def.PruneInterval
	}
	if config.EventRetention == 0 {
		config.EventRetention = def.EventRetention
	}
	return &Scheduler{requeuer: r, pruner: p, config: config}
}

// Run starts the scheduler loop. It blocks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("scheduler started", "interval", s.config.Interval)
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx, false)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, force bool) {
	now := time.Now()

	if force || now.Sub(s.lastRequeue) >= s.config.RequeueInterval {
		n, err := s.requeuer.RequeueOrphans(ctx)
		if err != nil {
			slog.Error("requeue pending jobs", "error", err)
		} else if n > 0 {
			slog.Info("requeued pending jobs", "count", n)
		}
		s.lastRequeue = now
	}
	if force || now.Sub(s.lastPrune) >= s.config.PruneInterval {
		n, err := s.pruner.PruneEvents(ctx, now.Add(-s.config.EventRetention))
		if err != nil {
			slog.Error("prune job events", "error", err)
		} else if n > 0 {
			slog.Debug("pruned job events", "count", n)
		}
		s.lastPrune = now
	}
}

// RunOnce executes a single scheduler tick. Useful for testing.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.tick(ctx, true)
}
