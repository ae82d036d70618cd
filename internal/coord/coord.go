// Package coord holds cancellation flags addressed by job id.
//
// Flags are eventually visible: a worker polls them once per batch, so a set
// flag is observed within one batch interval.
package coord

import (
	"context"
	"fmt"
	"sync"
)

// Flags is the cancellation coordinator contract.
type Flags interface {
	RequestCancel(ctx context.Context, jobID string) error
	CancelRequested(ctx context.Context, jobID string) (bool, error)
	Clear(ctx context.Context, jobID string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Open returns the named coordinator backend.
func Open(ctx context.Context, backend, redisURL string) (Flags, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendRedis:
		return OpenRedis(ctx, redisURL, DefaultFlagTTL)
	default:
		return nil, fmt.Errorf("unknown coordinator backend %q", backend)
	}
}

// Memory is a single-process coordinator.
type Memory struct {
	mu    sync.RWMutex
	flags map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{flags: make(map[string]struct{})}
}

func (m *Memory) RequestCancel(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[jobID] = struct{}{}
	return nil
}

func (m *Memory) CancelRequested(_ context.Context, jobID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.flags[jobID]
	return ok, nil
}

func (m *Memory) Clear(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flags, jobID)
	return nil
}

func (m *Memory) Close() error { return nil }
