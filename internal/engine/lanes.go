package engine

import (
	"context"
	"sync"

	"github.com/user/shuttle/internal/store"
)

// lanes holds the two FIFO work queues. Interactive jobs are always handed
// out before bulk jobs; within a lane, jobs leave in admission order.
type lanes struct {
	mu          sync.Mutex
	interactive []string
	bulk        []string

	interactiveReady chan struct{}
	bulkReady        chan struct{}
}

func newLanes(workers int) *lanes {
	return &lanes{
		interactiveReady: make(chan struct{}, workers),
		bulkReady:        make(chan struct{}, workers),
	}
}

func (l *lanes) push(lane, id string) {
	l.mu.Lock()
	ready := l.bulkReady
	if lane == store.LaneInteractive {
		l.interactive = append(l.interactive, id)
		ready = l.interactiveReady
	} else {
		l.bulk = append(l.bulk, id)
	}
	l.mu.Unlock()

	select {
	case ready <- struct{}{}:
	default:
	}
}

// pop takes the next job id. Bulk jobs are only considered when allowBulk is
// set and the interactive lane is empty.
func (l *lanes) pop(allowBulk bool) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.interactive) > 0 {
		id := l.interactive[0]
		l.interactive = l.interactive[1:]
		return id, true
	}
	if allowBulk && len(l.bulk) > 0 {
		id := l.bulk[0]
		l.bulk = l.bulk[1:]
		return id, true
	}
	return "", false
}

// remove drops a queued job. It reports false when the job was already
// handed to a worker (or never queued).
func (l *lanes) remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, q := range []*[]string{&l.interactive, &l.bulk} {
		for i, qid := range *q {
			if qid == id {
				*q = append((*q)[:i:i], (*q)[i+1:]...)
				return true
			}
		}
	}
	return false
}

func (l *lanes) contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, q := range [][]string{l.interactive, l.bulk} {
		for _, qid := range q {
			if qid == id {
				return true
			}
		}
	}
	return false
}

func (l *lanes) depth(lane string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lane == store.LaneInteractive {
		return len(l.interactive)
	}
	return len(l.bulk)
}

// wait blocks until a push may have made work available.
func (l *lanes) wait(ctx context.Context, allowBulk bool) error {
	var bulk chan struct{}
	if allowBulk {
		bulk = l.bulkReady
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.interactiveReady:
	case <-bulk:
	}
	return nil
}
