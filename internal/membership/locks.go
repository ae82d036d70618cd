package membership

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const lockStripes = 64

// collectionLocks serializes writes per collection. Distinct collections may
// share a stripe; that only costs concurrency, never correctness.
type collectionLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *collectionLocks) lock(collectionID string) func() {
	mu := &l.stripes[xxhash.Sum64String(collectionID)%lockStripes]
	mu.Lock()
	return mu.Unlock
}
