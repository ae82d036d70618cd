// Package membership stores collections and their company memberships.
//
// Every mutation is idempotent and atomic per collection: Add inserts only ids
// that are not yet members and Remove deletes only ids that are, and both
// report exactly which ids they changed.
package membership

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCollectionNotFound is returned when a collection does not exist (or was
// deleted while an operation was in flight).
var ErrCollectionNotFound = errors.New("collection not found")

// Collection is a named set of company ids.
type Collection struct {
	ID        string    `json:"id"`
	Name      string    `json:"collection_name"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the membership store contract used by the engine.
type Store interface {
	CreateCollection(ctx context.Context, name string) (*Collection, error)
	GetCollection(ctx context.Context, id string) (*Collection, error)
	ListCollections(ctx context.Context) ([]Collection, error)
	DeleteCollection(ctx context.Context, id string) error

	// Count returns the current number of members.
	Count(ctx context.Context, collectionID string) (int, error)
	// Members returns up to limit member ids >= from, ascending.
	Members(ctx context.Context, collectionID string, from int64, limit int) ([]int64, error)
	// Contains returns the subset of ids that are members.
	Contains(ctx context.Context, collectionID string, ids []int64) (map[int64]struct{}, error)
	// Add inserts ids and returns the ones that were not already members.
	Add(ctx context.Context, collectionID string, ids []int64) ([]int64, error)
	// Remove deletes ids and returns the ones that were members.
	Remove(ctx context.Context, collectionID string, ids []int64) ([]int64, error)

	Close() error
}

// Backend names accepted by Open.
const (
	BackendPebble = "pebble"
	BackendBadger = "badger"
)

// Open opens the named backend rooted at dir.
func Open(backend, dir string) (Store, error) {
	switch backend {
	case "", BackendPebble:
		return OpenPebble(dir)
	case BackendBadger:
		return OpenBadger(dir)
	default:
		return nil, fmt.Errorf("unknown membership backend %q", backend)
	}
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrCollectionNotFound, id)
}
