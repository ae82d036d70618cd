package membership

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/pebble"
	"github.com/user/shuttle/internal/kv"
)

// PebbleStore keeps memberships in a Pebble LSM. Writes to one collection are
// serialized by a striped lock and committed as a single batch.
type PebbleStore struct {
	db    *pebble.DB
	locks collectionLocks
	sync  *pebble.WriteOptions
}

// OpenPebble opens (or creates) a Pebble store under dir/pebble.
func OpenPebble(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(filepath.Join(dir, "pebble"), &pebble.Options{
		MemTableSize:          16 << 20, // 16MB
		L0CompactionThreshold: 8,
	})
	if err != nil {
		return nil, fmt.Errorf("open pebble membership store: %w", err)
	}
	return &PebbleStore{db: db, sync: pebble.Sync}, nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func (s *PebbleStore) CreateCollection(ctx context.Context, name string) (*Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := newCollection(name)
	val, err := encodeCollection(c)
	if err != nil {
		return nil, err
	}
	batch := s.db.NewBatch()
	defer func() { _ = batch.Close() }()
	if err := batch.Set(kv.CollectionKey(c.ID), val, nil); err != nil {
		return nil, err
	}
	if err := batch.Set(kv.MemberCountKey(c.ID), kv.PutUint64BE(nil, 0), nil); err != nil {
		return nil, err
	}
	if err := batch.Commit(s.sync); err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return c, nil
}

func (s *PebbleStore) GetCollection(ctx context.Context, id string) (*Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	val, err := s.get(kv.CollectionKey(id))
	if err != nil {
		return nil, err
	}
	if val == nil {
		return nil, notFound(id)
	}
	return decodeCollection(val)
}

func (s *PebbleStore) ListCollections(ctx context.Context) ([]Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lower := kv.CollectionPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: kv.PrefixUpperBound(lower)})
	if err != nil {
		return nil, err
	}
	defer func() { _ = iter.Close() }()

	out := []Collection{}
	for iter.First(); iter.Valid(); iter.Next() {
		c, err := decodeCollection(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("decode collection %q: %w", iter.Key(), err)
		}
		out = append(out, *c)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *PebbleStore) DeleteCollection(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.locks.lock(id)
	defer unlock()
	if err := s.requireCollection(id); err != nil {
		return err
	}
	prefix := kv.MemberPrefix(id)
	batch := s.db.NewBatch()
	defer func() { _ = batch.Close() }()
	if err := batch.Delete(kv.CollectionKey(id), nil); err != nil {
		return err
	}
	if err := batch.Delete(kv.MemberCountKey(id), nil); err != nil {
		return err
	}
	if err := batch.DeleteRange(prefix, kv.PrefixUpperBound(prefix), nil); err != nil {
		return err
	}
	if err := batch.Commit(s.sync); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	return nil
}

func (s *PebbleStore) Count(ctx context.Context, collectionID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.requireCollection(collectionID); err != nil {
		return 0, err
	}
	n, err := s.count(collectionID)
	return int(n), err
}

func (s *PebbleStore) Members(ctx context.Context, collectionID string, from int64, limit int) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.requireCollection(collectionID); err != nil {
		return nil, err
	}
	prefix := kv.MemberPrefix(collectionID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: kv.MemberKey(collectionID, from),
		UpperBound: kv.PrefixUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = iter.Close() }()

	out := make([]int64, 0, limit)
	for iter.First(); iter.Valid() && len(out) < limit; iter.Next() {
		id, ok := kv.MemberIDFromKey(iter.Key())
		if !ok {
			continue
		}
		out = append(out, id)
	}
	return out, iter.Error()
}

func (s *PebbleStore) Contains(ctx context.Context, collectionID string, ids []int64) (map[int64]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.requireCollection(collectionID); err != nil {
		return nil, err
	}
	present := make(map[int64]struct{})
	for _, id := range ids {
		ok, err := s.has(kv.MemberKey(collectionID, id))
		if err != nil {
			return nil, err
		}
		if ok {
			present[id] = struct{}{}
		}
	}
	return present, nil
}

func (s *PebbleStore) Add(ctx context.Context, collectionID string, ids []int64) ([]int64, error) {
	return s.mutate(ctx, collectionID, ids, true)
}

func (s *PebbleStore) Remove(ctx context.Context, collectionID string, ids []int64) ([]int64, error) {
	return s.mutate(ctx, collectionID, ids, false)
}

// mutate applies an insert (add=true) or delete batch under the collection lock.
func (s *PebbleStore) mutate(ctx context.Context, collectionID string, ids []int64, add bool) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	unlock := s.locks.lock(collectionID)
	defer unlock()
	if err := s.requireCollection(collectionID); err != nil {
		return nil, err
	}
	count, err := s.count(collectionID)
	if err != nil {
		return nil, err
	}

	batch := s.db.NewBatch()
	defer func() { _ = batch.Close() }()
	changed := []int64{}
	for _, id := range dedupe(ids) {
		key := kv.MemberKey(collectionID, id)
		exists, err := s.has(key)
		if err != nil {
			return nil, err
		}
		switch {
		case add && !exists:
			err = batch.Set(key, nil, nil)
		case !add && exists:
			err = batch.Delete(key, nil)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}
		changed = append(changed, id)
	}
	if len(changed) == 0 {
		return changed, nil
	}
	if add {
		count += uint64(len(changed))
	} else {
		count -= uint64(len(changed))
	}
	if err := batch.Set(kv.MemberCountKey(collectionID), kv.PutUint64BE(nil, count), nil); err != nil {
		return nil, err
	}
	if err := batch.Commit(s.sync); err != nil {
		return nil, fmt.Errorf("commit membership batch: %w", err)
	}
	return changed, nil
}

func (s *PebbleStore) requireCollection(id string) error {
	ok, err := s.has(kv.CollectionKey(id))
	if err != nil {
		return err
	}
	if !ok {
		return notFound(id)
	}
	return nil
}

func (s *PebbleStore) count(collectionID string) (uint64, error) {
	val, err := s.get(kv.MemberCountKey(collectionID))
	if err != nil || len(val) != 8 {
		return 0, err
	}
	return kv.GetUint64BE(val), nil
}

func (s *PebbleStore) has(key []byte) (bool, error) {
	_, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_ = closer.Close()
	return true, nil
}

// get returns a copy of the value, or nil when the key is absent.
func (s *PebbleStore) get(key []byte) ([]byte, error) {
	v, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = closer.Close() }()
	return append([]byte{}, v...), nil
}
