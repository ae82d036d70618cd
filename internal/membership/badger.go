package membership

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/user/shuttle/internal/kv"
)

const (
	badgerConflictRetries = 3
	badgerDeleteChunk     = 1000
)

// BadgerStore keeps memberships in Badger. Each mutation runs in one
// serializable transaction; conflicting writers surface as overloaded errors.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a Badger store under dir/badger.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(filepath.Join(dir, "badger"))
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger membership store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) CreateCollection(ctx context.Context, name string) (*Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := newCollection(name)
	val, err := encodeCollection(c)
	if err != nil {
		return nil, err
	}
	err = s.update(func(txn *badger.Txn) error {
		if err := txn.Set(kv.CollectionKey(c.ID), val); err != nil {
			return err
		}
		return txn.Set(kv.MemberCountKey(c.ID), kv.PutUint64BE(nil, 0))
	})
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return c, nil
}

func (s *BadgerStore) GetCollection(ctx context.Context, id string) (*Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var c *Collection
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(kv.CollectionKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return notFound(id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			c, err = decodeCollection(val)
			return err
		})
	})
	return c, err
}

func (s *BadgerStore) ListCollections(ctx context.Context) ([]Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []Collection{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = kv.CollectionPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			c, err := decodeCollection(val)
			if err != nil {
				return fmt.Errorf("decode collection %q: %w", it.Item().Key(), err)
			}
			out = append(out, *c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// DeleteCollection removes the metadata first so concurrent writers fail fast,
// then clears member keys in chunks to stay under badger's transaction limit.
func (s *BadgerStore) DeleteCollection(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.update(func(txn *badger.Txn) error {
		if err := requireCollectionTxn(txn, id); err != nil {
			return err
		}
		if err := txn.Delete(kv.CollectionKey(id)); err != nil {
			return err
		}
		return txn.Delete(kv.MemberCountKey(id))
	})
	if err != nil {
		return err
	}
	prefix := kv.MemberPrefix(id)
	for {
		var keys [][]byte
		err := s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = prefix
			it := txn.NewIterator(opts)
			defer it.Close()
			for it.Rewind(); it.Valid() && len(keys) < badgerDeleteChunk; it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
			return nil
		})
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			return nil
		}
		wb := s.db.NewWriteBatch()
		for _, k := range keys {
			if err := wb.Delete(k); err != nil {
				wb.Cancel()
				return err
			}
		}
		if err := wb.Flush(); err != nil {
			return fmt.Errorf("delete collection members: %w", err)
		}
	}
}

func (s *BadgerStore) Count(ctx context.Context, collectionID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n uint64
	err := s.db.View(func(txn *badger.Txn) error {
		if err := requireCollectionTxn(txn, collectionID); err != nil {
			return err
		}
		var err error
		n, err = countTxn(txn, collectionID)
		return err
	})
	return int(n), err
}

func (s *BadgerStore) Members(ctx context.Context, collectionID string, from int64, limit int) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]int64, 0, limit)
	err := s.db.View(func(txn *badger.Txn) error {
		if err := requireCollectionTxn(txn, collectionID); err != nil {
			return err
		}
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = kv.MemberPrefix(collectionID)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(kv.MemberKey(collectionID, from)); it.Valid() && len(out) < limit; it.Next() {
			if id, ok := kv.MemberIDFromKey(it.Item().Key()); ok {
				out = append(out, id)
			}
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) Contains(ctx context.Context, collectionID string, ids []int64) (map[int64]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	present := make(map[int64]struct{})
	err := s.db.View(func(txn *badger.Txn) error {
		if err := requireCollectionTxn(txn, collectionID); err != nil {
			return err
		}
		for _, id := range ids {
			ok, err := hasTxn(txn, kv.MemberKey(collectionID, id))
			if err != nil {
				return err
			}
			if ok {
				present[id] = struct{}{}
			}
		}
		return nil
	})
	return present, err
}

func (s *BadgerStore) Add(ctx context.Context, collectionID string, ids []int64) ([]int64, error) {
	return s.mutate(ctx, collectionID, ids, true)
}

func (s *BadgerStore) Remove(ctx context.Context, collectionID string, ids []int64) ([]int64, error) {
	return s.mutate(ctx, collectionID, ids, false)
}

func (s *BadgerStore) mutate(ctx context.Context, collectionID string, ids []int64, add bool) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var changed []int64
	err := s.update(func(txn *badger.Txn) error {
		changed = []int64{}
		if err := requireCollectionTxn(txn, collectionID); err != nil {
			return err
		}
		count, err := countTxn(txn, collectionID)
		if err != nil {
			return err
		}
		for _, id := range dedupe(ids) {
			key := kv.MemberKey(collectionID, id)
			exists, err := hasTxn(txn, key)
			if err != nil {
				return err
			}
			switch {
			case add && !exists:
				err = txn.Set(key, nil)
			case !add && exists:
				err = txn.Delete(key)
			default:
				continue
			}
			if err != nil {
				return err
			}
			changed = append(changed, id)
		}
		if len(changed) == 0 {
			return nil
		}
		if add {
			count += uint64(len(changed))
		} else {
			count -= uint64(len(changed))
		}
		return txn.Set(kv.MemberCountKey(collectionID), kv.PutUint64BE(nil, count))
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

// update runs fn in a read-write transaction, retrying a few times on
// conflicts before reporting the store as overloaded.
func (s *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	var err error
	for range badgerConflictRetries {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return NewOverloadedError(fmt.Sprintf("membership write conflict: %v", err))
}

func requireCollectionTxn(txn *badger.Txn, id string) error {
	ok, err := hasTxn(txn, kv.CollectionKey(id))
	if err != nil {
		return err
	}
	if !ok {
		return notFound(id)
	}
	return nil
}

func countTxn(txn *badger.Txn, collectionID string) (uint64, error) {
	item, err := txn.Get(kv.MemberCountKey(collectionID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var n uint64
	err = item.Value(func(val []byte) error {
		if len(val) == 8 {
			n = kv.GetUint64BE(val)
		}
		return nil
	})
	return n, err
}

func hasTxn(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}
