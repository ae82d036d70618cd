package store

import (
	"database/sql"
	"fmt"
)

// Store is the durable job record store.
// Progress writes go straight to the write connection; lifecycle events are
// batched through an AsyncWriter since losing one is harmless.
type Store struct {
	db     *DB
	events *AsyncWriter
}

// NewStore creates a Store over an opened DB.
func NewStore(db *DB) *Store {
	return &Store{
		db:     db,
		events: NewAsyncWriter(db.Write),
	}
}

// Close flushes pending events. The caller owns the DB.
func (s *Store) Close() error {
	s.events.Stop()
	return nil
}

// FlushEvents blocks until all emitted events are written.
func (s *Store) FlushEvents() {
	s.events.Flush()
}

func (s *Store) execTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Write.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}
