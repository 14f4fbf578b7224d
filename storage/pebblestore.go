package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
)

// PebbleIndex is an implementation of Index backed by a Pebble database.
// Pebble has no conditional writes, so PutIfAbsent is serialized within this
// process; the database must not be shared with other writers.
type PebbleIndex struct {
	db *pebble.DB

	// Held by PutIfAbsent and Delete, so a conditional put never interleaves
	// with a removal of the same key.
	wmu sync.Mutex
}

func NewPebbleIndex(db *pebble.DB) *PebbleIndex {
	return &PebbleIndex{db: db}
}

// OpenPebbleIndex opens (creating if needed) a Pebble database at dir.
func OpenPebbleIndex(dir string) (*PebbleIndex, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("could not open pebble database %q: %w", dir, err)
	}
	return NewPebbleIndex(db), nil
}

func (s *PebbleIndex) Close() error {
	return s.db.Close()
}

func (s *PebbleIndex) Get(_ context.Context, key string) (Entry, error) {
	value, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return Entry{}, fmt.Errorf("%.40q: %w", key, ErrNotFound)
	}
	if err != nil {
		return Entry{}, err
	}
	defer func() {
		_ = closer.Close()
	}()
	return decodeRecord(value)
}

func (s *PebbleIndex) Exists(_ context.Context, key string) (bool, error) {
	_, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_ = closer.Close()
	return true, nil
}

func (s *PebbleIndex) Put(_ context.Context, key string, entry Entry) error {
	value, err := encodeRecord(entry)
	if err != nil {
		return err
	}
	if err := s.db.Set([]byte(key), value, pebble.Sync); err != nil {
		return fmt.Errorf("could not put %.40q: %w", key, err)
	}
	return nil
}

func (s *PebbleIndex) PutIfAbsent(ctx context.Context, key string, entry Entry) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	ok, err := s.Exists(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%.40q: %w", key, ErrExists)
	}
	return s.Put(ctx, key, entry)
}

func (s *PebbleIndex) Delete(_ context.Context, key string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.db.Delete([]byte(key), pebble.Sync); err != nil {
		return fmt.Errorf("could not delete %.40q: %w", key, err)
	}
	return nil
}

func (s *PebbleIndex) Keys(ctx context.Context, prefix string, fn func(string) error) error {
	var opts pebble.IterOptions
	if prefix != "" {
		opts.LowerBound = []byte(prefix)
		opts.UpperBound = prefixUpperBound([]byte(prefix))
	}
	iter, err := s.db.NewIter(&opts)
	if err != nil {
		return err
	}
	var keys []string
	for iter.First(); iter.Valid(); iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	if err := iter.Close(); err != nil {
		return err
	}
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix, or nil if there is none.
func prefixUpperBound(prefix []byte) []byte {
	end := dup(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
