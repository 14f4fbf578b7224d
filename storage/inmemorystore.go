package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// InMemoryIndex is an Index implementation powered by a map, to be used for
// testing or throwaway deployments.
type InMemoryIndex struct {
	sync.Mutex
	m map[string]Entry
}

func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{
		m: make(map[string]Entry),
	}
}

func (s *InMemoryIndex) Get(_ context.Context, key string) (Entry, error) {
	s.Lock()
	e, ok := s.m[key]
	s.Unlock()
	if !ok {
		return Entry{}, fmt.Errorf("%.40q: %w", key, ErrNotFound)
	}
	return e.clone(), nil
}

func (s *InMemoryIndex) Exists(_ context.Context, key string) (bool, error) {
	s.Lock()
	_, ok := s.m[key]
	s.Unlock()
	return ok, nil
}

func (s *InMemoryIndex) Put(_ context.Context, key string, entry Entry) error {
	s.Lock()
	s.m[key] = entry.clone()
	s.Unlock()
	return nil
}

func (s *InMemoryIndex) PutIfAbsent(_ context.Context, key string, entry Entry) error {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.m[key]; ok {
		return fmt.Errorf("%.40q: %w", key, ErrExists)
	}
	s.m[key] = entry.clone()
	return nil
}

func (s *InMemoryIndex) Delete(_ context.Context, key string) error {
	s.Lock()
	delete(s.m, key)
	s.Unlock()
	return nil
}

// Keys visits a sorted snapshot of the matching keys, so fn may call back
// into the index.
func (s *InMemoryIndex) Keys(ctx context.Context, prefix string, fn func(string) error) error {
	s.Lock()
	var keys []string
	for k := range s.m {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	s.Unlock()
	sort.Strings(keys)
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

// InMemoryBlobStore is a BlobStore implementation powered by a map of maps,
// one per bucket.
type InMemoryBlobStore struct {
	sync.Mutex
	buckets map[string]map[string][]byte
}

func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{
		buckets: make(map[string]map[string][]byte),
	}
}

func (s *InMemoryBlobStore) Put(_ context.Context, bucket, filename string, data []byte) error {
	s.Lock()
	defer s.Unlock()
	b, ok := s.buckets[bucket]
	if !ok {
		b = make(map[string][]byte)
		s.buckets[bucket] = b
	}
	b[filename] = dup(data)
	return nil
}

func (s *InMemoryBlobStore) Get(_ context.Context, bucket, filename string) ([]byte, error) {
	s.Lock()
	data, ok := s.buckets[bucket][filename]
	s.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, filename, ErrNotFound)
	}
	return dup(data), nil
}

func (s *InMemoryBlobStore) Delete(_ context.Context, bucket, filename string) error {
	s.Lock()
	delete(s.buckets[bucket], filename)
	s.Unlock()
	return nil
}

func (s *InMemoryBlobStore) List(ctx context.Context, bucket string, fn func(string) error) error {
	s.Lock()
	var names []string
	for name := range s.buckets[bucket] {
		names = append(names, name)
	}
	s.Unlock()
	sort.Strings(names)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(name); err != nil {
			return err
		}
	}
	return nil
}
