package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// CachedIndex implements Index wrapping a slower Index with an in-process
// cache. Gets are served from the cache if possible, otherwise from the
// wrapped index (and in this case the entry is also kept in the cache, for
// next time it is requested). Every write and delete going through the
// CachedIndex invalidates the key; writes made directly to the wrapped index
// become visible when the cached entry expires.
type CachedIndex struct {
	slow  Index
	fast  *expirable.LRU[string, Entry]
	group singleflight.Group
}

// NewCachedIndex wraps slow with a cache of the given capacity, zero meaning
// unbounded. Entries expire after ttl, zero meaning never.
func NewCachedIndex(slow Index, capacity int, ttl time.Duration) *CachedIndex {
	return &CachedIndex{
		slow: slow,
		fast: expirable.NewLRU[string, Entry](capacity, nil, ttl),
	}
}

func (s *CachedIndex) Get(ctx context.Context, key string) (Entry, error) {
	if e, ok := s.fast.Get(key); ok {
		return e.clone(), nil
	}
	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		e, err := s.slow.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		s.fast.Add(key, e.clone())
		log.WithField("key", key).Debug("Propagated from index to cache")
		return e, nil
	})
	if err != nil {
		return Entry{}, err
	}
	e := v.(Entry)
	if shared {
		// Other callers got the same value.
		e = e.clone()
	}
	return e, nil
}

func (s *CachedIndex) Exists(ctx context.Context, key string) (bool, error) {
	if s.fast.Contains(key) {
		return true, nil
	}
	return s.slow.Exists(ctx, key)
}

func (s *CachedIndex) Put(ctx context.Context, key string, entry Entry) error {
	defer s.Invalidate(key)
	return s.slow.Put(ctx, key, entry)
}

func (s *CachedIndex) PutIfAbsent(ctx context.Context, key string, entry Entry) error {
	err := s.slow.PutIfAbsent(ctx, key, entry)
	if errors.Is(err, ErrExists) {
		// The cached entry, if any, is still the stored one.
		return err
	}
	s.Invalidate(key)
	return err
}

func (s *CachedIndex) Delete(ctx context.Context, key string) error {
	defer s.Invalidate(key)
	return s.slow.Delete(ctx, key)
}

func (s *CachedIndex) Keys(ctx context.Context, prefix string, fn func(string) error) error {
	return s.slow.Keys(ctx, prefix, fn)
}

// Invalidate drops the cached entry for key, if any.
func (s *CachedIndex) Invalidate(key string) {
	s.fast.Remove(key)
	s.group.Forget(key)
}

// Len reports how many entries are cached, expired ones included until they
// are evicted.
func (s *CachedIndex) Len() int {
	return s.fast.Len()
}
