package storage

import (
	"context"
	"errors"
)

// BlobStore is durable storage for original image bytes. Objects are
// addressed by filename within a bucket; each bucket holds one rendition size.
type BlobStore interface {
	Put(ctx context.Context, bucket, filename string, data []byte) error

	// Get should return ErrNotFound if the object is not in the bucket.
	Get(ctx context.Context, bucket, filename string) ([]byte, error)

	// Delete should succeed if the object is not in the bucket.
	Delete(ctx context.Context, bucket, filename string) error

	// List calls fn for each filename in the bucket, stopping at the first
	// error returned by fn.
	List(ctx context.Context, bucket string, fn func(filename string) error) error
}

// Entry is what an Index holds for a key: enough to serve an image.
type Entry struct {
	Extension string
	Data      []byte
}

func (e Entry) clone() Entry {
	return Entry{Extension: e.Extension, Data: dup(e.Data)}
}

// Index is a low-latency key-value store of servable entries.
type Index interface {
	// Get should return ErrNotFound if the key is not in the index.
	Get(ctx context.Context, key string) (Entry, error)

	Exists(ctx context.Context, key string) (bool, error)

	// Put stores the entry whether or not the key exists.
	Put(ctx context.Context, key string, entry Entry) error

	// PutIfAbsent stores the entry only if the key does not exist, returning
	// ErrExists otherwise. The check and the write must be atomic.
	PutIfAbsent(ctx context.Context, key string, entry Entry) error

	// Delete should succeed if the key is not in the index.
	Delete(ctx context.Context, key string) error

	// Keys calls fn for each key starting with prefix, stopping at the first
	// error returned by fn.
	Keys(ctx context.Context, prefix string, fn func(key string) error) error
}

var (
	// ErrNotFound indicates a key or object is not in the store.
	ErrNotFound = errors.New("not found")

	// ErrExists indicates a conditional put found the key already present.
	ErrExists = errors.New("already exists")
)

func dup(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
