package storage_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/boltdb/bolt"
	"github.com/nicolagi/emoji/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexImplementations(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(*testing.T) (storage.Index, func())
	}{
		{
			name: "Index implementation backed by a BoltDB",
			setup: func(t *testing.T) (storage.Index, func()) {
				db, err := bolt.Open(filepath.Join(t.TempDir(), "index.db"), 0600, nil)
				require.Nil(t, err)
				index, err := storage.NewBoltIndex(db)
				require.Nil(t, err)
				return index, func() {
					_ = db.Close()
				}
			},
		},
		{
			name: "Index implementation backed by Pebble",
			setup: func(t *testing.T) (storage.Index, func()) {
				index, err := storage.OpenPebbleIndex(filepath.Join(t.TempDir(), "pebble"))
				require.Nil(t, err)
				return index, func() {
					_ = index.Close()
				}
			},
		},
		{
			name: "Index implementation backed by a map",
			setup: func(*testing.T) (storage.Index, func()) {
				return storage.NewInMemoryIndex(), func() {
					// Nothing to do.
				}
			},
		},
		{
			name: "Cached index in front of a map",
			setup: func(*testing.T) (storage.Index, func()) {
				return storage.NewCachedIndex(storage.NewInMemoryIndex(), 0, time.Hour), func() {}
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			index, teardown := tc.setup(t)
			defer teardown()
			testIndex(t, index)
		})
	}
}

func TestBlobStoreImplementations(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(*testing.T) (storage.BlobStore, func())
	}{
		{
			name: "BlobStore implementation backed by a map",
			setup: func(*testing.T) (storage.BlobStore, func()) {
				return storage.NewInMemoryBlobStore(), func() {}
			},
		},
		{
			name: "BlobStore implementation backed by a host filesystem directory",
			setup: func(t *testing.T) (storage.BlobStore, func()) {
				return storage.NewDiskBlobStore(t.TempDir()), func() {}
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store, teardown := tc.setup(t)
			defer teardown()
			testBlobStore(t, store)
		})
	}
}

func testIndex(t *testing.T, index storage.Index) {
	ctx := context.Background()
	t.Run("what you put is what you get", func(t *testing.T) {
		key := randomKey()
		err := index.Put(ctx, key, storage.Entry{Extension: "png", Data: []byte{0xde, 0xad, 0xbe, 0xef}})
		require.Nil(t, err)
		e, err := index.Get(ctx, key)
		require.Nil(t, err)
		assert.Equal(t, "png", e.Extension)
		assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, e.Data)
	})
	t.Run("error on not existing key", func(t *testing.T) {
		key := randomKey()
		_, err := index.Get(ctx, key)
		assert.True(t, errors.Is(err, storage.ErrNotFound))
		ok, err := index.Exists(ctx, key)
		assert.Nil(t, err)
		assert.False(t, ok)
	})
	t.Run("put overwrites", func(t *testing.T) {
		key := randomKey()
		require.Nil(t, index.Put(ctx, key, storage.Entry{Extension: "png", Data: []byte("one")}))
		require.Nil(t, index.Put(ctx, key, storage.Entry{Extension: "gif", Data: []byte("two")}))
		e, err := index.Get(ctx, key)
		require.Nil(t, err)
		assert.Equal(t, "gif", e.Extension)
		assert.Equal(t, []byte("two"), e.Data)
	})
	t.Run("put if absent rejects existing keys and keeps the first value", func(t *testing.T) {
		key := randomKey()
		require.Nil(t, index.PutIfAbsent(ctx, key, storage.Entry{Extension: "png", Data: []byte("first")}))
		err := index.PutIfAbsent(ctx, key, storage.Entry{Extension: "jpg", Data: []byte("second")})
		assert.True(t, errors.Is(err, storage.ErrExists))
		e, err := index.Get(ctx, key)
		require.Nil(t, err)
		assert.Equal(t, "png", e.Extension)
		assert.Equal(t, []byte("first"), e.Data)
	})
	t.Run("delete is idempotent", func(t *testing.T) {
		key := randomKey()
		require.Nil(t, index.Put(ctx, key, storage.Entry{Extension: "png", Data: []byte("x")}))
		require.Nil(t, index.Delete(ctx, key))
		require.Nil(t, index.Delete(ctx, key))
		_, err := index.Get(ctx, key)
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})
	t.Run("mutating data should not affect stored entries", func(t *testing.T) {
		key := randomKey()
		before := []byte("old value")
		require.Nil(t, index.Put(ctx, key, storage.Entry{Extension: "png", Data: before}))
		copy(before, "new")
		after, err := index.Get(ctx, key)
		require.Nil(t, err)
		assert.Equal(t, []byte("old value"), after.Data)
		copy(after.Data, "new")
		again, err := index.Get(ctx, key)
		require.Nil(t, err)
		assert.Equal(t, []byte("old value"), again.Data)
	})
	t.Run("keys with prefix", func(t *testing.T) {
		prefix := randomKey()
		for _, k := range []string{prefix + ":24", prefix + ":36", prefix} {
			require.Nil(t, index.Put(ctx, k, storage.Entry{Extension: "png", Data: []byte("x")}))
		}
		var got []string
		require.Nil(t, index.Keys(ctx, prefix, func(k string) error {
			got = append(got, k)
			return nil
		}))
		sort.Strings(got)
		assert.Equal(t, []string{prefix, prefix + ":24", prefix + ":36"}, got)
	})
	t.Run("keys stops at first error", func(t *testing.T) {
		prefix := randomKey()
		for i := 0; i < 3; i++ {
			require.Nil(t, index.Put(ctx, fmt.Sprintf("%s-%d", prefix, i), storage.Entry{Extension: "png"}))
		}
		stop := errors.New("stop")
		calls := 0
		err := index.Keys(ctx, prefix, func(string) error {
			calls++
			return stop
		})
		assert.Equal(t, stop, err)
		assert.Equal(t, 1, calls)
	})
}

func testBlobStore(t *testing.T, store storage.BlobStore) {
	ctx := context.Background()
	bucket := "emojis-" + randomKey()
	t.Run("what you put is what you get", func(t *testing.T) {
		require.Nil(t, store.Put(ctx, bucket, "smile.png", []byte("hello")))
		value, err := store.Get(ctx, bucket, "smile.png")
		require.Nil(t, err)
		assert.Equal(t, []byte("hello"), value)
	})
	t.Run("buckets are independent", func(t *testing.T) {
		other := bucket + "-24"
		require.Nil(t, store.Put(ctx, other, "wink.gif", []byte("small")))
		_, err := store.Get(ctx, bucket, "wink.gif")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})
	t.Run("error on not existing object", func(t *testing.T) {
		value, err := store.Get(ctx, bucket, "missing.png")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
		assert.Nil(t, value)
	})
	t.Run("delete is idempotent", func(t *testing.T) {
		require.Nil(t, store.Put(ctx, bucket, "gone.png", []byte("bye")))
		require.Nil(t, store.Delete(ctx, bucket, "gone.png"))
		require.Nil(t, store.Delete(ctx, bucket, "gone.png"))
		_, err := store.Get(ctx, bucket, "gone.png")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})
	t.Run("list enumerates the bucket", func(t *testing.T) {
		listed := "list-" + randomKey()
		for _, name := range []string{"a.png", "b.gif", "c.jpg"} {
			require.Nil(t, store.Put(ctx, listed, name, []byte(name)))
		}
		var got []string
		require.Nil(t, store.List(ctx, listed, func(name string) error {
			got = append(got, name)
			return nil
		}))
		sort.Strings(got)
		assert.Equal(t, []string{"a.png", "b.gif", "c.jpg"}, got)
	})
	t.Run("list of an unknown bucket is empty", func(t *testing.T) {
		calls := 0
		require.Nil(t, store.List(ctx, "nothing-"+randomKey(), func(string) error {
			calls++
			return nil
		}))
		assert.Zero(t, calls)
	})
	t.Run("list stops at first error", func(t *testing.T) {
		listed := "stop-" + randomKey()
		for _, name := range []string{"a.png", "b.png", "c.png"} {
			require.Nil(t, store.Put(ctx, listed, name, []byte(name)))
		}
		stop := errors.New("stop")
		calls := 0
		err := store.List(ctx, listed, func(string) error {
			calls++
			return stop
		})
		assert.Equal(t, stop, err)
		assert.Equal(t, 1, calls)
	})
}

func randomKey() string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, 12)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
