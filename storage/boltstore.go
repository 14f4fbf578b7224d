package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/boltdb/bolt"
)

// BoltIndex is an implementation of Index whose backend is a Bolt database.
type BoltIndex bolt.DB

var (
	bucketName = []byte("emojis")
)

func NewBoltIndex(db *bolt.DB) (*BoltIndex, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return fmt.Errorf("could not ensure bucket %q exists: %w", bucketName, err)
		}
		return nil
	})
	return (*BoltIndex)(db), err
}

func (s *BoltIndex) Get(_ context.Context, key string) (e Entry, err error) {
	err = (*bolt.DB)(s).View(func(tx *bolt.Tx) error {
		value := tx.Bucket(bucketName).Get([]byte(key))
		if value == nil {
			return fmt.Errorf("%.40q: %w", key, ErrNotFound)
		}
		// Decoding copies out of the mmap, which is only valid inside the
		// transaction.
		e, err = decodeRecord(value)
		return err
	})
	return e, err
}

func (s *BoltIndex) Exists(_ context.Context, key string) (ok bool, err error) {
	err = (*bolt.DB)(s).View(func(tx *bolt.Tx) error {
		ok = tx.Bucket(bucketName).Get([]byte(key)) != nil
		return nil
	})
	return ok, err
}

func (s *BoltIndex) Put(_ context.Context, key string, entry Entry) error {
	value, err := encodeRecord(entry)
	if err != nil {
		return err
	}
	return (*bolt.DB)(s).Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketName).Put([]byte(key), value); err != nil {
			return fmt.Errorf("could not put %.40q: %w", key, err)
		}
		return nil
	})
}

// PutIfAbsent relies on Bolt serializing read-write transactions.
func (s *BoltIndex) PutIfAbsent(_ context.Context, key string, entry Entry) error {
	value, err := encodeRecord(entry)
	if err != nil {
		return err
	}
	return (*bolt.DB)(s).Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b.Get([]byte(key)) != nil {
			return fmt.Errorf("%.40q: %w", key, ErrExists)
		}
		if err := b.Put([]byte(key), value); err != nil {
			return fmt.Errorf("could not put %.40q: %w", key, err)
		}
		return nil
	})
}

func (s *BoltIndex) Delete(_ context.Context, key string) error {
	return (*bolt.DB)(s).Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketName).Delete([]byte(key)); err != nil {
			return fmt.Errorf("could not delete %.40q: %w", key, err)
		}
		return nil
	})
}

// Keys collects the matching keys in one read transaction, then calls fn
// outside of it so fn may write to the index.
func (s *BoltIndex) Keys(ctx context.Context, prefix string, fn func(string) error) error {
	var keys []string
	err := (*bolt.DB)(s).View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
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
