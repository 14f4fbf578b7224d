package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/peterbourgon/diskv"
)

// DiskBlobStore implements BlobStore with one flat diskv directory per bucket
// under a root directory.
type DiskBlobStore struct {
	dir string

	mu      sync.Mutex
	buckets map[string]*diskv.Diskv
}

func NewDiskBlobStore(dir string) *DiskBlobStore {
	return &DiskBlobStore{
		dir:     dir,
		buckets: make(map[string]*diskv.Diskv),
	}
}

func (s *DiskBlobStore) bucket(name string) (*diskv.Diskv, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid bucket name %q", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.buckets[name]; ok {
		return d, nil
	}
	d := diskv.New(diskv.Options{
		BasePath: filepath.Join(s.dir, name),
		Transform: func(string) []string {
			return []string{}
		},
		// Served copies live in the index, so don't hold blobs in memory.
		CacheSizeMax: 0,
		FilePerm:     0600,
		PathPerm:     0700,
	})
	s.buckets[name] = d
	return d, nil
}

func (s *DiskBlobStore) Put(_ context.Context, bucket, filename string, data []byte) error {
	d, err := s.bucket(bucket)
	if err != nil {
		return err
	}
	if err := d.Write(filename, data); err != nil {
		return fmt.Errorf("could not write %s/%s: %w", bucket, filename, err)
	}
	return nil
}

func (s *DiskBlobStore) Get(_ context.Context, bucket, filename string) ([]byte, error) {
	d, err := s.bucket(bucket)
	if err != nil {
		return nil, err
	}
	value, err := d.Read(filename)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s/%s: %w", bucket, filename, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

func (s *DiskBlobStore) Delete(_ context.Context, bucket, filename string) error {
	d, err := s.bucket(bucket)
	if err != nil {
		return err
	}
	if err := d.Erase(filename); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not erase %s/%s: %w", bucket, filename, err)
	}
	return nil
}

func (s *DiskBlobStore) List(ctx context.Context, bucket string, fn func(string) error) error {
	d, err := s.bucket(bucket)
	if err != nil {
		return err
	}
	// diskv skips directories it cannot walk, which would list as empty.
	if err := checkReadableDir(d.BasePath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("could not list %s: %w", bucket, err)
	}
	// Stopping early must release the goroutine walking the directory.
	cancel := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(cancel) }) }
	defer stop()
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-cancel:
		}
	}()
	for key := range d.Keys(cancel) {
		if err := fn(key); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func checkReadableDir(pathname string) error {
	f, err := os.Open(pathname)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: not a directory", pathname)
	}
	return nil
}
