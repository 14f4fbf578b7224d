// Package emoji implements storing, serving and listing named images on top
// of a durable blob store and a low-latency index.
//
// Writes go to the blob store first, so that an asset is recoverable as soon
// as it is durable, and to the index second, so that it can be served. Reads
// only consult the index. Reconcile rebuilds the index from the blob store.
package emoji

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nicolagi/emoji/storage"
	log "github.com/sirupsen/logrus"
)

// DefaultSentinel is the name whose presence in the index means the index
// has been populated.
const DefaultSentinel = "slackbot"

// DefaultBucket holds full-size renditions when no buckets are configured.
const DefaultBucket = "emojis"

type Option func(*options)

type options struct {
	buckets  map[Size]string
	sentinel string
}

// WithBuckets configures which sizes are supported, and in which blob store
// bucket each is kept.
func WithBuckets(value map[Size]string) Option {
	return func(o *options) {
		o.buckets = value
	}
}

func WithSentinel(value string) Option {
	return func(o *options) {
		o.sentinel = value
	}
}

// Service implements the operations on assets. It is safe for concurrent use
// if its stores are.
type Service struct {
	blobs storage.BlobStore
	index storage.Index

	buckets  map[Size]string
	sizes    []Size
	sentinel string
}

func NewService(blobs storage.BlobStore, index storage.Index, opts ...Option) (*Service, error) {
	var o options
	o.buckets = map[Size]string{SizeFull: DefaultBucket}
	o.sentinel = DefaultSentinel
	for _, opt := range opts {
		opt(&o)
	}
	if len(o.buckets) == 0 {
		return nil, fmt.Errorf("no sizes configured: %w", ErrInvalidInput)
	}
	if err := validateName(o.sentinel); err != nil {
		return nil, fmt.Errorf("sentinel: %w", err)
	}
	s := &Service{
		blobs:    blobs,
		index:    index,
		buckets:  make(map[Size]string, len(o.buckets)),
		sentinel: o.sentinel,
	}
	for size, bucket := range o.buckets {
		switch size {
		case Size24, Size36, Size48, SizeFull:
		default:
			return nil, fmt.Errorf("size %d: %w", int(size), ErrInvalidInput)
		}
		if bucket == "" {
			return nil, fmt.Errorf("no bucket for size %v: %w", size, ErrInvalidInput)
		}
		s.buckets[size] = bucket
		s.sizes = append(s.sizes, size)
	}
	sortSizes(s.sizes)
	return s, nil
}

// Sizes returns the configured sizes, smallest first and full last.
func (s *Service) Sizes() []Size {
	return append([]Size(nil), s.sizes...)
}

// ResolveSize parses a size parameter. An empty parameter means the only
// configured size; it is an error when several sizes are configured.
func (s *Service) ResolveSize(raw string) (Size, error) {
	if raw == "" {
		if len(s.sizes) == 1 {
			return s.sizes[0], nil
		}
		return 0, fmt.Errorf("size required: %w", ErrInvalidInput)
	}
	size, err := ParseSize(raw)
	if err != nil {
		return 0, err
	}
	if _, err := s.bucket(size); err != nil {
		return 0, err
	}
	return size, nil
}

// SentinelKey is the index key checked by Reconcile.
func (s *Service) SentinelKey() string {
	return Key(s.sentinel, s.sizes[0])
}

func (s *Service) bucket(size Size) (string, error) {
	bucket, ok := s.buckets[size]
	if !ok {
		return "", fmt.Errorf("size %v not configured: %w", size, ErrInvalidInput)
	}
	return bucket, nil
}

// Create stores a new asset. It fails with ErrConflict if an asset with the
// same name and size exists.
func (s *Service) Create(ctx context.Context, name, extension string, size Size, data []byte) error {
	extension = strings.ToLower(extension)
	if err := validateName(name); err != nil {
		return err
	}
	if err := validateExtension(extension); err != nil {
		return err
	}
	bucket, err := s.bucket(size)
	if err != nil {
		return err
	}
	key := Key(name, size)
	filename := Filename(name, extension)
	logger := log.WithFields(log.Fields{
		"op":     "create",
		"key":    key,
		"bucket": bucket,
	})

	// Checked before touching the blob store, so that a rejected create
	// leaves the existing object alone.
	exists, err := s.index.Exists(ctx, key)
	if err != nil {
		return upstream("checking index", err)
	}
	if exists {
		return fmt.Errorf("%q: %w", key, ErrConflict)
	}

	if err := s.blobs.Put(ctx, bucket, filename, data); err != nil {
		return upstream("storing blob", err)
	}

	err = s.index.PutIfAbsent(ctx, key, storage.Entry{Extension: extension, Data: data})
	if errors.Is(err, storage.ErrExists) {
		logger.Warn("Lost a race with a concurrent create")
		s.restoreBlob(ctx, logger, key, bucket, filename)
		return fmt.Errorf("%q: %w", key, ErrConflict)
	}
	if err != nil {
		logger.WithField("err", err).Warn("Blob stored but not indexed")
		return upstream("indexing", err)
	}
	logger.Debug("Success")
	return nil
}

// restoreBlob undoes the blob write of a lost create race. If the winner has
// the same filename, its bytes are put back; otherwise the loser's object is
// removed, so that the bucket holds one object per name.
func (s *Service) restoreBlob(ctx context.Context, logger *log.Entry, key, bucket, filename string) {
	winner, err := s.index.Get(ctx, key)
	if err != nil {
		logger.WithField("err", err).Warn("Could not read winning entry")
		return
	}
	if Filename(NameFromKey(key), winner.Extension) != filename {
		if err := s.blobs.Delete(ctx, bucket, filename); err != nil {
			logger.WithFields(log.Fields{
				"err":      err,
				"filename": filename,
			}).Warn("Could not remove losing blob")
		}
		return
	}
	if err := s.blobs.Put(ctx, bucket, filename, winner.Data); err != nil {
		logger.WithField("err", err).Warn("Could not restore winning blob")
	}
}

// Fetch returns the asset with the extension normalized for serving.
func (s *Service) Fetch(ctx context.Context, name string, size Size) (Asset, error) {
	if err := validateName(name); err != nil {
		return Asset{}, err
	}
	if _, err := s.bucket(size); err != nil {
		return Asset{}, err
	}
	key := Key(name, size)
	e, err := s.index.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return Asset{}, fmt.Errorf("%q: %w", key, ErrNotFound)
	}
	if err != nil {
		return Asset{}, upstream("reading index", err)
	}
	return Asset{
		Name:      name,
		Size:      size,
		Extension: NormalizeExtension(e.Extension),
		Data:      e.Data,
	}, nil
}

// Delete removes every rendition of an asset from the blob store and the
// index. The extension is optional: it is looked up in the index, and the one
// given is used to remove blobs the index no longer knows about. Deleting a
// missing asset succeeds. Failures do not stop the removal of the other
// renditions; they are all returned.
func (s *Service) Delete(ctx context.Context, name, extension string) error {
	extension = strings.ToLower(extension)
	if err := validateName(name); err != nil {
		return err
	}
	if extension != "" {
		if err := validateExtension(extension); err != nil {
			return err
		}
	}
	var errs []error
	for _, size := range s.sizes {
		bucket := s.buckets[size]
		key := Key(name, size)
		logger := log.WithFields(log.Fields{
			"op":     "delete",
			"key":    key,
			"bucket": bucket,
		})
		extensions := make(map[string]bool)
		if extension != "" {
			extensions[extension] = true
		}
		e, err := s.index.Get(ctx, key)
		if err == nil {
			extensions[e.Extension] = true
		} else if !errors.Is(err, storage.ErrNotFound) {
			logger.WithField("err", err).Warn("Could not read index")
			errs = append(errs, upstream("reading index for "+key, err))
		}
		for ext := range extensions {
			filename := Filename(name, ext)
			if err := s.blobs.Delete(ctx, bucket, filename); err != nil {
				logger.WithFields(log.Fields{
					"err":      err,
					"filename": filename,
				}).Warn("Could not delete blob")
				errs = append(errs, upstream("deleting blob "+bucket+"/"+filename, err))
			}
		}
		if err := s.index.Delete(ctx, key); err != nil {
			logger.WithField("err", err).Warn("Could not delete from index")
			errs = append(errs, upstream("deleting "+key+" from index", err))
		}
	}
	return errors.Join(errs...)
}

// ListNames returns the sorted names of the indexed assets, whatever their
// sizes.
func (s *Service) ListNames(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	err := s.index.Keys(ctx, "", func(key string) error {
		seen[NameFromKey(key)] = true
		return nil
	})
	if err != nil {
		return nil, upstream("listing index", err)
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ListBlobs returns the filenames in the bucket of the given size.
func (s *Service) ListBlobs(ctx context.Context, size Size) ([]string, error) {
	bucket, err := s.bucket(size)
	if err != nil {
		return nil, err
	}
	filenames := []string{}
	err = s.blobs.List(ctx, bucket, func(filename string) error {
		filenames = append(filenames, filename)
		return nil
	})
	if err != nil {
		return nil, upstream("listing "+bucket, err)
	}
	return filenames, nil
}
