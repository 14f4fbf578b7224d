package emoji

import (
	"context"
	"fmt"

	"github.com/nicolagi/emoji/storage"
	log "github.com/sirupsen/logrus"
)

// ReconcileResult reports what a reconciliation pass did.
type ReconcileResult struct {
	// AlreadyInitialized is set when the sentinel was found and nothing was
	// loaded.
	AlreadyInitialized bool

	// Created lists the filenames loaded into the index, per size in order,
	// with the sentinel last.
	Created []string

	// Skipped lists the filenames that could not be split into a name and
	// an extension.
	Skipped []string
}

// Reconcile populates the index from the blob store, unless the sentinel
// asset is already indexed. Sizes are processed smallest first. The sentinel
// is indexed last, after every bucket has been loaded, so an interrupted pass
// leaves it unset and the next run redoes the whole import. Any store error
// aborts the pass.
func (s *Service) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var result ReconcileResult
	sentinelKey := s.SentinelKey()
	exists, err := s.index.Exists(ctx, sentinelKey)
	if err != nil {
		return result, upstream("checking sentinel", err)
	}
	if exists {
		log.WithField("key", sentinelKey).Debug("Index already initialized")
		result.AlreadyInitialized = true
		return result, nil
	}
	result.Created = []string{}
	var sentinel *storage.Entry
	var sentinelFilename string
	for _, size := range s.sizes {
		bucket := s.buckets[size]
		var filenames []string
		err := s.blobs.List(ctx, bucket, func(filename string) error {
			filenames = append(filenames, filename)
			return nil
		})
		if err != nil {
			return result, upstream("listing "+bucket, err)
		}
		for _, filename := range filenames {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			name, extension, err := SplitFilename(filename)
			if err != nil {
				log.WithFields(log.Fields{
					"bucket":   bucket,
					"filename": filename,
					"err":      err,
				}).Warn("Skipping blob")
				result.Skipped = append(result.Skipped, filename)
				continue
			}
			data, err := s.blobs.Get(ctx, bucket, filename)
			if err != nil {
				return result, upstream(fmt.Sprintf("reading %s/%s", bucket, filename), err)
			}
			key := Key(name, size)
			if key == sentinelKey {
				sentinel = &storage.Entry{Extension: extension, Data: data}
				sentinelFilename = filename
				continue
			}
			if err := s.index.Put(ctx, key, storage.Entry{Extension: extension, Data: data}); err != nil {
				return result, upstream("indexing "+key, err)
			}
			log.WithFields(log.Fields{
				"bucket": bucket,
				"key":    key,
			}).Info("Loading")
			result.Created = append(result.Created, filename)
		}
	}
	if sentinel == nil {
		log.WithField("key", sentinelKey).Warn("Sentinel not found in the blob store, the next run will import again")
		return result, nil
	}
	if err := s.index.Put(ctx, sentinelKey, *sentinel); err != nil {
		return result, upstream("indexing "+sentinelKey, err)
	}
	log.WithField("key", sentinelKey).Info("Loading sentinel")
	result.Created = append(result.Created, sentinelFilename)
	return result, nil
}
