package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/boltdb/bolt"
	"github.com/nicolagi/emoji/storage"
	log "github.com/sirupsen/logrus"
)

func newBlobStore(c *config) (storage.BlobStore, error) {
	switch c.Blobs.Type {
	case "disk":
		dir := os.ExpandEnv(c.Blobs.Path)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("could not ensure directory %q exists: %w", dir, err)
		}
		log.Infof("Will use a disk-based blob store at %s", dir)
		return storage.NewDiskBlobStore(dir), nil
	case "s3":
		log.WithFields(log.Fields{
			"profile":  c.Blobs.Profile,
			"region":   c.Blobs.Region,
			"endpoint": c.Blobs.Endpoint,
		}).Info("Will use an S3 blob store")
		blobs, err := storage.NewS3BlobStore(awsOptions(c.Blobs.Profile, c.Blobs.Region, c.Blobs.Endpoint)...)
		if err != nil {
			return nil, err
		}
		return blobs, nil
	case "memory":
		log.Warn("Will use an in-memory blob store, assets will not survive a restart")
		return storage.NewInMemoryBlobStore(), nil
	default:
		return nil, fmt.Errorf("blobs.type %q: expecting disk, s3 or memory", c.Blobs.Type)
	}
}

// newIndex returns the configured index and a function releasing it.
func newIndex(c *config) (storage.Index, func(), error) {
	noop := func() {}
	switch c.Index.Type {
	case "bolt":
		file := os.ExpandEnv(c.Index.Path)
		if err := os.MkdirAll(filepath.Dir(file), 0700); err != nil {
			return nil, noop, fmt.Errorf("could not ensure directory for %q exists: %w", file, err)
		}
		db, err := bolt.Open(file, 0600, nil)
		if err != nil {
			return nil, noop, fmt.Errorf("could not open database %q: %w", file, err)
		}
		index, err := storage.NewBoltIndex(db)
		if err != nil {
			_ = db.Close()
			return nil, noop, fmt.Errorf("could not instantiate boltdb index at %q: %w", file, err)
		}
		log.Infof("Will use a boltdb index at %s", file)
		return index, func() {
			if err := db.Close(); err != nil {
				log.Warnf("Could not close boltdb database: %v", err)
			}
		}, nil
	case "pebble":
		dir := os.ExpandEnv(c.Index.Path)
		index, err := storage.OpenPebbleIndex(dir)
		if err != nil {
			return nil, noop, fmt.Errorf("could not open pebble database %q: %w", dir, err)
		}
		log.Infof("Will use a pebble index at %s", dir)
		return index, func() {
			if err := index.Close(); err != nil {
				log.Warnf("Could not close pebble database: %v", err)
			}
		}, nil
	case "dynamodb":
		log.WithFields(log.Fields{
			"profile":  c.Index.Profile,
			"region":   c.Index.Region,
			"endpoint": c.Index.Endpoint,
			"table":    c.Index.Table,
		}).Info("Will use a DynamoDB index")
		index, err := storage.NewDynamoDBIndex(c.Index.Table, awsOptions(c.Index.Profile, c.Index.Region, c.Index.Endpoint)...)
		if err != nil {
			return nil, noop, err
		}
		return index, noop, nil
	case "memory":
		log.Warn("Will use an in-memory index, run init after a restart")
		return storage.NewInMemoryIndex(), noop, nil
	default:
		return nil, noop, fmt.Errorf("index.type %q: expecting bolt, pebble, dynamodb or memory", c.Index.Type)
	}
}

func awsOptions(profile, region, endpoint string) []storage.Option {
	var opts []storage.Option
	if profile != "" {
		opts = append(opts, storage.WithProfile(profile))
	}
	if region != "" {
		opts = append(opts, storage.WithRegion(region))
	}
	if endpoint != "" {
		opts = append(opts, storage.WithEndpoint(endpoint))
	}
	return opts
}
