package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/nicolagi/emoji/emoji"
	"github.com/rogpeppe/rjson"
	"golang.org/x/crypto/bcrypt"
)

type config struct {
	Address     string   `json:"address"`
	Debug       bool     `json:"debug"`
	LogPath     string   `json:"log_path"`
	Sizes       []string `json:"sizes"`
	Sentinel    string   `json:"sentinel"`
	MaxUpload   string   `json:"max_upload"`
	CORSOrigin  string   `json:"cors_origin"`
	InitOnStart bool     `json:"init_on_start"`

	Cache struct {
		TTL string `json:"ttl"`

		// Zero means unbounded.
		Capacity int `json:"capacity"`
	} `json:"cache"`

	// Basic auth is off unless a user is set.
	Auth struct {
		User         string `json:"user"`
		PasswordHash string `json:"password_hash"`
	} `json:"auth"`

	Blobs struct {
		Type string `json:"type"`

		// Properties for "disk" type.
		Path string `json:"path"`

		// Properties for "s3" type.
		Profile  string `json:"profile"`
		Region   string `json:"region"`
		Endpoint string `json:"endpoint"`

		// Bucket per size, keyed by "full", "24", "36" or "48".
		Buckets map[string]string `json:"buckets"`
	} `json:"blobs"`

	Index struct {
		Type string `json:"type"`

		// Properties for "bolt" and "pebble" types.
		Path string `json:"path"`

		// Properties for "dynamodb" type.
		Profile  string `json:"profile"`
		Region   string `json:"region"`
		Endpoint string `json:"endpoint"`
		Table    string `json:"table"`
	} `json:"index"`
}

func loadConfig(pathname string) (*config, error) {
	f, err := os.Open(pathname)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	var c *config
	err = rjson.NewDecoder(f).Decode(&c)
	if err == nil && c == nil {
		c = new(config)
	}
	return c, err
}

func (c *config) applyDefaultsForMissingProperties() {
	if c.Address == "" {
		c.Address = ":5000"
	}
	if len(c.Sizes) == 0 {
		c.Sizes = []string{"full"}
	}
	if c.Sentinel == "" {
		c.Sentinel = emoji.DefaultSentinel
	}
	if c.MaxUpload == "" {
		c.MaxUpload = "1MB"
	}
	if c.CORSOrigin == "" {
		c.CORSOrigin = "https://teams.microsoft.com"
	}
	if c.Cache.TTL == "" {
		c.Cache.TTL = "1h"
	}
	if c.Blobs.Type == "" {
		c.Blobs.Type = "disk"
	}
	if c.Blobs.Path == "" {
		c.Blobs.Path = "$HOME/lib/emoji/blobs"
	}
	if c.Blobs.Buckets == nil {
		c.Blobs.Buckets = make(map[string]string)
	}
	for _, size := range c.Sizes {
		if c.Blobs.Buckets[size] != "" {
			continue
		}
		if size == emoji.SizeFull.String() {
			c.Blobs.Buckets[size] = emoji.DefaultBucket
		} else {
			c.Blobs.Buckets[size] = emoji.DefaultBucket + "-" + size
		}
	}
	if c.Index.Type == "" {
		c.Index.Type = "bolt"
	}
	if c.Index.Path == "" {
		switch c.Index.Type {
		case "pebble":
			c.Index.Path = "$HOME/lib/emoji/index.pebble"
		default:
			c.Index.Path = "$HOME/lib/emoji/index.db"
		}
	}
	if c.Index.Table == "" {
		c.Index.Table = "emojis"
	}
}

// listenAddress is the configured address, with the port replaced by the
// PORT environment variable if set.
func (c *config) listenAddress() (string, error) {
	port := os.Getenv("PORT")
	if port == "" {
		return c.Address, nil
	}
	host, _, err := net.SplitHostPort(c.Address)
	if err != nil {
		return "", fmt.Errorf("address %q: %w", c.Address, err)
	}
	return net.JoinHostPort(host, port), nil
}

// buckets maps each configured size to its bucket.
func (c *config) buckets() (map[emoji.Size]string, error) {
	buckets := make(map[emoji.Size]string, len(c.Sizes))
	for _, raw := range c.Sizes {
		size, err := emoji.ParseSize(raw)
		if err != nil {
			return nil, fmt.Errorf("sizes: %w", err)
		}
		buckets[size] = c.Blobs.Buckets[raw]
	}
	return buckets, nil
}

func (c *config) maxUpload() (datasize.ByteSize, error) {
	var v datasize.ByteSize
	if err := v.UnmarshalText([]byte(c.MaxUpload)); err != nil {
		return 0, fmt.Errorf("max_upload %q: %w", c.MaxUpload, err)
	}
	return v, nil
}

func (c *config) cacheTTL() (time.Duration, error) {
	ttl, err := time.ParseDuration(c.Cache.TTL)
	if err != nil {
		return 0, fmt.Errorf("cache.ttl: %w", err)
	}
	if ttl < 0 {
		return 0, fmt.Errorf("cache.ttl %v: must not be negative", ttl)
	}
	return ttl, nil
}

// passwordHash validates the configured bcrypt hash, if basic auth is on.
func (c *config) passwordHash() ([]byte, error) {
	if c.Auth.User == "" {
		return nil, nil
	}
	hash := []byte(c.Auth.PasswordHash)
	if _, err := bcrypt.Cost(hash); err != nil {
		return nil, fmt.Errorf("auth.password_hash: %w", err)
	}
	return hash, nil
}
