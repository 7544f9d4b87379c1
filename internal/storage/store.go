// Package storage persists panorama images and their sidecar files on the
// local filesystem or an object store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/withObsrvr/obsrvr-pano-scraper/internal/panorama"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("storage: object not found")

// Store abstracts reading and writing panorama artifacts by key.
// Keys use forward slashes and are relative to the store's prefix.
type Store interface {
	// Write stores data under key. Readers never observe a partially
	// written object: it either appears complete or not at all.
	Write(ctx context.Context, key string, data []byte) error

	// Read returns the object stored under key, or ErrNotFound.
	Read(ctx context.Context, key string) ([]byte, error)

	// Exists checks if an object exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Head returns metadata about a stored object.
	Head(ctx context.Context, key string) (*ObjectInfo, error)

	// List returns all keys with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// URI returns the canonical URI for the given key.
	// For local: file:///path, GCS: gs://bucket/path, S3: s3://bucket/path
	URI(key string) string

	// Backend names the storage backend for logs and metrics.
	Backend() string

	// Close releases any resources.
	Close() error
}

// LocalPather is implemented by stores whose objects live on the local
// filesystem, for consumers that hand paths to external processes.
type LocalPather interface {
	LocalPath(key string) string
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key     string
	Size    int64
	ETag    string // MD5 for S3/GCS, empty for local
	ModTime time.Time
}

// Artifact suffixes.
const (
	ImageExt      = ".jpg"
	DescriptorExt = ".xml"
	DepthExt      = ".depth.txt"
)

// ShardKey returns the key of a panorama artifact: {id[:2]}/{id}{ext}.
func ShardKey(id, ext string) string {
	return path.Join(panorama.ID(id).Shard(), id+ext)
}

// PanoramaKey returns the key of a panorama's assembled image.
func PanoramaKey(id string) string {
	return ShardKey(id, ImageExt)
}

// DescriptorKey returns the key of a panorama's metadata XML.
func DescriptorKey(id string) string {
	return ShardKey(id, DescriptorExt)
}

// DepthKey returns the key of a panorama's decoded depth map.
func DepthKey(id string) string {
	return ShardKey(id, DepthExt)
}

// Config configures the storage backend.
type Config struct {
	Backend string `yaml:"backend"` // "local" | "gcs" | "s3"

	// Local filesystem
	LocalDir string `yaml:"local_dir"`

	// GCS
	GCSBucket string `yaml:"gcs_bucket"`

	// S3 (also works for B2, R2, MinIO)
	S3Bucket   string `yaml:"s3_bucket"`
	S3Endpoint string `yaml:"s3_endpoint"` // custom endpoint for B2/MinIO/R2
	S3Region   string `yaml:"s3_region"`

	// Common
	Prefix string `yaml:"prefix"` // path prefix within bucket or local dir
}

// New creates a storage backend based on configuration.
func New(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("LocalDir required for local backend")
		}
		return NewLocalStore(cfg.LocalDir, cfg.Prefix)
	case "gcs":
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("GCSBucket required for gcs backend")
		}
		return NewGCSStore(cfg.GCSBucket, cfg.Prefix)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3Bucket required for s3 backend")
		}
		return NewS3Store(cfg.S3Bucket, cfg.Prefix, cfg.S3Endpoint, cfg.S3Region)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
