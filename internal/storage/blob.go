package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// BlobStore writes panorama artifacts to an object store through gocloud.
// Objects become visible only when their writer closes successfully, so a
// failed or cancelled upload never leaves a partial object behind.
type BlobStore struct {
	bucket  *blob.Bucket
	scheme  string
	name    string
	prefix  string
	backend string
}

// OpenBlobStore opens any bucket URL gocloud has a driver registered for.
func OpenBlobStore(ctx context.Context, bucketURL, prefix string) (*BlobStore, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}

	scheme, rest, _ := strings.Cut(bucketURL, "://")
	name, _, _ := strings.Cut(rest, "?")
	return &BlobStore{
		bucket:  bucket,
		scheme:  scheme,
		name:    name,
		prefix:  prefix,
		backend: scheme,
	}, nil
}

func (s *BlobStore) key(key string) string {
	return s.prefix + key
}

// Write uploads data under key.
func (s *BlobStore) Write(ctx context.Context, key string, data []byte) error {
	k := s.key(key)

	w, err := s.bucket.NewWriter(ctx, k, &blob.WriterOptions{ContentType: contentType(key)})
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", k, err)
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write data to %s: %w", k, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", k, err)
	}
	return nil
}

// Read downloads the object stored under key.
func (s *BlobStore) Read(ctx context.Context, key string) ([]byte, error) {
	k := s.key(key)
	data, err := s.bucket.ReadAll(ctx, k)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", k, err)
	}
	return data, nil
}

// Exists checks if an object exists.
func (s *BlobStore) Exists(ctx context.Context, key string) (bool, error) {
	return s.bucket.Exists(ctx, s.key(key))
}

// Head returns metadata about a stored object.
func (s *BlobStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	attrs, err := s.bucket.Attributes(ctx, s.key(key))
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get attributes for %s: %w", key, err)
	}

	return &ObjectInfo{
		Key:     key,
		Size:    attrs.Size,
		ETag:    attrs.ETag,
		ModTime: attrs.ModTime,
	}, nil
}

// List returns all keys with the given prefix.
func (s *BlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	iter := s.bucket.List(&blob.ListOptions{
		Prefix: s.key(prefix),
	})

	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		if obj.IsDir {
			continue
		}
		keys = append(keys, strings.TrimPrefix(obj.Key, s.prefix))
	}

	return keys, nil
}

// URI returns the canonical URI for the given key.
func (s *BlobStore) URI(key string) string {
	return fmt.Sprintf("%s://%s/%s", s.scheme, strings.TrimSuffix(s.name, "/"), s.key(key))
}

// Backend returns the bucket URL scheme, e.g. "gs" or "s3".
func (s *BlobStore) Backend() string {
	return s.backend
}

// Close releases the bucket connection.
func (s *BlobStore) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}

func contentType(key string) string {
	switch {
	case strings.HasSuffix(key, ImageExt):
		return "image/jpeg"
	case strings.HasSuffix(key, DescriptorExt):
		return "application/xml"
	case strings.HasSuffix(key, ".parquet"):
		return "application/vnd.apache.parquet"
	default:
		return "text/plain; charset=utf-8"
	}
}

var _ Store = (*BlobStore)(nil)
