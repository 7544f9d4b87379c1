package storage

import (
	"context"
	"fmt"

	_ "gocloud.dev/blob/gcsblob" // GCS driver
)

// NewGCSStore creates a store backed by a Google Cloud Storage bucket.
func NewGCSStore(bucketName, prefix string) (*BlobStore, error) {
	s, err := OpenBlobStore(context.Background(), fmt.Sprintf("gs://%s", bucketName), prefix)
	if err != nil {
		return nil, fmt.Errorf("open GCS bucket %s: %w", bucketName, err)
	}
	s.backend = "gcs"
	return s, nil
}
