//go:build gcp

package retention

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// GCSArchiver cold-archives TTL-expired items to a GCS bucket before
// they are purged from primary storage. Grounded on
// pkg/artifacts/gcs_store.go's GCSStore — same ADC-based client
// construction and bucket/prefix config shape, gated behind the same
// "gcp" build tag so the dependency isn't pulled into default builds.
type GCSArchiver struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSArchiverConfig configures a GCSArchiver.
type GCSArchiverConfig struct {
	Bucket string
	Prefix string
}

func NewGCSArchiver(ctx context.Context, cfg GCSArchiverConfig) (*GCSArchiver, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("retention: create GCS client: %w", err)
	}
	return &GCSArchiver{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (a *GCSArchiver) Archive(ctx context.Context, item Item, payload []byte) error {
	objectPath := fmt.Sprintf("%s%s/%s.blob", a.prefix, item.EntityType, item.ID)
	w := a.client.Bucket(a.bucket).Object(objectPath).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(payload); err != nil {
		_ = w.Close()
		return fmt.Errorf("retention: gcs write failed for %s: %w", item.ID, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("retention: gcs close failed for %s: %w", item.ID, err)
	}
	return nil
}

func (a *GCSArchiver) Close() error {
	return a.client.Close()
}
