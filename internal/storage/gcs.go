package storage

import (
	"context"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"ledgerbak/internal/backup"
)

// GCSConfig holds Google Cloud Storage parameters.
type GCSConfig struct {
	Bucket          string
	Prefix          string
	CredentialsFile string // optional; application default credentials otherwise
}

// GCSProvider uploads snapshots as objects in a GCS bucket.
type GCSProvider struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSProvider creates the storage client. Close releases it. Extra client
// options are applied after the ones derived from cfg.
func NewGCSProvider(ctx context.Context, cfg GCSConfig, extra ...option.ClientOption) (*GCSProvider, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs storage requires gcs_bucket to be set")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}

	return &GCSProvider{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (p *GCSProvider) object(name string) string {
	if p.prefix == "" {
		return name
	}
	return path.Join(p.prefix, name)
}

// Store streams r into a new object. The object becomes visible only when the
// writer is closed successfully. Closing a writer commits whatever it has
// buffered, so a failed copy cancels the writer's context first.
func (p *GCSProvider) Store(ctx context.Context, r io.Reader, name string) error {
	obj := p.object(name)
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := p.client.Bucket(p.bucket).Object(obj).NewWriter(wctx)
	w.ContentType = "application/octet-stream"

	if _, err := io.Copy(w, r); err != nil {
		cancel()
		_ = w.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: uploading to gs://%s/%s: %w", backup.ErrStorageUnavailable, p.bucket, obj, err)
	}
	if err := w.Close(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: finalizing gs://%s/%s: %w", backup.ErrStorageUnavailable, p.bucket, obj, err)
	}
	return nil
}

// ValidateSetup checks that the bucket exists and is reachable.
func (p *GCSProvider) ValidateSetup(ctx context.Context) error {
	if _, err := p.client.Bucket(p.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("%w: bucket %s not accessible: %w", backup.ErrStorageUnavailable, p.bucket, err)
	}
	return nil
}

// Close releases the underlying client.
func (p *GCSProvider) Close() error {
	return p.client.Close()
}

var _ backup.StorageProvider = (*GCSProvider)(nil)
