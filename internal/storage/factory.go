package storage

import (
	"context"
	"fmt"
	"strings"

	"ledgerbak/internal/backup"
	"ledgerbak/internal/config"
)

// NewProviderFromConfig creates the StorageProvider selected by cfg.Type.
// Type matching is case-insensitive. An unknown or incomplete configuration
// wraps backup.ErrConfiguration.
func NewProviderFromConfig(ctx context.Context, cfg config.StorageConfig) (backup.StorageProvider, error) {
	p, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", backup.ErrConfiguration, err)
	}
	return p, nil
}

func newProvider(ctx context.Context, cfg config.StorageConfig) (backup.StorageProvider, error) {
	switch strings.ToLower(cfg.Type) {
	case "file":
		return NewFileProvider(cfg.RemotePath), nil
	case "sftp":
		timeout, err := cfg.TimeoutDuration()
		if err != nil {
			return nil, err
		}
		return NewSFTPProvider(SFTPConfig{
			Host:           cfg.Host,
			Port:           cfg.Port,
			Username:       cfg.Username,
			Password:       cfg.Password,
			PrivateKeyPath: cfg.PrivateKeyPath,
			KnownHostsPath: cfg.KnownHostsPath,
			RemotePath:     cfg.RemotePath,
			Timeout:        timeout,
		})
	case "s3":
		return NewS3Provider(ctx, S3Config{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3UsePathStyle,
		})
	case "gcs":
		return NewGCSProvider(ctx, GCSConfig{
			Bucket:          cfg.GCSBucket,
			Prefix:          cfg.GCSPrefix,
			CredentialsFile: cfg.GCSCredentialsFile,
		})
	case "memory":
		return NewMemoryProvider(), nil
	case "":
		return nil, fmt.Errorf("storage type must be set")
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
