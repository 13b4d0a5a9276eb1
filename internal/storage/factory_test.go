package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"ledgerbak/internal/backup"
	"ledgerbak/internal/config"
)

func TestNewProviderFromConfig(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.StorageConfig
		wantErr  bool
		wantType string
	}{
		{
			name:     "file",
			cfg:      config.StorageConfig{Type: "File", RemotePath: "/tmp/backups"},
			wantType: "*storage.FileProvider",
		},
		{
			name:     "file lowercase",
			cfg:      config.StorageConfig{Type: "file", RemotePath: "/tmp/backups"},
			wantType: "*storage.FileProvider",
		},
		{
			name:     "memory",
			cfg:      config.StorageConfig{Type: "Memory"},
			wantType: "*storage.MemoryProvider",
		},
		{
			name:     "sftp",
			cfg:      config.StorageConfig{Type: "SFTP", Host: "h", Username: "u", Password: "p", RemotePath: "/b"},
			wantType: "*storage.SFTPProvider",
		},
		{
			name:    "sftp missing host",
			cfg:     config.StorageConfig{Type: "Sftp", Username: "u", Password: "p"},
			wantErr: true,
		},
		{
			name:    "sftp bad timeout",
			cfg:     config.StorageConfig{Type: "Sftp", Host: "h", Username: "u", Password: "p", Timeout: "forever"},
			wantErr: true,
		},
		{
			name:    "s3 missing bucket",
			cfg:     config.StorageConfig{Type: "S3"},
			wantErr: true,
		},
		{
			name:    "gcs missing bucket",
			cfg:     config.StorageConfig{Type: "Gcs"},
			wantErr: true,
		},
		{
			name:    "empty type",
			cfg:     config.StorageConfig{},
			wantErr: true,
		},
		{
			name:    "unknown type",
			cfg:     config.StorageConfig{Type: "Dropbox"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewProviderFromConfig(context.Background(), tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewProviderFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, backup.ErrConfiguration) {
					t.Errorf("error = %v, want ErrConfiguration", err)
				}
				if got != nil {
					t.Errorf("provider = %T, want nil", got)
				}
				return
			}

			if gotType := fmt.Sprintf("%T", got); gotType != tt.wantType {
				t.Errorf("provider type = %s, want %s", gotType, tt.wantType)
			}
		})
	}
}

