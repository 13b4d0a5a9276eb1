package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"ledgerbak/internal/backup"
)

// FileProvider stores snapshots as files under a root directory:
//
//	<root>/
//	  <name>      (e.g. appdata-20240115103000.db.bak)
//
// Names may contain forward slashes; intermediate directories are created.
//
// A FileProvider with an empty root silently skips every Store call. This
// keeps a host with backups "configured but pointed nowhere" running; it is
// not reported as an error.
type FileProvider struct {
	root string
}

// NewFileProvider creates a provider rooted at root. The directory is created
// on first use, not here.
func NewFileProvider(root string) *FileProvider {
	return &FileProvider{root: root}
}

// Root returns the configured root directory.
func (p *FileProvider) Root() string {
	return p.root
}

// Store writes r to <root>/<name> using an atomic write (temp file + rename).
func (p *FileProvider) Store(ctx context.Context, r io.Reader, name string) error {
	if p.root == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	destPath, err := p.destPath(name)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("%w: creating directory: %w", backup.ErrStorageUnavailable, err)
	}

	if err := writeFile(ctx, destPath, r); err != nil {
		return fmt.Errorf("%w: %w", backup.ErrStorageUnavailable, err)
	}
	return nil
}

// ValidateSetup verifies that the root exists (creating it if needed) and is
// a writable directory. An empty root is valid; Store is a no-op then.
func (p *FileProvider) ValidateSetup(ctx context.Context) error {
	if p.root == "" {
		return nil
	}

	if err := os.MkdirAll(p.root, 0755); err != nil {
		return fmt.Errorf("%w: storage root not accessible: %w", backup.ErrStorageUnavailable, err)
	}

	info, err := os.Stat(p.root)
	if err != nil {
		return fmt.Errorf("%w: storage root not accessible: %w", backup.ErrStorageUnavailable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: storage root is not a directory: %s", backup.ErrStorageUnavailable, p.root)
	}

	probe, err := os.CreateTemp(p.root, ".probe-*")
	if err != nil {
		return fmt.Errorf("%w: storage root not writable: %w", backup.ErrStorageUnavailable, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	return nil
}

// destPath maps name below the root, rejecting names that would escape it.
func (p *FileProvider) destPath(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: invalid destination name %q", backup.ErrStorageUnavailable, name)
	}
	return filepath.Join(p.root, clean), nil
}

// writeFile writes data from r to destPath using atomic write (temp file + rename).
func writeFile(ctx context.Context, destPath string, r io.Reader) error {
	// Create temp file in the same directory to ensure atomic rename works
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on failure
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, newContextReader(ctx, r)); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileProvider implements backup.StorageProvider
var _ backup.StorageProvider = (*FileProvider)(nil)
