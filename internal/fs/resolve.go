// Package fs resolves and checks the database files ledgerbak backs up.
package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ledgerbak/internal/backup"
)

// companionSuffixes are the SQLite side files that change when the main
// database file is written.
var companionSuffixes = []string{"-wal", "-journal"}

// Resolve converts rawPath to a clean absolute path. The file need not exist
// yet; a tenant database may be created after startup.
func Resolve(rawPath string) (string, error) {
	if strings.TrimSpace(rawPath) == "" {
		return "", fmt.Errorf("empty resource path")
	}
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return "", fmt.Errorf("resolving absolute path: %w", err)
	}
	return absPath, nil
}

// ResolveAll resolves every path and drops duplicates, keeping the first
// occurrence's position.
func ResolveAll(rawPaths []string) ([]string, error) {
	seen := make(map[string]bool, len(rawPaths))
	var out []string
	for _, raw := range rawPaths {
		p, err := Resolve(raw)
		if err != nil {
			return nil, err
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}

// Check verifies that path is a regular file that can be snapshotted.
// Failures wrap backup.ErrResourceUnavailable.
func Check(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s does not exist", backup.ErrResourceUnavailable, path)
		}
		return fmt.Errorf("%w: stat %s: %w", backup.ErrResourceUnavailable, path, err)
	}

	mode := info.Mode()
	switch {
	case mode.IsDir():
		return fmt.Errorf("%w: %s is a directory", backup.ErrResourceUnavailable, path)
	case mode&os.ModeDevice != 0:
		return fmt.Errorf("%w: device files not supported: %s", backup.ErrResourceUnavailable, path)
	case mode&os.ModeNamedPipe != 0:
		return fmt.Errorf("%w: named pipes not supported: %s", backup.ErrResourceUnavailable, path)
	case mode&os.ModeSocket != 0:
		return fmt.Errorf("%w: sockets not supported: %s", backup.ErrResourceUnavailable, path)
	}
	return nil
}

// Owner maps a changed file name to the database it belongs to: the file
// itself or one of its -wal/-journal companions. It returns false when name
// is unrelated to database.
func Owner(name, database string) bool {
	if name == database {
		return true
	}
	for _, suffix := range companionSuffixes {
		if name == database+suffix {
			return true
		}
	}
	return false
}
