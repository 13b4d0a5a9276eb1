package backup

import (
	"path/filepath"
	"strings"
	"time"
)

const (
	// nameTimeLayout is yyyyMMddHHmmss. Second precision is part of the
	// on-disk naming contract: two snapshots of one source taken within the
	// same second get the same name.
	nameTimeLayout = "20060102150405"

	// BackupSuffix terminates every snapshot name.
	BackupSuffix = ".db.bak"
)

// BackupName derives the snapshot file name for sourcePath taken at t:
// {baseName}-{yyyyMMddHHmmss}.db.bak, where baseName is the file name without
// its final extension and the timestamp is in UTC.
func BackupName(sourcePath string, t time.Time) string {
	return backupPrefix(sourcePath) + t.UTC().Format(nameTimeLayout) + BackupSuffix
}

// IsBackupNameFor reports whether name is a snapshot name BackupName could
// produce for sourcePath at some time.
func IsBackupNameFor(name, sourcePath string) bool {
	prefix := backupPrefix(sourcePath)
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, BackupSuffix) {
		return false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix), BackupSuffix)
	_, err := time.Parse(nameTimeLayout, stamp)
	return err == nil
}

func backupPrefix(sourcePath string) string {
	base := filepath.Base(sourcePath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "-"
}
