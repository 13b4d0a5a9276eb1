package history

import (
	"fmt"
	"path/filepath"

	"ledgerbak/internal/config"
)

// dbFileName is the history database file inside data_dir.
const dbFileName = "history.db"

// NewStoreFromConfig opens the history store selected by cfg.Type. It
// returns nil, nil when history is disabled.
func NewStoreFromConfig(cfg config.HistoryConfig) (*Store, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite history")
		}
		return Open(filepath.Join(cfg.DataDir, dbFileName))
	case "memory":
		return Open(":memory:")
	default:
		return nil, fmt.Errorf("unknown history type: %s", cfg.Type)
	}
}
