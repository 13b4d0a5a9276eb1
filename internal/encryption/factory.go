package encryption

import (
	"fmt"

	"ledgerbak/internal/backup"
	"ledgerbak/internal/config"
)

// NewEncryptorFromConfig returns the configured Encryptor, or nil when
// encryption is disabled (empty type).
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (backup.Encryptor, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "age":
		if cfg.PublicKeyPath == "" {
			return nil, fmt.Errorf("age encryption requires public_key_path to be set")
		}
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
