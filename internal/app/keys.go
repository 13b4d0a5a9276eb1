package app

import (
	"fmt"
	"io"

	"ledgerbak/internal/backup"
	"ledgerbak/internal/config"
	"ledgerbak/internal/encryption"
)

// keyEncryptor returns the encryptor used by the key commands. They work on
// the configured key paths even while encryption is switched off, so a key
// pair can be created before it is enabled.
func keyEncryptor(cfg config.EncryptionConfig) backup.Encryptor {
	if cfg.Type == "test" {
		return encryption.NewTestEncryptor()
	}
	return encryption.NewAgeEncryptor(cfg)
}

// InitKeys generates the key pair, protecting the private key with
// passphrase. Existing keys are never overwritten.
func InitKeys(cfg *config.Config, passphrase string) error {
	if err := keyEncryptor(cfg.Encryption).Setup(passphrase); err != nil {
		return fmt.Errorf("generating keys: %w", err)
	}
	return nil
}

// Decrypt unlocks the private key with passphrase and decrypts one stored
// backup from r into w.
func Decrypt(cfg *config.Config, passphrase string, r io.Reader, w io.Writer) error {
	dc, err := keyEncryptor(cfg.Encryption).Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking private key: %w", err)
	}
	if err := dc.Decrypt(r, w); err != nil {
		return fmt.Errorf("decrypting backup: %w", err)
	}
	return nil
}
