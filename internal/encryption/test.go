package encryption

import (
	"bytes"
	"fmt"
	"io"

	"ledgerbak/internal/backup"
)

// testMagic marks output of TestEncryptor.
var testMagic = []byte("LBKTEST\x00")

// TestEncryptor frames data with a fixed marker instead of encrypting it.
// Output differs from the input and round-trips without keys, which is all
// the storage and CLI tests need.
type TestEncryptor struct {
	setupCalled bool
}

var _ backup.Encryptor = (*TestEncryptor)(nil)

func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(string) error {
	e.setupCalled = true
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testMagic); err != nil {
		return fmt.Errorf("writing marker: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(string) (backup.DecryptionContext, error) {
	return TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool { return true }

// TestDecryptionContext strips the TestEncryptor marker.
type TestDecryptionContext struct{}

var _ backup.DecryptionContext = TestDecryptionContext{}

func (TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	magic := make([]byte, len(testMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return fmt.Errorf("reading marker: %w", err)
	}
	if !bytes.Equal(magic, testMagic) {
		return fmt.Errorf("input was not produced by TestEncryptor")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
