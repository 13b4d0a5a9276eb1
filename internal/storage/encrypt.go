package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"ledgerbak/internal/backup"
)

// EncryptingProvider encrypts each snapshot stream before handing it to the
// wrapped provider. Destination names are passed through unchanged.
type EncryptingProvider struct {
	inner     backup.StorageProvider
	encryptor backup.Encryptor
}

// NewEncryptingProvider wraps inner so that everything it stores is
// encrypted with encryptor.
func NewEncryptingProvider(inner backup.StorageProvider, encryptor backup.Encryptor) *EncryptingProvider {
	return &EncryptingProvider{inner: inner, encryptor: encryptor}
}

// Store pipes r through the encryptor into the inner provider.
func (p *EncryptingProvider) Store(ctx context.Context, r io.Reader, name string) error {
	pr, pw := io.Pipe()
	encErr := make(chan error, 1)

	go func() {
		err := p.encryptor.Encrypt(r, pw)
		// Closing with a nil error signals EOF to the reader.
		pw.CloseWithError(err)
		encErr <- err
	}()

	storeErr := p.inner.Store(ctx, pr, name)
	// Unblock the encryptor if the inner provider stopped reading early.
	pr.CloseWithError(io.ErrClosedPipe)
	err := <-encErr

	// An encryptor failure surfaces to the inner provider as a read error,
	// so the inner result decides success. A provider that returns nil
	// without draining the stream (the empty-root File provider) wins too.
	if storeErr == nil {
		return nil
	}
	if err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("%w: encrypting %s: %w", backup.ErrStorageUnavailable, name, err)
	}
	return storeErr
}

// ValidateSetup checks the inner provider and that the encryptor has keys.
func (p *EncryptingProvider) ValidateSetup(ctx context.Context) error {
	if !p.encryptor.IsConfigured() {
		return fmt.Errorf("%w: encryption keys not found; run `ledgerbak keys init`", backup.ErrConfiguration)
	}
	return p.inner.ValidateSetup(ctx)
}

var _ backup.StorageProvider = (*EncryptingProvider)(nil)
