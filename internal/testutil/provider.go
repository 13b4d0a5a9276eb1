package testutil

import (
	"context"
	"fmt"
	"io"
	"sync"

	"ledgerbak/internal/backup"
	"ledgerbak/internal/storage"
)

// ScriptedProvider wraps a MemoryProvider and fails Store for chosen names
// or for the next n calls. It can also hold Store calls until released.
type ScriptedProvider struct {
	*storage.MemoryProvider

	mu        sync.Mutex
	failNext  int
	failNames map[string]bool
	attempts  []string
	gate      chan struct{}
	entered   chan string
}

func NewScriptedProvider() *ScriptedProvider {
	return &ScriptedProvider{
		MemoryProvider: storage.NewMemoryProvider(),
		failNames:      make(map[string]bool),
	}
}

// FailNext makes the next n Store calls fail.
func (p *ScriptedProvider) FailNext(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext = n
}

// FailName makes every Store of name fail.
func (p *ScriptedProvider) FailName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNames[name] = true
}

// Block holds Store calls until Release or until their context ends.
// Each held call announces its name on Entered.
func (p *ScriptedProvider) Block() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gate = make(chan struct{})
	p.entered = make(chan string, 64)
}

func (p *ScriptedProvider) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gate != nil {
		close(p.gate)
		p.gate = nil
	}
}

func (p *ScriptedProvider) Entered() <-chan string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entered
}

// Attempts returns every name passed to Store, including failed calls.
func (p *ScriptedProvider) Attempts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.attempts...)
}

func (p *ScriptedProvider) Store(ctx context.Context, r io.Reader, name string) error {
	p.mu.Lock()
	p.attempts = append(p.attempts, name)
	gate, entered := p.gate, p.entered
	fail := p.failNames[name]
	if p.failNext > 0 {
		p.failNext--
		fail = true
	}
	p.mu.Unlock()

	if gate != nil {
		entered <- name
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if fail {
		return fmt.Errorf("%w: scripted failure for %s", backup.ErrStorageUnavailable, name)
	}
	return p.MemoryProvider.Store(ctx, r, name)
}

var _ backup.StorageProvider = (*ScriptedProvider)(nil)
