package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"ledgerbak/internal/backup"
)

func TestMemoryProvider_StoreAndGet(t *testing.T) {
	m := NewMemoryProvider()
	ctx := context.Background()

	if err := m.Store(ctx, strings.NewReader("one"), "a.db.bak"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if err := m.Store(ctx, strings.NewReader("two"), "b.db.bak"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	got, ok := m.Get("a.db.bak")
	if !ok || string(got) != "one" {
		t.Errorf("Get(a) = %q, %v", got, ok)
	}
	if _, ok := m.Get("missing"); ok {
		t.Error("Get(missing) ok = true")
	}

	names := m.Names()
	if len(names) != 2 || names[0] != "a.db.bak" || names[1] != "b.db.bak" {
		t.Errorf("Names() = %v", names)
	}

	// Returned slices are copies.
	got[0] = 'X'
	again, _ := m.Get("a.db.bak")
	if string(again) != "one" {
		t.Error("Get() returned shared backing array")
	}
}

func TestMemoryProvider_StoreCancelled(t *testing.T) {
	m := NewMemoryProvider()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Store(ctx, strings.NewReader("data"), "a.db.bak")
	if !errors.Is(err, backup.ErrStorageUnavailable) || !errors.Is(err, context.Canceled) {
		t.Errorf("Store() error = %v, want ErrStorageUnavailable wrapping context.Canceled", err)
	}
	if len(m.Names()) != 0 {
		t.Error("object stored despite cancelled context")
	}
}

func TestMemoryProvider_Concurrent(t *testing.T) {
	m := NewMemoryProvider()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("db-%d.db.bak", i)
			if err := m.Store(context.Background(), strings.NewReader(name), name); err != nil {
				t.Errorf("Store(%s) error = %v", name, err)
			}
		}(i)
	}
	wg.Wait()

	if n := len(m.Names()); n != 20 {
		t.Errorf("len(Names()) = %d, want 20", n)
	}
}
