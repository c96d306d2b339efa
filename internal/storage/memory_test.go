package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestMemoryPreferences(t *testing.T) {
	m := NewMemoryPreferences()
	ctx := context.Background()

	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatal("empty store reported a value")
	}
	if err := m.Set(ctx, "k", "v"); err != nil {
		t.Fatal(err)
	}
	if v, ok, _ := m.Get(ctx, "k"); !ok || v != "v" {
		t.Errorf("Get = %q, %v", v, ok)
	}
}

func TestMemoryPreferences_Concurrent(t *testing.T) {
	m := NewMemoryPreferences()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%4)
			_ = m.Set(ctx, key, "v")
			_, _, _ = m.Get(ctx, key)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		if _, ok, _ := m.Get(ctx, fmt.Sprintf("k%d", i)); !ok {
			t.Errorf("k%d missing", i)
		}
	}
}
