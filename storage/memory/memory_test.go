package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/mihaimyh/gomercury/pkg/subscription/subscriptiontest"
)

func TestStorage_Contract(t *testing.T) {
	subscriptiontest.Run(t, New())
}

func TestStorage_Clear(t *testing.T) {
	storage := New()
	ctx := context.Background()

	if err := storage.Put(ctx, subscriptiontest.Sample("a")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if storage.Len() != 1 {
		t.Fatalf("Len = %d, want 1", storage.Len())
	}

	storage.Clear()

	if storage.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", storage.Len())
	}
}

func TestStorage_ConcurrentAccess(t *testing.T) {
	storage := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("sub-%d", i%10)
			_ = storage.Put(ctx, subscriptiontest.Sample(id))
			_, _ = storage.Get(ctx, id)
		}(i)
	}
	wg.Wait()

	if storage.Len() != 10 {
		t.Errorf("Len = %d, want 10", storage.Len())
	}
}
