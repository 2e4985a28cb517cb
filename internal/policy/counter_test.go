package policy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCounterStore_Incr(t *testing.T) {
	store := NewMemoryCounterStore()

	for want := int64(1); want <= 3; want++ {
		got, err := store.Incr(context.Background(), "k", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	other, err := store.Incr(context.Background(), "other", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), other, "keys count independently")
}

func TestMemoryCounterStore_WindowReset(t *testing.T) {
	store := NewMemoryCounterStore()

	_, err := store.Incr(context.Background(), "k", 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	got, err := store.Incr(context.Background(), "k", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got, "expired window restarts the count")
}

func TestMemoryCounterStore_ConcurrentIncrements(t *testing.T) {
	store := NewMemoryCounterStore()

	const goroutines = 50
	const perGoroutine = 20

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				_, _ = store.Incr(context.Background(), "shared", time.Minute)
			}
		}()
	}
	wg.Wait()

	got, err := store.Incr(context.Background(), "shared", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(goroutines*perGoroutine+1), got, "no increments lost under contention")
}
