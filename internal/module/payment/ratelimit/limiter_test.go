package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryZeroQuotaAlwaysExhausted(t *testing.T) {
	lim := NewMemory(map[string]Quota{"stripe": {MaxCalls: 0, Window: time.Hour}})

	for i := 0; i < 3; i++ {
		allowed, err := lim.Check(context.Background(), "stripe")
		require.NoError(t, err)
		assert.False(t, allowed)
	}
}

func TestMemoryUnconfiguredProviderUnmetered(t *testing.T) {
	lim := NewMemory(map[string]Quota{"stripe": {MaxCalls: 1, Window: time.Hour}})

	allowed, err := lim.Check(context.Background(), "paypal")
	require.NoError(t, err)
	assert.True(t, allowed)
	require.NoError(t, lim.Record(context.Background(), "paypal"))
}

func TestMemoryExhaustionAndIsolation(t *testing.T) {
	ctx := context.Background()
	lim := NewMemory(map[string]Quota{
		"stripe": {MaxCalls: 2, Window: time.Hour},
		"paypal": {MaxCalls: 2, Window: time.Hour},
	})

	for i := 0; i < 2; i++ {
		allowed, err := lim.Check(ctx, "stripe")
		require.NoError(t, err)
		require.True(t, allowed)
		require.NoError(t, lim.Record(ctx, "stripe"))
	}

	allowed, err := lim.Check(ctx, "stripe")
	require.NoError(t, err)
	assert.False(t, allowed, "stripe should be exhausted")

	// Exhausting stripe must not affect paypal.
	allowed, err = lim.Check(ctx, "paypal")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestMemoryWindowSlides(t *testing.T) {
	ctx := context.Background()
	lim := NewMemory(map[string]Quota{"stripe": {MaxCalls: 1, Window: time.Minute}})

	now := time.Unix(1000, 0)
	lim.now = func() time.Time { return now }

	require.NoError(t, lim.Record(ctx, "stripe"))
	allowed, _ := lim.Check(ctx, "stripe")
	assert.False(t, allowed)

	now = now.Add(61 * time.Second)
	allowed, _ = lim.Check(ctx, "stripe")
	assert.True(t, allowed, "window elapsed, provider should be allowed again")
}

func TestMemoryCheckIsPureRead(t *testing.T) {
	ctx := context.Background()
	lim := NewMemory(map[string]Quota{"stripe": {MaxCalls: 1, Window: time.Hour}})

	for i := 0; i < 10; i++ {
		allowed, err := lim.Check(ctx, "stripe")
		require.NoError(t, err)
		assert.True(t, allowed, "Check must not consume quota")
	}
}

func TestMemoryConcurrentRecord(t *testing.T) {
	ctx := context.Background()
	lim := NewMemory(map[string]Quota{"stripe": {MaxCalls: 100, Window: time.Hour}})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = lim.Record(ctx, "stripe")
		}()
	}
	wg.Wait()

	w := lim.windows["stripe"]
	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Len(t, w.calls, 50)
}
