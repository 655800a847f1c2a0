package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClock(c *Cache[string, int], at *time.Time) {
	c.now = func() time.Time { return *at }
}

func TestCache_FreshValueSkipsRefresh(t *testing.T) {
	c := New[string, int](60*time.Second, slog.New(slog.DiscardHandler))
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	testClock(c, &now)

	calls := 0
	refresh := func(ctx context.Context) (int, error) {
		calls++
		return 100 + calls, nil
	}

	// First read populates the cache at t=0.
	v, err := c.GetOrRefresh(context.Background(), "fx", refresh)
	require.NoError(t, err)
	assert.Equal(t, 101, v)
	assert.Equal(t, 1, calls)

	// t=30 is inside the 60s TTL: same value, no upstream call.
	now = now.Add(30 * time.Second)
	v, err = c.GetOrRefresh(context.Background(), "fx", refresh)
	require.NoError(t, err)
	assert.Equal(t, 101, v)
	assert.Equal(t, 1, calls)

	// t=61 is past the TTL: exactly one more upstream call.
	now = now.Add(31 * time.Second)
	v, err = c.GetOrRefresh(context.Background(), "fx", refresh)
	require.NoError(t, err)
	assert.Equal(t, 102, v)
	assert.Equal(t, 2, calls)
}

func TestCache_ConcurrentReadersShareOneRefresh(t *testing.T) {
	c := New[string, int](time.Hour, slog.New(slog.DiscardHandler))

	var calls atomic.Int32
	refresh := func(ctx context.Context) (int, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return 42, nil
	}

	const readers = 25
	var wg sync.WaitGroup
	values := make([]int, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrRefresh(context.Background(), "positions", refresh)
			require.NoError(t, err)
			values[i] = v
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range values {
		assert.Equal(t, 42, v)
	}
}

func TestCache_ServesStaleOnRefreshFailure(t *testing.T) {
	c := New[string, int](60*time.Second, slog.New(slog.DiscardHandler))
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	testClock(c, &now)

	v, err := c.GetOrRefresh(context.Background(), "fx", func(ctx context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	require.Equal(t, 7, v)

	now = now.Add(2 * time.Minute)
	attempts := 0
	v, err = c.GetOrRefresh(context.Background(), "fx", func(ctx context.Context) (int, error) {
		attempts++
		return 0, errors.New("upstream down")
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 1, attempts)
}

func TestCache_ErrorWhenEmptyAndRefreshFails(t *testing.T) {
	c := New[string, int](time.Minute, slog.New(slog.DiscardHandler))

	upstreamErr := errors.New("no route")
	_, err := c.GetOrRefresh(context.Background(), "fx", func(ctx context.Context) (int, error) {
		return 0, upstreamErr
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, upstreamErr)
}

func TestCache_PerCallTTLOverridesDefault(t *testing.T) {
	c := New[string, int](time.Hour, slog.New(slog.DiscardHandler))
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	testClock(c, &now)

	calls := 0
	refresh := func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	}

	_, err := c.GetOrRefresh(context.Background(), "balance", refresh)
	require.NoError(t, err)

	// One second of age is fresh by the default TTL but stale for a
	// caller that insists on sub-second data.
	now = now.Add(time.Second)
	v, err := c.GetOrRefreshTTL(context.Background(), "balance", 500*time.Millisecond, refresh)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, calls)
}

func TestCache_InvalidateForcesRefresh(t *testing.T) {
	c := New[string, int](time.Hour, slog.New(slog.DiscardHandler))

	calls := 0
	refresh := func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	}

	_, err := c.GetOrRefresh(context.Background(), "fx", refresh)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	c.Invalidate("fx")
	require.Equal(t, 0, c.Len())

	v, err := c.GetOrRefresh(context.Background(), "fx", refresh)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, calls)
}
