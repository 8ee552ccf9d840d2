package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capybara-rs/scheduler/internal/store"
)

func TestMemory_GetMissing(t *testing.T) {
	s := store.NewMemory()

	ts, ok, err := s.Get(context.Background(), "never-ran")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, ts.IsZero())
}

func TestMemory_PutGetRoundTrip(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	watermark := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, s.Put(ctx, "load_data", watermark))

	ts, ok, err := s.Get(ctx, "load_data")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, ts.Equal(watermark))
}

func TestMemory_NamesAreIndependent(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a", time.Unix(100, 0)))
	require.NoError(t, s.Put(ctx, "b", time.Unix(200, 0)))

	ta, _, err := s.Get(ctx, "a")
	require.NoError(t, err)
	tb, _, err := s.Get(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ta.Equal(time.Unix(100, 0)))
	assert.True(t, tb.Equal(time.Unix(200, 0)))
}

func TestMemory_Overwrite(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "t", time.Unix(1, 0)))
	require.NoError(t, s.Put(ctx, "t", time.Unix(2, 0)))

	ts, ok, err := s.Get(ctx, "t")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, ts.Equal(time.Unix(2, 0)))
}

func TestSerialized_PassesThrough(t *testing.T) {
	s := store.Serialized(store.NewMemory())
	ctx := context.Background()
	watermark := time.Unix(42, 0)

	require.NoError(t, s.Put(ctx, "t", watermark))

	ts, ok, err := s.Get(ctx, "t")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, ts.Equal(watermark))
}

func TestSerialized_ConcurrentWritesSameName(t *testing.T) {
	s := store.Serialized(store.NewMemory())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Put(ctx, "hot", time.Unix(int64(i), 0))
		}(i)
	}
	wg.Wait()

	_, ok, err := s.Get(ctx, "hot")
	require.NoError(t, err)
	assert.True(t, ok, "one of the writes must have landed")
}

func TestSerialized_ConcurrentWritesDistinctNames(t *testing.T) {
	s := store.Serialized(store.NewMemory())
	ctx := context.Background()

	var wg sync.WaitGroup
	names := []string{"a", "b", "c", "d"}
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_ = s.Put(ctx, name, time.Unix(int64(i), 0))
			}
		}(name)
	}
	wg.Wait()

	for _, name := range names {
		ts, ok, err := s.Get(ctx, name)
		require.NoError(t, err)
		assert.True(t, ok, name)
		assert.True(t, ts.Equal(time.Unix(19, 0)), name)
	}
}
