package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFIFO(t *testing.T) {
	tests := []struct {
		name          string
		key           string
		expectedValue int
		expectedCount int
	}{
		{
			name:          "fresh cache, fetch",
			key:           "test1",
			expectedValue: 42,
			expectedCount: 1,
		},
		{
			name:          "use cache, no fetch",
			key:           "test1",
			expectedValue: 42,
			expectedCount: 1,
		},
		{
			name:          "different key, fetch",
			key:           "test2",
			expectedValue: 42,
			expectedCount: 2,
		},
		{
			name:          "different key, fetch",
			key:           "test3",
			expectedValue: 42,
			expectedCount: 3,
		},
		{
			name:          "first item evicted, fetch",
			key:           "test1",
			expectedValue: 42,
			expectedCount: 4,
		},
		{
			name:          "third item kept, no fetch",
			key:           "test3",
			expectedValue: 42,
			expectedCount: 4,
		},
	}

	cache := NewFIFO[string, int](2)
	fetchCount := 0
	fetchFunc := func(key string) (int, error) {
		fetchCount++
		return 42, nil
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			val, err := cache.Get(tt.key, fetchFunc)
			require.NoError(err)
			require.Equal(tt.expectedValue, val)
			require.Equal(tt.expectedCount, fetchCount)
			require.LessOrEqual(cache.Len(), 2)
		})
	}
}

func TestFIFOFetchErrorNotCached(t *testing.T) {
	require := require.New(t)

	errFetch := errors.New("fetch failed")
	cache := NewFIFO[int, string](4)

	_, err := cache.Get(1, func(int) (string, error) { return "", errFetch })
	require.ErrorIs(err, errFetch)
	require.Zero(cache.Len())

	v, err := cache.Get(1, func(int) (string, error) { return "one", nil })
	require.NoError(err)
	require.Equal("one", v)
}

func TestFIFOOverwriteKeepsPosition(t *testing.T) {
	require := require.New(t)

	cache := NewFIFO[int, int](2)
	cache.Put(1, 1)
	cache.Put(2, 2)
	cache.Put(1, 10)
	cache.Put(3, 3)

	_, ok := cache.Peek(1)
	require.False(ok)
	v, ok := cache.Peek(2)
	require.True(ok)
	require.Equal(2, v)
}

func TestFIFOSingleFlight(t *testing.T) {
	require := require.New(t)

	cache := NewFIFO[string, int](4)
	var (
		fetches atomic.Int32
		release = make(chan struct{})
		wg      sync.WaitGroup
	)
	fetch := func(string) (int, error) {
		fetches.Add(1)
		<-release
		return 7, nil
	}

	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := cache.Get("k", fetch)
			if err == nil {
				results[i] = v
			}
		}(i)
	}
	close(release)
	wg.Wait()

	for _, v := range results {
		require.Equal(7, v)
	}
	require.LessOrEqual(fetches.Load(), int32(len(results)))
	require.Equal(1, cache.Len())
}
