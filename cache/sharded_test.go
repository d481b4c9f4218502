package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timpalpant/cfrstore/lru"
)

func TestShardedValidation(t *testing.T) {
	for _, nShards := range []int{0, -2, 3, 6, 100} {
		_, err := NewSharded[string](1024, nShards, lru.Mutex, nil)
		assert.True(t, errors.Is(err, ErrInvalidShards), "shards=%d", nShards)
	}

	_, err := NewSharded[string](4, 8, lru.Mutex, nil)
	assert.True(t, errors.Is(err, ErrInvalidCapacity))

	for _, nShards := range []int{1, 2, 4, 64} {
		_, err := NewSharded[string](64, nShards, lru.Mutex, nil)
		assert.NoError(t, err, "shards=%d", nShards)
	}
}

func TestShardedCapacitySplit(t *testing.T) {
	c, err := NewSharded[string](10, 4, lru.Mutex, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, c.NumShards())
	assert.Equal(t, 10, c.Cap())
	var caps []int
	for _, shard := range c.shards {
		caps = append(caps, shard.Cap())
	}
	assert.Equal(t, []int{3, 3, 2, 2}, caps)
}

func TestShardedOps(t *testing.T) {
	for _, kind := range kinds {
		kind := kind
		t.Run(kind.String(), func(t *testing.T) {
			var log evictLog
			c, err := NewSharded[string](1024, 8, kind, log.onEvict)
			require.NoError(t, err)

			for i := 0; i < 32; i++ {
				key := fmt.Sprint(i)
				require.NoError(t, c.Put(key, "v"+key))
			}

			assert.Equal(t, 32, c.Len())
			for i := 0; i < 32; i++ {
				key := fmt.Sprint(i)
				v, ok := c.Get(key)
				assert.True(t, ok)
				assert.Equal(t, "v"+key, v)
				assert.True(t, c.Has(key))
			}

			_, ok := c.Get("missing")
			assert.False(t, ok)
			assert.Equal(t, Stats{Hits: 32, Misses: 1}, c.Stats())
			assert.InDelta(t, 32.0/33.0, c.HitRate(), 1e-9)

			assert.True(t, c.Remove("0"))
			assert.False(t, c.Has("0"))
			inserted, err := c.PutIfAbsent("1", "other")
			require.NoError(t, err)
			assert.False(t, inserted)

			c.ResetStats()
			assert.Equal(t, Stats{}, c.Stats())
			assert.Empty(t, log.keys())
		})
	}
}

func TestShardedEvictsWithinShard(t *testing.T) {
	var log evictLog
	c, err := NewSharded[string](16, 4, lru.Mutex, log.onEvict)
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		require.NoError(t, c.Put(fmt.Sprint(i), "v"))
		for _, shard := range c.shards {
			assert.LessOrEqual(t, shard.Len(), shard.Cap())
		}
	}

	assert.Equal(t, 16, c.Len())
	assert.Len(t, log.keys(), 1000-16)
	assert.Equal(t, uint64(1000-16), c.Stats().Evictions)
}

func TestShardedFlushAndClear(t *testing.T) {
	for _, kind := range kinds {
		kind := kind
		t.Run(kind.String(), func(t *testing.T) {
			var log evictLog
			c, err := NewSharded[string](1024, 16, kind, log.onEvict)
			require.NoError(t, err)

			var want []string
			for i := 0; i < 100; i++ {
				key := fmt.Sprint(i)
				want = append(want, key)
				require.NoError(t, c.Put(key, key))
			}

			var mu sync.Mutex
			var flushed []string
			require.NoError(t, c.FlushTo(func(items []Item[string]) error {
				mu.Lock()
				defer mu.Unlock()
				for _, item := range items {
					flushed = append(flushed, item.Key)
				}
				return nil
			}))
			assert.ElementsMatch(t, want, flushed)
			assert.Equal(t, 100, c.Len())

			require.NoError(t, c.Flush())
			assert.ElementsMatch(t, want, log.keys())

			log.items = nil
			require.NoError(t, c.Clear())
			assert.ElementsMatch(t, want, log.keys())
			assert.Equal(t, 0, c.Len())
		})
	}
}

func TestShardedFlushReturnsError(t *testing.T) {
	errFlush := errors.New("flush failed")
	c, err := NewSharded[string](8, 2, lru.Mutex, nil)
	require.NoError(t, err)
	require.NoError(t, c.Put("a", "1"))

	err = c.FlushTo(func([]Item[string]) error {
		return errFlush
	})
	assert.True(t, errors.Is(err, errFlush))
}

func BenchmarkShardedGetPut(b *testing.B) {
	for _, kind := range kinds {
		kind := kind
		b.Run(kind.String(), func(b *testing.B) {
			c, err := NewSharded[int](1<<14, 64, kind, nil)
			require.NoError(b, err)
			b.RunParallel(func(pb *testing.PB) {
				i := 0
				for pb.Next() {
					key := fmt.Sprint(i % (1 << 15))
					if _, ok := c.Get(key); !ok {
						_ = c.Put(key, i)
					}
					i++
				}
			})
		})
	}
}
