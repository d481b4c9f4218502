package cache

import (
	"math/bits"
	"runtime"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/timpalpant/cfrstore/lru"
)

// Sharded is an LRU cache partitioned into a power-of-two number of
// independent Bounded shards. Recency is tracked per shard, so the entry
// evicted on a full shard is the least recently used within that shard only.
type Sharded[V any] struct {
	shards []*Bounded[V]
	mask   uint64
}

// NewSharded returns an empty cache holding up to capacity entries split
// over nShards shards. nShards must be a power of two no larger than capacity.
// Each shard holds capacity/nShards entries and the first capacity%nShards
// shards hold one more, so the shard capacities sum to capacity.
func NewSharded[V any](capacity, nShards int, kind lru.Kind, onEvict EvictFunc[V]) (*Sharded[V], error) {
	if nShards <= 0 || bits.OnesCount(uint(nShards)) != 1 {
		return nil, errors.Wrapf(ErrInvalidShards, "shards=%d", nShards)
	}

	if capacity < nShards {
		return nil, errors.Wrapf(ErrInvalidCapacity, "capacity=%d < shards=%d", capacity, nShards)
	}

	s := &Sharded[V]{
		shards: make([]*Bounded[V], nShards),
		mask:   uint64(nShards - 1),
	}

	perShard, extra := capacity/nShards, capacity%nShards
	for i := range s.shards {
		shardCap := perShard
		if i < extra {
			shardCap++
		}

		shard, err := NewBounded[V](shardCap, kind, onEvict)
		if err != nil {
			return nil, err
		}

		s.shards[i] = shard
	}

	return s, nil
}

func (s *Sharded[V]) shard(key string) *Bounded[V] {
	return s.shards[xxhash.Sum64String(key)&s.mask]
}

// NumShards returns the number of shards.
func (s *Sharded[V]) NumShards() int {
	return len(s.shards)
}

// Get returns the value for key and marks it most recently used.
func (s *Sharded[V]) Get(key string) (V, bool) {
	return s.shard(key).Get(key)
}

// GetOrLoad returns the value for key, loading it on a miss.
// See Bounded.GetOrLoad.
func (s *Sharded[V]) GetOrLoad(key string, load LoadFunc[V]) (V, bool, error) {
	return s.shard(key).GetOrLoad(key, load)
}

// Peek returns the value for key without affecting recency or stats.
func (s *Sharded[V]) Peek(key string) (V, bool) {
	return s.shard(key).Peek(key)
}

// Has reports whether key is resident.
func (s *Sharded[V]) Has(key string) bool {
	return s.shard(key).Has(key)
}

// Contains reports whether key is cached or still being written back,
// and otherwise returns fallback(key). See Bounded.Contains.
func (s *Sharded[V]) Contains(key string, fallback func(key string) (bool, error)) (bool, error) {
	return s.shard(key).Contains(key, fallback)
}

// Put inserts or replaces the value for key. See Bounded.Put.
func (s *Sharded[V]) Put(key string, value V) error {
	return s.shard(key).Put(key, value)
}

// PutIfAbsent inserts value for key only if key is not resident.
func (s *Sharded[V]) PutIfAbsent(key string, value V) (bool, error) {
	return s.shard(key).PutIfAbsent(key, value)
}

// Remove deletes key without calling the EvictFunc.
func (s *Sharded[V]) Remove(key string) bool {
	return s.shard(key).Remove(key)
}

// Delete removes key and deletes it from slower storage with del.
// See Bounded.Delete.
func (s *Sharded[V]) Delete(key string, del func(key string) error) (bool, error) {
	return s.shard(key).Delete(key, del)
}

// Clear empties all shards in parallel, calling the EvictFunc for every
// entry removed. It returns the first error encountered.
func (s *Sharded[V]) Clear() error {
	return s.forEachShard((*Bounded[V]).Clear)
}

// Flush calls the EvictFunc for every resident entry not loaded unchanged
// from slower storage, shards in parallel.
func (s *Sharded[V]) Flush() error {
	return s.forEachShard((*Bounded[V]).Flush)
}

// FlushTo calls fn once per non-empty shard with that shard's entries.
// fn may be called concurrently from multiple goroutines.
func (s *Sharded[V]) FlushTo(fn func(items []Item[V]) error) error {
	return s.forEachShard(func(b *Bounded[V]) error {
		return b.FlushTo(fn)
	})
}

func (s *Sharded[V]) forEachShard(fn func(*Bounded[V]) error) error {
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, shard := range s.shards {
		shard := shard
		g.Go(func() error {
			return fn(shard)
		})
	}

	return g.Wait()
}

// Len returns the number of resident entries.
func (s *Sharded[V]) Len() int {
	n := 0
	for _, shard := range s.shards {
		n += shard.Len()
	}

	return n
}

// Cap returns the total capacity over all shards.
func (s *Sharded[V]) Cap() int {
	n := 0
	for _, shard := range s.shards {
		n += shard.Cap()
	}

	return n
}

// Stats returns the sum of the per-shard stats.
func (s *Sharded[V]) Stats() Stats {
	var total Stats
	for _, shard := range s.shards {
		total = total.Add(shard.Stats())
	}

	return total
}

// HitRate returns the aggregate hit rate over all shards.
func (s *Sharded[V]) HitRate() float64 {
	return s.Stats().HitRate()
}

// ResetStats zeroes the stats of every shard.
func (s *Sharded[V]) ResetStats() {
	for _, shard := range s.shards {
		shard.ResetStats()
	}
}
