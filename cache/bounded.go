// Package cache implements bounded, concurrent LRU caches keyed by string.
//
// A Bounded cache holds at most its capacity of entries. When a Put would
// exceed capacity the least recently used entry is evicted and handed to the
// cache's EvictFunc, which typically writes it back to slower storage. A
// Sharded cache spreads keys over independent Bounded caches to reduce
// contention.
//
// An evicted entry stays in the index until its EvictFunc call returns.
// GetOrLoad serves it from memory in the meantime, and Delete and later
// write-backs of the same key are ordered after it, so slower storage never
// ends up holding an older value than the cache handed out.
package cache

import (
	stderrors "errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/timpalpant/cfrstore/lru"
)

var (
	// ErrInvalidCapacity is returned when a cache is created with a capacity
	// that is not positive, or smaller than its number of shards.
	ErrInvalidCapacity = errors.New("cache: invalid capacity")
	// ErrInvalidShards is returned when the number of shards is not
	// a positive power of two.
	ErrInvalidShards = errors.New("cache: invalid number of shards")
)

// EvictFunc is called with each entry that leaves the cache through eviction,
// Clear or Flush. It is never called with a cache lock held, so it may call
// back into the cache, but it must not Put or Delete the key it was called
// with.
type EvictFunc[V any] func(key string, value V) error

// LoadFunc fetches the value of a key that is not cached from slower storage.
type LoadFunc[V any] func(key string) (V, bool, error)

// Item is a key and its cached value.
type Item[V any] struct {
	Key   string
	Value V
}

// Entry states. Only linking and live entries are resident.
const (
	// Indexed but not yet in the recency list.
	stateLinking int32 = iota
	stateLive
	// Popped from the list with its write-back still running.
	stateEvicted
	// Placeholder for a GetOrLoad in progress.
	stateLoading
	// Placeholder left by Delete until earlier write-backs of the key have
	// landed and been deleted again.
	stateDeleted
	stateDead
)

type entry[V any] struct {
	key    string
	value  atomic.Pointer[V]
	handle lru.Handle[*entry[V]]
	state  atomic.Int32
	// dirty is false for values loaded from slower storage.
	dirty atomic.Bool
	// prev is the entry this one replaced while its write-back or delete was
	// still in flight. This entry's own write-back waits for it.
	prev atomic.Pointer[entry[V]]
	// done is closed once the entry has left the index. Placeholders get it
	// when created, other entries just before they are evicted.
	done chan struct{}
	// wmu serializes writes of the value to slower storage.
	wmu sync.Mutex
}

func newEntry[V any](key string, value V, dirty bool) *entry[V] {
	e := &entry[V]{key: key}
	e.value.Store(&value)
	e.dirty.Store(dirty)
	return e
}

func newPlaceholder[V any](key string, state int32) *entry[V] {
	e := &entry[V]{key: key, done: make(chan struct{})}
	e.state.Store(state)
	return e
}

func (e *entry[V]) resident() bool {
	s := e.state.Load()
	return s == stateLinking || s == stateLive
}

func (e *entry[V]) item() Item[V] {
	return Item[V]{Key: e.key, Value: *e.value.Load()}
}

// Bounded is an LRU cache holding at most Cap() entries.
//
// With lru.Mutex all operations are serialized by one mutex. With
// lru.LockFree the index is a sync.Map and the recency list is lock-free, so
// lookups and inserts never block; capacity may then be exceeded transiently
// while concurrent Puts race, and is restored before each Put returns.
type Bounded[V any] struct {
	capacity int
	onEvict  EvictFunc[V]

	mu    sync.Locker
	index index[V]
	list  lru.List[*entry[V]]
	// flushMu serializes FlushTo calls, which hold several entries' wmu.
	flushMu sync.Mutex

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	loads     atomic.Uint64
}

// NewBounded returns an empty cache of the given capacity. onEvict may be nil.
func NewBounded[V any](capacity int, kind lru.Kind, onEvict EvictFunc[V]) (*Bounded[V], error) {
	if capacity <= 0 {
		return nil, errors.Wrapf(ErrInvalidCapacity, "capacity=%d", capacity)
	}

	c := &Bounded[V]{
		capacity: capacity,
		onEvict:  onEvict,
		list:     lru.New[*entry[V]](kind),
	}

	switch kind {
	case lru.LockFree:
		c.mu = nopLocker{}
		c.index = &syncIndex[V]{}
	default:
		c.mu = &sync.Mutex{}
		c.index = make(mapIndex[V], capacity)
	}

	return c, nil
}

// Get returns the value for key and marks it most recently used.
func (c *Bounded[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	e, ok := c.index.load(key)
	if !ok || !e.resident() {
		c.mu.Unlock()
		c.misses.Add(1)
		var zero V
		return zero, false
	}

	v := *e.value.Load()
	c.touch(e)
	c.mu.Unlock()
	c.hits.Add(1)
	return v, true
}

// GetOrLoad returns the value for key, marking it most recently used.
//
// An entry whose write-back is still running is put back in the cache and
// counts as a hit. Otherwise a miss calls load and caches what it finds;
// concurrent GetOrLoads of the same key wait for that call instead of
// repeating it. A key deleted by a Delete that has not completed is
// reported missing without calling load.
//
// The returned error joins load's error with any EvictFunc errors from
// making room for the value.
func (c *Bounded[V]) GetOrLoad(key string, load LoadFunc[V]) (V, bool, error) {
	var zero V
	var errs []error
	for {
		c.mu.Lock()
		e, ok := c.index.load(key)
		if ok {
			switch e.state.Load() {
			case stateLinking, stateLive:
				v := *e.value.Load()
				if c.touch(e) {
					c.mu.Unlock()
					c.hits.Add(1)
					return v, true, stderrors.Join(errs...)
				}
			case stateEvicted:
				v := *e.value.Load()
				var evicted []*entry[V]
				ne := c.link(key, v, e.dirty.Load(), e, &evicted)
				evicted = c.evictTo(c.capacity, evicted)
				c.mu.Unlock()
				if err := c.notify(evicted); err != nil {
					errs = append(errs, err)
				}

				if ne != nil {
					c.hits.Add(1)
					return v, true, stderrors.Join(errs...)
				}

				continue
			case stateLoading:
				c.mu.Unlock()
				<-e.done
				continue
			case stateDeleted:
				c.mu.Unlock()
				c.misses.Add(1)
				return zero, false, stderrors.Join(errs...)
			default:
				c.index.compareAndDelete(key, e)
			}

			c.mu.Unlock()
			continue
		}

		p := newPlaceholder[V](key, stateLoading)
		if _, loaded := c.index.loadOrStore(key, p); loaded {
			c.mu.Unlock()
			continue
		}
		c.mu.Unlock()

		c.misses.Add(1)
		v, found, err := load(key)
		var evicted []*entry[V]
		linked := false
		if err == nil && found {
			c.mu.Lock()
			linked = c.link(key, v, false, p, &evicted) != nil
			evicted = c.evictTo(c.capacity, evicted)
			c.mu.Unlock()
		}

		c.finish(p)
		if evictErr := c.notify(evicted); evictErr != nil {
			errs = append(errs, evictErr)
		}

		if err != nil {
			return zero, false, stderrors.Join(append([]error{err}, errs...)...)
		} else if !found {
			return zero, false, stderrors.Join(errs...)
		} else if linked {
			c.loads.Add(1)
			return v, true, stderrors.Join(errs...)
		}

		// A concurrent Put or Delete replaced the placeholder.
	}
}

// Peek returns the value for key without affecting recency or stats.
func (c *Bounded[V]) Peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.index.load(key)
	if !ok || !e.resident() {
		var zero V
		return zero, false
	}

	return *e.value.Load(), true
}

// Has reports whether key is resident, without affecting recency or stats.
func (c *Bounded[V]) Has(key string) bool {
	_, ok := c.Peek(key)
	return ok
}

// Contains reports whether key is cached or still being written back.
// A key with a pending Delete is absent. For any other key it returns
// fallback(key).
func (c *Bounded[V]) Contains(key string, fallback func(key string) (bool, error)) (bool, error) {
	c.mu.Lock()
	e, ok := c.index.load(key)
	c.mu.Unlock()
	if !ok {
		return fallback(key)
	}

	switch e.state.Load() {
	case stateLinking, stateLive, stateEvicted:
		return true, nil
	case stateDeleted:
		return false, nil
	}

	return fallback(key)
}

// Put inserts or replaces the value for key and marks it most recently used.
// If the cache is full, least recently used entries are evicted first.
// The returned error joins all errors returned by the EvictFunc.
func (c *Bounded[V]) Put(key string, value V) error {
	_, err := c.put(key, value, true)
	return err
}

// PutIfAbsent inserts value for key only if key is not resident. It reports
// whether the value was inserted.
func (c *Bounded[V]) PutIfAbsent(key string, value V) (bool, error) {
	return c.put(key, value, false)
}

func (c *Bounded[V]) put(key string, value V, overwrite bool) (bool, error) {
	var evicted []*entry[V]
	inserted := false
	c.mu.Lock()
	for {
		e, ok := c.index.load(key)
		if ok && e.resident() {
			if !overwrite {
				break
			}

			e.value.Store(&value)
			e.dirty.Store(true)
			if c.touch(e) {
				inserted = true
				break
			}

			// Evicted or deleted before the store was seen.
			continue
		}

		if ok && e.state.Load() == stateDead {
			c.index.compareAndDelete(key, e)
			continue
		}

		if c.link(key, value, true, e, &evicted) != nil {
			inserted = true
			break
		}
	}

	evicted = c.evictTo(c.capacity, evicted)
	c.mu.Unlock()

	return inserted, c.notify(evicted)
}

// touch marks a resident entry most recently used. It reports false if e
// is no longer resident. The caller must hold mu.
func (c *Bounded[V]) touch(e *entry[V]) bool {
	switch e.state.Load() {
	case stateLive:
		c.list.MoveToFront(e.handle)
		return true
	case stateLinking:
		return true
	}

	return false
}

// link indexes a new entry for key in place of old, or where key is absent
// if old is nil, and pushes it to the front of the list, evicting first if
// the cache is full. It returns nil if the index changed concurrently.
// The caller must hold mu.
func (c *Bounded[V]) link(key string, value V, dirty bool, old *entry[V], evicted *[]*entry[V]) *entry[V] {
	*evicted = c.evictTo(c.capacity-1, *evicted)

	e := newEntry(key, value, dirty)
	if old != nil {
		if s := old.state.Load(); s == stateEvicted || s == stateDeleted {
			e.prev.Store(old)
		}

		if !c.index.compareAndSwap(key, old, e) {
			return nil
		}
	} else if _, loaded := c.index.loadOrStore(key, e); loaded {
		return nil
	}

	e.handle = c.list.PushFront(e)
	if !e.state.CompareAndSwap(stateLinking, stateLive) && e.state.Load() == stateDead {
		// Deleted before it was linked.
		c.list.Erase(e.handle)
	}

	return e
}

// evictTo evicts least recently used entries until at most n remain.
// The caller must hold mu.
func (c *Bounded[V]) evictTo(n int, evicted []*entry[V]) []*entry[V] {
	for c.list.Len() > n {
		e, ok := c.popBack()
		if !ok {
			break
		} else if e == nil {
			continue
		}

		c.evictions.Add(1)
		glog.V(2).Infof("Evicted %q", e.key)
		evicted = append(evicted, e)
	}

	return evicted
}

// popBack removes the least recently used entry from the list and marks it
// evicted. It returns a nil entry if the popped entry had been deleted.
func (c *Bounded[V]) popBack() (*entry[V], bool) {
	e, ok := c.list.PopBack()
	if !ok {
		return nil, false
	}

	e.done = make(chan struct{})
	if e.state.CompareAndSwap(stateLive, stateEvicted) ||
		e.state.CompareAndSwap(stateLinking, stateEvicted) {
		return e, true
	}

	return nil, true
}

// notify writes back evicted entries and then drops them from the index.
// An entry whose predecessor is still being written back by another
// goroutine waits for it without holding up the rest of the batch.
func (c *Bounded[V]) notify(evicted []*entry[V]) error {
	errs := make([]error, len(evicted))
	var wg sync.WaitGroup
	for i, e := range evicted {
		e, i := e, i
		if prev := e.prev.Load(); prev != nil && prev.state.Load() != stateDead {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = c.writeBack(e)
				c.finish(e)
			}()
			continue
		}

		errs[i] = c.writeBack(e)
		c.finish(e)
	}

	wg.Wait()
	return stderrors.Join(errs...)
}

func (c *Bounded[V]) writeBack(e *entry[V]) error {
	if prev := e.prev.Swap(nil); prev != nil {
		<-prev.done
	}

	if c.onEvict == nil || !e.dirty.Load() {
		return nil
	}

	e.wmu.Lock()
	defer e.wmu.Unlock()
	return c.onEvict(e.key, *e.value.Load())
}

// finish retires an evicted entry or a placeholder.
func (c *Bounded[V]) finish(e *entry[V]) {
	e.state.Store(stateDead)
	c.mu.Lock()
	c.index.compareAndDelete(e.key, e)
	c.mu.Unlock()
	close(e.done)
}

// Remove deletes key from the cache without calling the EvictFunc.
// It reports whether key was resident.
func (c *Bounded[V]) Remove(key string) bool {
	removed, _ := c.Delete(key, nil)
	return removed
}

// Delete removes key from the cache without calling the EvictFunc and then
// calls del, if not nil, to delete it from slower storage. If a write-back
// of key is still running, del is called again once it has finished, and
// until then the key reads as missing and later write-backs of it wait.
// Delete reports whether key was resident and returns the error of the
// first del call.
func (c *Bounded[V]) Delete(key string, del func(key string) error) (bool, error) {
	f := newPlaceholder[V](key, stateDeleted)
	removed := false
	var pending *entry[V]
	c.mu.Lock()
	for {
		e, ok := c.index.load(key)
		if !ok {
			if _, loaded := c.index.loadOrStore(key, f); !loaded {
				break
			}

			continue
		}

		if c.index.compareAndSwap(key, e, f) {
			removed, pending = c.unlink(e)
			break
		}
	}
	c.mu.Unlock()

	var err error
	if del != nil {
		err = del(key)
	}

	if pending == nil || pending.state.Load() == stateDead {
		c.finish(f)
		return removed, err
	}

	go func() {
		<-pending.done
		if del != nil {
			if err := del(key); err != nil {
				glog.Warningf("Delete of %q after its write-back failed: %v", key, err)
			}
		}

		c.finish(f)
	}()

	return removed, err
}

// unlink takes an entry that has just left the index out of the recency
// list. It reports whether the entry was resident and returns the entry, if
// any, whose write-back or delete of the same key may still be running.
// The caller must hold mu.
func (c *Bounded[V]) unlink(e *entry[V]) (bool, *entry[V]) {
	for {
		switch e.state.Load() {
		case stateLinking:
			if e.state.CompareAndSwap(stateLinking, stateDead) {
				return true, e.prev.Load()
			}
		case stateLive:
			if c.list.Erase(e.handle) {
				e.state.Store(stateDead)
				return true, e.prev.Load()
			}

			// Popped by an eviction that has not marked it yet.
			runtime.Gosched()
		case stateEvicted, stateDeleted:
			return false, e
		default:
			return false, nil
		}
	}
}

// Clear removes all entries and calls the EvictFunc for each of them. It
// returns once every write-back started before it has finished.
func (c *Bounded[V]) Clear() error {
	var evicted, pending []*entry[V]
	c.mu.Lock()
	for {
		e, ok := c.popBack()
		if !ok {
			break
		} else if e != nil {
			evicted = append(evicted, e)
		}
	}

	c.index.rangeEntries(func(e *entry[V]) bool {
		if s := e.state.Load(); s == stateEvicted || s == stateDeleted {
			pending = append(pending, e)
		}

		return true
	})
	c.mu.Unlock()

	err := c.notify(evicted)
	for _, e := range pending {
		<-e.done
	}

	return err
}

// Flush calls the EvictFunc for each resident entry that was not loaded
// unchanged from slower storage. Nothing is removed.
func (c *Bounded[V]) Flush() error {
	if c.onEvict == nil {
		return nil
	}

	var errs []error
	for _, e := range c.residents() {
		if err := c.flushEntry(e); err != nil {
			errs = append(errs, err)
		}
	}

	return stderrors.Join(errs...)
}

func (c *Bounded[V]) flushEntry(e *entry[V]) error {
	e.wmu.Lock()
	defer e.wmu.Unlock()
	if !e.resident() || !e.dirty.Load() {
		return nil
	}

	return c.onEvict(e.key, *e.value.Load())
}

// FlushTo calls fn once with the entries Flush would write, if there are
// any, from most to least recently used. Nothing is removed. Write-backs of
// those entries wait until fn returns.
func (c *Bounded[V]) FlushTo(fn func(items []Item[V]) error) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	var items []Item[V]
	var locked []*entry[V]
	defer func() {
		for _, e := range locked {
			e.wmu.Unlock()
		}
	}()

	for _, e := range c.residents() {
		if !e.dirty.Load() {
			continue
		}

		e.wmu.Lock()
		locked = append(locked, e)
		if e.resident() {
			items = append(items, e.item())
		}
	}

	if len(items) == 0 {
		return nil
	}

	return fn(items)
}

// Items returns the resident entries from most to least recently used.
func (c *Bounded[V]) Items() []Item[V] {
	entries := c.residents()
	items := make([]Item[V], 0, len(entries))
	for _, e := range entries {
		items = append(items, e.item())
	}

	return items
}

func (c *Bounded[V]) residents() []*entry[V] {
	var entries []*entry[V]
	c.mu.Lock()
	c.list.Range(func(e *entry[V]) bool {
		if e.resident() {
			entries = append(entries, e)
		}

		return true
	})
	c.mu.Unlock()
	return entries
}

// Len returns the number of resident entries.
func (c *Bounded[V]) Len() int {
	return c.list.Len()
}

// Cap returns the maximum number of resident entries.
func (c *Bounded[V]) Cap() int {
	return c.capacity
}

// Stats returns the hit, miss, eviction and load counts since creation
// or the last ResetStats.
func (c *Bounded[V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Loads:     c.loads.Load(),
	}
}

// HitRate returns hits / (hits + misses), or 0 if there have been no lookups.
func (c *Bounded[V]) HitRate() float64 {
	return c.Stats().HitRate()
}

// ResetStats zeroes all counts.
func (c *Bounded[V]) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
	c.loads.Store(0)
}
