package cache

import "sync"

// index maps keys to their current entries. An indexed entry is not
// necessarily resident: it may be waiting on a write-back, a load or a delete.
type index[V any] interface {
	load(key string) (*entry[V], bool)
	loadOrStore(key string, e *entry[V]) (*entry[V], bool)
	compareAndSwap(key string, old, e *entry[V]) bool
	compareAndDelete(key string, e *entry[V])
	rangeEntries(fn func(e *entry[V]) bool)
}

// mapIndex is an index for caches that serialize all access with a mutex.
type mapIndex[V any] map[string]*entry[V]

func (m mapIndex[V]) load(key string) (*entry[V], bool) {
	e, ok := m[key]
	return e, ok
}

func (m mapIndex[V]) loadOrStore(key string, e *entry[V]) (*entry[V], bool) {
	if existing, ok := m[key]; ok {
		return existing, true
	}

	m[key] = e
	return e, false
}

func (m mapIndex[V]) compareAndSwap(key string, old, e *entry[V]) bool {
	if existing, ok := m[key]; !ok || existing != old {
		return false
	}

	m[key] = e
	return true
}

func (m mapIndex[V]) compareAndDelete(key string, e *entry[V]) {
	if m[key] == e {
		delete(m, key)
	}
}

func (m mapIndex[V]) rangeEntries(fn func(e *entry[V]) bool) {
	for _, e := range m {
		if !fn(e) {
			return
		}
	}
}

// syncIndex is an index that is safe for concurrent use without a lock.
type syncIndex[V any] struct {
	m sync.Map
}

func (s *syncIndex[V]) load(key string) (*entry[V], bool) {
	v, ok := s.m.Load(key)
	if !ok {
		return nil, false
	}

	return v.(*entry[V]), true
}

func (s *syncIndex[V]) loadOrStore(key string, e *entry[V]) (*entry[V], bool) {
	v, loaded := s.m.LoadOrStore(key, e)
	return v.(*entry[V]), loaded
}

func (s *syncIndex[V]) compareAndSwap(key string, old, e *entry[V]) bool {
	return s.m.CompareAndSwap(key, old, e)
}

func (s *syncIndex[V]) compareAndDelete(key string, e *entry[V]) {
	s.m.CompareAndDelete(key, e)
}

func (s *syncIndex[V]) rangeEntries(fn func(e *entry[V]) bool) {
	s.m.Range(func(_, v any) bool {
		return fn(v.(*entry[V]))
	})
}

type nopLocker struct{}

func (nopLocker) Lock()   {}
func (nopLocker) Unlock() {}
