// Package lru implements recency lists for LRU caches.
//
// A List orders values from most recently used (front) to least recently
// used (back). Two implementations are provided:
//
//   - MutexList guards an intrusive doubly linked list with a single mutex.
//     It is the baseline and the default.
//   - LockFreeList is a Harris-style linked list in which logical deletion
//     (marking) precedes physical unlinking, and removed nodes are recycled
//     only after hazard pointers show that no goroutine still references them.
//     It is intended for shards under heavy contention.
package lru

import "fmt"

// Kind selects a List implementation.
type Kind int

const (
	Mutex Kind = iota
	LockFree
)

func (k Kind) String() string {
	switch k {
	case Mutex:
		return "mutex"
	case LockFree:
		return "lockfree"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Handle identifies a value's position in a List. A Handle becomes stale
// once its value is erased or popped; operations on stale handles are no-ops.
type Handle[T any] interface {
	Value() T
}

// List is a recency-ordered sequence of values. All methods are safe for
// concurrent use.
type List[T any] interface {
	// PushFront inserts v at the front and returns its handle.
	PushFront(v T) Handle[T]
	// MoveToFront moves h to the front. It returns false if h is stale or
	// another goroutine is concurrently moving or removing it.
	MoveToFront(h Handle[T]) bool
	// PopBack removes and returns the least recently used value.
	PopBack() (T, bool)
	// Erase removes h from the list. It returns false if h is stale.
	Erase(h Handle[T]) bool
	// Len returns the number of values in the list.
	Len() int
	// Range calls fn for each value from front to back until fn returns false.
	// fn is called without internal locks held.
	Range(fn func(v T) bool)
}

// New returns an empty List of the given kind.
func New[T any](kind Kind) List[T] {
	switch kind {
	case Mutex:
		return NewMutexList[T]()
	case LockFree:
		return NewLockFreeList[T]()
	default:
		panic(fmt.Errorf("unknown list kind: %v", kind))
	}
}
