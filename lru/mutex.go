package lru

import "sync"

// MutexList is a List guarded by a single mutex.
type MutexList[T any] struct {
	mu   sync.Mutex
	root mutexElem[T] // sentinel: root.next is the front, root.prev the back
	len  int
}

type mutexElem[T any] struct {
	next, prev *mutexElem[T]
	list       *MutexList[T] // nil once removed
	value      T
}

func (e *mutexElem[T]) Value() T {
	return e.value
}

// NewMutexList returns an empty MutexList.
func NewMutexList[T any]() *MutexList[T] {
	l := &MutexList[T]{}
	l.root.next = &l.root
	l.root.prev = &l.root
	return l
}

// PushFront implements List.
func (l *MutexList[T]) PushFront(v T) Handle[T] {
	e := &mutexElem[T]{list: l, value: v}
	l.mu.Lock()
	l.insertFront(e)
	l.len++
	l.mu.Unlock()
	return e
}

// MoveToFront implements List.
func (l *MutexList[T]) MoveToFront(h Handle[T]) bool {
	e := h.(*mutexElem[T])
	l.mu.Lock()
	defer l.mu.Unlock()
	if e.list != l {
		return false
	}

	if l.root.next != e {
		l.unlink(e)
		l.insertFront(e)
	}

	return true
}

// PopBack implements List.
func (l *MutexList[T]) PopBack() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.len == 0 {
		var zero T
		return zero, false
	}

	e := l.root.prev
	l.remove(e)
	return e.value, true
}

// Erase implements List.
func (l *MutexList[T]) Erase(h Handle[T]) bool {
	e := h.(*mutexElem[T])
	l.mu.Lock()
	defer l.mu.Unlock()
	if e.list != l {
		return false
	}

	l.remove(e)
	return true
}

// Len implements List.
func (l *MutexList[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.len
}

// Range implements List. fn sees a snapshot taken under the lock.
func (l *MutexList[T]) Range(fn func(v T) bool) {
	l.mu.Lock()
	values := make([]T, 0, l.len)
	for e := l.root.next; e != &l.root; e = e.next {
		values = append(values, e.value)
	}
	l.mu.Unlock()

	for _, v := range values {
		if !fn(v) {
			return
		}
	}
}

func (l *MutexList[T]) insertFront(e *mutexElem[T]) {
	e.prev = &l.root
	e.next = l.root.next
	e.prev.next = e
	e.next.prev = e
}

func (l *MutexList[T]) unlink(e *mutexElem[T]) {
	e.prev.next = e.next
	e.next.prev = e.prev
}

func (l *MutexList[T]) remove(e *mutexElem[T]) {
	l.unlink(e)
	e.next = nil
	e.prev = nil
	e.list = nil
	l.len--
}
