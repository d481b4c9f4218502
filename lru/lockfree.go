package lru

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/timpalpant/cfrstore/internal/hazard"
)

// Node states. A node's state and generation share one atomic word so that a
// claim made through a stale handle can never succeed on a recycled node.
const (
	stateFree    uint64 = iota // in the pool
	stateLinking               // being pushed, possibly not yet reachable
	stateLinked                // reachable and unclaimed
	stateMoving                // claimed by MoveToFront
	stateMovingErase           // claimed by MoveToFront, erased while moving
	stateRemoved               // claimed by Erase or PopBack
)

const stateBits = 8

// Hazard pointer slots.
const (
	hpNode = 0 // node claimed by the current operation
	hpPred = 1
	hpCur  = 2
)

// link is an immutable (successor, deleted) pair. Links are compared by
// identity, so replacing a node's link is the equivalent of a CAS on a
// pointer with a mark bit, with no ABA on recycled nodes.
type link[T any] struct {
	to     *lfNode[T]
	marked bool
}

type lfNode[T any] struct {
	next atomic.Pointer[link[T]]
	// prev is a hint. It is validated against the predecessor's next link
	// before every use and may point anywhere, including to recycled nodes.
	prev  atomic.Pointer[lfNode[T]]
	word  atomic.Uint64 // generation<<stateBits | state
	value T
}

func (n *lfNode[T]) load() (gen, state uint64) {
	w := n.word.Load()
	return w >> stateBits, w & (1<<stateBits - 1)
}

func (n *lfNode[T]) claim(gen, from, to uint64) bool {
	return n.word.CompareAndSwap(gen<<stateBits|from, gen<<stateBits|to)
}

func (n *lfNode[T]) set(gen, state uint64) {
	n.word.Store(gen<<stateBits | state)
}

type lfHandle[T any] struct {
	n     *lfNode[T]
	gen   uint64
	value T
}

func (h *lfHandle[T]) Value() T {
	return h.value
}

// LockFreeList is a List that never blocks. Removal first marks a node's next
// link (logical deletion) and then unlinks it from its predecessor; any
// traversal that finds a marked node helps unlink it. Removed nodes are
// retired to a hazard pointer domain and recycled once unprotected.
type LockFreeList[T any] struct {
	head, tail *lfNode[T] // sentinels; tail.prev hints at the last node
	size       atomic.Int64
	domain     *hazard.Domain[lfNode[T]]
	pool       sync.Pool

	violations atomic.Uint64
}

// NewLockFreeList returns an empty LockFreeList.
func NewLockFreeList[T any]() *LockFreeList[T] {
	l := &LockFreeList[T]{
		head: &lfNode[T]{},
		tail: &lfNode[T]{},
	}
	l.head.set(0, stateLinked)
	l.tail.set(0, stateLinked)
	l.head.next.Store(&link[T]{to: l.tail})
	l.tail.prev.Store(l.head)
	l.domain = hazard.NewDomain(l.reclaim)
	l.pool.New = func() any { return new(lfNode[T]) }
	return l
}

// PushFront implements List.
func (l *LockFreeList[T]) PushFront(v T) Handle[T] {
	n := l.pool.Get().(*lfNode[T])
	gen, _ := n.load()
	n.value = v
	n.set(gen, stateLinking)
	l.size.Add(1)
	l.link(n)
	n.set(gen, stateLinked)
	return &lfHandle[T]{n: n, gen: gen, value: v}
}

// MoveToFront implements List. It unlinks the node and pushes it back at the
// front; if another goroutine has already claimed the node the call is a no-op.
func (l *LockFreeList[T]) MoveToFront(h Handle[T]) bool {
	lh := h.(*lfHandle[T])
	n := lh.n
	if gen, state := n.load(); gen == lh.gen && state == stateLinked && l.head.next.Load().to == n {
		return true
	}

	r := l.domain.Acquire()
	defer l.domain.Release(r)
	r.Protect(hpNode, n)
	if !n.claim(lh.gen, stateLinked, stateMoving) {
		return false
	}

	l.mark(n)
	l.unlink(r, n)
	l.link(n)
	l.checkGen(n, lh.gen)

	if !n.claim(lh.gen, stateMoving, stateLinked) {
		// Erased while moving; the erase was handed to us.
		n.set(lh.gen, stateRemoved)
		l.remove(r, n, lh.gen)
	}

	return true
}

// PopBack implements List. It retries until it removes the last node or
// finds the list empty.
func (l *LockFreeList[T]) PopBack() (T, bool) {
	r := l.domain.Acquire()
	defer l.domain.Release(r)
	for {
		n := l.findLast(r)
		if n == l.head {
			var zero T
			return zero, false
		}

		r.Protect(hpNode, n)
		gen, state := n.load()
		if state == stateLinked && n.claim(gen, stateLinked, stateRemoved) {
			v := n.value
			l.remove(r, n, gen)
			return v, true
		}

		// Claimed by a concurrent move or erase; it will leave the back shortly.
		runtime.Gosched()
	}
}

// Erase implements List. Erasing a node that is being moved hands the erase
// off to the mover, which removes the node before MoveToFront returns.
func (l *LockFreeList[T]) Erase(h Handle[T]) bool {
	lh := h.(*lfHandle[T])
	n := lh.n
	r := l.domain.Acquire()
	defer l.domain.Release(r)
	r.Protect(hpNode, n)
	for {
		if n.claim(lh.gen, stateLinked, stateRemoved) {
			l.remove(r, n, lh.gen)
			return true
		}

		if n.claim(lh.gen, stateMoving, stateMovingErase) {
			return true
		}

		gen, state := n.load()
		if gen != lh.gen || state == stateRemoved || state == stateMovingErase {
			return false
		}
	}
}

// Len implements List.
func (l *LockFreeList[T]) Len() int {
	if n := l.size.Load(); n > 0 {
		return int(n)
	}

	return 0
}

// Range implements List. The traversal is best effort: values pushed or
// removed concurrently may or may not be seen.
func (l *LockFreeList[T]) Range(fn func(v T) bool) {
	type visit struct {
		n   *lfNode[T]
		gen uint64
	}

	var values []T
	seen := make(map[visit]struct{})
	r := l.domain.Acquire()
	l.walk(r, nil, func(n *lfNode[T]) bool {
		gen, _ := n.load()
		// walk restarts from the front when it loses a race.
		if _, ok := seen[visit{n, gen}]; ok {
			return true
		}

		seen[visit{n, gen}] = struct{}{}
		v := n.value
		l.checkGen(n, gen)
		values = append(values, v)
		return true
	})
	l.domain.Release(r)

	for _, v := range values {
		if !fn(v) {
			return
		}
	}
}

// Violations returns the number of times a node was found to have been
// recycled while a goroutine held it protected. It is always zero unless the
// reclamation protocol is broken.
func (l *LockFreeList[T]) Violations() uint64 {
	return l.violations.Load()
}

// Reclaimed returns the number of removed nodes recycled so far.
func (l *LockFreeList[T]) Reclaimed() uint64 {
	return l.domain.Reclaimed()
}

func (l *LockFreeList[T]) checkGen(n *lfNode[T], gen uint64) {
	if g, _ := n.load(); g != gen {
		l.violations.Add(1)
	}
}

// link pushes n, which must not be reachable, at the front of the list.
func (l *LockFreeList[T]) link(n *lfNode[T]) {
	n.prev.Store(l.head)
	for {
		first := l.head.next.Load()
		n.next.Store(&link[T]{to: first.to})
		if l.head.next.CompareAndSwap(first, &link[T]{to: n}) {
			first.to.prev.Store(n)
			return
		}
	}
}

// mark logically deletes n by marking its next link.
func (l *LockFreeList[T]) mark(n *lfNode[T]) {
	for {
		next := n.next.Load()
		if next.marked {
			return
		}

		if n.next.CompareAndSwap(next, &link[T]{to: next.to, marked: true}) {
			return
		}
	}
}

// remove unlinks and retires n, which the caller has claimed as removed.
func (l *LockFreeList[T]) remove(r *hazard.Record[lfNode[T]], n *lfNode[T], gen uint64) {
	l.mark(n)
	l.unlink(r, n)
	l.size.Add(-1)
	l.checkGen(n, gen)
	r.Clear(hpNode)
	l.domain.Retire(r, n)
}

// unlink ensures that marked node n is no longer reachable from the head.
// It tries the predecessor hinted by n.prev first and falls back to a walk
// from the front.
func (l *LockFreeList[T]) unlink(r *hazard.Record[lfNode[T]], n *lfNode[T]) {
	if pred := n.prev.Load(); pred != nil {
		r.Protect(hpPred, pred)
		predNext := pred.next.Load()
		if predNext.to == n && !predNext.marked && l.isLinked(pred) {
			succ := n.next.Load().to
			if pred.next.CompareAndSwap(predNext, &link[T]{to: succ}) {
				succ.prev.CompareAndSwap(n, pred)
				return
			}
		}
	}

	l.walk(r, n, nil)
}

func (l *LockFreeList[T]) isLinked(n *lfNode[T]) bool {
	if n == l.head {
		return true
	}

	_, state := n.load()
	return state == stateLinked
}

// findLast returns the last node in the list, protected in hpPred,
// or head if the list is empty.
func (l *LockFreeList[T]) findLast(r *hazard.Record[lfNode[T]]) *lfNode[T] {
	if last := l.tail.prev.Load(); last != nil && last != l.head {
		r.Protect(hpPred, last)
		next := last.next.Load()
		if next.to == l.tail && !next.marked && l.isLinked(last) {
			return last
		}
	}

	last := l.walk(r, nil, nil)
	if last != l.head {
		l.tail.prev.Store(last)
	}

	return last
}

// walk traverses the list from the front, unlinking any marked nodes it finds.
// It returns early once target has been unlinked or visit returns false.
// visit is called with each unmarked node protected in hpCur. walk returns the
// last unmarked node passed, protected in hpPred, or head if there was none.
func (l *LockFreeList[T]) walk(r *hazard.Record[lfNode[T]], target *lfNode[T], visit func(*lfNode[T]) bool) *lfNode[T] {
retry:
	for {
		pred := l.head
		r.Clear(hpPred)
		predNext := pred.next.Load()
		for {
			cur := predNext.to
			if cur == l.tail {
				return pred
			}

			r.Protect(hpCur, cur)
			if pred.next.Load() != predNext {
				continue retry
			}

			curNext := cur.next.Load()
			if curNext.marked {
				unlinked := &link[T]{to: curNext.to}
				if !pred.next.CompareAndSwap(predNext, unlinked) {
					continue retry
				}

				curNext.to.prev.CompareAndSwap(cur, pred)
				if cur == target {
					return pred
				}

				predNext = unlinked
				continue
			}

			if visit != nil && !visit(cur) {
				return pred
			}

			r.Protect(hpPred, cur)
			pred = cur
			predNext = curNext
		}
	}
}

// reclaim recycles n once the hazard domain has shown it to be unreferenced.
func (l *LockFreeList[T]) reclaim(n *lfNode[T]) {
	gen, _ := n.load()
	var zero T
	n.value = zero
	n.prev.Store(nil)
	n.set(gen+1, stateFree)
	l.pool.Put(n)
}
