// Package hazard implements hazard pointers for safe reuse of nodes in
// lock-free data structures.
//
// Go's garbage collector already guarantees memory safety, so "freeing" a
// node here means handing it back to its owner for reuse (see Domain.reclaim).
// Reuse while another goroutine still holds a reference obtained before the
// node was unlinked would let that goroutine act on an unrelated entry, which
// is exactly what hazard pointers prevent.
//
// Usage:
//
//	r := d.Acquire()
//	defer d.Release(r)
//	r.Protect(0, p)
//	// validate that p is still reachable, then use p.
//	...
//	d.Retire(r, p) // after p has been unlinked by this goroutine.
package hazard

import (
	"sync/atomic"
)

// Slots is the number of hazard pointers held by each Record.
const Slots = 3

// Record is a set of hazard pointers owned by one goroutine between
// Acquire and Release.
type Record[T any] struct {
	next   *Record[T] // immutable once published
	active atomic.Bool
	slots  [Slots]atomic.Pointer[T]

	// Nodes retired by holders of this record and not yet reclaimed.
	// Only accessed by the current holder.
	retired []*T
}

// Protect publishes p in slot i. The caller must re-validate that p is
// still reachable after Protect returns before trusting it.
func (r *Record[T]) Protect(i int, p *T) {
	r.slots[i].Store(p)
}

// Get returns the pointer currently published in slot i.
func (r *Record[T]) Get(i int) *T {
	return r.slots[i].Load()
}

// Clear resets slot i.
func (r *Record[T]) Clear(i int) {
	r.slots[i].Store(nil)
}

// Domain is a set of hazard records shared by all goroutines that access
// one data structure.
type Domain[T any] struct {
	head     atomic.Pointer[Record[T]]
	nRecords atomic.Int64
	reclaim  func(*T)

	nRetired   atomic.Int64
	nReclaimed atomic.Uint64
}

// NewDomain returns a Domain that calls reclaim for every retired node
// once no hazard pointer references it.
func NewDomain[T any](reclaim func(*T)) *Domain[T] {
	return &Domain[T]{reclaim: reclaim}
}

// Acquire returns a Record for exclusive use by the caller until Release.
func (d *Domain[T]) Acquire() *Record[T] {
	for r := d.head.Load(); r != nil; r = r.next {
		if !r.active.Load() && r.active.CompareAndSwap(false, true) {
			return r
		}
	}

	r := &Record[T]{}
	r.active.Store(true)
	for {
		head := d.head.Load()
		r.next = head
		if d.head.CompareAndSwap(head, r) {
			d.nRecords.Add(1)
			return r
		}
	}
}

// Release clears all hazard pointers in r and returns it to the domain.
func (d *Domain[T]) Release(r *Record[T]) {
	for i := range r.slots {
		r.slots[i].Store(nil)
	}

	r.active.Store(false)
}

// Retire hands p, which must already be unreachable by new readers, to the
// domain. p is reclaimed once no Record protects it.
func (d *Domain[T]) Retire(r *Record[T], p *T) {
	r.retired = append(r.retired, p)
	d.nRetired.Add(1)
	if len(r.retired) >= d.scanThreshold() {
		d.scan(r)
	}
}

// Reclaimed returns the number of nodes reclaimed so far.
func (d *Domain[T]) Reclaimed() uint64 {
	return d.nReclaimed.Load()
}

// Pending returns the number of retired nodes waiting to be reclaimed.
func (d *Domain[T]) Pending() int64 {
	return d.nRetired.Load()
}

// Protected reports whether any Record currently protects p.
func (d *Domain[T]) Protected(p *T) bool {
	for r := d.head.Load(); r != nil; r = r.next {
		for i := range r.slots {
			if r.slots[i].Load() == p {
				return true
			}
		}
	}

	return false
}

func (d *Domain[T]) scanThreshold() int {
	return 2*Slots*int(d.nRecords.Load()) + 16
}

// scan reclaims every node in r.retired that is not protected by any record.
func (d *Domain[T]) scan(r *Record[T]) {
	hazards := make(map[*T]struct{}, Slots*int(d.nRecords.Load()))
	for rec := d.head.Load(); rec != nil; rec = rec.next {
		for i := range rec.slots {
			if p := rec.slots[i].Load(); p != nil {
				hazards[p] = struct{}{}
			}
		}
	}

	kept := r.retired[:0]
	for _, p := range r.retired {
		if _, ok := hazards[p]; ok {
			kept = append(kept, p)
			continue
		}

		d.nRetired.Add(-1)
		d.nReclaimed.Add(1)
		d.reclaim(p)
	}

	for i := len(kept); i < len(r.retired); i++ {
		r.retired[i] = nil
	}
	r.retired = kept
}
