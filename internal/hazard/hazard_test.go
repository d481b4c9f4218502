package hazard

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type node struct {
	id        int
	reclaimed bool
}

func TestRetireReclaimsUnprotected(t *testing.T) {
	var reclaimed []*node
	d := NewDomain(func(n *node) {
		n.reclaimed = true
		reclaimed = append(reclaimed, n)
	})

	r := d.Acquire()
	nodes := make([]*node, d.scanThreshold())
	for i := range nodes {
		nodes[i] = &node{id: i}
	}

	for _, n := range nodes {
		d.Retire(r, n)
	}
	d.Release(r)

	assert.Len(t, reclaimed, len(nodes))
	assert.Equal(t, int64(0), d.Pending())
	assert.Equal(t, uint64(len(nodes)), d.Reclaimed())
}

func TestProtectedNodeIsNotReclaimed(t *testing.T) {
	d := NewDomain(func(n *node) { n.reclaimed = true })

	reader := d.Acquire()
	protected := &node{id: -1}
	reader.Protect(0, protected)
	assert.True(t, d.Protected(protected))

	writer := d.Acquire()
	require.NotSame(t, reader, writer)
	d.Retire(writer, protected)
	for i := 0; i < d.scanThreshold()-1; i++ {
		d.Retire(writer, &node{id: i})
	}

	assert.False(t, protected.reclaimed)
	assert.Equal(t, int64(1), d.Pending())

	// Once the reader lets go, the next scan reclaims it.
	d.Release(reader)
	for i := 0; i < d.scanThreshold()-1; i++ {
		d.Retire(writer, &node{id: i})
	}
	assert.True(t, protected.reclaimed)
	d.Release(writer)
}

func TestAcquireReusesReleasedRecords(t *testing.T) {
	d := NewDomain(func(*node) {})
	r1 := d.Acquire()
	d.Release(r1)
	r2 := d.Acquire()
	assert.Same(t, r1, r2)
	assert.Nil(t, r2.Get(0))
	d.Release(r2)
}

func TestConcurrentAcquireRelease(t *testing.T) {
	d := NewDomain(func(*node) {})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				r := d.Acquire()
				n := &node{id: i}
				r.Protect(1, n)
				assert.Same(t, n, r.Get(1))
				r.Clear(1)
				d.Retire(r, n)
				d.Release(r)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(8000), d.Reclaimed()+uint64(d.Pending()))
}
