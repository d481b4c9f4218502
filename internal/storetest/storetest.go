// Package storetest checks that a cfrstore.DurableStore implementation
// behaves as the interface requires.
package storetest

import (
	"fmt"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timpalpant/cfrstore"
)

// Opener returns a new, empty store. The store is closed by the test.
type Opener func(t *testing.T) cfrstore.DurableStore

// Run runs the conformance suite against stores returned by open.
// If exactSize is false, Size is only checked to be non-negative.
func Run(t *testing.T, open Opener, exactSize bool) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s cfrstore.DurableStore)
	}{
		{"GetPut", testGetPut},
		{"Delete", testDelete},
		{"PutBatch", testPutBatch},
		{"Scan", testScan},
		{"Clear", testClear},
		{"Compact", testCompact},
		{"Concurrent", testConcurrent},
		{"Size", func(t *testing.T, s cfrstore.DurableStore) { testSize(t, s, exactSize) }},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			s := open(t)
			defer func() {
				assert.NoError(t, s.Close())
			}()

			tc.fn(t, s)
		})
	}
}

func testGetPut(t *testing.T, s cfrstore.DurableStore) {
	_, ok, err := s.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	has, err := s.Has("missing")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, s.Put("a", []byte("1")))
	v, ok, err := s.Get("a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	has, err = s.Has("a")
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, s.Put("a", []byte("22")))
	v, _, err = s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("22"), v)

	// Empty values are distinct from missing keys.
	require.NoError(t, s.Put("empty", []byte{}))
	v, ok, err = s.Get("empty")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, v)
}

func testDelete(t *testing.T, s cfrstore.DurableStore) {
	require.NoError(t, s.Put("a", []byte("1")))
	require.NoError(t, s.Delete("a"))
	_, ok, err := s.Get("a")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting a missing key is not an error.
	assert.NoError(t, s.Delete("a"))
}

func testPutBatch(t *testing.T, s cfrstore.DurableStore) {
	var kvs []cfrstore.KeyValue
	for i := 0; i < 100; i++ {
		kvs = append(kvs, cfrstore.KeyValue{
			Key:   fmt.Sprintf("k%03d", i),
			Value: []byte(fmt.Sprint(i)),
		})
	}

	require.NoError(t, s.PutBatch(kvs))
	require.NoError(t, s.PutBatch(nil))
	for _, kv := range kvs {
		v, ok, err := s.Get(kv.Key)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, kv.Value, v)
	}
}

func testScan(t *testing.T, s cfrstore.DurableStore) {
	for _, key := range []string{"b/2", "a/1", "b/1", "c", "b/3"} {
		require.NoError(t, s.Put(key, []byte(key)))
	}

	var keys []string
	err := s.Scan("b/", func(key string, value []byte) error {
		assert.Equal(t, key, string(value))
		keys = append(keys, key)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b/1", "b/2", "b/3"}, keys)

	keys = nil
	require.NoError(t, s.Scan("", func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	}))
	assert.Equal(t, []string{"a/1", "b/1", "b/2", "b/3", "c"}, keys)

	errStop := errors.New("stop")
	n := 0
	err = s.Scan("", func(string, []byte) error {
		n++
		return errStop
	})
	assert.Equal(t, errStop, err)
	assert.Equal(t, 1, n)
}

func testClear(t *testing.T, s cfrstore.DurableStore) {
	for i := 0; i < 3000; i++ {
		require.NoError(t, s.Put(fmt.Sprint(i), []byte("v")))
	}

	require.NoError(t, s.Clear())
	n := 0
	require.NoError(t, s.Scan("", func(string, []byte) error {
		n++
		return nil
	}))
	assert.Equal(t, 0, n)

	// The store is still usable.
	require.NoError(t, s.Put("a", []byte("1")))
	_, ok, err := s.Get("a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func testCompact(t *testing.T, s cfrstore.DurableStore) {
	for i := 0; i < 100; i++ {
		require.NoError(t, s.Put(fmt.Sprint(i), []byte("v")))
		if i%2 == 0 {
			require.NoError(t, s.Delete(fmt.Sprint(i)))
		}
	}

	require.NoError(t, s.Compact())
	v, ok, err := s.Get("1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func testSize(t *testing.T, s cfrstore.DurableStore, exact bool) {
	n, err := s.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	for i := 0; i < 50; i++ {
		require.NoError(t, s.Put(fmt.Sprint(i), []byte("v")))
	}

	n, err = s.Size()
	require.NoError(t, err)
	if exact {
		assert.Equal(t, int64(50), n)
	} else {
		assert.GreaterOrEqual(t, n, int64(0))
	}
}

func testConcurrent(t *testing.T, s cfrstore.DurableStore) {
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("%d/%d", g, i)
				assert.NoError(t, s.Put(key, []byte(key)))
				v, ok, err := s.Get(key)
				assert.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, key, string(v))
				if i%10 == 0 {
					assert.NoError(t, s.Delete(key))
				}
			}
		}(g)
	}
	wg.Wait()

	n := 0
	require.NoError(t, s.Scan("", func(string, []byte) error {
		n++
		return nil
	}))
	assert.Equal(t, 8*180, n)
}
