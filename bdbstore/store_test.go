package bdbstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timpalpant/cfrstore"
	"github.com/timpalpant/cfrstore/internal/storetest"
)

func TestConformanceInMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) cfrstore.DurableStore {
		s, err := New(InMemoryParams())
		require.NoError(t, err)
		return s
	}, true)
}

func TestConformanceOnDisk(t *testing.T) {
	storetest.Run(t, func(t *testing.T) cfrstore.DurableStore {
		params := DefaultParams(t.TempDir())
		params.GCInterval = 0
		s, err := New(params)
		require.NoError(t, err)
		return s
	}, true)
}

func TestReopen(t *testing.T) {
	params := DefaultParams(t.TempDir())
	s, err := New(params)
	require.NoError(t, err)
	require.NoError(t, s.Put("a", []byte("1")))
	require.NoError(t, s.Close())

	s, err = New(params)
	require.NoError(t, err)
	defer s.Close()
	v, ok, err := s.Get("a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)
}

func TestRequiresPath(t *testing.T) {
	_, err := New(Params{})
	assert.Error(t, err)
}

func TestParams(t *testing.T) {
	p := DefaultParams("/tmp/x")
	assert.Equal(t, "/tmp/x", p.Path)
	assert.False(t, p.InMemory)
	assert.Greater(t, p.GCInterval, time.Duration(0))

	p = InMemoryParams()
	assert.True(t, p.InMemory)
	assert.Equal(t, time.Duration(0), p.GCInterval)
}

func TestGCRunner(t *testing.T) {
	s, err := New(InMemoryParams())
	require.NoError(t, err)
	defer s.Close()

	t.Run("rejects nil db", func(t *testing.T) {
		_, err := NewGCRunner(nil, time.Minute, 0.5)
		assert.Error(t, err)
	})

	t.Run("rejects invalid interval", func(t *testing.T) {
		_, err := NewGCRunner(s.db, 0, 0.5)
		assert.Error(t, err)
	})

	t.Run("rejects invalid ratio", func(t *testing.T) {
		_, err := NewGCRunner(s.db, time.Minute, 1.5)
		assert.Error(t, err)
	})

	t.Run("starts and stops", func(t *testing.T) {
		r, err := NewGCRunner(s.db, 10*time.Millisecond, 0.5)
		require.NoError(t, err)
		r.Start()
		time.Sleep(30 * time.Millisecond)
		r.Stop()
		r.Stop()
	})
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, cfrstore.Engines(), EngineName)
	s, err := cfrstore.OpenEngine(EngineName, t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &Store{}, s)
	assert.NoError(t, s.Close())
}
