//go:build rocksdb

package rdbstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timpalpant/cfrstore"
	"github.com/timpalpant/cfrstore/internal/storetest"
)

func TestConformance(t *testing.T) {
	// Size is an estimate that may lag writes still in the memtable.
	storetest.Run(t, func(t *testing.T) cfrstore.DurableStore {
		s, err := New(DefaultParams(t.TempDir()), true)
		require.NoError(t, err)
		return s
	}, false)
}

func TestReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := New(DefaultParams(dir), true)
	require.NoError(t, err)
	require.NoError(t, s.Put("a", []byte("1")))
	require.NoError(t, s.Close())

	s, err = New(DefaultParams(dir), true)
	require.NoError(t, err)
	defer s.Close()
	v, ok, err := s.Get("a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, cfrstore.Engines(), EngineName)
}
