package cfrstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const memEngine = "memtest"

var errBadPath = errors.New("bad path")

func init() {
	RegisterEngine(memEngine, func(path string) (DurableStore, error) {
		if path == "bad" {
			return nil, errBadPath
		}

		return newMemStore(), nil
	})
}

func TestEngines(t *testing.T) {
	assert.Contains(t, Engines(), memEngine)
}

func TestRegisterEnginePanics(t *testing.T) {
	assert.Panics(t, func() { RegisterEngine(memEngine, func(string) (DurableStore, error) { return nil, nil }) })
	assert.Panics(t, func() { RegisterEngine("nil-engine", nil) })
	assert.NotContains(t, Engines(), "nil-engine")
}

func TestOpenEngine(t *testing.T) {
	db, err := OpenEngine(memEngine, "")
	require.NoError(t, err)
	assert.NoError(t, db.Close())

	_, err = OpenEngine("no-such-engine", "")
	assert.True(t, errors.Is(err, ErrInvalidConfig), "err=%v", err)

	_, err = OpenEngine(memEngine, "bad")
	assert.True(t, errors.Is(err, errBadPath), "err=%v", err)
}

func TestOpen(t *testing.T) {
	params := DefaultParams("")
	params.Engine = memEngine
	params.Capacity = 16
	params.Shards = 4
	s, err := Open(params)
	require.NoError(t, err)
	assert.Equal(t, params, s.Params())

	require.NoError(t, s.Put("a", NewNodeRecord(2)))
	_, ok, err := s.Get("a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, s.Close())

	params.Engine = "no-such-engine"
	_, err = Open(params)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	params.Engine = memEngine
	params.Shards = 5
	_, err = Open(params)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}
