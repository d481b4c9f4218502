package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timpalpant/cfrstore"
	"github.com/timpalpant/cfrstore/ldbstore"
)

func newTestDB(t *testing.T) *ldbstore.Store {
	db, err := ldbstore.New(filepath.Join(t.TempDir(), "db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	for _, key := range []string{"a/1", "a/2", "b/1"} {
		rec := cfrstore.NewNodeRecord(2)
		rec.AddRegret([]float32{1, 3})
		rec.UpdateStrategy()
		buf, err := rec.MarshalBinary()
		require.NoError(t, err)
		require.NoError(t, db.Put(key, buf))
	}

	require.NoError(t, db.Put("bad", []byte{7, 1}))
	return db
}

func TestStats(t *testing.T) {
	db := newTestDB(t)
	var out bytes.Buffer
	require.NoError(t, runStats(&out, db, true))
	assert.Contains(t, out.String(), "keys: 4\n")
	assert.Contains(t, out.String(), "corrupt: 1\n")
	assert.Contains(t, out.String(), "actions=2: 3\n")
}

func TestGet(t *testing.T) {
	db := newTestDB(t)
	var out bytes.Buffer
	require.NoError(t, runGet(&out, db, "a/1"))
	assert.Contains(t, out.String(), "key: a/1\n")
	assert.Contains(t, out.String(), "regret_sum: [1, 3]\n")
	assert.Contains(t, out.String(), "current_strategy: [0.25, 0.75]\n")

	assert.Error(t, runGet(&out, db, "missing"))
	assert.Error(t, runGet(&out, db, "bad"))
}

func TestDump(t *testing.T) {
	db := newTestDB(t)
	var out bytes.Buffer
	require.NoError(t, runDump(&out, db, "a/", 0))
	assert.Contains(t, out.String(), "key: a/1\n")
	assert.Contains(t, out.String(), "key: a/2\n")
	assert.NotContains(t, out.String(), "b/1")

	out.Reset()
	require.NoError(t, runDump(&out, db, "", 1))
	assert.Contains(t, out.String(), "key: a/1\n")
	assert.NotContains(t, out.String(), "a/2")
}

func TestCheck(t *testing.T) {
	db := newTestDB(t)
	var out bytes.Buffer
	require.NoError(t, runCheck(&out, db, false))
	assert.Contains(t, out.String(), "checked 4 records, 1 corrupt\n")
	has, err := db.Has("bad")
	require.NoError(t, err)
	assert.True(t, has)

	out.Reset()
	require.NoError(t, runCheck(&out, db, true))
	assert.Contains(t, out.String(), "deleted 1 corrupt records\n")
	has, err = db.Has("bad")
	require.NoError(t, err)
	assert.False(t, has)

	out.Reset()
	require.NoError(t, runCheck(&out, db, false))
	assert.Contains(t, out.String(), "checked 3 records, 0 corrupt\n")
}

func TestBench(t *testing.T) {
	params := cfrstore.DefaultParams(filepath.Join(t.TempDir(), "db"))
	params.Capacity = 64
	params.Shards = 4
	bp := benchParams{Workers: 4, Ops: 500, Keys: 256, Actions: 3, ZipfS: 1.2, Seed: 1}

	for _, lockFree := range []bool{false, true} {
		params.LockFree = lockFree
		var out bytes.Buffer
		require.NoError(t, runBench(context.Background(), &out, params, bp))
		assert.Contains(t, out.String(), "ops: 2000 in ")
		assert.Contains(t, out.String(), "write-back errors: 0\n")
	}

	bp.ZipfS = 1
	assert.Error(t, runBench(context.Background(), &bytes.Buffer{}, params, bp))
}

func TestLoadParamsFlags(t *testing.T) {
	defer func() { configPath, storePath, engineName = "", "", "" }()

	_, err := loadParams()
	assert.Error(t, err)

	storePath = "/data/cfr"
	params, err := loadParams()
	require.NoError(t, err)
	assert.Equal(t, "/data/cfr", params.Path)
	assert.Equal(t, cfrstore.DefaultEngine, params.Engine)

	engineName = "badger"
	params, err = loadParams()
	require.NoError(t, err)
	assert.Equal(t, "badger", params.Engine)
}
