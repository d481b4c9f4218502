package cfrstore_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timpalpant/cfrstore"
	"github.com/timpalpant/cfrstore/bdbstore"
	"github.com/timpalpant/cfrstore/ldbstore"
)

func TestOpenPersists(t *testing.T) {
	for _, engine := range []string{ldbstore.EngineName, bdbstore.EngineName} {
		engine := engine
		t.Run(engine, func(t *testing.T) {
			params := cfrstore.DefaultParams(filepath.Join(t.TempDir(), "db"))
			params.Engine = engine
			params.Capacity = 8
			params.Shards = 2

			s, err := cfrstore.Open(params)
			require.NoError(t, err)
			for i := 0; i < 100; i++ {
				rec := cfrstore.NewNodeRecord(3)
				rec.AddRegret([]float32{float32(i), 0, 1})
				rec.UpdateStrategy()
				require.NoError(t, s.Put(fmt.Sprint(i), rec))
			}
			require.NoError(t, s.Close())

			s, err = cfrstore.Open(params)
			require.NoError(t, err)
			defer s.Close()
			for i := 0; i < 100; i++ {
				rec, ok, err := s.Get(fmt.Sprint(i))
				require.NoError(t, err)
				require.True(t, ok, "key %d", i)
				assert.Equal(t, []float32{float32(i), 0, 1}, rec.RegretSum)
			}

			assert.Equal(t, uint64(100), s.Stats().Promotions)
		})
	}
}

func TestOpenDefaultEngine(t *testing.T) {
	params := cfrstore.DefaultParams(filepath.Join(t.TempDir(), "db"))
	params.Engine = ""
	params.Capacity = 4
	params.Shards = 1
	s, err := cfrstore.Open(params)
	require.NoError(t, err)
	assert.NoError(t, s.Close())
	assert.Contains(t, cfrstore.Engines(), cfrstore.DefaultEngine)
}
