package cfrstore

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStats Stats

func (s fixedStats) Stats() Stats { return Stats(s) }

func TestCollector(t *testing.T) {
	c := NewCollector(fixedStats{
		Hits:            3,
		Misses:          1,
		Evictions:       2,
		WriteBacks:      5,
		WriteBackErrors: 1,
		CorruptRecords:  0,
		Promotions:      1,
		HotEntries:      7,
	}, "cfr")

	assert.Equal(t, 9, testutil.CollectAndCount(c))

	expected := `
# HELP cfr_store_hits_total Gets served by the hot tier.
# TYPE cfr_store_hits_total counter
cfr_store_hits_total 3
# HELP cfr_store_hot_entries Records currently held in the hot tier.
# TYPE cfr_store_hot_entries gauge
cfr_store_hot_entries 7
# HELP cfr_store_hit_ratio Fraction of Gets served by the hot tier.
# TYPE cfr_store_hit_ratio gauge
cfr_store_hit_ratio 0.75
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"cfr_store_hits_total", "cfr_store_hot_entries", "cfr_store_hit_ratio")
	assert.NoError(t, err)
}

func TestCollectorTracksStore(t *testing.T) {
	s, _ := newTestStore(t, 1, 1, false)
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector(s, "")))

	require.NoError(t, s.Put("a", NewNodeRecord(2)))
	require.NoError(t, s.Put("b", NewNodeRecord(2)))
	s.Get("a")

	families, err := reg.Gather()
	require.NoError(t, err)
	values := make(map[string]float64)
	for _, mf := range families {
		m := mf.GetMetric()[0]
		if m.GetCounter() != nil {
			values[mf.GetName()] = m.GetCounter().GetValue()
		} else {
			values[mf.GetName()] = m.GetGauge().GetValue()
		}
	}

	assert.Equal(t, 2.0, values["store_evictions_total"])
	assert.Equal(t, 2.0, values["store_write_backs_total"])
	assert.Equal(t, 1.0, values["store_promotions_total"])
	assert.Equal(t, 1.0, values["store_misses_total"])
	assert.Equal(t, 1.0, values["store_hot_entries"])
	assert.Equal(t, 0.0, values["store_hit_ratio"])
}
