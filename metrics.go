package cfrstore

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StatsSource is implemented by stores that report Stats, such as TieredStore.
type StatsSource interface {
	Stats() Stats
}

// Collector exports the Stats of a store as Prometheus metrics.
//
// Counters are read from the store on every scrape, so calling ResetStats
// on the store shows up as a counter reset.
type Collector struct {
	src StatsSource

	hits            *prometheus.Desc
	misses          *prometheus.Desc
	evictions       *prometheus.Desc
	writeBacks      *prometheus.Desc
	writeBackErrors *prometheus.Desc
	corruptRecords  *prometheus.Desc
	promotions      *prometheus.Desc
	hotEntries      *prometheus.Desc
	hitRatio        *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a Collector for src with metric names prefixed by
// namespace. Register it with a prometheus.Registerer to export it.
func NewCollector(src StatsSource, namespace string) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "store", name), help, nil, nil)
	}

	return &Collector{
		src:             src,
		hits:            desc("hits_total", "Gets served by the hot tier."),
		misses:          desc("misses_total", "Gets that missed the hot tier."),
		evictions:       desc("evictions_total", "Records evicted from the hot tier."),
		writeBacks:      desc("write_backs_total", "Records written to the durable tier."),
		writeBackErrors: desc("write_back_errors_total", "Records that failed to be written to the durable tier."),
		corruptRecords:  desc("corrupt_records_total", "Corrupt records read from the durable tier."),
		promotions:      desc("promotions_total", "Records promoted from the durable tier into the hot tier."),
		hotEntries:      desc("hot_entries", "Records currently held in the hot tier."),
		hitRatio:        desc("hit_ratio", "Fraction of Gets served by the hot tier."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
	ch <- c.writeBacks
	ch <- c.writeBackErrors
	ch <- c.corruptRecords
	ch <- c.promotions
	ch <- c.hotEntries
	ch <- c.hitRatio
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	counter := func(desc *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v))
	}

	counter(c.hits, s.Hits)
	counter(c.misses, s.Misses)
	counter(c.evictions, s.Evictions)
	counter(c.writeBacks, s.WriteBacks)
	counter(c.writeBackErrors, s.WriteBackErrors)
	counter(c.corruptRecords, s.CorruptRecords)
	counter(c.promotions, s.Promotions)
	ch <- prometheus.MustNewConstMetric(c.hotEntries, prometheus.GaugeValue, float64(s.HotEntries))

	var ratio float64
	if total := s.Hits + s.Misses; total > 0 {
		ratio = float64(s.Hits) / float64(total)
	}
	ch <- prometheus.MustNewConstMetric(c.hitRatio, prometheus.GaugeValue, ratio)
}
