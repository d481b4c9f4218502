package cfrstore

import (
	"sync/atomic"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/timpalpant/cfrstore/cache"
)

// TieredStore is a Store that keeps recently used records decoded in memory
// (the hot tier) in front of a DurableStore (the cold tier).
//
// Reads that miss the hot tier are served from the cold tier and promoted.
// Writes go to the hot tier only; a record reaches the cold tier when it is
// evicted, or on Flush, Clear or Close. A Put is therefore not durable until
// then, and a crash in between loses it.
type TieredStore struct {
	params Params
	hot    *cache.Sharded[*NodeRecord]
	cold   DurableStore

	writeBacks      atomic.Uint64
	writeBackErrors atomic.Uint64
	corruptRecords  atomic.Uint64
}

var _ Store = (*TieredStore)(nil)

// Stats are the counters of a TieredStore. Hits, Misses and Evictions
// refer to the hot tier.
type Stats struct {
	Hits            uint64
	Misses          uint64
	Evictions       uint64
	WriteBacks      uint64
	WriteBackErrors uint64
	CorruptRecords  uint64
	Promotions      uint64
	HotEntries      int
}

// Open opens the durable tier named by params.Engine at params.Path and
// returns a TieredStore in front of it. Close releases both tiers.
func Open(params Params) (*TieredStore, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	cold, err := OpenEngine(params.engine(), params.Path)
	if err != nil {
		return nil, err
	}

	s, err := New(params, cold)
	if err != nil {
		cold.Close()
		return nil, err
	}

	return s, nil
}

// New returns a TieredStore in front of the given durable tier.
// params.Path and params.Engine are ignored.
func New(params Params, cold DurableStore) (*TieredStore, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	s := &TieredStore{params: params, cold: cold}
	hot, err := cache.NewSharded[*NodeRecord](params.Capacity, params.Shards, params.ListKind(), s.writeBack)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidConfig, err.Error())
	}

	s.hot = hot
	glog.V(1).Infof("Created tiered store: capacity=%d, shards=%d, list=%v",
		params.Capacity, params.Shards, params.ListKind())
	return s, nil
}

// writeBack is the hot tier's eviction callback.
func (s *TieredStore) writeBack(key string, rec *NodeRecord) error {
	buf, err := rec.MarshalBinary()
	if err == nil {
		err = s.cold.Put(key, buf)
	}

	if err != nil {
		s.writeBackErrors.Add(1)
		glog.Warningf("Write-back of %q failed: %v", key, err)
		return &WriteBackError{Key: key, Err: err}
	}

	s.writeBacks.Add(1)
	return nil
}

// Get implements Store. The returned record is shared with the store and
// must not be modified.
//
// A record evicted from the hot tier whose write-back has not finished is
// served from memory. If promoting a record evicts another record whose
// write-back fails, Get returns the record along with the error, which
// wraps a *WriteBackError.
func (s *TieredStore) Get(key string) (*NodeRecord, bool, error) {
	return s.hot.GetOrLoad(key, s.load)
}

// load reads a record missing from the hot tier from the cold tier.
func (s *TieredStore) load(key string) (*NodeRecord, bool, error) {
	buf, ok, err := s.cold.Get(key)
	if err != nil || !ok {
		return nil, false, err
	}

	rec, err := DecodeRecord(buf)
	if err != nil {
		s.corruptRecords.Add(1)
		glog.Warningf("Ignoring corrupt record for %q: %v", key, err)
		return nil, false, nil
	}

	return rec, true, nil
}

// Put implements Store. rec must not be modified after it is stored.
func (s *TieredStore) Put(key string, rec *NodeRecord) error {
	if rec == nil || !rec.valid() || len(rec.CurrentStrategy) != rec.NumActions() {
		return errors.Wrapf(ErrInvalidRecord, "put %q", key)
	}

	return s.hot.Put(key, rec)
}

// Has implements Store.
func (s *TieredStore) Has(key string) (bool, error) {
	return s.hot.Contains(key, s.cold.Has)
}

// Remove implements Store. The record is removed from both tiers. If its
// write-back is still running, the cold tier delete is repeated once the
// write-back has finished.
func (s *TieredStore) Remove(key string) error {
	_, err := s.hot.Delete(key, s.cold.Delete)
	return err
}

// Size implements Store. It returns the number of hot records plus the
// durable tier's estimate of its size, so records present in both tiers
// are counted twice.
func (s *TieredStore) Size() (int64, error) {
	n, err := s.cold.Size()
	if err != nil {
		return 0, err
	}

	return int64(s.hot.Len()) + n, nil
}

// Clear implements Store. Hot records are written back and evicted,
// then the durable tier is cleared once no write-back is still running.
func (s *TieredStore) Clear() error {
	hotErr := s.hot.Clear()
	if err := s.cold.Clear(); err != nil {
		return err
	}

	return hotErr
}

// Flush writes every hot record to the durable tier, one batch per shard,
// skipping records promoted unchanged from it. Records stay in the hot tier.
func (s *TieredStore) Flush() error {
	var n atomic.Int64
	err := s.hot.FlushTo(func(items []cache.Item[*NodeRecord]) error {
		kvs := make([]KeyValue, 0, len(items))
		for _, item := range items {
			buf, err := item.Value.MarshalBinary()
			if err != nil {
				return &WriteBackError{Key: item.Key, Err: err}
			}

			kvs = append(kvs, KeyValue{Key: item.Key, Value: buf})
		}

		if err := s.cold.PutBatch(kvs); err != nil {
			s.writeBackErrors.Add(uint64(len(kvs)))
			return errors.Wrapf(err, "flush %d records", len(kvs))
		}

		s.writeBacks.Add(uint64(len(kvs)))
		n.Add(int64(len(kvs)))
		return nil
	})

	glog.V(1).Infof("Flushed %d records", n.Load())
	return err
}

// Compact compacts the durable tier.
func (s *TieredStore) Compact() error {
	return s.cold.Compact()
}

// Close flushes the hot tier and closes the durable tier.
func (s *TieredStore) Close() error {
	flushErr := s.Flush()
	if err := s.cold.Close(); err != nil {
		return err
	}

	return flushErr
}

// Stats returns the store's counters since creation or the last ResetStats.
func (s *TieredStore) Stats() Stats {
	hot := s.hot.Stats()
	return Stats{
		Hits:            hot.Hits,
		Misses:          hot.Misses,
		Evictions:       hot.Evictions,
		WriteBacks:      s.writeBacks.Load(),
		WriteBackErrors: s.writeBackErrors.Load(),
		CorruptRecords:  s.corruptRecords.Load(),
		Promotions:      hot.Loads,
		HotEntries:      s.hot.Len(),
	}
}

// HitRate returns the fraction of Gets served by the hot tier,
// or 0 if there have been none.
func (s *TieredStore) HitRate() float64 {
	return s.hot.HitRate()
}

// ResetStats zeroes all counters.
func (s *TieredStore) ResetStats() {
	s.hot.ResetStats()
	s.writeBacks.Store(0)
	s.writeBackErrors.Store(0)
	s.corruptRecords.Store(0)
}

// Params returns the configuration the store was created with.
func (s *TieredStore) Params() Params {
	return s.params
}
