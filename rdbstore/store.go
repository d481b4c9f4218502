//go:build rocksdb

package rdbstore

import (
	"strconv"
	"sync"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	rocksdb "github.com/tecbot/gorocksdb"

	"github.com/timpalpant/cfrstore"
)

// EngineName is the name under which Store is registered with cfrstore.
const EngineName = "rocksdb"

// Keys are deleted in batches of this size by Clear.
const clearBatchSize = 1024

func init() {
	cfrstore.RegisterEngine(EngineName, func(path string) (cfrstore.DurableStore, error) {
		return New(DefaultParams(path), true)
	})
}

// Store is a cfrstore.DurableStore backed by a RocksDB database.
type Store struct {
	params     Params
	ownsParams bool

	// Held exclusively by Clear so it does not interleave with writes.
	mu sync.RWMutex

	db *rocksdb.DB
}

var _ cfrstore.DurableStore = (*Store)(nil)

// New opens, or creates, the RocksDB database described by params.
// If ownsParams is true the options are destroyed by Close.
func New(params Params, ownsParams bool) (*Store, error) {
	db, err := rocksdb.OpenDb(params.Options, params.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "rocksdb: open %s", params.Path)
	}

	glog.V(1).Infof("Opened RocksDB store at %s", params.Path)
	return &Store{params: params, ownsParams: ownsParams, db: db}, nil
}

// Close implements io.Closer.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db.Close()
	if s.ownsParams {
		s.params.Close()
	}

	return nil
}

// Get implements cfrstore.DurableStore.
func (s *Store) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, err := s.db.Get(s.params.ReadOptions, []byte(key))
	if err != nil {
		return nil, false, errors.Wrapf(err, "rocksdb: get %q", key)
	}
	defer result.Free()

	if !result.Exists() {
		return nil, false, nil
	}

	return append([]byte{}, result.Data()...), true, nil
}

// Put implements cfrstore.DurableStore.
func (s *Store) Put(key string, value []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	err := s.db.Put(s.params.WriteOptions, []byte(key), value)
	return errors.Wrapf(err, "rocksdb: put %q", key)
}

// PutBatch implements cfrstore.DurableStore. The batch is applied atomically.
func (s *Store) PutBatch(kvs []cfrstore.KeyValue) error {
	wb := rocksdb.NewWriteBatch()
	defer wb.Destroy()
	for _, kv := range kvs {
		wb.Put([]byte(kv.Key), kv.Value)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return errors.Wrapf(s.db.Write(s.params.WriteOptions, wb), "rocksdb: write batch of %d", len(kvs))
}

// Delete implements cfrstore.DurableStore.
func (s *Store) Delete(key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	err := s.db.Delete(s.params.WriteOptions, []byte(key))
	return errors.Wrapf(err, "rocksdb: delete %q", key)
}

// Has implements cfrstore.DurableStore.
func (s *Store) Has(key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, err := s.db.Get(s.params.ReadOptions, []byte(key))
	if err != nil {
		return false, errors.Wrapf(err, "rocksdb: has %q", key)
	}
	defer result.Free()

	return result.Exists(), nil
}

// Size implements cfrstore.DurableStore. It returns RocksDB's estimate of
// the number of keys, which counts overwritten and deleted keys until they
// are compacted away.
func (s *Store) Size() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prop := s.db.GetProperty("rocksdb.estimate-num-keys")
	n, err := strconv.ParseInt(prop, 10, 64)
	return n, errors.Wrapf(err, "rocksdb: parse estimate-num-keys %q", prop)
}

// Scan implements cfrstore.DurableStore.
func (s *Store) Scan(prefix string, fn func(key string, value []byte) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it := s.db.NewIterator(s.params.ReadOptions)
	defer it.Close()

	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		key, value := it.Key(), it.Value()
		k := string(key.Data())
		v := append([]byte{}, value.Data()...)
		key.Free()
		value.Free()
		if err := fn(k, v); err != nil {
			return err
		}
	}

	return errors.Wrapf(it.Err(), "rocksdb: scan %q", prefix)
}

// Clear implements cfrstore.DurableStore.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := s.db.NewIterator(s.params.ReadOptions)
	defer it.Close()

	wb := rocksdb.NewWriteBatch()
	defer wb.Destroy()
	n := 0
	for it.SeekToFirst(); it.Valid(); it.Next() {
		key := it.Key()
		wb.Delete(key.Data())
		key.Free()
		if wb.Count() >= clearBatchSize {
			if err := s.db.Write(s.params.WriteOptions, wb); err != nil {
				return errors.Wrap(err, "rocksdb: clear")
			}

			n += wb.Count()
			wb.Clear()
		}
	}

	if err := it.Err(); err != nil {
		return errors.Wrap(err, "rocksdb: clear")
	}

	n += wb.Count()
	if err := s.db.Write(s.params.WriteOptions, wb); err != nil {
		return errors.Wrap(err, "rocksdb: clear")
	}

	glog.V(1).Infof("Cleared %d keys from %s", n, s.params.Path)
	return nil
}

// Compact implements cfrstore.DurableStore.
func (s *Store) Compact() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	glog.V(1).Infof("Compacting %s", s.params.Path)
	s.db.CompactRange(rocksdb.Range{})
	return nil
}
