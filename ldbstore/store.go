package ldbstore

import (
	"sync"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/timpalpant/cfrstore"
)

// EngineName is the name under which Store is registered with cfrstore.
const EngineName = "leveldb"

// Keys are deleted in batches of this size by Clear.
const clearBatchSize = 1024

func init() {
	cfrstore.RegisterEngine(EngineName, func(path string) (cfrstore.DurableStore, error) {
		return New(path, nil)
	})
}

// Store is a cfrstore.DurableStore backed by a LevelDB database.
type Store struct {
	path string

	// Held exclusively by Clear so it does not interleave with writes.
	mu sync.RWMutex

	db    *leveldb.DB
	rOpts *opt.ReadOptions
	wOpts *opt.WriteOptions
}

var _ cfrstore.DurableStore = (*Store)(nil)

// New opens, or creates, the LevelDB database at the given path.
func New(path string, opts *opt.Options) (*Store, error) {
	db, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "leveldb: open %s", path)
	}

	glog.V(1).Infof("Opened LevelDB store at %s", path)
	return &Store{path: path, db: db}, nil
}

// Close implements io.Closer.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Wrap(s.db.Close(), "leveldb: close")
}

// Get implements cfrstore.DurableStore.
func (s *Store) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf, err := s.db.Get([]byte(key), s.rOpts)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, false, nil
		}

		return nil, false, errors.Wrapf(err, "leveldb: get %q", key)
	}

	return buf, true, nil
}

// Put implements cfrstore.DurableStore.
func (s *Store) Put(key string, value []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return errors.Wrapf(s.db.Put([]byte(key), value, s.wOpts), "leveldb: put %q", key)
}

// PutBatch implements cfrstore.DurableStore. The batch is applied atomically.
func (s *Store) PutBatch(kvs []cfrstore.KeyValue) error {
	var batch leveldb.Batch
	for _, kv := range kvs {
		batch.Put([]byte(kv.Key), kv.Value)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return errors.Wrapf(s.db.Write(&batch, s.wOpts), "leveldb: write batch of %d", len(kvs))
}

// Delete implements cfrstore.DurableStore.
func (s *Store) Delete(key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return errors.Wrapf(s.db.Delete([]byte(key), s.wOpts), "leveldb: delete %q", key)
}

// Has implements cfrstore.DurableStore.
func (s *Store) Has(key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ok, err := s.db.Has([]byte(key), s.rOpts)
	return ok, errors.Wrapf(err, "leveldb: has %q", key)
}

// Size implements cfrstore.DurableStore.
//
// LevelDB keeps no count of its keys, so Size iterates over all of them.
func (s *Store) Size() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it := s.db.NewIterator(nil, s.rOpts)
	defer it.Release()

	var n int64
	for it.Next() {
		n++
	}

	return n, errors.Wrap(it.Error(), "leveldb: size")
}

// Scan implements cfrstore.DurableStore.
func (s *Store) Scan(prefix string, fn func(key string, value []byte) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), s.rOpts)
	defer it.Release()
	for it.Next() {
		// The iterator reuses its buffers.
		value := append([]byte(nil), it.Value()...)
		if err := fn(string(it.Key()), value); err != nil {
			return err
		}
	}

	return errors.Wrapf(it.Error(), "leveldb: scan %q", prefix)
}

// Clear implements cfrstore.DurableStore.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it := s.db.NewIterator(nil, s.rOpts)
	defer it.Release()

	var batch leveldb.Batch
	n := 0
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
		if batch.Len() >= clearBatchSize {
			if err := s.db.Write(&batch, s.wOpts); err != nil {
				return errors.Wrap(err, "leveldb: clear")
			}

			n += batch.Len()
			batch.Reset()
		}
	}

	if err := it.Error(); err != nil {
		return errors.Wrap(err, "leveldb: clear")
	}

	n += batch.Len()
	if err := s.db.Write(&batch, s.wOpts); err != nil {
		return errors.Wrap(err, "leveldb: clear")
	}

	glog.V(1).Infof("Cleared %d keys from %s", n, s.path)
	return nil
}

// Compact implements cfrstore.DurableStore.
func (s *Store) Compact() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	glog.V(1).Infof("Compacting %s", s.path)
	return errors.Wrap(s.db.CompactRange(util.Range{}), "leveldb: compact")
}
