package bdbstore

import (
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/timpalpant/cfrstore"
)

// EngineName is the name under which Store is registered with cfrstore.
const EngineName = "badger"

func init() {
	cfrstore.RegisterEngine(EngineName, func(path string) (cfrstore.DurableStore, error) {
		return New(DefaultParams(path))
	})
}

// Store is a cfrstore.DurableStore backed by a Badger database.
type Store struct {
	params Params

	// Held exclusively by Clear, since DropAll blocks concurrent writes.
	mu sync.RWMutex

	db *badger.DB
	gc *GCRunner
}

var _ cfrstore.DurableStore = (*Store)(nil)

// New opens, or creates, a Badger database with the given Params. If
// params.GCInterval is positive, value log GC runs in the background
// until Close.
func New(params Params) (*Store, error) {
	if !params.InMemory && params.Path == "" {
		return nil, errors.New("bdbstore: path is required")
	}

	db, err := badger.Open(params.options())
	if err != nil {
		return nil, errors.Wrapf(err, "badger: open %s", params.Path)
	}

	s := &Store{params: params, db: db}
	if params.GCInterval > 0 && !params.InMemory {
		s.gc, err = NewGCRunner(db, params.GCInterval, params.GCDiscardRatio)
		if err != nil {
			db.Close()
			return nil, err
		}

		s.gc.Start()
	}

	glog.V(1).Infof("Opened Badger store at %s (in memory: %v)", params.Path, params.InMemory)
	return s, nil
}

// Close implements io.Closer.
func (s *Store) Close() error {
	if s.gc != nil {
		s.gc.Stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Wrap(s.db.Close(), "badger: close")
}

// Get implements cfrstore.DurableStore.
func (s *Store) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}

		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, errors.Wrapf(err, "badger: get %q", key)
	}

	return value, true, nil
}

// Put implements cfrstore.DurableStore.
func (s *Store) Put(key string, value []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	return errors.Wrapf(err, "badger: put %q", key)
}

// PutBatch implements cfrstore.DurableStore.
//
// Large batches are split into multiple transactions, so a failed
// PutBatch may have been partially applied.
func (s *Store) PutBatch(kvs []cfrstore.KeyValue) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, kv := range kvs {
		if err := wb.Set([]byte(kv.Key), kv.Value); err != nil {
			return errors.Wrapf(err, "badger: put %q", kv.Key)
		}
	}

	return errors.Wrapf(wb.Flush(), "badger: write batch of %d", len(kvs))
}

// Delete implements cfrstore.DurableStore.
func (s *Store) Delete(key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	return errors.Wrapf(err, "badger: delete %q", key)
}

// Has implements cfrstore.DurableStore.
func (s *Store) Has(key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}

	return err == nil, errors.Wrapf(err, "badger: has %q", key)
}

// Size implements cfrstore.DurableStore. It iterates over keys only,
// without reading values from the value log.
func (s *Store) Size() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}

		return nil
	})

	return n, errors.Wrap(err, "badger: size")
}

// Scan implements cfrstore.DurableStore.
func (s *Store) Scan(prefix string, fn func(key string, value []byte) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := []byte(prefix)
	var fnErr error
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = p
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}

			if fnErr = fn(string(item.Key()), value); fnErr != nil {
				return nil
			}
		}

		return nil
	})
	if fnErr != nil {
		return fnErr
	}

	return errors.Wrapf(err, "badger: scan %q", prefix)
}

// Clear implements cfrstore.DurableStore.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DropAll(); err != nil {
		return errors.Wrap(err, "badger: clear")
	}

	glog.V(1).Infof("Cleared Badger store at %s", s.params.Path)
	return nil
}

// Compact implements cfrstore.DurableStore. It merges the LSM tree into a
// single level, then rewrites value log files that are mostly garbage.
func (s *Store) Compact() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.db.Flatten(1); err != nil {
		return errors.Wrap(err, "badger: flatten")
	}

	if s.params.InMemory {
		return nil
	}

	n, err := runValueLogGC(s.db, s.params.GCDiscardRatio)
	if err != nil {
		return errors.Wrap(err, "badger: value log GC")
	}

	glog.V(1).Infof("Compacted %s, rewrote %d value log files", s.params.Path, n)
	return nil
}
