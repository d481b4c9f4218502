package cfrstore

import "io"

// Store is the storage contract seen by training workers. All methods are
// safe for concurrent use.
type Store interface {
	// Get returns the record for key. The returned record must not be
	// modified; Clone it and Put the copy instead.
	Get(key string) (*NodeRecord, bool, error)
	// Put inserts or replaces the record for key.
	Put(key string, rec *NodeRecord) error
	// Has reports whether a record exists for key.
	Has(key string) (bool, error)
	// Remove deletes the record for key, if any.
	Remove(key string) error
	// Size returns the approximate number of records stored.
	Size() (int64, error)
	// Clear deletes all records.
	Clear() error
}

// KeyValue is one entry of a DurableStore batch write.
type KeyValue struct {
	Key   string
	Value []byte
}

// DurableStore is a persistent map from string keys to encoded records.
//
// Implementations must be safe for concurrent use. Get of a missing key
// returns (nil, false, nil); errors are reserved for I/O failures.
type DurableStore interface {
	io.Closer

	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	// PutBatch writes all of kvs atomically where the engine supports it.
	PutBatch(kvs []KeyValue) error
	Delete(key string) error
	Has(key string) (bool, error)
	// Size returns the number of keys, which may be an estimate.
	Size() (int64, error)
	// Scan calls fn for each key with the given prefix, in key order,
	// until fn returns an error. That error is returned by Scan.
	Scan(prefix string, fn func(key string, value []byte) error) error
	// Clear deletes all keys.
	Clear() error
	// Compact asks the engine to reclaim space held by deleted
	// and overwritten keys.
	Compact() error
}
