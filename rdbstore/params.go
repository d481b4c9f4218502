//go:build rocksdb

// Package rdbstore implements a cfrstore.DurableStore that keeps records
// in a RocksDB database.
//
// It requires cgo and librocksdb, and is only built with -tags rocksdb.
// Importing it registers the engine name "rocksdb".
package rdbstore

import (
	rocksdb "github.com/tecbot/gorocksdb"
)

// Default size of the uncompressed block cache.
const defaultBlockCacheSize = 64 << 20

// Params are the RocksDB options used to open a Store. The options are
// owned by the caller, who must call Close once the Store is closed.
type Params struct {
	Path         string
	Options      *rocksdb.Options
	TableOptions *rocksdb.BlockBasedTableOptions
	ReadOptions  *rocksdb.ReadOptions
	WriteOptions *rocksdb.WriteOptions
}

// DefaultParams returns options tuned for point lookups of small records:
// a bloom filter on every table and a shared LRU block cache.
func DefaultParams(path string) Params {
	tableOpts := rocksdb.NewDefaultBlockBasedTableOptions()
	tableOpts.SetFilterPolicy(rocksdb.NewBloomFilter(10))
	tableOpts.SetBlockCache(rocksdb.NewLRUCache(defaultBlockCacheSize))

	opts := rocksdb.NewDefaultOptions()
	opts.SetCreateIfMissing(true)
	opts.SetBlockBasedTableFactory(tableOpts)

	return Params{
		Path:         path,
		Options:      opts,
		TableOptions: tableOpts,
		ReadOptions:  rocksdb.NewDefaultReadOptions(),
		WriteOptions: rocksdb.NewDefaultWriteOptions(),
	}
}

// Close releases the C allocations held by the options.
func (p Params) Close() {
	p.Options.Destroy()
	if p.TableOptions != nil {
		p.TableOptions.Destroy()
	}
	p.ReadOptions.Destroy()
	p.WriteOptions.Destroy()
}
