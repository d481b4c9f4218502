// Package bdbstore implements a cfrstore.DurableStore that keeps records
// in a Badger database.
//
// Badger separates keys from values (the value log), which suits the
// small, frequently rewritten records of a training run. Space held by
// overwritten values is reclaimed by value log garbage collection, run
// periodically by a GCRunner and on demand by Compact.
package bdbstore

import (
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Params are the options for opening a Store.
type Params struct {
	// Path is the directory for database files. Ignored when InMemory is set.
	Path string
	// InMemory keeps all data in memory. Useful for tests.
	InMemory bool
	// SyncWrites fsyncs every write before it is acknowledged.
	SyncWrites bool
	// GCInterval is how often to run value log GC. Zero disables it.
	GCInterval time.Duration
	// GCDiscardRatio is the fraction of a value log file that must be
	// garbage before GC rewrites it.
	GCDiscardRatio float64
}

// DefaultParams returns the Params used for engine "badger".
//
// Writes are not synced: a TieredStore only writes back evicted or flushed
// records, and Close flushes.
func DefaultParams(path string) Params {
	return Params{
		Path:           path,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryParams returns Params for a store that is discarded on Close.
func InMemoryParams() Params {
	return Params{
		InMemory:       true,
		GCDiscardRatio: 0.5,
	}
}

func (p Params) options() badger.Options {
	var opts badger.Options
	if p.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(p.Path)
	}

	return opts.
		WithSyncWrites(p.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(glogLogger{})
}
