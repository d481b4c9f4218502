// Package cfrstore implements a tiered store for the per-node regret and
// strategy accumulators of counterfactual regret minimization (CFR).
//
// A TieredStore keeps the most recently used NodeRecords decoded in a
// sharded, bounded LRU cache and writes evicted records back to a
// DurableStore. Durable engines register themselves by name; import the
// ones you need for their side effects:
//
//	import (
//		"github.com/timpalpant/cfrstore"
//		_ "github.com/timpalpant/cfrstore/ldbstore"
//	)
//
//	store, err := cfrstore.Open(cfrstore.DefaultParams("/data/cfr"))
//	if err != nil {
//		glog.Fatal(err)
//	}
//	defer store.Close()
//
// Records handed to or returned from a Store are shared and must not be
// modified in place. A training worker updates a node by cloning it:
//
//	rec, ok, err := store.Get(key)
//	if !ok {
//		rec = cfrstore.NewNodeRecord(nActions)
//	} else {
//		rec = rec.Clone()
//	}
//	rec.AddRegret(regrets)
//	rec.UpdateStrategy()
//	err = store.Put(key, rec)
package cfrstore
