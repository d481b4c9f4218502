package cfrstore

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// OpenFunc opens or creates a DurableStore at path.
type OpenFunc func(path string) (DurableStore, error)

var (
	enginesMu sync.RWMutex
	engines   = make(map[string]OpenFunc)
)

// RegisterEngine makes a DurableStore implementation available by name to
// OpenEngine and to Params.Engine. It is intended to be called from the init
// function of the package implementing the engine, and panics if called twice
// with the same name.
func RegisterEngine(name string, open OpenFunc) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	if open == nil {
		panic("cfrstore: RegisterEngine open func is nil")
	}

	if _, dup := engines[name]; dup {
		panic("cfrstore: RegisterEngine called twice for engine " + name)
	}

	engines[name] = open
}

// Engines returns the sorted names of the registered engines.
func Engines() []string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// OpenEngine opens a DurableStore at path using the named engine.
// The engine's package must have been imported, e.g.
//
//	import _ "github.com/timpalpant/cfrstore/ldbstore"
func OpenEngine(name, path string) (DurableStore, error) {
	enginesMu.RLock()
	open, ok := engines[name]
	enginesMu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrInvalidConfig, "unknown engine %q (forgotten import?)", name)
	}

	store, err := open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s store at %s", name, path)
	}

	return store, nil
}
