package cfrstore

import (
	"io"
	"math/bits"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/timpalpant/cfrstore/lru"
)

// DefaultEngine is the DurableStore engine used when Params.Engine is empty.
const DefaultEngine = "leveldb"

// Params are the configuration options for a TieredStore.
type Params struct {
	// Capacity is the maximum number of records held in memory.
	Capacity int `yaml:"capacity"`
	// Shards is the number of independent hot-tier shards.
	// It must be a power of two no larger than Capacity.
	Shards int `yaml:"shards"`
	// Path is the location of the durable tier, passed to the engine.
	Path string `yaml:"path"`
	// Engine names a registered DurableStore implementation.
	Engine string `yaml:"engine"`
	// LockFree selects lock-free recency lists in place of per-shard mutexes.
	LockFree bool `yaml:"lock_free"`
}

// DefaultParams returns Params for a store at the given path with
// a one million record hot tier.
func DefaultParams(path string) Params {
	return Params{
		Capacity: 1 << 20,
		Shards:   256,
		Path:     path,
		Engine:   DefaultEngine,
	}
}

// LoadParams reads Params from a YAML file. Fields missing from the file
// keep their DefaultParams values, so an empty file yields DefaultParams("").
// Unknown fields are an error.
func LoadParams(path string) (Params, error) {
	f, err := os.Open(path)
	if err != nil {
		return Params{}, errors.Wrap(err, "load params")
	}
	defer f.Close()

	p := DefaultParams("")
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && err != io.EOF {
		return Params{}, errors.Wrapf(ErrInvalidConfig, "parse %s: %v", path, err)
	}

	return p, nil
}

// Validate returns an error wrapping ErrInvalidConfig if p cannot be used
// to build a TieredStore.
func (p Params) Validate() error {
	if p.Capacity <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "capacity must be positive, got %d", p.Capacity)
	}

	if p.Shards <= 0 || bits.OnesCount(uint(p.Shards)) != 1 {
		return errors.Wrapf(ErrInvalidConfig, "shards must be a power of two, got %d", p.Shards)
	}

	if p.Capacity < p.Shards {
		return errors.Wrapf(ErrInvalidConfig, "capacity %d is less than shards %d", p.Capacity, p.Shards)
	}

	return nil
}

// ListKind returns the recency list implementation selected by p.
func (p Params) ListKind() lru.Kind {
	if p.LockFree {
		return lru.LockFree
	}

	return lru.Mutex
}

func (p Params) engine() string {
	if p.Engine == "" {
		return DefaultEngine
	}

	return p.Engine
}
