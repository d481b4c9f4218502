package cfrstore

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// memStore is an in-memory DurableStore for tests.
type memStore struct {
	mu   sync.RWMutex
	data map[string][]byte

	// Keys for which Put and PutBatch fail.
	failKeys map[string]bool
	// Keys whose next Put blocks until released.
	gates  map[string]*putGate
	closed bool
}

type putGate struct {
	started chan struct{}
	release chan struct{}
}

var errInjected = errors.New("injected failure")

func newMemStore() *memStore {
	return &memStore{
		data:     make(map[string][]byte),
		failKeys: make(map[string]bool),
		gates:    make(map[string]*putGate),
	}
}

// blockOn makes the next Put of key block until release is called.
// started is closed once that Put is waiting.
func (m *memStore) blockOn(key string) (started <-chan struct{}, release func()) {
	g := &putGate{started: make(chan struct{}), release: make(chan struct{})}
	m.mu.Lock()
	m.gates[key] = g
	m.mu.Unlock()
	return g.started, func() { close(g.release) }
}

func (m *memStore) failOn(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failKeys[key] = true
}

func (m *memStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memStore) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Put(key string, value []byte) error {
	m.mu.Lock()
	g := m.gates[key]
	delete(m.gates, key)
	m.mu.Unlock()
	if g != nil {
		close(g.started)
		<-g.release
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failKeys[key] {
		return errInjected
	}

	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memStore) PutBatch(kvs []KeyValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, kv := range kvs {
		if m.failKeys[kv.Key] {
			return errInjected
		}
	}

	for _, kv := range kvs {
		m.data[kv.Key] = append([]byte(nil), kv.Value...)
	}

	return nil
}

func (m *memStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memStore) Has(key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *memStore) Size() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.data)), nil
}

func (m *memStore) Scan(prefix string, fn func(key string, value []byte) error) error {
	m.mu.RLock()
	var keys []string
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	m.mu.RUnlock()

	sort.Strings(keys)
	for _, key := range keys {
		v, ok, _ := m.Get(key)
		if !ok {
			continue
		}

		if err := fn(key, v); err != nil {
			return err
		}
	}

	return nil
}

func (m *memStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	return nil
}

func (m *memStore) Compact() error {
	return nil
}
