// Package memory implements the ability to read and write block records to
// memory using a map.
package memory

import (
	"sort"
	"sync"

	"github.com/ardanlabs/blocknode/foundation/blockchain/database"
)

// Memory represents the serialization implementation for reading and storing
// block records in memory. This implements the database.Storage interface.
type Memory struct {
	mu      sync.RWMutex
	records map[uint32][]byte
}

// New constructs a Memory value for use.
func New() *Memory {
	return &Memory{
		records: make(map[uint32][]byte),
	}
}

// Close in this implementation has nothing to do since everything
// is in memory.
func (m *Memory) Close() error {
	return nil
}

// Put stores a copy of the record under the specified key.
func (m *Memory) Put(key uint32, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[key] = append([]byte(nil), value...)
	return nil
}

// Get returns a copy of the record stored under the specified key.
func (m *Memory) Get(key uint32) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.records[key]
	if !exists {
		return nil, database.ErrNotFound
	}

	return append([]byte(nil), value...), nil
}

// Count returns the number of records stored.
func (m *Memory) Count() (uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return uint32(len(m.records)), nil
}

// ForEach returns an iterator to walk through all the records in key order.
// The set of keys is captured when the iterator is created.
func (m *Memory) ForEach() database.Iterator {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]uint32, 0, len(m.records))
	for key := range m.records {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	return &memoryIterator{storage: m, keys: keys}
}

// =============================================================================

// memoryIterator represents the iteration implementation for walking
// through the records in memory. This implements the database
// Iterator interface.
type memoryIterator struct {
	storage *Memory  // Access to the storage API.
	keys    []uint32 // Sorted keys captured at construction.
	current int      // Index of the next key to read.
	eos     bool     // Represents the iterator is at the end of storage.
}

// Next retrieves the next record from memory.
func (mi *memoryIterator) Next() (uint32, []byte, error) {
	if mi.eos || mi.current >= len(mi.keys) {
		mi.eos = true
		return 0, nil, database.ErrEndOfStorage
	}

	key := mi.keys[mi.current]
	mi.current++

	value, err := mi.storage.Get(key)
	if err != nil {
		return 0, nil, err
	}

	return key, value, nil
}

// Done returns the end of storage value.
func (mi *memoryIterator) Done() bool {
	return mi.eos
}
