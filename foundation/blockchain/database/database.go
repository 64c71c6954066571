// Package database handles all the lower level support for maintaining the
// blockchain on disk: the canonical block encoding, the block hash and the
// append only block store.
package database

import (
	"errors"
	"fmt"
	"sync"
)

// DatabaseIterator walks through the stored blocks decoding each record.
type DatabaseIterator struct {
	iterator Iterator
}

// Next retrieves the next block from storage. A record that can't be decoded
// is reported as ErrCorrupted.
func (di *DatabaseIterator) Next() (uint32, Block, error) {
	key, data, err := di.iterator.Next()
	if err != nil {
		return 0, Block{}, err
	}

	var block Block
	if err := block.UnmarshalBinary(data); err != nil {
		return 0, Block{}, fmt.Errorf("%w: key[%d]: %s", ErrCorrupted, key, err)
	}

	return key, block, nil
}

// Done returns the end of storage value.
func (di *DatabaseIterator) Done() bool {
	return di.iterator.Done()
}

// =============================================================================

// Database manages the append only block store. Keys are assigned
// sequentially starting at the number of records already stored.
type Database struct {
	mu      sync.Mutex
	storage Storage
	counter uint32
}

// New constructs a database over the specified storage.
func New(storage Storage) (*Database, error) {
	if storage == nil {
		return nil, fmt.Errorf("%w: no storage provided", ErrStorageUnavailable)
	}

	count, err := storage.Count()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrStorageUnavailable, err)
	}

	db := Database{
		storage: storage,
		counter: count,
	}

	return &db, nil
}

// Close closes the underlying storage.
func (db *Database) Close() error {
	return db.storage.Close()
}

// Count returns the number of records in the store.
func (db *Database) Count() uint32 {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.counter
}

// Append writes the block under the next sequential key and returns it.
func (db *Database) Append(block Block) (uint32, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	data, err := block.MarshalBinary()
	if err != nil {
		return 0, err
	}

	key := db.counter
	if err := db.storage.Put(key, data); err != nil {
		return 0, fmt.Errorf("put key[%d]: %w", key, err)
	}
	db.counter++

	return key, nil
}

// Read returns the block stored under the specified key. The bool is false
// when no record exists for that key.
func (db *Database) Read(key uint32) (Block, bool, error) {
	data, err := db.storage.Get(key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Block{}, false, nil
		}
		return Block{}, false, err
	}

	var block Block
	if err := block.UnmarshalBinary(data); err != nil {
		return Block{}, false, fmt.Errorf("%w: key[%d]: %s", ErrCorrupted, key, err)
	}

	return block, true, nil
}

// ForEach returns an iterator to walk through all the blocks in key order.
// Each call starts again from the first record.
func (db *Database) ForEach() DatabaseIterator {
	return DatabaseIterator{iterator: db.storage.ForEach()}
}
