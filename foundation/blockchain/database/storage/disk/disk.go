// Package disk implements the ability to read and write block records to an
// ordered key/value file on disk.
package disk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ardanlabs/blocknode/foundation/blockchain/database"
	bolt "go.etcd.io/bbolt"
)

// bucketBlocks holds every block record keyed by its big endian storage key.
var bucketBlocks = []byte("blocks")

// dbFile is the name of the bolt file inside the storage directory.
const dbFile = "blocks.db"

// Disk represents the serialization implementation for reading and storing
// block records in a bolt database. This implements the database.Storage
// interface.
type Disk struct {
	dbPath string
	db     *bolt.DB
}

// New opens, or creates, the storage directory and the bolt file inside it.
func New(dbPath string) (*Disk, error) {
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: %s", database.ErrStorageUnavailable, err)
	}

	// A second process opening the same file will block on the file lock,
	// the timeout turns that into an error.
	db, err := bolt.Open(filepath.Join(dbPath, dbFile), 0600, &bolt.Options{
		Timeout: time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open bolt: %s", database.ErrStorageUnavailable, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBlocks)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create bucket: %s", database.ErrStorageUnavailable, err)
	}

	return &Disk{dbPath: dbPath, db: db}, nil
}

// Close releases the bolt file.
func (d *Disk) Close() error {
	return d.db.Close()
}

// Put stores the record under the specified key.
func (d *Disk) Put(key uint32, value []byte) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlocks).Put(encodeKey(key), value)
	})
}

// Get returns a copy of the record stored under the specified key.
func (d *Disk) Get(key uint32) ([]byte, error) {
	var value []byte

	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketBlocks).Get(encodeKey(key))
		if v == nil {
			return database.ErrNotFound
		}

		// Bolt values are only valid for the life of the transaction.
		value = append([]byte(nil), v...)
		return nil
	})

	return value, err
}

// Count returns the number of records stored.
func (d *Disk) Count() (uint32, error) {
	var n int

	err := d.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketBlocks).Stats().KeyN
		return nil
	})

	return uint32(n), err
}

// ForEach returns an iterator to walk through all the records in key order.
func (d *Disk) ForEach() database.Iterator {
	return &diskIterator{disk: d}
}

// encodeKey converts the key to big endian so bolt's byte ordering matches
// the numeric ordering.
func encodeKey(key uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, key)
	return b
}

// =============================================================================

// diskIterator represents the iteration implementation for walking
// through the records on disk. Each call to Next uses its own read
// transaction so an abandoned iterator holds no resources.
type diskIterator struct {
	disk    *Disk  // Access to the bolt storage.
	mu      sync.Mutex
	started bool   // The first record has been read.
	last    uint32 // Key of the last record returned.
	eos     bool   // Represents the iterator is at the end of storage.
}

// Next retrieves the next record from disk.
func (di *diskIterator) Next() (uint32, []byte, error) {
	di.mu.Lock()
	defer di.mu.Unlock()

	if di.eos {
		return 0, nil, database.ErrEndOfStorage
	}

	var key uint32
	var value []byte

	err := di.disk.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketBlocks).Cursor()

		var k, v []byte
		switch di.started {
		case false:
			k, v = c.First()
		default:
			k, v = c.Seek(encodeKey(di.last))
			if k != nil && binary.BigEndian.Uint32(k) == di.last {
				k, v = c.Next()
			}
		}

		if k == nil {
			return database.ErrEndOfStorage
		}
		if len(k) != 4 {
			return fmt.Errorf("%w: key length %d", database.ErrCorrupted, len(k))
		}

		key = binary.BigEndian.Uint32(k)
		value = append([]byte(nil), v...)
		return nil
	})

	if err != nil {
		if errors.Is(err, database.ErrEndOfStorage) {
			di.eos = true
		}
		return 0, nil, err
	}

	di.started = true
	di.last = key

	return key, value, nil
}

// Done returns the end of storage value.
func (di *diskIterator) Done() bool {
	di.mu.Lock()
	defer di.mu.Unlock()

	return di.eos
}
