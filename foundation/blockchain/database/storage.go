package database

import "errors"

// Set of errors returned by the block store.
var (
	ErrNotFound           = errors.New("record not found")
	ErrCorrupted          = errors.New("storage corrupted")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrEndOfStorage       = errors.New("end of storage")
)

// Storage interface represents the behavior required to be implemented by any
// package providing support for storing and reading raw block records. Keys
// are sequential and records are never updated or deleted.
type Storage interface {
	Put(key uint32, value []byte) error
	Get(key uint32) ([]byte, error)
	Count() (uint32, error)
	ForEach() Iterator
	Close() error
}

// Iterator interface represents the behavior required to be implemented by any
// package providing support to iterate over the records in ascending key
// order. Next returns ErrEndOfStorage once the records are exhausted and
// Done reports true from that point on.
type Iterator interface {
	Next() (uint32, []byte, error)
	Done() bool
}
