package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when no expense has the requested id.
var ErrNotFound = errors.New("expense not found")

// StorageError wraps a failure of the underlying engine (open, read, write,
// commit). It is never retried by the store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: storage: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err carries a StorageError.
func IsStorageError(err error) bool {
	var serr *StorageError
	return errors.As(err, &serr)
}
