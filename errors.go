package cfrstore

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidConfig is returned when a store is constructed with invalid Params.
	// It is never transient; retrying with the same Params will fail again.
	ErrInvalidConfig = errors.New("cfrstore: invalid configuration")

	// ErrCorruptRecord is returned when an encoded record does not have the
	// expected layout. Stores treat corrupt records as missing.
	ErrCorruptRecord = errors.New("cfrstore: corrupt record")

	// ErrInvalidRecord is returned when asked to store or encode a record
	// whose slices are empty, too long or of mismatched lengths.
	ErrInvalidRecord = errors.New("cfrstore: invalid record")
)

// WriteBackError reports that a record evicted from the hot tier could not be
// written to the durable tier. The record is no longer held in memory, so the
// latest update for Key has been lost.
type WriteBackError struct {
	Key string
	Err error
}

func (e *WriteBackError) Error() string {
	return fmt.Sprintf("write-back of %q failed: %v", e.Key, e.Err)
}

func (e *WriteBackError) Unwrap() error {
	return e.Err
}
