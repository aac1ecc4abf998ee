package indexer

import (
	"errors"
	"fmt"
)

var (
	// ErrLocked is returned when another writer holds the index lock.
	ErrLocked = errors.New("index is locked by another writer")
	// ErrTooShort marks content below indexing.min_content_length.
	ErrTooShort = errors.New("content too short")
)

// IOError is a per-document read failure. The document is counted as skipped.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string { return fmt.Sprintf("read %s: %v", e.Path, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// ProviderError is a per-document embedding failure. The document is counted as failed.
type ProviderError struct {
	Path string
	Err  error
}

func (e *ProviderError) Error() string { return fmt.Sprintf("embed %s: %v", e.Path, e.Err) }
func (e *ProviderError) Unwrap() error { return e.Err }

// PersistenceError means the index or metadata file could not be written or read
// back consistently.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persist %s: %v", e.Path, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }
