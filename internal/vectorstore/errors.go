package vectorstore

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input. The store is not mutated.
	ErrValidation = errors.New("validation error")
	// ErrModelMismatch means the persisted vectors were produced by a different encoder.
	ErrModelMismatch = errors.New("persisted index was built with a different embedding model")
)

// PersistenceError reports a failed read or write of an on-disk artifact.
type PersistenceError struct {
	Op   string // "persist", "load" or "clear"
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
