package job

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when an operation references an unknown job id
	ErrJobNotFound = errors.New("job not found")

	// ErrJobExists is returned when creating a job whose id is already tracked
	ErrJobExists = errors.New("job already exists")

	// ErrInvalidJobID is returned for an empty job id
	ErrInvalidJobID = errors.New("job id is required")

	// ErrInvalidTarget is returned for an unknown target, or "both" where a single target is expected
	ErrInvalidTarget = errors.New("invalid target")

	// ErrInvalidStatus is returned for a sub-status that cannot be set by an update
	ErrInvalidStatus = errors.New("invalid status")
)

// PersistenceError wraps a failure of the durable job store. The mutation
// that triggered it is not committed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError creates a new persistence error
func NewPersistenceError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// IsPersistenceError reports whether err carries a PersistenceError
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
