/*
errors.go - Error kinds for the stage ledger

ERROR CATEGORIES:
  1. Validation  - required input missing or malformed (caller side)
  2. Not found   - a referenced product does not exist
  3. Persistence - the store rejected a read or write

  Every ledger operation returns a result or exactly one of these kinds.
  Nothing is retried or swallowed.

  An unknown batch code is NOT an error: ResolveByBatchCode reports it as
  the ProductNotFound variant (see resolution.go).

USAGE:
  switch {
  case traceability.IsClientError(err):   // 400
  case traceability.IsNotFound(err):      // 404
  default:                                // 500
  }
*/
package traceability

import (
	"errors"
	"fmt"
)

var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrPersistence = errors.New("persistence failure")

	// Constraint violations reported by stores, always inside a PersistenceError.
	ErrForeignKey         = errors.New("foreign key constraint failed")
	ErrDuplicateBatchCode = errors.New("duplicate batch code")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NotFoundError reports a missing resource, e.g. {Resource: "product", Key: "17"}.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// PersistenceError wraps a store failure. Op names the store operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the driver error to errors.Is/As.
func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// Persistence wraps err as a PersistenceError unless it already is one.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func productNotFound(id ProductID) error {
	return &NotFoundError{Resource: "product", Key: id.String()}
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}
