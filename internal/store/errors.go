package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound indicates the referenced product or outbox entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness violation on a business key.
	ErrConflict = errors.New("conflict")

	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrStorage is matched by every *StorageError.
	ErrStorage = errors.New("storage failure")
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError is returned for malformed or out-of-range input. It is
// produced before any write happens.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// StorageError wraps a failure of the underlying database. When a StorageError
// comes out of a transactional operation, nothing that operation wrote is
// persisted.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Classify maps a driver error onto the store taxonomy: UNIQUE violations
// become ErrConflict, CHECK / NOT NULL violations become *ValidationError,
// and everything else becomes *StorageError. Errors already in the taxonomy
// pass through unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrValidation) || errors.Is(err, ErrStorage) {
		return err
	}

	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%s: %w", op, ErrConflict)
		case sqlite3.ErrConstraintCheck, sqlite3.ErrConstraintNotNull:
			return &ValidationError{Fields: []FieldError{{Field: op, Reason: se.Error()}}}
		}
	}
	return &StorageError{Op: op, Err: err}
}
