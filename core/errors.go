package core

import "github.com/pkg/errors"

var (
	// ErrNotFound is the kind of every "<entity> not found" error.
	ErrNotFound = errors.New("not found")

	// ErrConfigurationMissing is the kind of errors reporting a missing automatic action.
	ErrConfigurationMissing = errors.New("configuration missing")
)

// NotFoundError reports that a referenced entity does not exist.
type NotFoundError struct {
	Entity string
}

func NewNotFoundError(entity string) error {
	return &NotFoundError{Entity: entity}
}

func (err *NotFoundError) Error() string {
	return err.Entity + " not found"
}

func (err *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

func (err ValidationError) Unwrap() error { return err.Err }

// StorageError marks a failure of the underlying persistence; callers may retry the operation.
type StorageError struct {
	Op  string
	Err error
}

func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

func (err *StorageError) Error() string {
	return err.Op + ": " + err.Err.Error()
}

func (err *StorageError) Cause() error { return err.Err }

func (err *StorageError) Unwrap() error { return err.Err }

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
