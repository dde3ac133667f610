package chain

import (
	"errors"
	"fmt"
	"reflect"
)

// Error kinds returned by materializers. Use errors.Is to test for them; the
// concrete errors carry more detail.
var (
	// ErrConfiguration is returned when materializer options contradict each
	// other. It is always raised before the command is sent to the database.
	ErrConfiguration = errors.New("chain: invalid configuration")

	// ErrMapping is returned when the result schema or a value cannot be
	// mapped onto the target type.
	ErrMapping = errors.New("chain: mapping error")

	// ErrMissingData is returned when fewer rows, columns or affected rows
	// were found than the materializer requires.
	ErrMissingData = errors.New("chain: missing data")

	// ErrUnexpectedData is returned when more rows or affected rows were found
	// than the materializer allows.
	ErrUnexpectedData = errors.New("chain: unexpected data")

	// ErrCanceled is returned when the caller's context was canceled while the
	// command was in flight.
	ErrCanceled = errors.New("chain: operation canceled")

	// ErrDisposed is returned when a cursor or reader is used after Close.
	ErrDisposed = errors.New("chain: use after close")

	// ErrNotSupported is returned for master keys whose type has no grouping
	// strategy.
	ErrNotSupported = errors.New("chain: not supported")
)

// ErrMultiRows is returned by functions which are expected to work with result sets
// that only contain a single row but multiple rows were returned.
// This typically indicates an issue with the query such as a missing join criteria or
// limit condition or the use of ToObject when ToList was intended.
var ErrMultiRows = fmt.Errorf("%w: multiple rows returned", ErrUnexpectedData)

// ErrRowsAffectedUnavailable is returned when a row-count check was requested
// but the driver did not report the number of affected rows.
var ErrRowsAffectedUnavailable = fmt.Errorf("%w: rows affected not reported by the database", ErrConfiguration)

// ErrTokenConsumed is returned when an execution token is executed twice.
var ErrTokenConsumed = fmt.Errorf("%w: execution token already executed", ErrConfiguration)

// MappingError describes a value or column that could not be bound to the
// target type.
type MappingError struct {
	Type   string // target type name
	Column string
	From   reflect.Type
	To     reflect.Type
	Cause  error
}

// Error implements the error interface.
func (e *MappingError) Error() string {
	msg := "chain: cannot map"
	if e.Column != "" {
		msg += " column " + e.Column
	}
	if e.Type != "" {
		msg += " of " + e.Type
	}
	switch {
	case e.From != nil && e.To != nil:
		msg += fmt.Sprintf(": cannot convert %s to %s", e.From, e.To)
	case e.From == nil && e.To != nil:
		msg += fmt.Sprintf(": NULL is not assignable to %s", e.To)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *MappingError) Unwrap() error {
	return e.Cause
}

// Is reports ErrMapping.
func (e *MappingError) Is(target error) bool {
	return target == ErrMapping
}

// ExecutionError wraps a failure with the operation that produced it.
type ExecutionError struct {
	Operation   string
	CommandText string
	Cause       error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("%s: %v", e.Operation, e.Cause)
	}
	return e.Cause.Error()
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

func mappingErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrMapping}, args...)...)
}

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConfiguration}, args...)...)
}

func missingDataf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrMissingData}, args...)...)
}

func unexpectedDataf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrUnexpectedData}, args...)...)
}

// IsCanceled reports whether err is a cancellation outcome.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}
