package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the engine must react to it.
type Kind string

const (
	// KindTransient covers network and quota failures. Retried with backoff.
	KindTransient Kind = "TRANSIENT_STORE_ERROR"
	// KindValidation fails a single operation or object. The run continues.
	KindValidation Kind = "VALIDATION_ERROR"
	// KindFatalConfig aborts the run before any write happens.
	KindFatalConfig Kind = "FATAL_CONFIG_ERROR"
	// KindConsistency is surfaced in reports and never resolved automatically.
	KindConsistency Kind = "CONSISTENCY_WARNING"
)

// Common sentinel errors.
var (
	ErrNotFound         = errors.New("not found")
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrPayloadTooLarge  = errors.New("payload exceeds document size limit")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrMissingConfig    = errors.New("missing required configuration")
)

// Error is a classified error carrying the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a classified error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Transient wraps err as a retryable store error.
func Transient(op string, err error) error {
	return New(KindTransient, op, err)
}

// Validation wraps err as a per-item validation failure.
func Validation(op string, err error) error {
	return New(KindValidation, op, err)
}

// Validationf formats a validation failure.
func Validationf(op, format string, args ...any) error {
	return New(KindValidation, op, fmt.Errorf(format, args...))
}

// FatalConfig wraps err as a configuration error that aborts the run.
func FatalConfig(op string, err error) error {
	return New(KindFatalConfig, op, err)
}

// FatalConfigf formats a configuration error.
func FatalConfigf(op, format string, args ...any) error {
	return New(KindFatalConfig, op, fmt.Errorf(format, args...))
}

// Consistency wraps err as a consistency warning.
func Consistency(op string, err error) error {
	return New(KindConsistency, op, err)
}

// KindOf returns the kind of the first classified error in the chain.
// Unclassified errors report an empty kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsTransient reports whether err is classified as transient.
func IsTransient(err error) bool { return KindOf(err) == KindTransient }

// IsValidation reports whether err is classified as a validation failure.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsFatalConfig reports whether err is a configuration error.
func IsFatalConfig(err error) bool { return KindOf(err) == KindFatalConfig }

// IsConsistency reports whether err is a consistency warning.
func IsConsistency(err error) bool { return KindOf(err) == KindConsistency }
