package common

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means a source answered definitively that it has no record.
	ErrNotFound = errors.New("not found")

	ErrInvoiceNotFound     = errors.New("invoice not found")
	ErrInvalidTransition   = errors.New("invalid invoice status transition")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSourcesExhausted    = errors.New("all evidence sources failed")
)

// TransientNetworkError wraps timeouts, refused connections and 5xx answers.
type TransientNetworkError struct {
	Source string
	Err    error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("%s: transient network error: %v", e.Source, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

type AuthenticationError struct {
	Source string
	Err    error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %v", e.Source, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// DataInconsistencyError is returned when a source answers with data that
// contradicts what was expected or cannot be decoded.
type DataInconsistencyError struct {
	Source string
	Reason string
}

func (e *DataInconsistencyError) Error() string {
	return fmt.Sprintf("%s: inconsistent data: %s", e.Source, e.Reason)
}

func NewTransientError(source string, err error) error {
	return &TransientNetworkError{Source: source, Err: err}
}

func NewDataInconsistencyError(source, format string, args ...interface{}) error {
	return &DataInconsistencyError{Source: source, Reason: fmt.Sprintf(format, args...)}
}

func IsTransient(err error) bool {
	var t *TransientNetworkError
	return errors.As(err, &t)
}

func IsAuthentication(err error) bool {
	var a *AuthenticationError
	return errors.As(err, &a)
}

func IsDataInconsistency(err error) bool {
	var d *DataInconsistencyError
	return errors.As(err, &d)
}
