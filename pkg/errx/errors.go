// Package errx defines the error taxonomy shared by every pipeline
// component: executors, providers, the store, and the HTTP layer all
// classify failures into this fixed set of codes rather than matching
// on error strings.
package errx

import (
	"errors"
	"fmt"
)

// Code is one of the fixed taxonomy values from spec §7. It is what
// gets persisted on a job's error_code column and surfaced verbatim in
// HTTP error bodies.
type Code string

const (
	ProductNotFound        Code = "ProductNotFound"
	SegmentFailed          Code = "SegmentFailed"
	BackgroundFailed       Code = "BackgroundFailed"
	CompositeFailed        Code = "CompositeFailed"
	StorefrontUploadFailed Code = "StorefrontUploadFailed"
	StorageFailed          Code = "StorageFailed"
	Timeout                Code = "Timeout"
	InvalidImage           Code = "InvalidImage"
	QualityCheckFailed     Code = "QualityCheckFailed"
	MaxRetriesExceeded     Code = "MaxRetriesExceeded"
	InvalidTransition      Code = "InvalidTransition"
	MissingRequiredFields  Code = "MissingRequiredFields"
	Unknown                Code = "Unknown"
)

// nonRetryable is the set from spec §4.1: failures here are never
// eligible for automatic retry regardless of attempt count.
var nonRetryable = map[Code]bool{
	ProductNotFound: true,
	InvalidImage:    true,
}

// Retryable reports whether a fresh failure with this code may be
// retried at all. QualityCheckFailed is retryable once; the second
// occurrence must be recorded as MaxRetriesExceeded or left FAILED by
// the caller, not by this function (it has no attempt count to judge).
func (c Code) Retryable() bool {
	return !nonRetryable[c]
}

// Classified is implemented by any error that carries a taxonomy code.
// Executors type-assert against this instead of matching strings.
type Classified interface {
	error
	Code() Code
}

// PipelineError is the concrete Classified implementation threaded
// through providers and executors.
type PipelineError struct {
	code    Code
	message string
	cause   error
}

// New builds a PipelineError with no wrapped cause.
func New(code Code, message string) *PipelineError {
	return &PipelineError{code: code, message: message}
}

// Wrap attaches a taxonomy code to an arbitrary lower-level error
// (a driver error, an HTTP client error, ...) without losing it.
func Wrap(code Code, message string, cause error) *PipelineError {
	return &PipelineError{code: code, message: message, cause: cause}
}

func (e *PipelineError) Error() string {
	if e.cause == nil {
		return e.message
	}
	return fmt.Sprintf("%s: %v", e.message, e.cause)
}

func (e *PipelineError) Unwrap() error { return e.cause }

func (e *PipelineError) Code() Code { return e.code }

// As extracts the taxonomy code from any error, defaulting to Unknown
// for errors that never opted into the taxonomy.
func As(err error) Code {
	if err == nil {
		return ""
	}
	var c Classified
	if errors.As(err, &c) {
		return c.Code()
	}
	return Unknown
}
