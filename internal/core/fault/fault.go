// Package fault defines the extraction error taxonomy shared by the
// fetcher, reducer, provider adapters and orchestrator. Every failure on
// the extraction path is classified as transient (worth retrying the same
// plan) or fatal (abort the plan, move to the next one).
package fault

import (
	"errors"
	"fmt"
	"time"
)

type Code string

const (
	CodeRateLimited            Code = "RATE_LIMITED"
	CodeFetchFailed            Code = "FETCH_FAILED"
	CodeContentTooSparse       Code = "CONTENT_TOO_SPARSE"
	CodeProviderTransient      Code = "PROVIDER_TRANSIENT"
	CodeProviderFatal          Code = "PROVIDER_FATAL"
	CodeIncompleteCandidate    Code = "INCOMPLETE_CANDIDATE"
	CodeAllStrategiesExhausted Code = "ALL_STRATEGIES_EXHAUSTED"
)

// transientCodes lists the codes that may be retried within the same plan.
// FETCH_FAILED is transient in classification but is never retried in place:
// the orchestrator moves to the next plan instead of refetching the same URL.
var transientCodes = map[Code]bool{
	CodeFetchFailed:       true,
	CodeProviderTransient: true,
}

// Error is a classified extraction failure.
type Error struct {
	Code    Code
	Message string
	// RetryAfter carries a provider-suggested delay (e.g. a rate-limit
	// Retry-After header). Zero means no suggestion.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Transient() bool { return transientCodes[e.Code] }

// New creates a classified error with a formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Transient reports whether err is a classified transient failure.
// Unclassified errors are treated as fatal.
func Transient(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Transient()
	}
	return false
}

// CodeOf returns the classification code of err, or CodeProviderFatal for
// unclassified errors.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return CodeProviderFatal
}

// RetryAfterOf returns the provider-suggested retry delay, if any.
func RetryAfterOf(err error) time.Duration {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.RetryAfter
	}
	return 0
}
