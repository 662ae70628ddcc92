package provider

import (
	"errors"
	"fmt"
)

// FailureKind classifies a provider fetch failure, so callers can decide
// whether a retry is worth anything
type FailureKind string

const (
	// KindTransient covers timeouts, connection errors and 5xx responses.
	// A retry is expected to eventually succeed
	KindTransient FailureKind = "transient"

	// KindPermanent covers rejected requests (4xx) and malformed payloads
	// on an otherwise successful response. A retry will not change anything
	KindPermanent FailureKind = "permanent"

	// KindValidation covers responses whose shape or values violate the
	// snapshot invariants. Not retryable
	KindValidation FailureKind = "validation"
)

// Failure is a classified provider fetch error
type Failure struct {
	err  error
	Kind FailureKind
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failure: %s", f.Kind, f.err)
}

func (f *Failure) Unwrap() error {
	return f.err
}

// Transient wraps the given error as a retryable failure
func Transient(err error) *Failure {
	return &Failure{err: err, Kind: KindTransient}
}

// Permanent wraps the given error as a non-retryable failure
func Permanent(err error) *Failure {
	return &Failure{err: err, Kind: KindPermanent}
}

// Validation wraps the given error as an invariant violation
func Validation(err error) *Failure {
	return &Failure{err: err, Kind: KindValidation}
}

// KindOf extracts the failure kind from the given error chain.
// Unclassified errors are treated as permanent, so an oversight
// never turns into a retry storm
func KindOf(err error) FailureKind {
	var failure *Failure

	if errors.As(err, &failure) {
		return failure.Kind
	}

	return KindPermanent
}

// IsTransient checks whether the given error is worth retrying
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}
