// Package domain contains the core domain models for the sourcing service.
package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an entity is not found in the database.
var ErrNotFound = errors.New("entity not found")

// ErrValidation is returned when a request or entity fails validation.
var ErrValidation = errors.New("validation failed")

// ErrInsufficientCredits is returned when a debit exceeds the current balance
// or the requested amount is not positive. The ledger is never mutated.
var ErrInsufficientCredits = errors.New("insufficient credits")

// ErrModelNotComputed is returned when scoring is dispatched before the
// search's scoring model has been computed. Scoring is ordered strictly
// after model computation.
var ErrModelNotComputed = errors.New("scoring model not computed for search")

// ErrPollingTimeout is returned when a strategy exhausts its polling budget
// without the upstream task completing.
var ErrPollingTimeout = errors.New("polling timeout")

// UpstreamError represents a non-2xx response from an external collaborator.
type UpstreamError struct {
	Service    string
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s returned %d: %s", e.Service, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s returned %d", e.Service, e.StatusCode)
}

// IsUpstreamError reports whether err is an UpstreamError.
func IsUpstreamError(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
