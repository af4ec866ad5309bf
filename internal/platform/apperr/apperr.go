// Package apperr defines the error taxonomy shared by the ADT components.
// Each error type is matchable with errors.As so callers can decide between
// retrying and showing a specific message to the user.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError reports malformed or unresolvable input.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validation builds a ValidationError for the given field.
func Validation(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing encounter, assignment or bed.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// NotFound builds a NotFoundError.
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// BedUnavailableError is returned when the target bed is not available at
// lock time.
type BedUnavailableError struct {
	BedID     string
	BedNumber string
	Status    string
}

func (e *BedUnavailableError) Error() string {
	label := e.BedID
	if e.BedNumber != "" {
		label = e.BedNumber
	}
	return fmt.Sprintf("bed %s is not available (status %s)", label, e.Status)
}

// InvalidStateError reports an operation attempted in the wrong lifecycle
// state.
type InvalidStateError struct {
	Resource string
	ID       string
	State    string
	Reason   string
}

func (e *InvalidStateError) Error() string {
	msg := fmt.Sprintf("%s %s is %s", e.Resource, e.ID, e.State)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// ConflictError reports that a write would break a uniqueness invariant,
// for instance a second open assignment for the same bed.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// Conflict builds a ConflictError.
func Conflict(format string, args ...interface{}) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// LockTimeoutError is returned when a row lock could not be acquired within
// the configured wait. Safe to retry.
type LockTimeoutError struct {
	Resource string
	Err      error
}

func (e *LockTimeoutError) Error() string {
	if e.Resource == "" {
		return "timed out waiting for row lock"
	}
	return fmt.Sprintf("timed out waiting for %s lock", e.Resource)
}

func (e *LockTimeoutError) Unwrap() error { return e.Err }

// TransientError wraps a database failure that may succeed on retry
// (serialization failure, deadlock).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient database error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Kind returns a short stable label for err, used in metrics and API
// responses.
func Kind(err error) string {
	if err == nil {
		return "ok"
	}
	var (
		ve  *ValidationError
		nfe *NotFoundError
		bue *BedUnavailableError
		ise *InvalidStateError
		ce  *ConflictError
		lte *LockTimeoutError
		te  *TransientError
	)
	switch {
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &nfe):
		return "not_found"
	case errors.As(err, &bue):
		return "bed_unavailable"
	case errors.As(err, &ise):
		return "invalid_state"
	case errors.As(err, &ce):
		return "conflict"
	case errors.As(err, &lte):
		return "lock_timeout"
	case errors.As(err, &te):
		return "transient"
	default:
		return "internal"
	}
}

// HTTPStatus maps err to the status code a request handler should return.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case "ok":
		return http.StatusOK
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "bed_unavailable", "invalid_state", "conflict":
		return http.StatusConflict
	case "lock_timeout", "transient":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller may resubmit the same request.
func Retryable(err error) bool {
	k := Kind(err)
	return k == "lock_timeout" || k == "transient"
}
