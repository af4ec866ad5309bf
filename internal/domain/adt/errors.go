package adt

import "github.com/ehr/adt/internal/platform/apperr"

// Error types returned by the orchestrator. They are defined in apperr so
// the data components can return them without importing this package.
type (
	ValidationError     = apperr.ValidationError
	NotFoundError       = apperr.NotFoundError
	BedUnavailableError = apperr.BedUnavailableError
	InvalidStateError   = apperr.InvalidStateError
	ConflictError       = apperr.ConflictError
	LockTimeoutError    = apperr.LockTimeoutError
	TransientError      = apperr.TransientError
)
