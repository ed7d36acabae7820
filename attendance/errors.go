/*
errors.go - Error types for attendance marking and queries

ERROR CATEGORIES:
  1. Validation     - malformed day, bad status, missing fields, unknown batch
  2. Authorization  - batch outside the caller's permitted set
  3. Lookup         - unknown student, student in another batch
  4. Persistence    - ledger write failed (per item)
  5. Index rebuild  - projection delete/insert failed (logged, not fatal)

Per-record failures are reported on ItemResult.Err; only validation of the
submission itself and authorization abort a whole call.
*/
package attendance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrInvalidSubmission = errors.New("invalid submission")
	ErrInvalidDay        = errors.New("invalid day")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrMissingStudentID  = errors.New("student id is required")
	ErrUnknownBatch      = errors.New("unknown batch")

	ErrBatchNotPermitted = errors.New("batch not permitted")

	ErrStudentNotFound = errors.New("student not found")
	ErrBatchMismatch   = errors.New("student not in this batch")

	ErrPersistence  = errors.New("persistence failed")
	ErrIndexRebuild = errors.New("index rebuild failed")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError describes why a submission or query was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidSubmission }

// AuthorizationError is returned before any mutation when the caller may not
// act on a batch.
type AuthorizationError struct {
	TeacherID TeacherID
	Batch     Batch
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("batch %q not permitted for %q", e.Batch, e.TeacherID)
}

func (e *AuthorizationError) Unwrap() error { return ErrBatchNotPermitted }

// PersistenceError wraps a failed ledger write. Error() is the store's
// message so it can be shown per item.
type PersistenceError struct {
	StudentID StudentID
	Err       error
}

func (e *PersistenceError) Error() string { return e.Err.Error() }

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// IndexRebuildError wraps a failed index window replacement.
type IndexRebuildError struct {
	Batch Batch
	Day   Day
	Err   error
}

func (e *IndexRebuildError) Error() string {
	return fmt.Sprintf("rebuild index %s/%s: %v", e.Batch, e.Day, e.Err)
}

func (e *IndexRebuildError) Unwrap() []error { return []error{ErrIndexRebuild, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidSubmission) ||
		errors.Is(err, ErrInvalidDay) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrMissingStudentID) ||
		errors.Is(err, ErrUnknownBatch)
}

// IsForbidden returns true for authorization failures.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrBatchNotPermitted)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStudentNotFound)
}
