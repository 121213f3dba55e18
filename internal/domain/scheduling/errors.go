package scheduling

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ValidationError reports malformed input. It is always returned before any
// storage access.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationError(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports that an id did not resolve under the caller's tenant.
// A cross-tenant id and a genuinely absent id are indistinguishable by design.
type NotFoundError struct {
	Resource string
	ID       uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func notFound(resource string, id uuid.UUID) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// ConflictError reports a time overlap with an existing occurrence. The
// conflicting occurrence's id and window are included so callers can offer an
// alternative slot. ConflictingID is uuid.Nil when the overlap was caught by
// the database exclusion constraint rather than the pre-check.
type ConflictError struct {
	ConflictingID uuid.UUID
	Start         time.Time
	End           time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("time window conflicts with occurrence %s (%s to %s)",
		e.ConflictingID, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

// InvalidTransitionError reports a status-machine violation.
type InvalidTransitionError struct {
	From AppointmentStatus
	To   AppointmentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// InvariantViolationError reports a contradiction in stored or submitted
// state, such as a recurrence pattern with both a count and an until date.
type InvariantViolationError struct {
	Msg string
}

func (e *InvariantViolationError) Error() string { return e.Msg }
