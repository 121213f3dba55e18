package scheduling

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppointmentStatus is the lifecycle state of an appointment occurrence.
type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusCheckedIn  AppointmentStatus = "checked_in"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
	StatusNoShow     AppointmentStatus = "no_show"
)

// Terminal reports whether the status ends the appointment lifecycle.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// appointmentTransitions is the forward edge set of the lifecycle graph.
// A consultation must be checked in before it can start; there is no
// scheduled -> in_progress shortcut.
var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusScheduled:  {StatusCheckedIn, StatusCancelled, StatusNoShow},
	StatusCheckedIn:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range appointmentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// BlockedSlotStatus is the two-state lifecycle of a blocked time slot.
type BlockedSlotStatus string

const (
	BlockedActive  BlockedSlotStatus = "active"
	BlockedRemoved BlockedSlotStatus = "removed"
)

// Appointment maps to the appointment table. One row is one concrete
// occurrence; recurring series are materialized into many rows sharing a
// RecurrencePatternID.
type Appointment struct {
	ID                  uuid.UUID         `db:"id" json:"id"`
	ClinicID            uuid.UUID         `db:"clinic_id" json:"clinic_id"`
	ProviderID          uuid.UUID         `db:"provider_id" json:"provider_id"`
	PatientID           uuid.UUID         `db:"patient_id" json:"patient_id"`
	StartTime           time.Time         `db:"start_time" json:"start_time"`
	DurationMinutes     int               `db:"duration_minutes" json:"duration_minutes"`
	Status              AppointmentStatus `db:"status" json:"status"`
	RecurrencePatternID *uuid.UUID        `db:"recurrence_pattern_id" json:"recurrence_pattern_id,omitempty"`
	IsException         bool              `db:"is_exception" json:"is_exception"`
	CancellationReason  *string           `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	Notes               *string           `db:"notes" json:"notes,omitempty"`
	CreatedAt           time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time         `db:"updated_at" json:"updated_at"`
}

// EndTime returns StartTime + DurationMinutes.
func (a *Appointment) EndTime() time.Time {
	return a.StartTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Window returns the half-open occupancy interval of the appointment.
func (a *Appointment) Window() Interval {
	return Interval{Start: a.StartTime, End: a.EndTime()}
}

// BlockedSlot maps to the blocked_slot table. A nil ProviderID blocks the
// entire clinic.
type BlockedSlot struct {
	ID                  uuid.UUID         `db:"id" json:"id"`
	ClinicID            uuid.UUID         `db:"clinic_id" json:"clinic_id"`
	ProviderID          *uuid.UUID        `db:"provider_id" json:"provider_id,omitempty"`
	StartTime           time.Time         `db:"start_time" json:"start_time"`
	DurationMinutes     int               `db:"duration_minutes" json:"duration_minutes"`
	Status              BlockedSlotStatus `db:"status" json:"status"`
	RecurrencePatternID *uuid.UUID        `db:"recurrence_pattern_id" json:"recurrence_pattern_id,omitempty"`
	IsException         bool              `db:"is_exception" json:"is_exception"`
	Reason              *string           `db:"reason" json:"reason,omitempty"`
	CreatedAt           time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time         `db:"updated_at" json:"updated_at"`
}

// EndTime returns StartTime + DurationMinutes.
func (b *BlockedSlot) EndTime() time.Time {
	return b.StartTime.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

// Window returns the half-open occupancy interval of the blocked slot.
func (b *BlockedSlot) Window() Interval {
	return Interval{Start: b.StartTime, End: b.EndTime()}
}

// AppliesTo reports whether the blocked slot blocks the given provider. A
// clinic-wide block (nil ProviderID) applies to every provider.
func (b *BlockedSlot) AppliesTo(providerID uuid.UUID) bool {
	return b.ProviderID == nil || *b.ProviderID == providerID
}

// Frequency is the recurrence pattern step unit.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// PatternOwner names the occurrence type a pattern generates.
type PatternOwner string

const (
	OwnerAppointment PatternOwner = "appointment"
	OwnerBlockedSlot PatternOwner = "blocked_slot"
)

// RecurrencePattern maps to the recurrence_pattern table. Termination is
// exactly one of OccurrenceCount and UntilDate. The template fields are
// copied onto every generated occurrence.
type RecurrencePattern struct {
	ID              uuid.UUID    `db:"id" json:"id"`
	OwnerType       PatternOwner `db:"owner_type" json:"owner_type"`
	Frequency       Frequency    `db:"frequency" json:"frequency"`
	Interval        int          `db:"interval" json:"interval"`
	Weekdays        []int16      `db:"weekdays" json:"weekdays,omitempty"`
	StartDate       time.Time    `db:"start_date" json:"start_date"`
	OccurrenceCount *int         `db:"occurrence_count" json:"occurrence_count,omitempty"`
	UntilDate       *time.Time   `db:"until_date" json:"until_date,omitempty"`
	IsActive        bool         `db:"is_active" json:"is_active"`

	// Template data stamped onto every generated occurrence.
	DurationMinutes int        `db:"duration_minutes" json:"duration_minutes"`
	ClinicID        uuid.UUID  `db:"clinic_id" json:"clinic_id"`
	ProviderID      *uuid.UUID `db:"provider_id" json:"provider_id,omitempty"`
	PatientID       *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	Notes           *string    `db:"notes" json:"notes,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Validate checks the pattern's structural invariants.
func (p *RecurrencePattern) Validate() error {
	switch p.OwnerType {
	case OwnerAppointment, OwnerBlockedSlot:
	default:
		return validationError("invalid owner type %q", p.OwnerType)
	}
	switch p.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	default:
		return validationError("invalid frequency %q", p.Frequency)
	}
	if p.Interval < 1 {
		return validationError("interval must be at least 1")
	}
	if p.DurationMinutes <= 0 {
		return validationError("duration_minutes must be positive")
	}
	if p.Frequency == FrequencyWeekly {
		if len(p.Weekdays) == 0 {
			return validationError("weekly patterns require at least one weekday")
		}
		seen := make(map[int16]bool, len(p.Weekdays))
		for _, wd := range p.Weekdays {
			if wd < 0 || wd > 6 {
				return validationError("weekday %d out of range 0-6", wd)
			}
			if seen[wd] {
				return validationError("duplicate weekday %d", wd)
			}
			seen[wd] = true
		}
	}
	if p.StartDate.IsZero() {
		return validationError("start_date is required")
	}
	if p.OccurrenceCount != nil && p.UntilDate != nil {
		return &InvariantViolationError{Msg: "occurrence_count and until_date are mutually exclusive"}
	}
	if p.OccurrenceCount == nil && p.UntilDate == nil {
		return &InvariantViolationError{Msg: "a termination rule (occurrence_count or until_date) is required"}
	}
	if p.OccurrenceCount != nil {
		if *p.OccurrenceCount < 1 {
			return validationError("occurrence_count must be at least 1")
		}
		if *p.OccurrenceCount > MaxOccurrences {
			return validationError("occurrence_count exceeds the maximum of %d", MaxOccurrences)
		}
	}
	if p.UntilDate != nil && p.UntilDate.Before(p.StartDate) {
		return validationError("until_date must not precede start_date")
	}
	return nil
}

// RecurringDeleteScope selects the breadth of a recurring mutation. The
// numeric values are a stable external contract only; comparisons must use
// equality, not ordering.
type RecurringDeleteScope int

const (
	ScopeThisOccurrence RecurringDeleteScope = 1
	ScopeThisAndFuture  RecurringDeleteScope = 2
	ScopeAllInSeries    RecurringDeleteScope = 3
)

// ParseScope parses the wire form of a delete scope.
func ParseScope(s string) (RecurringDeleteScope, error) {
	switch s {
	case "this_occurrence":
		return ScopeThisOccurrence, nil
	case "this_and_future":
		return ScopeThisAndFuture, nil
	case "all_in_series":
		return ScopeAllInSeries, nil
	default:
		return 0, validationError("invalid scope %q", s)
	}
}

func (s RecurringDeleteScope) String() string {
	switch s {
	case ScopeThisOccurrence:
		return "this_occurrence"
	case ScopeThisAndFuture:
		return "this_and_future"
	case ScopeAllInSeries:
		return "all_in_series"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}
