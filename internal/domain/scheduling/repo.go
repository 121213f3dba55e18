package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	// ListOverlapping returns non-terminal appointments for the provider
	// whose windows intersect the given one. excludeID skips one appointment
	// (used by reschedule); pass uuid.Nil to skip none.
	ListOverlapping(ctx context.Context, providerID uuid.UUID, window Interval, excludeID uuid.UUID) ([]*Appointment, error)
	// ListByClinicDay returns every appointment for the clinic whose window
	// intersects [dayStart, dayEnd), ordered by start time, provider, id.
	ListByClinicDay(ctx context.Context, clinicID uuid.UUID, dayStart, dayEnd time.Time) ([]*Appointment, error)
	// ListByProviderDay returns non-terminal appointments for one provider
	// within the day window.
	ListByProviderDay(ctx context.Context, providerID uuid.UUID, dayStart, dayEnd time.Time) ([]*Appointment, error)
	ListByPattern(ctx context.Context, patternID uuid.UUID) ([]*Appointment, error)
	// ListByPatient returns the patient's appointments starting at or after
	// from, paginated, along with the total count.
	ListByPatient(ctx context.Context, patientID uuid.UUID, from time.Time, limit, offset int) ([]*Appointment, int, error)
}

type BlockedSlotRepository interface {
	Create(ctx context.Context, b *BlockedSlot) error
	GetByID(ctx context.Context, id uuid.UUID) (*BlockedSlot, error)
	Update(ctx context.Context, b *BlockedSlot) error
	// ListBlocking returns active blocked slots that block the given provider
	// (provider-specific plus clinic-wide) and intersect the window.
	ListBlocking(ctx context.Context, clinicID uuid.UUID, providerID uuid.UUID, window Interval) ([]*BlockedSlot, error)
	// ListByClinicDay returns active blocked slots for the clinic within the
	// day window, clinic-wide ones included.
	ListByClinicDay(ctx context.Context, clinicID uuid.UUID, dayStart, dayEnd time.Time) ([]*BlockedSlot, error)
	ListByPattern(ctx context.Context, patternID uuid.UUID) ([]*BlockedSlot, error)
}

type PatternRepository interface {
	Create(ctx context.Context, p *RecurrencePattern) error
	GetByID(ctx context.Context, id uuid.UUID) (*RecurrencePattern, error)
	Update(ctx context.Context, p *RecurrencePattern) error
}

// TxRunner runs fn inside a single transaction. Repository calls made with
// the ctx passed to fn join that transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	// InProviderTx additionally serializes against concurrent transactions
	// for the same provider calendar before running fn.
	InProviderTx(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context) error) error
}
