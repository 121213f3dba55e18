// Package billing records completed visits for downstream invoicing. The
// in-memory ledger stands in for the billing system integration; it keeps the
// hook surface in place and makes completed encounters observable in tests
// and development.
package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/domain/scheduling"
	"github.com/clinicore/clinicore/internal/platform/db"
)

// Entry is one billable encounter.
type Entry struct {
	ID              uuid.UUID `json:"id"`
	Tenant          string    `json:"tenant"`
	AppointmentID   uuid.UUID `json:"appointment_id"`
	ClinicID        uuid.UUID `json:"clinic_id"`
	ProviderID      uuid.UUID `json:"provider_id"`
	PatientID       uuid.UUID `json:"patient_id"`
	DurationMinutes int       `json:"duration_minutes"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// Ledger is a thread-safe in-memory billing sink.
type Ledger struct {
	mu      sync.Mutex
	entries []Entry
	log     zerolog.Logger
}

func NewLedger(log zerolog.Logger) *Ledger {
	return &Ledger{log: log}
}

func (l *Ledger) AppointmentCompleted(ctx context.Context, a *scheduling.Appointment) error {
	entry := Entry{
		ID:              uuid.New(),
		Tenant:          db.TenantFromContext(ctx),
		AppointmentID:   a.ID,
		ClinicID:        a.ClinicID,
		ProviderID:      a.ProviderID,
		PatientID:       a.PatientID,
		DurationMinutes: a.DurationMinutes,
		RecordedAt:      time.Now().UTC(),
	}
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()

	l.log.Info().
		Str("appointment_id", a.ID.String()).
		Int("duration_minutes", a.DurationMinutes).
		Msg("billable encounter recorded")
	return nil
}

// Entries returns a copy of the recorded entries.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
