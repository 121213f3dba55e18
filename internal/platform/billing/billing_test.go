package billing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/domain/scheduling"
	"github.com/clinicore/clinicore/internal/platform/db"
)

func TestLedger_AppointmentCompleted(t *testing.T) {
	ledger := NewLedger(zerolog.Nop())
	ctx := context.WithValue(context.Background(), db.TenantIDKey, "acme")

	a := &scheduling.Appointment{
		ID:              uuid.New(),
		ClinicID:        uuid.New(),
		ProviderID:      uuid.New(),
		PatientID:       uuid.New(),
		DurationMinutes: 45,
		Status:          scheduling.StatusCompleted,
	}
	if err := ledger.AppointmentCompleted(ctx, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := ledger.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Tenant != "acme" {
		t.Errorf("tenant = %q", e.Tenant)
	}
	if e.AppointmentID != a.ID || e.PatientID != a.PatientID || e.DurationMinutes != 45 {
		t.Errorf("entry = %+v", e)
	}
	if e.RecordedAt.IsZero() {
		t.Error("expected recorded_at set")
	}
}

func TestLedger_EntriesReturnsCopy(t *testing.T) {
	ledger := NewLedger(zerolog.Nop())
	ctx := context.Background()

	ledger.AppointmentCompleted(ctx, &scheduling.Appointment{ID: uuid.New()})
	first := ledger.Entries()
	first[0].Tenant = "mutated"

	if ledger.Entries()[0].Tenant == "mutated" {
		t.Error("Entries must return a copy")
	}
}
