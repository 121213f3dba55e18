package scheduling

import (
	"testing"

	"github.com/google/uuid"
)

func TestProviderSlots_TypicalDay(t *testing.T) {
	provider := uuid.New()
	window := iv(8, 0, 18, 0)
	appts := []*Appointment{
		{ID: uuid.New(), ProviderID: provider, StartTime: at(9, 0), DurationMinutes: 30, Status: StatusScheduled},
	}
	blocks := []*BlockedSlot{
		{ID: uuid.New(), StartTime: at(12, 0), DurationMinutes: 60, Status: BlockedActive}, // clinic-wide lunch
	}

	slots := ProviderSlots(provider, window, appts, blocks, 30)

	// Free gaps: 8:00-9:00 (2 slots), 9:30-12:00 (5 slots), 13:00-18:00 (10 slots).
	if len(slots) != 17 {
		t.Fatalf("expected 17 slots, got %d", len(slots))
	}
	if !slots[0].StartTime.Equal(at(8, 0)) {
		t.Errorf("first slot starts at %v, want 8:00", slots[0].StartTime)
	}
	if !slots[2].StartTime.Equal(at(9, 30)) {
		t.Errorf("slot after the appointment starts at %v, want 9:30", slots[2].StartTime)
	}
	if !slots[7].StartTime.Equal(at(13, 0)) {
		t.Errorf("slot after lunch starts at %v, want 13:00", slots[7].StartTime)
	}
	for _, s := range slots {
		if s.ProviderID != provider {
			t.Fatalf("slot carries provider %s, want %s", s.ProviderID, provider)
		}
	}
}

func TestProviderSlots_IgnoresOtherProvidersAndTerminal(t *testing.T) {
	provider := uuid.New()
	other := uuid.New()
	window := iv(8, 0, 10, 0)
	appts := []*Appointment{
		{ID: uuid.New(), ProviderID: other, StartTime: at(8, 0), DurationMinutes: 60, Status: StatusScheduled},
		{ID: uuid.New(), ProviderID: provider, StartTime: at(9, 0), DurationMinutes: 60, Status: StatusCancelled},
	}

	slots := ProviderSlots(provider, window, appts, nil, 60)
	if len(slots) != 2 {
		t.Errorf("expected the whole window free (2 slots), got %d", len(slots))
	}
}

func TestProviderSlots_ProviderSpecificBlock(t *testing.T) {
	providerA := uuid.New()
	providerB := uuid.New()
	window := iv(8, 0, 10, 0)
	blocks := []*BlockedSlot{
		{ID: uuid.New(), ProviderID: &providerA, StartTime: at(8, 0), DurationMinutes: 120, Status: BlockedActive},
	}

	if slots := ProviderSlots(providerA, window, nil, blocks, 30); len(slots) != 0 {
		t.Errorf("expected blocked provider to have no slots, got %d", len(slots))
	}
	if slots := ProviderSlots(providerB, window, nil, blocks, 30); len(slots) != 4 {
		t.Errorf("expected unblocked provider to have 4 slots, got %d", len(slots))
	}
}

func TestProviderSlots_RemovedBlockIgnored(t *testing.T) {
	provider := uuid.New()
	window := iv(8, 0, 9, 0)
	blocks := []*BlockedSlot{
		{ID: uuid.New(), StartTime: at(8, 0), DurationMinutes: 60, Status: BlockedRemoved},
	}
	if slots := ProviderSlots(provider, window, nil, blocks, 30); len(slots) != 2 {
		t.Errorf("expected removed block to be ignored, got %d slots", len(slots))
	}
}

func TestClinicSlots_DiscoversProvidersFromBookings(t *testing.T) {
	providerA := uuid.New()
	providerB := uuid.New()
	window := iv(8, 0, 9, 0)
	appts := []*Appointment{
		{ID: uuid.New(), ProviderID: providerA, StartTime: at(8, 0), DurationMinutes: 30, Status: StatusScheduled},
		{ID: uuid.New(), ProviderID: providerB, StartTime: at(8, 30), DurationMinutes: 30, Status: StatusScheduled},
	}

	slots := ClinicSlots(nil, window, appts, nil, 30)

	// Each provider has one free 30-minute slot.
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	seen := map[uuid.UUID]bool{}
	for _, s := range slots {
		seen[s.ProviderID] = true
	}
	if !seen[providerA] || !seen[providerB] {
		t.Errorf("expected slots for both providers, got %v", slots)
	}
}

func TestClinicSlots_RequestedProvidersFirst(t *testing.T) {
	requested := uuid.New()
	discovered := uuid.New()
	window := iv(8, 0, 9, 0)
	appts := []*Appointment{
		{ID: uuid.New(), ProviderID: discovered, StartTime: at(8, 0), DurationMinutes: 30, Status: StatusScheduled},
	}

	slots := ClinicSlots([]uuid.UUID{requested}, window, appts, nil, 30)
	if len(slots) == 0 {
		t.Fatal("expected slots")
	}
	if slots[0].ProviderID != requested {
		t.Errorf("expected requested provider first, got %s", slots[0].ProviderID)
	}
}

func TestClinicSlots_Deterministic(t *testing.T) {
	window := iv(8, 0, 9, 0)
	providerA := uuid.New()
	providerB := uuid.New()
	appts := []*Appointment{
		{ID: uuid.New(), ProviderID: providerA, StartTime: at(8, 0), DurationMinutes: 30, Status: StatusScheduled},
		{ID: uuid.New(), ProviderID: providerB, StartTime: at(8, 0), DurationMinutes: 30, Status: StatusScheduled},
	}

	first := ClinicSlots(nil, window, appts, nil, 30)
	for i := 0; i < 10; i++ {
		again := ClinicSlots(nil, window, appts, nil, 30)
		if len(again) != len(first) {
			t.Fatalf("run %d returned %d slots, want %d", i, len(again), len(first))
		}
		for j := range first {
			if again[j].ProviderID != first[j].ProviderID || !again[j].StartTime.Equal(first[j].StartTime) {
				t.Fatalf("run %d slot %d differs: %v vs %v", i, j, again[j], first[j])
			}
		}
	}
}
