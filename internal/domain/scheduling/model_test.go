package scheduling

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to AppointmentStatus
		want     bool
	}{
		{StatusScheduled, StatusCheckedIn, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusScheduled, StatusNoShow, true},
		{StatusScheduled, StatusInProgress, false}, // must check in first
		{StatusScheduled, StatusCompleted, false},
		{StatusCheckedIn, StatusInProgress, true},
		{StatusCheckedIn, StatusCancelled, true},
		{StatusCheckedIn, StatusNoShow, true},
		{StatusCheckedIn, StatusCompleted, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusCancelled, false},
		{StatusCompleted, StatusScheduled, false},
		{StatusCancelled, StatusCheckedIn, false},
		{StatusNoShow, StatusScheduled, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestAppointmentStatus_Terminal(t *testing.T) {
	terminal := []AppointmentStatus{StatusCompleted, StatusCancelled, StatusNoShow}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	active := []AppointmentStatus{StatusScheduled, StatusCheckedIn, StatusInProgress}
	for _, s := range active {
		if s.Terminal() {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}

func TestAppointment_EndTime(t *testing.T) {
	a := &Appointment{StartTime: at(9, 0), DurationMinutes: 45}
	if !a.EndTime().Equal(at(9, 45)) {
		t.Errorf("EndTime = %v, want 9:45", a.EndTime())
	}
}

func TestBlockedSlot_AppliesTo(t *testing.T) {
	providerA := uuid.New()
	providerB := uuid.New()

	clinicWide := &BlockedSlot{}
	if !clinicWide.AppliesTo(providerA) || !clinicWide.AppliesTo(providerB) {
		t.Error("clinic-wide block should apply to every provider")
	}

	specific := &BlockedSlot{ProviderID: &providerA}
	if !specific.AppliesTo(providerA) {
		t.Error("block should apply to its own provider")
	}
	if specific.AppliesTo(providerB) {
		t.Error("block should not apply to another provider")
	}
}

func intPtr(n int) *int { return &n }

func timePtr(t time.Time) *time.Time { return &t }

func strPtr(s string) *string { return &s }

func validWeeklyPattern() *RecurrencePattern {
	return &RecurrencePattern{
		OwnerType:       OwnerAppointment,
		Frequency:       FrequencyWeekly,
		Interval:        1,
		Weekdays:        []int16{1, 3},
		StartDate:       time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC),
		OccurrenceCount: intPtr(6),
		DurationMinutes: 30,
		ClinicID:        uuid.New(),
	}
}

func TestRecurrencePattern_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *RecurrencePattern)
		wantErr bool
	}{
		{"valid", func(p *RecurrencePattern) {}, false},
		{"bad owner type", func(p *RecurrencePattern) { p.OwnerType = "schedule" }, true},
		{"bad frequency", func(p *RecurrencePattern) { p.Frequency = "yearly" }, true},
		{"zero interval", func(p *RecurrencePattern) { p.Interval = 0 }, true},
		{"zero duration", func(p *RecurrencePattern) { p.DurationMinutes = 0 }, true},
		{"weekly without weekdays", func(p *RecurrencePattern) { p.Weekdays = nil }, true},
		{"weekday out of range", func(p *RecurrencePattern) { p.Weekdays = []int16{7} }, true},
		{"duplicate weekday", func(p *RecurrencePattern) { p.Weekdays = []int16{1, 1} }, true},
		{"zero start date", func(p *RecurrencePattern) { p.StartDate = time.Time{} }, true},
		{"no termination rule", func(p *RecurrencePattern) { p.OccurrenceCount = nil }, true},
		{"count below one", func(p *RecurrencePattern) { p.OccurrenceCount = intPtr(0) }, true},
		{"count over cap", func(p *RecurrencePattern) { p.OccurrenceCount = intPtr(MaxOccurrences + 1) }, true},
		{"until before start", func(p *RecurrencePattern) {
			p.OccurrenceCount = nil
			p.UntilDate = timePtr(p.StartDate.AddDate(0, 0, -1))
		}, true},
		{"daily without weekdays ok", func(p *RecurrencePattern) {
			p.Frequency = FrequencyDaily
			p.Weekdays = nil
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validWeeklyPattern()
			tt.mutate(p)
			err := p.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestRecurrencePattern_Validate_BothTerminationRules(t *testing.T) {
	p := validWeeklyPattern()
	p.UntilDate = timePtr(p.StartDate.AddDate(0, 1, 0))

	err := p.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(*InvariantViolationError); !ok {
		t.Errorf("expected InvariantViolationError, got %T", err)
	}
}

func TestParseScope(t *testing.T) {
	tests := []struct {
		in   string
		want RecurringDeleteScope
		ok   bool
	}{
		{"this_occurrence", ScopeThisOccurrence, true},
		{"this_and_future", ScopeThisAndFuture, true},
		{"all_in_series", ScopeAllInSeries, true},
		{"everything", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseScope(tt.in)
		if tt.ok && err != nil {
			t.Errorf("ParseScope(%q) unexpected error: %v", tt.in, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("ParseScope(%q) expected error", tt.in)
		}
		if got != tt.want {
			t.Errorf("ParseScope(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestScope_String_RoundTrip(t *testing.T) {
	for _, s := range []RecurringDeleteScope{ScopeThisOccurrence, ScopeThisAndFuture, ScopeAllInSeries} {
		parsed, err := ParseScope(s.String())
		if err != nil {
			t.Fatalf("round trip of %v failed: %v", s, err)
		}
		if parsed != s {
			t.Errorf("round trip of %v = %v", s, parsed)
		}
	}
}
