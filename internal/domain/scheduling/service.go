package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/platform/db"
)

// HoursProvider resolves the clinic operating window for a given day. The
// second return is false when the clinic is closed that day.
type HoursProvider interface {
	DayWindow(ctx context.Context, clinicID uuid.UUID, day time.Time) (Interval, bool, error)
}

// Notifier delivers appointment lifecycle notifications. Implementations must
// not block; delivery failures are their own concern.
type Notifier interface {
	AppointmentEvent(ctx context.Context, event string, a *Appointment)
}

// BillingHook is invoked when an appointment completes so downstream billing
// can record the encounter.
type BillingHook interface {
	AppointmentCompleted(ctx context.Context, a *Appointment) error
}

// Notification events emitted by the service.
const (
	EventAppointmentCreated     = "appointment.created"
	EventAppointmentCancelled   = "appointment.cancelled"
	EventAppointmentCompleted   = "appointment.completed"
	EventAppointmentRescheduled = "appointment.rescheduled"
)

// MaterializePolicy controls how a recurring series reacts to occurrences
// that conflict with existing bookings.
type MaterializePolicy string

const (
	// MaterializeAtomic rejects the whole series on the first conflict.
	MaterializeAtomic MaterializePolicy = "atomic"
	// MaterializeBestEffort creates the conflict-free occurrences and
	// reports the skipped ones.
	MaterializeBestEffort MaterializePolicy = "best_effort"
)

type SkippedOccurrence struct {
	StartTime     time.Time `json:"start_time"`
	ConflictingID uuid.UUID `json:"conflicting_id,omitempty"`
}

type SeriesResult struct {
	Pattern    *RecurrencePattern  `json:"pattern"`
	CreatedIDs []uuid.UUID         `json:"created_ids"`
	Skipped    []SkippedOccurrence `json:"skipped,omitempty"`
}

// Agenda is the chronological view of one clinic day.
type Agenda struct {
	Date         time.Time      `json:"date"`
	Appointments []*Appointment `json:"appointments"`
	BlockedSlots []*BlockedSlot `json:"blocked_slots"`
}

type Service struct {
	appts    AppointmentRepository
	blocks   BlockedSlotRepository
	patterns PatternRepository
	tx       TxRunner
	hours    HoursProvider
	notifier Notifier
	billing  BillingHook
	log      zerolog.Logger
}

func NewService(appts AppointmentRepository, blocks BlockedSlotRepository, patterns PatternRepository,
	tx TxRunner, hours HoursProvider, notifier Notifier, billing BillingHook, log zerolog.Logger) *Service {
	return &Service{
		appts:    appts,
		blocks:   blocks,
		patterns: patterns,
		tx:       tx,
		hours:    hours,
		notifier: notifier,
		billing:  billing,
		log:      log,
	}
}

func (s *Service) requireTenant(ctx context.Context) error {
	if db.TenantFromContext(ctx) == "" {
		return validationError("tenant is required")
	}
	return nil
}

// assertFree returns a ConflictError when the provider already has a
// non-terminal appointment or an applicable active blocked slot intersecting
// the window. Must run inside the provider transaction to be race-free.
func (s *Service) assertFree(ctx context.Context, clinicID, providerID uuid.UUID, window Interval, excludeID uuid.UUID) error {
	overlapping, err := s.appts.ListOverlapping(ctx, providerID, window, excludeID)
	if err != nil {
		return err
	}
	if len(overlapping) > 0 {
		return &ConflictError{ConflictingID: overlapping[0].ID, Start: window.Start, End: window.End}
	}
	blocking, err := s.blocks.ListBlocking(ctx, clinicID, providerID, window)
	if err != nil {
		return err
	}
	if len(blocking) > 0 {
		return &ConflictError{ConflictingID: blocking[0].ID, Start: window.Start, End: window.End}
	}
	return nil
}

func (s *Service) notify(ctx context.Context, event string, a *Appointment) {
	if s.notifier == nil {
		return
	}
	s.notifier.AppointmentEvent(context.WithoutCancel(ctx), event, a)
}

// -- Appointments --

func validateAppointment(a *Appointment) error {
	switch {
	case a.ClinicID == uuid.Nil:
		return validationError("clinic_id is required")
	case a.ProviderID == uuid.Nil:
		return validationError("provider_id is required")
	case a.PatientID == uuid.Nil:
		return validationError("patient_id is required")
	case a.StartTime.IsZero():
		return validationError("start_time is required")
	case a.DurationMinutes <= 0:
		return validationError("duration_minutes must be positive")
	}
	return nil
}

func (s *Service) CreateAppointment(ctx context.Context, a *Appointment) error {
	if err := s.requireTenant(ctx); err != nil {
		return err
	}
	if err := validateAppointment(a); err != nil {
		return err
	}
	a.Status = StatusScheduled
	err := s.tx.InProviderTx(ctx, a.ProviderID, func(ctx context.Context) error {
		if err := s.assertFree(ctx, a.ClinicID, a.ProviderID, a.Window(), uuid.Nil); err != nil {
			return err
		}
		return s.appts.Create(ctx, a)
	})
	if err != nil {
		return err
	}
	s.notify(ctx, EventAppointmentCreated, a)
	return nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	if err := s.requireTenant(ctx); err != nil {
		return nil, err
	}
	return s.appts.GetByID(ctx, id)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to AppointmentStatus, mutate func(*Appointment)) (*Appointment, error) {
	if err := s.requireTenant(ctx); err != nil {
		return nil, err
	}
	var a *Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.appts.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(a.Status, to) {
			return &InvalidTransitionError{From: a.Status, To: to}
		}
		a.Status = to
		if mutate != nil {
			mutate(a)
		}
		return s.appts.Update(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) CheckIn(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCheckedIn, nil)
}

func (s *Service) StartVisit(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusInProgress, nil)
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.transition(ctx, id, StatusCompleted, nil)
	if err != nil {
		return nil, err
	}
	if s.billing != nil {
		if err := s.billing.AppointmentCompleted(ctx, a); err != nil {
			s.log.Error().Err(err).Str("appointment_id", a.ID.String()).Msg("billing hook failed")
		}
	}
	s.notify(ctx, EventAppointmentCompleted, a)
	return a, nil
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason *string) (*Appointment, error) {
	a, err := s.transition(ctx, id, StatusCancelled, func(a *Appointment) {
		a.CancellationReason = reason
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, EventAppointmentCancelled, a)
	return a, nil
}

func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusNoShow, nil)
}

// Reschedule moves an appointment to a new start time, and optionally a new
// duration. Rescheduling a member of a recurring series marks it an
// exception so series-wide edits skip it.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newStart time.Time, newDurationMinutes int) (*Appointment, error) {
	if err := s.requireTenant(ctx); err != nil {
		return nil, err
	}
	if newStart.IsZero() {
		return nil, validationError("start_time is required")
	}
	if newDurationMinutes < 0 {
		return nil, validationError("duration_minutes must be positive")
	}
	var a *Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.appts.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if a.Status.Terminal() {
			return validationError("cannot reschedule a %s appointment", a.Status)
		}
		// The provider lock nests inside the enclosing transaction.
		return s.tx.InProviderTx(ctx, a.ProviderID, func(ctx context.Context) error {
			a.StartTime = newStart
			if newDurationMinutes > 0 {
				a.DurationMinutes = newDurationMinutes
			}
			if a.RecurrencePatternID != nil {
				a.IsException = true
			}
			if err := s.assertFree(ctx, a.ClinicID, a.ProviderID, a.Window(), a.ID); err != nil {
				return err
			}
			return s.appts.Update(ctx, a)
		})
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, EventAppointmentRescheduled, a)
	return a, nil
}

// CancelWithScope cancels a recurring appointment occurrence with the given
// scope. For non-recurring appointments only ScopeThisOccurrence is valid.
func (s *Service) CancelWithScope(ctx context.Context, id uuid.UUID, scope RecurringDeleteScope, reason *string) (*ScopeResult, error) {
	if err := s.requireTenant(ctx); err != nil {
		return nil, err
	}
	var res *ScopeResult
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		target, err := s.appts.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return s.tx.InProviderTx(ctx, target.ProviderID, func(ctx context.Context) error {
			res, err = resolveAppointmentScope(ctx, s.appts, s.patterns, target, scope, reason)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// -- Blocked time --

func validateBlockedSlot(b *BlockedSlot) error {
	switch {
	case b.ClinicID == uuid.Nil:
		return validationError("clinic_id is required")
	case b.StartTime.IsZero():
		return validationError("start_time is required")
	case b.DurationMinutes <= 0:
		return validationError("duration_minutes must be positive")
	}
	return nil
}

// assertNoBookings returns a ConflictError when a non-terminal appointment
// intersects the window for the provider, or for any provider when
// providerID is nil (a clinic-wide block).
func (s *Service) assertNoBookings(ctx context.Context, clinicID uuid.UUID, providerID *uuid.UUID, window Interval) error {
	if providerID != nil {
		overlapping, err := s.appts.ListOverlapping(ctx, *providerID, window, uuid.Nil)
		if err != nil {
			return err
		}
		if len(overlapping) > 0 {
			return &ConflictError{ConflictingID: overlapping[0].ID, Start: window.Start, End: window.End}
		}
		return nil
	}
	appts, err := s.appts.ListByClinicDay(ctx, clinicID, window.Start, window.End)
	if err != nil {
		return err
	}
	for _, a := range appts {
		if !a.Status.Terminal() && a.Window().Overlaps(window) {
			return &ConflictError{ConflictingID: a.ID, Start: window.Start, End: window.End}
		}
	}
	return nil
}

// CreateBlockedSlot records blocked time. The window must be free of
// non-terminal appointments; blocking never silently cancels a booking.
func (s *Service) CreateBlockedSlot(ctx context.Context, b *BlockedSlot) error {
	if err := s.requireTenant(ctx); err != nil {
		return err
	}
	if err := validateBlockedSlot(b); err != nil {
		return err
	}
	b.Status = BlockedActive
	run := s.tx.InTx
	if b.ProviderID != nil {
		pid := *b.ProviderID
		run = func(ctx context.Context, fn func(context.Context) error) error {
			return s.tx.InProviderTx(ctx, pid, fn)
		}
	}
	return run(ctx, func(ctx context.Context) error {
		if err := s.assertNoBookings(ctx, b.ClinicID, b.ProviderID, b.Window()); err != nil {
			return err
		}
		return s.blocks.Create(ctx, b)
	})
}

func (s *Service) GetBlockedSlot(ctx context.Context, id uuid.UUID) (*BlockedSlot, error) {
	if err := s.requireTenant(ctx); err != nil {
		return nil, err
	}
	return s.blocks.GetByID(ctx, id)
}

// RemoveBlockedSlot deactivates a single blocked slot. Removing an already
// removed slot is a no-op.
func (s *Service) RemoveBlockedSlot(ctx context.Context, id uuid.UUID, reason *string) (*BlockedSlot, error) {
	if err := s.requireTenant(ctx); err != nil {
		return nil, err
	}
	var b *BlockedSlot
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.blocks.GetByID(ctx, id)
		if err != nil {
			return err
		}
		_, err = removeBlockedOccurrence(ctx, s.blocks, b, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// RemoveBlockedWithScope removes a recurring blocked-slot occurrence with the
// given scope.
func (s *Service) RemoveBlockedWithScope(ctx context.Context, id uuid.UUID, scope RecurringDeleteScope, reason *string) (*ScopeResult, error) {
	if err := s.requireTenant(ctx); err != nil {
		return nil, err
	}
	var res *ScopeResult
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		target, err := s.blocks.GetByID(ctx, id)
		if err != nil {
			return err
		}
		run := s.tx.InTx
		if target.ProviderID != nil {
			pid := *target.ProviderID
			run = func(ctx context.Context, fn func(context.Context) error) error {
				return s.tx.InProviderTx(ctx, pid, fn)
			}
		}
		return run(ctx, func(ctx context.Context) error {
			res, err = resolveBlockedScope(ctx, s.blocks, s.patterns, target, scope, reason)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// -- Recurring series --

// CreateRecurringSeries validates the pattern, expands it eagerly and
// materializes every occurrence. The atomic policy rejects the whole series
// on the first conflicting occurrence; best-effort skips conflicting
// occurrences and reports them. Blocked-slot occurrences conflict only with
// existing appointments, never with other blocked time.
func (s *Service) CreateRecurringSeries(ctx context.Context, p *RecurrencePattern, policy MaterializePolicy) (*SeriesResult, error) {
	if err := s.requireTenant(ctx); err != nil {
		return nil, err
	}
	if policy == "" {
		policy = MaterializeAtomic
	}
	if policy != MaterializeAtomic && policy != MaterializeBestEffort {
		return nil, validationError("unknown materialization policy %q", policy)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	dates, err := ExpandFull(p)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, validationError("pattern yields no occurrences")
	}
	// Expansion yields dates only; each occurrence keeps the series'
	// time-of-day.
	starts := make([]time.Time, len(dates))
	for i, d := range dates {
		starts[i] = OccurrenceStart(p, d)
	}

	res := &SeriesResult{Pattern: p}
	run := s.tx.InTx
	if p.ProviderID != nil {
		pid := *p.ProviderID
		run = func(ctx context.Context, fn func(context.Context) error) error {
			return s.tx.InProviderTx(ctx, pid, fn)
		}
	}
	err = run(ctx, func(ctx context.Context) error {
		p.IsActive = true
		if err := s.patterns.Create(ctx, p); err != nil {
			return err
		}
		switch p.OwnerType {
		case OwnerAppointment:
			return s.materializeAppointments(ctx, p, starts, policy, res)
		case OwnerBlockedSlot:
			return s.materializeBlockedSlots(ctx, p, starts, policy, res)
		default:
			return validationError("unknown pattern owner type %q", p.OwnerType)
		}
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("pattern_id", p.ID.String()).
		Int("created", len(res.CreatedIDs)).
		Int("skipped", len(res.Skipped)).
		Msg("recurring series materialized")
	return res, nil
}

func (s *Service) materializeAppointments(ctx context.Context, p *RecurrencePattern, starts []time.Time, policy MaterializePolicy, res *SeriesResult) error {
	if p.ProviderID == nil || p.PatientID == nil {
		return validationError("provider_id and patient_id are required for an appointment series")
	}
	for _, start := range starts {
		a := &Appointment{
			ClinicID:            p.ClinicID,
			ProviderID:          *p.ProviderID,
			PatientID:           *p.PatientID,
			StartTime:           start,
			DurationMinutes:     p.DurationMinutes,
			Status:              StatusScheduled,
			RecurrencePatternID: &p.ID,
			Notes:               p.Notes,
		}
		if err := s.assertFree(ctx, a.ClinicID, a.ProviderID, a.Window(), uuid.Nil); err != nil {
			var conflict *ConflictError
			if policy == MaterializeBestEffort && errors.As(err, &conflict) {
				res.Skipped = append(res.Skipped, SkippedOccurrence{
					StartTime:     start,
					ConflictingID: conflict.ConflictingID,
				})
				continue
			}
			return err
		}
		if err := s.appts.Create(ctx, a); err != nil {
			return err
		}
		res.CreatedIDs = append(res.CreatedIDs, a.ID)
	}
	return nil
}

func (s *Service) materializeBlockedSlots(ctx context.Context, p *RecurrencePattern, starts []time.Time, policy MaterializePolicy, res *SeriesResult) error {
	for _, start := range starts {
		b := &BlockedSlot{
			ClinicID:            p.ClinicID,
			ProviderID:          p.ProviderID,
			StartTime:           start,
			DurationMinutes:     p.DurationMinutes,
			Status:              BlockedActive,
			RecurrencePatternID: &p.ID,
			Reason:              p.Notes,
		}
		if err := s.assertNoBookings(ctx, b.ClinicID, b.ProviderID, b.Window()); err != nil {
			var conflict *ConflictError
			if policy == MaterializeBestEffort && errors.As(err, &conflict) {
				res.Skipped = append(res.Skipped, SkippedOccurrence{
					StartTime:     start,
					ConflictingID: conflict.ConflictingID,
				})
				continue
			}
			return err
		}
		if err := s.blocks.Create(ctx, b); err != nil {
			return err
		}
		res.CreatedIDs = append(res.CreatedIDs, b.ID)
	}
	return nil
}

// ListPatientAppointments returns the patient's appointments starting at or
// after from, paginated, with the total count.
func (s *Service) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, from time.Time, limit, offset int) ([]*Appointment, int, error) {
	if err := s.requireTenant(ctx); err != nil {
		return nil, 0, err
	}
	return s.appts.ListByPatient(ctx, patientID, from, limit, offset)
}

// -- Day views --

// DailyAgenda returns every appointment and active blocked slot intersecting
// the clinic day starting at the given date, ordered chronologically.
func (s *Service) DailyAgenda(ctx context.Context, clinicID uuid.UUID, date time.Time) (*Agenda, error) {
	if err := s.requireTenant(ctx); err != nil {
		return nil, err
	}
	dayStart := date
	dayEnd := date.AddDate(0, 0, 1)
	appts, err := s.appts.ListByClinicDay(ctx, clinicID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	blocks, err := s.blocks.ListByClinicDay(ctx, clinicID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	return &Agenda{Date: date, Appointments: appts, BlockedSlots: blocks}, nil
}

// AvailableSlots computes bookable openings of slotMinutes length for the
// clinic day. With providerIDs given, only those providers are considered;
// otherwise every provider with bookings or provider-specific blocks that day
// is reported. A closed clinic day yields no slots.
func (s *Service) AvailableSlots(ctx context.Context, clinicID uuid.UUID, date time.Time, slotMinutes int, providerIDs []uuid.UUID) ([]AvailableSlot, error) {
	if err := s.requireTenant(ctx); err != nil {
		return nil, err
	}
	if slotMinutes <= 0 {
		return nil, validationError("slot_minutes must be positive")
	}
	window, open, err := s.hours.DayWindow(ctx, clinicID, date)
	if err != nil {
		return nil, err
	}
	if !open {
		return nil, nil
	}
	appts, err := s.appts.ListByClinicDay(ctx, clinicID, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	blocks, err := s.blocks.ListByClinicDay(ctx, clinicID, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	if len(providerIDs) > 0 {
		var slots []AvailableSlot
		for _, pid := range providerIDs {
			slots = append(slots, ProviderSlots(pid, window, appts, blocks, slotMinutes)...)
		}
		return slots, nil
	}
	return ClinicSlots(nil, window, appts, blocks, slotMinutes), nil
}
