package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// mapPgError translates backing-store guard failures into the domain error
// taxonomy. An exclusion-constraint violation (23P01) is the same conflict as
// a pre-check failure; the conflicting row id is not known at this point.
func mapPgError(err error, window Interval) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23P01" {
		return &ConflictError{Start: window.Start, End: window.End}
	}
	return err
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

const apptCols = `id, clinic_id, provider_id, patient_id, start_time, duration_minutes,
	status, recurrence_pattern_id, is_exception, cancellation_reason, notes,
	created_at, updated_at`

func scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.ClinicID, &a.ProviderID, &a.PatientID, &a.StartTime,
		&a.DurationMinutes, &a.Status, &a.RecurrencePatternID, &a.IsException,
		&a.CancellationReason, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO appointment (id, clinic_id, provider_id, patient_id, start_time,
			end_time, duration_minutes, status, recurrence_pattern_id, is_exception,
			cancellation_reason, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		a.ID, a.ClinicID, a.ProviderID, a.PatientID, a.StartTime,
		a.EndTime(), a.DurationMinutes, a.Status, a.RecurrencePatternID, a.IsException,
		a.CancellationReason, a.Notes)
	if err != nil {
		return mapPgError(err, a.Window())
	}
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppt(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("appointment", id)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE appointment SET start_time=$2, end_time=$3, duration_minutes=$4,
			status=$5, is_exception=$6, cancellation_reason=$7, notes=$8, updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.StartTime, a.EndTime(), a.DurationMinutes,
		a.Status, a.IsException, a.CancellationReason, a.Notes)
	if err != nil {
		return mapPgError(err, a.Window())
	}
	if tag.RowsAffected() == 0 {
		return notFound("appointment", a.ID)
	}
	return nil
}

func (r *appointmentRepoPG) ListOverlapping(ctx context.Context, providerID uuid.UUID, window Interval, excludeID uuid.UUID) ([]*Appointment, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+apptCols+` FROM appointment
		WHERE provider_id = $1
		  AND status NOT IN ('completed','cancelled','no_show')
		  AND start_time < $2 AND end_time > $3
		  AND id <> $4
		ORDER BY start_time ASC`,
		providerID, window.End, window.Start, excludeID)
	if err != nil {
		return nil, err
	}
	return collectAppts(rows)
}

func (r *appointmentRepoPG) ListByClinicDay(ctx context.Context, clinicID uuid.UUID, dayStart, dayEnd time.Time) ([]*Appointment, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+apptCols+` FROM appointment
		WHERE clinic_id = $1 AND start_time < $2 AND end_time > $3
		ORDER BY start_time ASC, provider_id ASC, id ASC`,
		clinicID, dayEnd, dayStart)
	if err != nil {
		return nil, err
	}
	return collectAppts(rows)
}

func (r *appointmentRepoPG) ListByProviderDay(ctx context.Context, providerID uuid.UUID, dayStart, dayEnd time.Time) ([]*Appointment, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+apptCols+` FROM appointment
		WHERE provider_id = $1
		  AND status NOT IN ('completed','cancelled','no_show')
		  AND start_time < $2 AND end_time > $3
		ORDER BY start_time ASC`,
		providerID, dayEnd, dayStart)
	if err != nil {
		return nil, err
	}
	return collectAppts(rows)
}

func (r *appointmentRepoPG) ListByPattern(ctx context.Context, patternID uuid.UUID) ([]*Appointment, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+apptCols+` FROM appointment
		WHERE recurrence_pattern_id = $1
		ORDER BY start_time ASC`,
		patternID)
	if err != nil {
		return nil, err
	}
	return collectAppts(rows)
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, from time.Time, limit, offset int) ([]*Appointment, int, error) {
	q := conn(ctx, r.pool)
	var total int
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM appointment
		WHERE patient_id = $1 AND start_time >= $2`,
		patientID, from).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `
		SELECT `+apptCols+` FROM appointment
		WHERE patient_id = $1 AND start_time >= $2
		ORDER BY start_time ASC
		LIMIT $3 OFFSET $4`,
		patientID, from, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectAppts(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func collectAppts(rows pgx.Rows) ([]*Appointment, error) {
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

// =========== BlockedSlot Repository ===========

type blockedSlotRepoPG struct{ pool *pgxpool.Pool }

func NewBlockedSlotRepoPG(pool *pgxpool.Pool) BlockedSlotRepository {
	return &blockedSlotRepoPG{pool: pool}
}

const blockCols = `id, clinic_id, provider_id, start_time, duration_minutes,
	status, recurrence_pattern_id, is_exception, reason, created_at, updated_at`

func scanBlock(row pgx.Row) (*BlockedSlot, error) {
	var b BlockedSlot
	err := row.Scan(&b.ID, &b.ClinicID, &b.ProviderID, &b.StartTime,
		&b.DurationMinutes, &b.Status, &b.RecurrencePatternID, &b.IsException,
		&b.Reason, &b.CreatedAt, &b.UpdatedAt)
	return &b, err
}

func (r *blockedSlotRepoPG) Create(ctx context.Context, b *BlockedSlot) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO blocked_slot (id, clinic_id, provider_id, start_time, end_time,
			duration_minutes, status, recurrence_pattern_id, is_exception, reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		b.ID, b.ClinicID, b.ProviderID, b.StartTime, b.EndTime(),
		b.DurationMinutes, b.Status, b.RecurrencePatternID, b.IsException, b.Reason)
	if err != nil {
		return mapPgError(err, b.Window())
	}
	return nil
}

func (r *blockedSlotRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*BlockedSlot, error) {
	b, err := scanBlock(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+blockCols+` FROM blocked_slot WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("blocked slot", id)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *blockedSlotRepoPG) Update(ctx context.Context, b *BlockedSlot) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE blocked_slot SET start_time=$2, end_time=$3, duration_minutes=$4,
			status=$5, is_exception=$6, reason=$7, updated_at=NOW()
		WHERE id = $1`,
		b.ID, b.StartTime, b.EndTime(), b.DurationMinutes,
		b.Status, b.IsException, b.Reason)
	if err != nil {
		return mapPgError(err, b.Window())
	}
	if tag.RowsAffected() == 0 {
		return notFound("blocked slot", b.ID)
	}
	return nil
}

func (r *blockedSlotRepoPG) ListBlocking(ctx context.Context, clinicID uuid.UUID, providerID uuid.UUID, window Interval) ([]*BlockedSlot, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+blockCols+` FROM blocked_slot
		WHERE clinic_id = $1
		  AND status = 'active'
		  AND (provider_id = $2 OR provider_id IS NULL)
		  AND start_time < $3 AND end_time > $4
		ORDER BY start_time ASC`,
		clinicID, providerID, window.End, window.Start)
	if err != nil {
		return nil, err
	}
	return collectBlocks(rows)
}

func (r *blockedSlotRepoPG) ListByClinicDay(ctx context.Context, clinicID uuid.UUID, dayStart, dayEnd time.Time) ([]*BlockedSlot, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+blockCols+` FROM blocked_slot
		WHERE clinic_id = $1 AND status = 'active'
		  AND start_time < $2 AND end_time > $3
		ORDER BY start_time ASC, provider_id ASC, id ASC`,
		clinicID, dayEnd, dayStart)
	if err != nil {
		return nil, err
	}
	return collectBlocks(rows)
}

func (r *blockedSlotRepoPG) ListByPattern(ctx context.Context, patternID uuid.UUID) ([]*BlockedSlot, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+blockCols+` FROM blocked_slot
		WHERE recurrence_pattern_id = $1
		ORDER BY start_time ASC`,
		patternID)
	if err != nil {
		return nil, err
	}
	return collectBlocks(rows)
}

func collectBlocks(rows pgx.Rows) ([]*BlockedSlot, error) {
	defer rows.Close()
	var items []*BlockedSlot
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

// =========== RecurrencePattern Repository ===========

type patternRepoPG struct{ pool *pgxpool.Pool }

func NewPatternRepoPG(pool *pgxpool.Pool) PatternRepository {
	return &patternRepoPG{pool: pool}
}

const patternCols = `id, owner_type, frequency, recur_interval, weekdays, start_date,
	occurrence_count, until_date, is_active, duration_minutes, clinic_id,
	provider_id, patient_id, notes, created_at, updated_at`

func scanPattern(row pgx.Row) (*RecurrencePattern, error) {
	var p RecurrencePattern
	err := row.Scan(&p.ID, &p.OwnerType, &p.Frequency, &p.Interval, &p.Weekdays,
		&p.StartDate, &p.OccurrenceCount, &p.UntilDate, &p.IsActive,
		&p.DurationMinutes, &p.ClinicID, &p.ProviderID, &p.PatientID, &p.Notes,
		&p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *patternRepoPG) Create(ctx context.Context, p *RecurrencePattern) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO recurrence_pattern (id, owner_type, frequency, recur_interval,
			weekdays, start_date, occurrence_count, until_date, is_active,
			duration_minutes, clinic_id, provider_id, patient_id, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		p.ID, p.OwnerType, p.Frequency, p.Interval,
		p.Weekdays, p.StartDate, p.OccurrenceCount, p.UntilDate, p.IsActive,
		p.DurationMinutes, p.ClinicID, p.ProviderID, p.PatientID, p.Notes)
	return err
}

func (r *patternRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*RecurrencePattern, error) {
	p, err := scanPattern(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patternCols+` FROM recurrence_pattern WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("recurrence pattern", id)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *patternRepoPG) Update(ctx context.Context, p *RecurrencePattern) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE recurrence_pattern SET occurrence_count=$2, until_date=$3,
			is_active=$4, notes=$5, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.OccurrenceCount, p.UntilDate, p.IsActive, p.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("recurrence pattern", p.ID)
	}
	return nil
}
