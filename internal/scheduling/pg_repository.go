package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txBeginner interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	pool txBeginner
	q    querier
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return newPgRepository(pool)
}

func newPgRepository(pool txBeginner) *PgRepository {
	return &PgRepository{pool: pool, q: pool}
}

var _ Store = (*PgRepository)(nil)

// Helpers

const slotColumns = `id, provider_id, slot_date, slot_minutes, is_available, created_at, updated_at`

const appointmentColumns = `id, provider_id, slot_id, patient_name, email, appointment_date,
	appointment_minutes, status, room_id, created_at, updated_at`

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	var minutes int

	err := row.Scan(
		&s.ID,
		&s.ProviderID,
		&s.Date,
		&minutes,
		&s.IsAvailable,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Time = ClockTime(minutes)
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var minutes int
	var roomID *string

	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.SlotID,
		&a.PatientName,
		&a.Email,
		&a.AppointmentDate,
		&minutes,
		&a.Status,
		&roomID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.AppointmentTime = ClockTime(minutes)
	if roomID != nil {
		a.RoomID = *roomID
	}
	return &a, nil
}

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	if err := row.Scan(&p.ID, &p.AppointmentID, &p.Text, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Slots

func (r *PgRepository) CreateSlot(ctx context.Context, providerID uuid.UUID, date time.Time, at ClockTime) (*Slot, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO slots (id, provider_id, slot_date, slot_minutes, is_available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, true, now(), now())
		ON CONFLICT (provider_id, slot_date, slot_minutes) DO NOTHING
		RETURNING `+slotColumns,
		uuid.New(), providerID, date, int(at))

	slot, err := scanSlot(row)
	switch {
	case err == nil:
		return slot, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, &ConflictError{
			Entity: "slot",
			Reason: fmt.Sprintf("a slot already exists on %s at %s", FormatDate(date), at),
		}
	case pgErrorCode(err) == pgForeignKeyViolation:
		return nil, &NotFoundError{Entity: "provider", ID: providerID}
	default:
		return nil, fmt.Errorf("insert slot: %w", err)
	}
}

func (r *PgRepository) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
	`, id)

	slot, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "slot", ID: id}
		}
		return nil, fmt.Errorf("select slot: %w", err)
	}
	return slot, nil
}

func (r *PgRepository) GetSlots(ctx context.Context, providerID uuid.UUID, from time.Time, until *time.Time) ([]Slot, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE provider_id = $1
		  AND slot_date >= $2
		  AND ($3::date IS NULL OR slot_date < $3::date)
		ORDER BY slot_date, slot_minutes
	`, providerID, from, until)
	if err != nil {
		return nil, fmt.Errorf("select slots: %w", err)
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// SetSlotAvailability is a compare-and-set on is_available: only the update
// that actually changes the value is applied.
func (r *PgRepository) SetSlotAvailability(ctx context.Context, id uuid.UUID, available bool) (bool, error) {
	var updated uuid.UUID
	err := r.q.QueryRow(ctx, `
		UPDATE slots
		SET is_available = $2,
		    updated_at = now()
		WHERE id = $1
		  AND is_available <> $2
		RETURNING id
	`, id, available).Scan(&updated)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("update slot availability: %w", err)
	}

	return false, r.ensureExists(ctx, "slot", `SELECT EXISTS (SELECT 1 FROM slots WHERE id = $1)`, id)
}

// Appointments

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "appointment", ID: id}
		}
		return nil, fmt.Errorf("select appointment: %w", err)
	}
	return appt, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.q.QueryRow(ctx, `
		INSERT INTO appointments (id, provider_id, slot_id, patient_name, email, appointment_date,
			appointment_minutes, status, room_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.ProviderID, a.SlotID, a.PatientName, a.Email, a.AppointmentDate,
		int(a.AppointmentTime), a.Status, nullableString(a.RoomID))

	appt, err := scanAppointment(row)
	if err != nil {
		if pgErrorCode(err) == pgUniqueViolation {
			return nil, &ConflictError{Entity: "slot", ID: a.SlotID, Reason: "slot already has an appointment"}
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return appt, nil
}

func (r *PgRepository) SetAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (bool, error) {
	var updated uuid.UUID
	err := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING id
	`, id, to, from).Scan(&updated)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("update appointment status: %w", err)
	}

	return false, r.ensureExists(ctx, "appointment", `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id)
}

func (r *PgRepository) ListAppointments(ctx context.Context, providerID uuid.UUID, from time.Time, limit, offset int) ([]Appointment, int, error) {
	var total int
	err := r.q.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE provider_id = $1
		  AND appointment_date >= $2
	`, providerID, from).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}
	if offset >= total {
		return []Appointment{}, total, nil
	}

	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		  AND appointment_date >= $2
		ORDER BY appointment_date, appointment_minutes, id
		LIMIT $3 OFFSET $4
	`, providerID, from, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("select appointments: %w", err)
	}
	defer rows.Close()

	result := make([]Appointment, 0, limit)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan appointment: %w", err)
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return result, total, nil
}

func (r *PgRepository) CountAppointments(ctx context.Context, providerID uuid.UUID) (*AppointmentSummary, error) {
	var s AppointmentSummary
	err := r.q.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE status = 'Pending'),
		       count(*) FILTER (WHERE status = 'Success')
		FROM appointments
		WHERE provider_id = $1
	`, providerID).Scan(&s.Total, &s.Pending, &s.Completed)
	if err != nil {
		return nil, fmt.Errorf("count appointments by status: %w", err)
	}
	return &s, nil
}

// Prescriptions

func (r *PgRepository) CreatePrescription(ctx context.Context, appointmentID uuid.UUID, text string) (*Prescription, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO prescriptions (id, appointment_id, text, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING id, appointment_id, text, created_at
	`, uuid.New(), appointmentID, text)

	p, err := scanPrescription(row)
	if err != nil {
		switch pgErrorCode(err) {
		case pgUniqueViolation:
			return nil, &ConflictError{Entity: "appointment", ID: appointmentID, Reason: "prescription already recorded"}
		case pgForeignKeyViolation:
			return nil, &NotFoundError{Entity: "appointment", ID: appointmentID}
		}
		return nil, fmt.Errorf("insert prescription: %w", err)
	}
	return p, nil
}

func (r *PgRepository) GetPrescription(ctx context.Context, appointmentID uuid.UUID) (*Prescription, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, appointment_id, text, created_at
		FROM prescriptions
		WHERE appointment_id = $1
	`, appointmentID)

	p, err := scanPrescription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "prescription", ID: appointmentID}
		}
		return nil, fmt.Errorf("select prescription: %w", err)
	}
	return p, nil
}

// Providers

const providerColumns = `p.id, p.name, p.email, p.phone, p.about, p.field_experience, p.qualification,
	p.gender, p.license_number, p.license_status, s.id, s.category, p.created_at, p.updated_at`

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	var license *string
	var specID *uuid.UUID
	var category *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&p.About,
		&p.FieldExperience,
		&p.Qualification,
		&p.Gender,
		&license,
		&p.LicenseStatus,
		&specID,
		&category,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if license != nil {
		p.LicenseNumber = *license
	}
	if specID != nil && category != nil {
		p.Specialization = &Specialization{ID: *specID, Category: *category}
	}
	return &p, nil
}

func (r *PgRepository) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+providerColumns+`
		FROM providers p
		LEFT JOIN specializations s ON s.id = p.specialization_id
		WHERE p.id = $1
	`, id)

	p, err := scanProvider(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "provider", ID: id}
		}
		return nil, fmt.Errorf("select provider: %w", err)
	}
	return p, nil
}

// UpdateProvider leaves columns whose update field is nil untouched.
func (r *PgRepository) UpdateProvider(ctx context.Context, id uuid.UUID, u ProfileUpdate) (*Provider, error) {
	row := r.q.QueryRow(ctx, `
		WITH p AS (
			UPDATE providers
			SET phone = COALESCE($2, phone),
			    about = COALESCE($3, about),
			    field_experience = COALESCE($4, field_experience),
			    qualification = COALESCE($5, qualification),
			    gender = COALESCE($6, gender),
			    updated_at = now()
			WHERE id = $1
			RETURNING *
		)
		SELECT `+providerColumns+`
		FROM p
		LEFT JOIN specializations s ON s.id = p.specialization_id
	`, id, u.Phone, u.About, u.FieldExperience, u.Qualification, u.Gender)

	p, err := scanProvider(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "provider", ID: id}
		}
		return nil, fmt.Errorf("update provider: %w", err)
	}
	return p, nil
}

func (r *PgRepository) SubmitLicense(ctx context.Context, providerID uuid.UUID, number string, specializationID uuid.UUID) (bool, error) {
	var updated uuid.UUID
	err := r.q.QueryRow(ctx, `
		UPDATE providers
		SET license_number = $2,
		    specialization_id = $3,
		    license_status = $4,
		    updated_at = now()
		WHERE id = $1
		  AND license_status <> $5
		RETURNING id
	`, providerID, number, specializationID, LicenseSubmitted, LicenseVerified).Scan(&updated)
	switch {
	case err == nil:
		return true, nil
	case pgErrorCode(err) == pgUniqueViolation:
		return false, &ConflictError{Entity: "provider", ID: providerID, Reason: "license number is registered to another provider"}
	case pgErrorCode(err) == pgForeignKeyViolation:
		return false, &NotFoundError{Entity: "specialization", ID: specializationID}
	case !errors.Is(err, pgx.ErrNoRows):
		return false, fmt.Errorf("update provider license: %w", err)
	}

	return false, r.ensureExists(ctx, "provider", `SELECT EXISTS (SELECT 1 FROM providers WHERE id = $1)`, providerID)
}

func (r *PgRepository) ListSpecializations(ctx context.Context) ([]Specialization, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, category
		FROM specializations
		ORDER BY category
	`)
	if err != nil {
		return nil, fmt.Errorf("select specializations: %w", err)
	}
	defer rows.Close()

	var result []Specialization
	for rows.Next() {
		var s Specialization
		if err := rows.Scan(&s.ID, &s.Category); err != nil {
			return nil, fmt.Errorf("scan specialization: %w", err)
		}
		result = append(result, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) GetSpecialization(ctx context.Context, id uuid.UUID) (*Specialization, error) {
	var s Specialization
	err := r.q.QueryRow(ctx, `
		SELECT id, category
		FROM specializations
		WHERE id = $1
	`, id).Scan(&s.ID, &s.Category)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "specialization", ID: id}
		}
		return nil, fmt.Errorf("select specialization: %w", err)
	}
	return &s, nil
}

// Events

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO event_logs (event_type, entity_type, entity_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.EntityType, ev.EntityID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

// Transactions

func (r *PgRepository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&PgRepository{pool: r.pool, q: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *PgRepository) ensureExists(ctx context.Context, entity, query string, id uuid.UUID) error {
	var exists bool
	if err := r.q.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return fmt.Errorf("check %s exists: %w", entity, err)
	}
	if !exists {
		return &NotFoundError{Entity: entity, ID: id}
	}
	return nil
}
