package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Tx is the part of the store that can run inside a transaction.
//
// Conditional setters report applied=false when the row exists but is not in
// the expected state, and a *NotFoundError when the row does not exist.
type Tx interface {
	GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
	SetSlotAvailability(ctx context.Context, id uuid.UUID, available bool) (bool, error)

	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	SetAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (bool, error)

	// CreatePrescription returns a *ConflictError if the appointment already has one.
	CreatePrescription(ctx context.Context, appointmentID uuid.UUID, text string) (*Prescription, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}

// Store is the persistence gateway used by the scheduling services.
type Store interface {
	Tx

	// CreateSlot returns a *ConflictError when the provider already has a slot
	// at that date and time.
	CreateSlot(ctx context.Context, providerID uuid.UUID, date time.Time, at ClockTime) (*Slot, error)

	// GetSlots returns the provider's slots dated on or after from and, when
	// until is set, strictly before until.
	GetSlots(ctx context.Context, providerID uuid.UUID, from time.Time, until *time.Time) ([]Slot, error)

	// ListAppointments returns one window of the provider's appointments dated
	// on or after from, ordered by date then time, plus the total count.
	ListAppointments(ctx context.Context, providerID uuid.UUID, from time.Time, limit, offset int) ([]Appointment, int, error)
	CountAppointments(ctx context.Context, providerID uuid.UUID) (*AppointmentSummary, error)

	GetPrescription(ctx context.Context, appointmentID uuid.UUID) (*Prescription, error)

	GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error)
	UpdateProvider(ctx context.Context, id uuid.UUID, update ProfileUpdate) (*Provider, error)

	// SubmitLicense stores the license as Submitted. It reports applied=false
	// when the provider's license is already Verified, and a *ConflictError
	// when another provider holds the number.
	SubmitLicense(ctx context.Context, providerID uuid.UUID, number string, specializationID uuid.UUID) (bool, error)

	ListSpecializations(ctx context.Context) ([]Specialization, error)
	GetSpecialization(ctx context.Context, id uuid.UUID) (*Specialization, error)

	// InTx runs fn in a single transaction; any error rolls back every write.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Notifier is the notification gateway used to alert a patient.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}
