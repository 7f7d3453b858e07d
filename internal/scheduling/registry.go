package scheduling

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	redisclient "github.com/hackgods/telehealth-provider-scheduling/internal/redis"
)

const (
	MaxPageSize           = 100
	MaxPrescriptionLength = 1000
)

// AppointmentRegistry owns the appointment lifecycle and the actions a
// provider can trigger on an appointment.
type AppointmentRegistry struct {
	base
	locker    redisclient.Locker
	notifier  Notifier
	newRoomID func() string
}

func NewAppointmentRegistry(store Store, locker redisclient.Locker, notifier Notifier, opts ...Option) *AppointmentRegistry {
	return &AppointmentRegistry{
		base:      newBase(store, opts),
		locker:    locker,
		notifier:  notifier,
		newRoomID: uuid.NewString,
	}
}

// ListUpcoming returns one page of the provider's appointments from today on,
// ordered by date then time. A page past the end is empty, not an error.
func (r *AppointmentRegistry) ListUpcoming(ctx context.Context, providerID uuid.UUID, page, pageSize int) (result *AppointmentPage, err error) {
	defer func() { r.observe("list_upcoming", err) }()

	if providerID == uuid.Nil {
		return nil, invalid("provider_id", "is required")
	}
	if page < 1 {
		return nil, invalid("page", "must be at least 1")
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return nil, invalid("page_size", "must be between 1 and 100")
	}

	items, total, err := r.store.ListAppointments(ctx, providerID, r.today(), pageSize, pageOffset(page, pageSize))
	if err != nil {
		return nil, asGatewayError("list appointments", err)
	}

	totalPages := (total + pageSize - 1) / pageSize
	if page > totalPages || items == nil {
		items = []Appointment{}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].AppointmentDate.Equal(items[j].AppointmentDate) {
			return items[i].AppointmentDate.Before(items[j].AppointmentDate)
		}
		return items[i].AppointmentTime < items[j].AppointmentTime
	})

	return &AppointmentPage{
		Items:      items,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: totalPages,
	}, nil
}

// GetAppointment returns the appointment with its prescription, if any.
func (r *AppointmentRegistry) GetAppointment(ctx context.Context, providerID, id uuid.UUID) (detail *AppointmentDetail, err error) {
	defer func() { r.observe("get_appointment", err) }()

	appt, err := r.owned(ctx, providerID, id)
	if err != nil {
		return nil, err
	}

	detail = &AppointmentDetail{Appointment: *appt}
	presc, err := r.store.GetPrescription(ctx, id)
	switch {
	case err == nil:
		detail.Prescription = presc
	case !errors.Is(err, ErrNotFound):
		return nil, asGatewayError("get prescription", err)
	}
	return detail, nil
}

// AddPrescription records the prescription and completes the appointment in
// one transaction. Completed appointments are rejected with a *ConflictError.
func (r *AppointmentRegistry) AddPrescription(ctx context.Context, providerID, id uuid.UUID, text string) (created *Prescription, err error) {
	defer func() { r.observe("add_prescription", err) }()

	text = strings.TrimSpace(text)
	switch n := utf8.RuneCountInString(text); {
	case n == 0:
		return nil, invalid("text", "is required")
	case n > MaxPrescriptionLength:
		return nil, invalid("text", "must be at most 1000 characters")
	}
	if err := validateIDs(providerID, id, "appointment_id"); err != nil {
		return nil, err
	}

	err = r.store.InTx(ctx, func(tx Tx) error {
		appt, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if appt.ProviderID != providerID {
			return &NotFoundError{Entity: "appointment", ID: id}
		}
		if !appt.CanPrescribe() {
			return &ConflictError{Entity: "appointment", ID: id, Reason: "appointment is already completed"}
		}

		p, err := tx.CreatePrescription(ctx, id, text)
		if err != nil {
			return err
		}

		applied, err := tx.SetAppointmentStatus(ctx, id, StatusPending, StatusSuccess)
		if err != nil {
			return err
		}
		if !applied {
			return &ConflictError{Entity: "appointment", ID: id, Reason: "appointment is already completed"}
		}

		created = p
		return nil
	})
	if err != nil {
		return nil, asGatewayError("add prescription", err)
	}

	r.logEvent(ctx, EventPrescriptionAdded, "appointment", id, map[string]any{
		"prescription_id": created.ID.String(),
	})
	return created, nil
}

// AlertPatient asks the notification gateway to alert the appointment's
// patient. It never changes appointment state and is safe to repeat.
func (r *AppointmentRegistry) AlertPatient(ctx context.Context, providerID, id uuid.UUID) (err error) {
	defer func() { r.observe("alert_patient", err) }()

	appt, err := r.owned(ctx, providerID, id)
	if err != nil {
		return err
	}

	alert := Alert{
		AppointmentID:   appt.ID,
		ProviderID:      appt.ProviderID,
		PatientName:     appt.PatientName,
		Email:           appt.Email,
		AppointmentDate: appt.AppointmentDate,
		AppointmentTime: appt.AppointmentTime,
		RoomID:          appt.RoomID,
	}
	if err := r.notifier.Notify(ctx, alert); err != nil {
		return &GatewayError{Op: "notify patient", Err: err}
	}

	r.logEvent(ctx, EventPatientAlerted, "appointment", id, map[string]any{
		"email": appt.Email,
	})
	return nil
}

// CallRoom returns the video room of the appointment when a call may be started.
func (r *AppointmentRegistry) CallRoom(ctx context.Context, providerID, id uuid.UUID) (roomID string, permitted bool, err error) {
	defer func() { r.observe("call_room", err) }()

	appt, err := r.owned(ctx, providerID, id)
	if err != nil {
		return "", false, err
	}
	if !appt.CanStartCall() {
		return "", false, nil
	}
	return appt.RoomID, true, nil
}

// BookSlot turns an available slot into a pending appointment. The slot flip
// and the appointment insert share one transaction, run under the slot lock.
func (r *AppointmentRegistry) BookSlot(ctx context.Context, providerID, slotID uuid.UUID, req BookingRequest) (booked *Appointment, err error) {
	defer func() { r.observe("book_slot", err) }()

	if err := validateIDs(providerID, slotID, "slot_id"); err != nil {
		return nil, err
	}
	req.PatientName = strings.TrimSpace(req.PatientName)
	req.Email = strings.TrimSpace(req.Email)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	name, email := req.PatientName, req.Email

	today := r.today()
	err = r.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		return r.store.InTx(lockCtx, func(tx Tx) error {
			slot, err := tx.GetSlot(lockCtx, slotID)
			if err != nil {
				return err
			}
			if slot.ProviderID != providerID {
				return &NotFoundError{Entity: "slot", ID: slotID}
			}
			if slot.Date.Before(today) {
				return &ConflictError{Entity: "slot", ID: slotID, Reason: "slot is in the past"}
			}

			changed, err := tx.SetSlotAvailability(lockCtx, slotID, false)
			if err != nil {
				return err
			}
			if !changed {
				return &ConflictError{Entity: "slot", ID: slotID, Reason: "slot is already booked"}
			}

			appt := Appointment{
				ProviderID:      providerID,
				SlotID:          slotID,
				PatientName:     name,
				Email:           email,
				AppointmentDate: slot.Date,
				AppointmentTime: slot.Time,
				Status:          StatusPending,
			}
			if req.Video {
				appt.RoomID = r.newRoomID()
			}

			booked, err = tx.CreateAppointment(lockCtx, appt)
			return err
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, &ConflictError{Entity: "slot", ID: slotID, Reason: "slot is currently being booked"}
		}
		return nil, asGatewayError("book slot", err)
	}

	r.logEvent(ctx, EventSlotBooked, "slot", slotID, map[string]any{
		"appointment_id": booked.ID.String(),
	})
	r.logger.Info("slot booked",
		zap.Stringer("slot_id", slotID),
		zap.Stringer("appointment_id", booked.ID),
	)
	return booked, nil
}

// Summary counts the provider's appointments by status.
func (r *AppointmentRegistry) Summary(ctx context.Context, providerID uuid.UUID) (summary *AppointmentSummary, err error) {
	defer func() { r.observe("summary", err) }()

	if providerID == uuid.Nil {
		return nil, invalid("provider_id", "is required")
	}
	summary, err = r.store.CountAppointments(ctx, providerID)
	if err != nil {
		return nil, asGatewayError("count appointments", err)
	}
	return summary, nil
}

// owned loads an appointment and hides appointments of other providers.
func (r *AppointmentRegistry) owned(ctx context.Context, providerID, id uuid.UUID) (*Appointment, error) {
	if err := validateIDs(providerID, id, "appointment_id"); err != nil {
		return nil, err
	}
	appt, err := r.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, asGatewayError("get appointment", err)
	}
	if appt.ProviderID != providerID {
		return nil, &NotFoundError{Entity: "appointment", ID: id}
	}
	return appt, nil
}

// pageOffset saturates at math.MaxInt so a huge page number reads as a page
// past the end instead of wrapping negative.
func pageOffset(page, pageSize int) int {
	if page-1 > math.MaxInt/pageSize {
		return math.MaxInt
	}
	return (page - 1) * pageSize
}

func validateIDs(providerID, id uuid.UUID, field string) error {
	if providerID == uuid.Nil {
		return invalid("provider_id", "is required")
	}
	if id == uuid.Nil {
		return invalid(field, "is required")
	}
	return nil
}
