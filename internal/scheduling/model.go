package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

// Success is terminal: no prescription or call action is allowed afterwards.
const (
	StatusPending AppointmentStatus = "Pending"
	StatusSuccess AppointmentStatus = "Success"
)

func (s AppointmentStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusSuccess:
		return true
	}
	return false
}

// Slot is one bookable time on one calendar date for one provider.
// Date is a civil date stored as UTC midnight.
type Slot struct {
	ID          uuid.UUID
	ProviderID  uuid.UUID
	Date        time.Time
	Time        ClockTime
	IsAvailable bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DaySlots is one date of a provider's calendar with its slots in time order.
type DaySlots struct {
	Date  time.Time
	Times []Slot
}

type Appointment struct {
	ID              uuid.UUID
	ProviderID      uuid.UUID
	SlotID          uuid.UUID
	PatientName     string
	Email           string
	AppointmentDate time.Time
	AppointmentTime ClockTime
	Status          AppointmentStatus
	RoomID          string // empty when no video call was provisioned
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CanPrescribe reports whether a prescription may still be recorded.
func (a *Appointment) CanPrescribe() bool {
	return a.Status != StatusSuccess
}

// CanStartCall reports whether the video call for this appointment may be started.
func (a *Appointment) CanStartCall() bool {
	return a.RoomID != "" && a.Status != StatusSuccess
}

type Prescription struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Text          string
	CreatedAt     time.Time
}

type AppointmentDetail struct {
	Appointment
	Prescription *Prescription
}

type AppointmentPage struct {
	Items      []Appointment
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

type AppointmentSummary struct {
	Total     int
	Pending   int
	Completed int
}

// BookingRequest carries the patient fields copied onto the appointment.
type BookingRequest struct {
	PatientName string `json:"patient_name" validate:"required,max=200"`
	Email       string `json:"email" validate:"required,email"`
	Video       bool   `json:"video"`
}

// Alert is what the notification gateway receives when a provider alerts a patient.
type Alert struct {
	AppointmentID   uuid.UUID
	ProviderID      uuid.UUID
	PatientName     string
	Email           string
	AppointmentDate time.Time
	AppointmentTime ClockTime
	RoomID          string
}

type EventLog struct {
	ID         int64
	EventType  string
	EntityType string
	EntityID   *uuid.UUID
	Payload    []byte
	CreatedAt  time.Time
}
