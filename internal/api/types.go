package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telehealth-provider-scheduling/internal/scheduling"
	"github.com/hackgods/telehealth-provider-scheduling/internal/session"
)

type AddSlotRequest struct {
	Date string `json:"date"` // YYYY-MM-DD
	Time string `json:"time"` // hh:mm AM|PM
}

// AddWeeklySlotRequest picks a weekday by index, 0 = Monday through 5 = Saturday.
type AddWeeklySlotRequest struct {
	Day  *int   `json:"day"`
	Time string `json:"time"`
}

type BookSlotRequest struct {
	PatientName string `json:"patient_name"`
	Email       string `json:"email"`
	Video       bool   `json:"video"`
}

type PrescriptionRequest struct {
	Text string `json:"text"`
}

// UpdateProfileRequest fields are optional; omitted or blank fields keep
// their stored value.
type UpdateProfileRequest struct {
	Phone           *string `json:"phone"`
	About           *string `json:"about"`
	FieldExperience *int    `json:"field_experience"`
	Qualification   *string `json:"qualification"`
	Gender          *string `json:"gender"`
}

type SubmitLicenseRequest struct {
	MedicalLicenseNumber string    `json:"medical_license_number"`
	SpecializationID     uuid.UUID `json:"specialization_id"`
}

type SpecializationResponse struct {
	ID       uuid.UUID `json:"id"`
	Category string    `json:"category"`
}

type ProfileResponse struct {
	ID              uuid.UUID               `json:"id"`
	Name            string                  `json:"name"`
	Email           string                  `json:"email"`
	Phone           string                  `json:"phone"`
	About           string                  `json:"about"`
	FieldExperience int                     `json:"field_experience"`
	Qualification   string                  `json:"qualification"`
	Gender          string                  `json:"gender"`
	LicenseNumber   string                  `json:"medical_license_number,omitempty"`
	LicenseStatus   string                  `json:"license_status"`
	Specialization  *SpecializationResponse `json:"specialization,omitempty"`
}

type SlotResponse struct {
	ID          uuid.UUID `json:"id"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	IsAvailable bool      `json:"is_available"`
}

type DaySlotsResponse struct {
	Date  string         `json:"date"`
	Times []SlotResponse `json:"times"`
}

type MarkUnavailableResponse struct {
	SlotID      uuid.UUID `json:"slot_id"`
	IsAvailable bool      `json:"is_available"`
	Changed     bool      `json:"changed"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	SlotID          uuid.UUID `json:"slot_id"`
	PatientName     string    `json:"patient_name"`
	Email           string    `json:"email"`
	AppointmentDate string    `json:"appointment_date"`
	AppointmentTime string    `json:"appointment_time"`
	Status          string    `json:"status"`
	RoomID          string    `json:"room_id,omitempty"`
	CanPrescribe    bool      `json:"can_prescribe"`
	CanStartCall    bool      `json:"can_start_call"`
}

type PrescriptionResponse struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Text          string    `json:"text"`
	CreatedAt     time.Time `json:"created_at"`
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	Prescription *PrescriptionResponse `json:"prescription,omitempty"`
}

type AppointmentPageResponse struct {
	Items      []AppointmentResponse `json:"items"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalItems int                   `json:"total_items"`
	TotalPages int                   `json:"total_pages"`
}

type SummaryResponse struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
}

type CallResponse struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	Permitted     bool      `json:"permitted"`
	RoomID        string    `json:"room_id,omitempty"`
}

type SessionResponse struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}

func toSlotResponse(s scheduling.Slot) SlotResponse {
	return SlotResponse{
		ID:          s.ID,
		Date:        scheduling.FormatDate(s.Date),
		Time:        s.Time.String(),
		IsAvailable: s.IsAvailable,
	}
}

func toDaySlotsResponse(days []scheduling.DaySlots) []DaySlotsResponse {
	out := make([]DaySlotsResponse, 0, len(days))
	for _, d := range days {
		times := make([]SlotResponse, 0, len(d.Times))
		for _, s := range d.Times {
			times = append(times, toSlotResponse(s))
		}
		out = append(out, DaySlotsResponse{Date: scheduling.FormatDate(d.Date), Times: times})
	}
	return out
}

func toAppointmentResponse(a scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		SlotID:          a.SlotID,
		PatientName:     a.PatientName,
		Email:           a.Email,
		AppointmentDate: scheduling.FormatDate(a.AppointmentDate),
		AppointmentTime: a.AppointmentTime.String(),
		Status:          string(a.Status),
		RoomID:          a.RoomID,
		CanPrescribe:    a.CanPrescribe(),
		CanStartCall:    a.CanStartCall(),
	}
}

func toPrescriptionResponse(p *scheduling.Prescription) *PrescriptionResponse {
	if p == nil {
		return nil
	}
	return &PrescriptionResponse{
		ID:            p.ID,
		AppointmentID: p.AppointmentID,
		Text:          p.Text,
		CreatedAt:     p.CreatedAt,
	}
}

func toProfileResponse(p *scheduling.Provider) ProfileResponse {
	resp := ProfileResponse{
		ID:              p.ID,
		Name:            p.Name,
		Email:           p.Email,
		Phone:           p.Phone,
		About:           p.About,
		FieldExperience: p.FieldExperience,
		Qualification:   p.Qualification,
		Gender:          p.Gender,
		LicenseNumber:   p.LicenseNumber,
		LicenseStatus:   string(p.LicenseStatus),
	}
	if p.Specialization != nil {
		resp.Specialization = &SpecializationResponse{ID: p.Specialization.ID, Category: p.Specialization.Category}
	}
	return resp
}

func toSessionResponse(s session.Session) SessionResponse {
	return SessionResponse{
		ProviderID: s.ProviderID,
		Name:       s.Name,
		Email:      s.Email,
		ExpiresAt:  s.ExpiresAt,
	}
}
