package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/telehealth-provider-scheduling/internal/scheduling"
	"github.com/hackgods/telehealth-provider-scheduling/internal/session"
)

const (
	defaultPageSize = 5
	maxBodyBytes    = 64 << 10
)

type handlers struct {
	calendar     SlotCalendar
	availability AvailabilityStore
	registry     AppointmentRegistry
	providers    ProviderDirectory
	sessions     Sessions
	logger       *zap.Logger
}

func (h *handlers) currentSession(w http.ResponseWriter, r *http.Request) {
	s, _ := session.FromContext(r.Context())
	writeJSON(w, http.StatusOK, toSessionResponse(s))
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	s, _ := session.FromContext(r.Context())
	if err := h.sessions.Revoke(r.Context(), s); err != nil {
		h.logger.Error("logout failed", zap.Error(err), zap.String("request_id", GetRequestID(r.Context())))
		writeError(w, http.StatusBadGateway, "gateway_error", "could not end session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.providers.GetProfile(r.Context(), providerID(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

func (h *handlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.providers.UpdateProfile(r.Context(), providerID(r), scheduling.ProfileUpdate{
		Phone:           req.Phone,
		About:           req.About,
		FieldExperience: req.FieldExperience,
		Qualification:   req.Qualification,
		Gender:          req.Gender,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

func (h *handlers) submitLicense(w http.ResponseWriter, r *http.Request) {
	var req SubmitLicenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.providers.SubmitLicense(r.Context(), providerID(r), scheduling.LicenseSubmission{
		LicenseNumber:    req.MedicalLicenseNumber,
		SpecializationID: req.SpecializationID,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toProfileResponse(p))
}

func (h *handlers) listSpecializations(w http.ResponseWriter, r *http.Request) {
	specs, err := h.providers.ListSpecializations(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	out := make([]SpecializationResponse, 0, len(specs))
	for _, s := range specs {
		out = append(out, SpecializationResponse{ID: s.ID, Category: s.Category})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) listSlots(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	result, err := h.availability.ListSlots(r.Context(), providerID(r), days)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDaySlotsResponse(result))
}

func (h *handlers) addSlot(w http.ResponseWriter, r *http.Request) {
	var req AddSlotRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	slot, err := h.calendar.AddSlot(r.Context(), providerID(r), req.Date, req.Time)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSlotResponse(*slot))
}

func (h *handlers) addWeeklySlot(w http.ResponseWriter, r *http.Request) {
	var req AddWeeklySlotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Day == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_failed", Field: "day", Details: "day is required"})
		return
	}

	// 0 = Monday ... 5 = Saturday; anything else is rejected by the calendar.
	slot, err := h.calendar.AddWeeklySlot(r.Context(), providerID(r), time.Weekday(*req.Day+1), req.Time)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSlotResponse(*slot))
}

func (h *handlers) markUnavailable(w http.ResponseWriter, r *http.Request) {
	slotID, ok := pathID(w, r, "invalid_slot_id")
	if !ok {
		return
	}

	changed, err := h.availability.MarkUnavailable(r.Context(), providerID(r), slotID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MarkUnavailableResponse{SlotID: slotID, IsAvailable: false, Changed: changed})
}

func (h *handlers) bookSlot(w http.ResponseWriter, r *http.Request) {
	slotID, ok := pathID(w, r, "invalid_slot_id")
	if !ok {
		return
	}
	var req BookSlotRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	appt, err := h.registry.BookSlot(r.Context(), providerID(r), slotID, scheduling.BookingRequest{
		PatientName: req.PatientName,
		Email:       req.Email,
		Video:       req.Video,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
}

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	pageSize, err := queryInt(r, "page_size", defaultPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	result, err := h.registry.ListUpcoming(r.Context(), providerID(r), page, pageSize)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	items := make([]AppointmentResponse, 0, len(result.Items))
	for _, a := range result.Items {
		items = append(items, toAppointmentResponse(a))
	}
	writeJSON(w, http.StatusOK, AppointmentPageResponse{
		Items:      items,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	})
}

func (h *handlers) summary(w http.ResponseWriter, r *http.Request) {
	s, err := h.registry.Summary(r.Context(), providerID(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SummaryResponse{Total: s.Total, Pending: s.Pending, Completed: s.Completed})
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid_appointment_id")
	if !ok {
		return
	}

	detail, err := h.registry.GetAppointment(r.Context(), providerID(r), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AppointmentDetailResponse{
		AppointmentResponse: toAppointmentResponse(detail.Appointment),
		Prescription:        toPrescriptionResponse(detail.Prescription),
	})
}

func (h *handlers) addPrescription(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid_appointment_id")
	if !ok {
		return
	}
	var req PrescriptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.registry.AddPrescription(r.Context(), providerID(r), id, req.Text)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPrescriptionResponse(p))
}

func (h *handlers) alertPatient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid_appointment_id")
	if !ok {
		return
	}

	if err := h.registry.AlertPatient(r.Context(), providerID(r), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (h *handlers) callRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid_appointment_id")
	if !ok {
		return
	}

	roomID, permitted, err := h.registry.CallRoom(r.Context(), providerID(r), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CallResponse{AppointmentID: id, Permitted: permitted, RoomID: roomID})
}

// writeDomainError maps scheduling error kinds onto HTTP statuses.
func (h *handlers) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *scheduling.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_failed", Field: verr.Field, Details: err.Error()})
	case errors.Is(err, scheduling.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, scheduling.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "gateway_timeout", "upstream call timed out")
	case errors.Is(err, scheduling.ErrGateway):
		h.logger.Error("gateway failure", zap.Error(err), zap.String("request_id", GetRequestID(r.Context())))
		writeError(w, http.StatusBadGateway, "gateway_error", "upstream call failed")
	default:
		h.logger.Error("unexpected error", zap.Error(err), zap.String("request_id", GetRequestID(r.Context())))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// providerID is only called behind SessionMiddleware.
func providerID(r *http.Request) uuid.UUID {
	s, _ := session.FromContext(r.Context())
	return s.ProviderID
}

func pathID(w http.ResponseWriter, r *http.Request, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

// decodeJSON reads exactly one JSON object with no unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON: "+err.Error())
		return false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "body must contain a single JSON object")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
