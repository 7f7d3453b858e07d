package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hackgods/telehealth-provider-scheduling/internal/logging"
	"github.com/hackgods/telehealth-provider-scheduling/internal/metrics"
	"github.com/hackgods/telehealth-provider-scheduling/internal/scheduling"
	"github.com/hackgods/telehealth-provider-scheduling/internal/session"
)

type SlotCalendar interface {
	AddSlot(ctx context.Context, providerID uuid.UUID, date, at string) (*scheduling.Slot, error)
	AddWeeklySlot(ctx context.Context, providerID uuid.UUID, day time.Weekday, at string) (*scheduling.Slot, error)
}

type AvailabilityStore interface {
	ListSlots(ctx context.Context, providerID uuid.UUID, windowDays int) ([]scheduling.DaySlots, error)
	MarkUnavailable(ctx context.Context, providerID, slotID uuid.UUID) (bool, error)
}

type AppointmentRegistry interface {
	ListUpcoming(ctx context.Context, providerID uuid.UUID, page, pageSize int) (*scheduling.AppointmentPage, error)
	GetAppointment(ctx context.Context, providerID, id uuid.UUID) (*scheduling.AppointmentDetail, error)
	AddPrescription(ctx context.Context, providerID, id uuid.UUID, text string) (*scheduling.Prescription, error)
	AlertPatient(ctx context.Context, providerID, id uuid.UUID) error
	CallRoom(ctx context.Context, providerID, id uuid.UUID) (string, bool, error)
	BookSlot(ctx context.Context, providerID, slotID uuid.UUID, req scheduling.BookingRequest) (*scheduling.Appointment, error)
	Summary(ctx context.Context, providerID uuid.UUID) (*scheduling.AppointmentSummary, error)
}

type ProviderDirectory interface {
	GetProfile(ctx context.Context, providerID uuid.UUID) (*scheduling.Provider, error)
	UpdateProfile(ctx context.Context, providerID uuid.UUID, update scheduling.ProfileUpdate) (*scheduling.Provider, error)
	SubmitLicense(ctx context.Context, providerID uuid.UUID, sub scheduling.LicenseSubmission) (*scheduling.Provider, error)
	ListSpecializations(ctx context.Context) ([]scheduling.Specialization, error)
}

type Sessions interface {
	Parse(ctx context.Context, token string) (session.Session, error)
	Revoke(ctx context.Context, s session.Session) error
}

type RouterConfig struct {
	Calendar     SlotCalendar
	Availability AvailabilityStore
	Registry     AppointmentRegistry
	Providers    ProviderDirectory
	Sessions     Sessions

	Postgres Pinger
	Redis    Pinger

	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	// RequestTimeout bounds store and notifier calls made by one request.
	RequestTimeout time.Duration

	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := logging.OrNop(cfg.Logger)
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(MetricsMiddleware(cfg.Metrics))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	h := &handlers{
		calendar:     cfg.Calendar,
		availability: cfg.Availability,
		registry:     cfg.Registry,
		providers:    cfg.Providers,
		sessions:     cfg.Sessions,
		logger:       logger,
	}

	r.Group(func(r chi.Router) {
		r.Use(SessionMiddleware(cfg.Sessions, logger))
		r.Use(TimeoutMiddleware(cfg.RequestTimeout))

		r.Get("/session", h.currentSession)
		r.Delete("/session", h.logout)

		r.Get("/profile", h.getProfile)
		r.Patch("/profile", h.updateProfile)
		r.Patch("/profile/license", h.submitLicense)
		r.Get("/specializations", h.listSpecializations)

		r.Get("/slots", h.listSlots)
		r.Post("/slots", h.addSlot)
		r.Post("/slots/weekly", h.addWeeklySlot)
		r.Post("/slots/{id}/unavailable", h.markUnavailable)
		r.Post("/slots/{id}/book", h.bookSlot)

		r.Get("/appointments", h.listAppointments)
		r.Get("/appointments/summary", h.summary)
		r.Get("/appointments/{id}", h.getAppointment)
		r.Post("/appointments/{id}/prescription", h.addPrescription)
		r.Post("/appointments/{id}/alert", h.alertPatient)
		r.Get("/appointments/{id}/call", h.callRoom)
	})

	return r
}
