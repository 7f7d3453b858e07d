package scheduling

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/telehealth-provider-scheduling/internal/logging"
	"github.com/hackgods/telehealth-provider-scheduling/internal/metrics"
	redisclient "github.com/hackgods/telehealth-provider-scheduling/internal/redis"
)

const (
	EventSlotAdded             = "SLOT_ADDED"
	EventSlotMarkedUnavailable = "SLOT_MARKED_UNAVAILABLE"
	EventSlotBooked            = "SLOT_BOOKED"
	EventPrescriptionAdded     = "PRESCRIPTION_ADDED"
	EventPatientAlerted        = "PATIENT_ALERTED"
	EventProfileUpdated        = "PROFILE_UPDATED"
	EventLicenseSubmitted      = "LICENSE_SUBMITTED"
)

type Option func(*base)

func WithLogger(l *zap.Logger) Option {
	return func(b *base) { b.logger = logging.OrNop(l) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *base) { b.metrics = m }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// WithLocation sets the location in which "today" is evaluated.
func WithLocation(loc *time.Location) Option {
	return func(b *base) {
		if loc != nil {
			b.loc = loc
		}
	}
}

// base holds what every scheduling component shares.
type base struct {
	store   Store
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	loc     *time.Location
}

func newBase(store Store, opts []Option) base {
	b := base{
		store:  store,
		logger: zap.NewNop(),
		now:    time.Now,
		loc:    time.UTC,
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *base) today() time.Time {
	return CivilDate(b.now().In(b.loc))
}

func (b *base) observe(op string, err error) {
	outcome := Outcome(err)
	b.metrics.ObserveOperation(op, outcome)
	if outcome == "gateway" {
		b.logger.Error("scheduling operation failed", zap.String("op", op), zap.Error(err))
	}
}

func (b *base) logEvent(ctx context.Context, eventType, entityType string, id uuid.UUID, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	entityID := id
	ev := EventLog{
		EventType:  eventType,
		EntityType: entityType,
		EntityID:   &entityID,
		Payload:    data,
		CreatedAt:  b.now(),
	}

	if err := b.store.InsertEvent(ctx, ev); err != nil {
		b.logger.Warn("failed to insert event log",
			zap.String("event", eventType),
			zap.Stringer("entity_id", id),
			zap.Error(err),
		)
	}
}

// Service bundles the scheduling components over one store.
type Service struct {
	Calendar     *SlotCalendar
	Availability *AvailabilityStore
	Registry     *AppointmentRegistry
	Providers    *ProviderDirectory
}

func NewService(store Store, locker redisclient.Locker, notifier Notifier, opts ...Option) *Service {
	availability := NewAvailabilityStore(store, opts...)
	return &Service{
		Calendar:     NewSlotCalendar(availability, opts...),
		Availability: availability,
		Registry:     NewAppointmentRegistry(store, locker, notifier, opts...),
		Providers:    NewProviderDirectory(store, opts...),
	}
}
