package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddSlotThenListSlots(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	providerID := uuid.New()

	slot, err := env.svc.Calendar.AddSlot(ctx, providerID, "2025-05-01", "10:00 AM")
	require.NoError(t, err)
	assert.True(t, slot.IsAvailable)
	assert.Equal(t, MustClockTime("10:00 AM"), slot.Time)

	days, err := env.svc.Availability.ListSlots(ctx, providerID, 7)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, mustDate("2025-05-01"), days[0].Date)
	require.Len(t, days[0].Times, 1)
	assert.Equal(t, slot.ID, days[0].Times[0].ID)
	assert.True(t, days[0].Times[0].IsAvailable)

	assert.Equal(t, []string{EventSlotAdded}, env.store.eventTypes())
}

func TestAddSlotAcceptsToday(t *testing.T) {
	env := newTestEnv()
	_, err := env.svc.Calendar.AddSlot(context.Background(), uuid.New(), "2025-04-28", "08:00 AM")
	require.NoError(t, err)
}

func TestAddSlotValidation(t *testing.T) {
	tests := []struct {
		name       string
		providerID uuid.UUID
		date       string
		at         string
		field      string
	}{
		{name: "past date", providerID: uuid.New(), date: "2025-04-27", at: "10:00 AM", field: "date"},
		{name: "bad date", providerID: uuid.New(), date: "2025-13-01", at: "10:00 AM", field: "date"},
		{name: "bad time", providerID: uuid.New(), date: "2025-05-01", at: "10:00", field: "time"},
		{name: "missing provider", providerID: uuid.Nil, date: "2025-05-01", at: "10:00 AM", field: "provider_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			_, err := env.svc.Calendar.AddSlot(context.Background(), tt.providerID, tt.date, tt.at)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Zero(t, env.store.slotCount())
		})
	}
}

func TestAddSlotDuplicateConflicts(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	providerID := uuid.New()

	_, err := env.svc.Calendar.AddSlot(ctx, providerID, "2025-05-01", "10:00 AM")
	require.NoError(t, err)

	_, err = env.svc.Calendar.AddSlot(ctx, providerID, "2025-05-01", "10:00 AM")
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 1, env.store.slotCount())

	// another provider may use the same time
	_, err = env.svc.Calendar.AddSlot(ctx, uuid.New(), "2025-05-01", "10:00 AM")
	require.NoError(t, err)
}

func TestAddSlotStoreFailureIsGateway(t *testing.T) {
	env := newTestEnv()
	env.store.fail("CreateSlot", errors.New("connection reset"))

	_, err := env.svc.Calendar.AddSlot(context.Background(), uuid.New(), "2025-05-01", "10:00 AM")
	assert.ErrorIs(t, err, ErrGateway)
}

func TestAddWeeklySlot(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	providerID := uuid.New()

	monday, err := env.svc.Calendar.AddWeeklySlot(ctx, providerID, time.Monday, "09:00 AM")
	require.NoError(t, err)
	assert.Equal(t, mustDate("2025-04-28"), monday.Date)

	saturday, err := env.svc.Calendar.AddWeeklySlot(ctx, providerID, time.Saturday, "09:00 AM")
	require.NoError(t, err)
	assert.Equal(t, mustDate("2025-05-03"), saturday.Date)

	_, err = env.svc.Calendar.AddWeeklySlot(ctx, providerID, time.Sunday, "09:00 AM")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.Calendar.AddWeeklySlot(ctx, providerID, time.Tuesday, "9 AM")
	assert.ErrorIs(t, err, ErrValidation)
}
