package scheduling

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestProviderDayEndToEnd walks one slot from creation to a completed
// appointment through the public components.
func TestProviderDayEndToEnd(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	providerID := uuid.New()

	slot, err := env.svc.Calendar.AddSlot(ctx, providerID, "2025-04-30", "10:00 AM")
	require.NoError(t, err)

	days, err := env.svc.Availability.ListSlots(ctx, providerID, 7)
	require.NoError(t, err)
	require.Len(t, days, 1)
	require.Len(t, days[0].Times, 1)
	assert.Equal(t, slot.ID, days[0].Times[0].ID)
	assert.True(t, days[0].Times[0].IsAvailable)

	appt, err := env.svc.Registry.BookSlot(ctx, providerID, slot.ID, BookingRequest{
		PatientName: "Jane Roe",
		Email:       "jane@example.com",
		Video:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, appt.Status)

	changed, err := env.svc.Availability.MarkUnavailable(ctx, providerID, slot.ID)
	require.NoError(t, err)
	assert.False(t, changed, "booking already made the slot unavailable")

	days, err = env.svc.Availability.ListSlots(ctx, providerID, 7)
	require.NoError(t, err)
	assert.False(t, days[0].Times[0].IsAvailable)

	page, err := env.svc.Registry.ListUpcoming(ctx, providerID, 1, 5)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, appt.ID, page.Items[0].ID)

	roomID, permitted, err := env.svc.Registry.CallRoom(ctx, providerID, appt.ID)
	require.NoError(t, err)
	assert.True(t, permitted)
	assert.Equal(t, appt.RoomID, roomID)

	_, err = env.svc.Registry.AddPrescription(ctx, providerID, appt.ID, "Paracetamol 500mg twice daily")
	require.NoError(t, err)

	detail, err := env.svc.Registry.GetAppointment(ctx, providerID, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, detail.Status)
	assert.False(t, detail.CanPrescribe())
	require.NotNil(t, detail.Prescription)
	assert.Equal(t, "Paracetamol 500mg twice daily", detail.Prescription.Text)

	_, err = env.svc.Registry.AddPrescription(ctx, providerID, appt.ID, "Second opinion")
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)

	_, permitted, err = env.svc.Registry.CallRoom(ctx, providerID, appt.ID)
	require.NoError(t, err)
	assert.False(t, permitted)

	summary, err := env.svc.Registry.Summary(ctx, providerID)
	require.NoError(t, err)
	assert.Equal(t, AppointmentSummary{Total: 1, Pending: 0, Completed: 1}, *summary)

	assert.Equal(t, []string{EventSlotAdded, EventSlotBooked, EventPrescriptionAdded}, env.store.eventTypes())
}
