package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SlotCalendar validates new slot submissions and hands them to the
// availability store for persistence.
type SlotCalendar struct {
	base
	slots *AvailabilityStore
}

func NewSlotCalendar(slots *AvailabilityStore, opts ...Option) *SlotCalendar {
	return &SlotCalendar{
		base:  newBase(slots.store, opts),
		slots: slots,
	}
}

// AddSlot creates an available slot for the provider at the given ISO date
// and "hh:mm AM|PM" time. Dates before today are rejected.
func (c *SlotCalendar) AddSlot(ctx context.Context, providerID uuid.UUID, date, at string) (slot *Slot, err error) {
	defer func() { c.observe("add_slot", err) }()

	if providerID == uuid.Nil {
		return nil, invalid("provider_id", "is required")
	}
	day, err := ParseDate(date)
	if err != nil {
		return nil, invalid("date", "must be an ISO date (YYYY-MM-DD)")
	}
	if day.Before(c.today()) {
		return nil, invalid("date", "must not be in the past")
	}
	clock, err := ParseClockTime(at)
	if err != nil {
		return nil, invalid("time", "must match hh:mm AM|PM")
	}

	return c.slots.create(ctx, providerID, day, clock)
}

// AddWeeklySlot adds a slot on the next Monday..Saturday occurrence of day,
// counting today.
func (c *SlotCalendar) AddWeeklySlot(ctx context.Context, providerID uuid.UUID, day time.Weekday, at string) (slot *Slot, err error) {
	defer func() { c.observe("add_weekly_slot", err) }()

	if providerID == uuid.Nil {
		return nil, invalid("provider_id", "is required")
	}
	if day < time.Monday || day > time.Saturday {
		return nil, invalid("day", "must be Monday through Saturday")
	}
	clock, err := ParseClockTime(at)
	if err != nil {
		return nil, invalid("time", "must match hh:mm AM|PM")
	}

	return c.slots.create(ctx, providerID, nextWeekday(c.today(), day), clock)
}
