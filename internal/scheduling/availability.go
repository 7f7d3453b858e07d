package scheduling

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxWindowDays is the widest bounded listing window. Wider windows, which
// would overflow date arithmetic, are treated as unbounded.
const MaxWindowDays = 100 * 366

// AvailabilityStore answers slot queries and applies the only allowed slot
// mutation: available -> unavailable.
type AvailabilityStore struct {
	base
}

func NewAvailabilityStore(store Store, opts ...Option) *AvailabilityStore {
	return &AvailabilityStore{base: newBase(store, opts)}
}

// ListSlots returns the provider's slots from today on, grouped by date.
// windowDays bounds the query to dates before today+windowDays; 0, or anything
// above MaxWindowDays, means no bound.
func (a *AvailabilityStore) ListSlots(ctx context.Context, providerID uuid.UUID, windowDays int) (days []DaySlots, err error) {
	defer func() { a.observe("list_slots", err) }()

	if providerID == uuid.Nil {
		return nil, invalid("provider_id", "is required")
	}
	if windowDays < 0 {
		return nil, invalid("days", "must not be negative")
	}

	from := a.today()
	var until *time.Time
	if windowDays > 0 && windowDays <= MaxWindowDays {
		end := from.AddDate(0, 0, windowDays)
		until = &end
	}

	slots, err := a.store.GetSlots(ctx, providerID, from, until)
	if err != nil {
		return nil, asGatewayError("get slots", err)
	}
	return groupByDate(slots, from, until), nil
}

// MarkUnavailable flips the slot to unavailable. changed is true only for the
// caller whose update performed the flip; a repeated call, or the loser of a
// race, gets changed=false and no error.
func (a *AvailabilityStore) MarkUnavailable(ctx context.Context, providerID, slotID uuid.UUID) (changed bool, err error) {
	defer func() { a.observe("mark_unavailable", err) }()

	if providerID == uuid.Nil {
		return false, invalid("provider_id", "is required")
	}
	if slotID == uuid.Nil {
		return false, invalid("slot_id", "is required")
	}

	slot, err := a.store.GetSlot(ctx, slotID)
	if err != nil {
		return false, asGatewayError("get slot", err)
	}
	if slot.ProviderID != providerID {
		return false, &NotFoundError{Entity: "slot", ID: slotID}
	}

	changed, err = a.store.SetSlotAvailability(ctx, slotID, false)
	if err != nil {
		return false, asGatewayError("set slot availability", err)
	}

	if changed {
		a.logEvent(ctx, EventSlotMarkedUnavailable, "slot", slotID, map[string]any{
			"provider_id": providerID.String(),
		})
	} else {
		a.logger.Debug("slot already unavailable", zap.Stringer("slot_id", slotID))
	}
	return changed, nil
}

func (a *AvailabilityStore) create(ctx context.Context, providerID uuid.UUID, date time.Time, at ClockTime) (*Slot, error) {
	slot, err := a.store.CreateSlot(ctx, providerID, date, at)
	if err != nil {
		return nil, asGatewayError("create slot", err)
	}

	a.logEvent(ctx, EventSlotAdded, "slot", slot.ID, map[string]any{
		"provider_id": providerID.String(),
		"date":        FormatDate(date),
		"time":        at.String(),
	})
	return slot, nil
}

// groupByDate drops slots outside [from, until), orders them by date then
// time and groups them per date.
func groupByDate(slots []Slot, from time.Time, until *time.Time) []DaySlots {
	kept := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if s.Date.Before(from) || (until != nil && !s.Date.Before(*until)) {
			continue
		}
		kept = append(kept, s)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if !kept[i].Date.Equal(kept[j].Date) {
			return kept[i].Date.Before(kept[j].Date)
		}
		return kept[i].Time < kept[j].Time
	})

	days := []DaySlots{}
	for _, s := range kept {
		if n := len(days); n > 0 && days[n-1].Date.Equal(s.Date) {
			days[n-1].Times = append(days[n-1].Times, s)
			continue
		}
		days = append(days, DaySlots{Date: s.Date, Times: []Slot{s}})
	}
	return days
}
