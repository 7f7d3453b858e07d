package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/hackgods/telehealth-provider-scheduling/internal/redis"
)

// Monday 2025-04-28, 09:00 UTC.
var testNow = time.Date(2025, 4, 28, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func mustDate(s string) time.Time {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// fakeState is an in-memory Tx. It is not safe for concurrent use on its own;
// fakeStore serializes access.
type fakeState struct {
	slots         map[uuid.UUID]Slot
	appointments  map[uuid.UUID]Appointment
	prescriptions map[uuid.UUID]Prescription
	providers     map[uuid.UUID]Provider
	specs         map[uuid.UUID]Specialization
	events        []EventLog

	// failOn makes the named method return the error.
	failOn map[string]error
}

func newFakeState() *fakeState {
	return &fakeState{
		slots:         map[uuid.UUID]Slot{},
		appointments:  map[uuid.UUID]Appointment{},
		prescriptions: map[uuid.UUID]Prescription{},
		providers:     map[uuid.UUID]Provider{},
		specs:         map[uuid.UUID]Specialization{},
		failOn:        map[string]error{},
	}
}

func (s *fakeState) clone() *fakeState {
	c := newFakeState()
	for k, v := range s.slots {
		c.slots[k] = v
	}
	for k, v := range s.appointments {
		c.appointments[k] = v
	}
	for k, v := range s.prescriptions {
		c.prescriptions[k] = v
	}
	for k, v := range s.providers {
		c.providers[k] = v
	}
	for k, v := range s.specs {
		c.specs[k] = v
	}
	c.events = append([]EventLog(nil), s.events...)
	for k, v := range s.failOn {
		c.failOn[k] = v
	}
	return c
}

func (s *fakeState) GetSlot(_ context.Context, id uuid.UUID) (*Slot, error) {
	if err := s.failOn["GetSlot"]; err != nil {
		return nil, err
	}
	slot, ok := s.slots[id]
	if !ok {
		return nil, &NotFoundError{Entity: "slot", ID: id}
	}
	return &slot, nil
}

func (s *fakeState) SetSlotAvailability(_ context.Context, id uuid.UUID, available bool) (bool, error) {
	if err := s.failOn["SetSlotAvailability"]; err != nil {
		return false, err
	}
	slot, ok := s.slots[id]
	if !ok {
		return false, &NotFoundError{Entity: "slot", ID: id}
	}
	if slot.IsAvailable == available {
		return false, nil
	}
	slot.IsAvailable = available
	s.slots[id] = slot
	return true, nil
}

func (s *fakeState) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	if err := s.failOn["GetAppointment"]; err != nil {
		return nil, err
	}
	a, ok := s.appointments[id]
	if !ok {
		return nil, &NotFoundError{Entity: "appointment", ID: id}
	}
	return &a, nil
}

func (s *fakeState) CreateAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	if err := s.failOn["CreateAppointment"]; err != nil {
		return nil, err
	}
	for _, existing := range s.appointments {
		if existing.SlotID == a.SlotID {
			return nil, &ConflictError{Entity: "slot", ID: a.SlotID, Reason: "slot already has an appointment"}
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt, a.UpdatedAt = testNow, testNow
	s.appointments[a.ID] = a
	return &a, nil
}

func (s *fakeState) SetAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (bool, error) {
	if err := s.failOn["SetAppointmentStatus"]; err != nil {
		return false, err
	}
	a, ok := s.appointments[id]
	if !ok {
		return false, &NotFoundError{Entity: "appointment", ID: id}
	}
	if a.Status != from {
		return false, nil
	}
	a.Status = to
	s.appointments[id] = a
	return true, nil
}

func (s *fakeState) CreatePrescription(_ context.Context, appointmentID uuid.UUID, text string) (*Prescription, error) {
	if err := s.failOn["CreatePrescription"]; err != nil {
		return nil, err
	}
	if _, ok := s.appointments[appointmentID]; !ok {
		return nil, &NotFoundError{Entity: "appointment", ID: appointmentID}
	}
	if _, ok := s.prescriptions[appointmentID]; ok {
		return nil, &ConflictError{Entity: "appointment", ID: appointmentID, Reason: "prescription already recorded"}
	}
	p := Prescription{ID: uuid.New(), AppointmentID: appointmentID, Text: text, CreatedAt: testNow}
	s.prescriptions[appointmentID] = p
	return &p, nil
}

func (s *fakeState) InsertEvent(_ context.Context, ev EventLog) error {
	if err := s.failOn["InsertEvent"]; err != nil {
		return err
	}
	ev.ID = int64(len(s.events) + 1)
	s.events = append(s.events, ev)
	return nil
}

type fakeStore struct {
	mu    sync.Mutex
	state *fakeState

	getSlotsCalls int
	listOffsets   []int
}

var _ Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{state: newFakeState()}
}

func (f *fakeStore) fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.failOn[method] = err
}

func (f *fakeStore) seedSlot(providerID uuid.UUID, date string, at string, available bool) Slot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := Slot{
		ID:          uuid.New(),
		ProviderID:  providerID,
		Date:        mustDate(date),
		Time:        MustClockTime(at),
		IsAvailable: available,
		CreatedAt:   testNow,
		UpdatedAt:   testNow,
	}
	f.state.slots[s.ID] = s
	return s
}

func (f *fakeStore) seedAppointment(providerID uuid.UUID, date, at string, status AppointmentStatus, roomID string) Appointment {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := Appointment{
		ID:              uuid.New(),
		ProviderID:      providerID,
		SlotID:          uuid.New(),
		PatientName:     "Jane Roe",
		Email:           "jane@example.com",
		AppointmentDate: mustDate(date),
		AppointmentTime: MustClockTime(at),
		Status:          status,
		RoomID:          roomID,
		CreatedAt:       testNow,
		UpdatedAt:       testNow,
	}
	f.state.appointments[a.ID] = a
	return a
}

func (f *fakeStore) slot(id uuid.UUID) Slot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.slots[id]
}

func (f *fakeStore) appointment(id uuid.UUID) Appointment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.appointments[id]
}

func (f *fakeStore) prescription(appointmentID uuid.UUID) (Prescription, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.state.prescriptions[appointmentID]
	return p, ok
}

func (f *fakeStore) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.state.events))
	for _, ev := range f.state.events {
		out = append(out, ev.EventType)
	}
	return out
}

func (f *fakeStore) slotCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.state.slots)
}

func (f *fakeStore) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.GetSlot(ctx, id)
}

func (f *fakeStore) SetSlotAvailability(ctx context.Context, id uuid.UUID, available bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.SetSlotAvailability(ctx, id, available)
}

func (f *fakeStore) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.GetAppointment(ctx, id)
}

func (f *fakeStore) CreateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.CreateAppointment(ctx, a)
}

func (f *fakeStore) SetAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.SetAppointmentStatus(ctx, id, from, to)
}

func (f *fakeStore) CreatePrescription(ctx context.Context, appointmentID uuid.UUID, text string) (*Prescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.CreatePrescription(ctx, appointmentID, text)
}

func (f *fakeStore) InsertEvent(ctx context.Context, ev EventLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.InsertEvent(ctx, ev)
}

func (f *fakeStore) CreateSlot(_ context.Context, providerID uuid.UUID, date time.Time, at ClockTime) (*Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.state.failOn["CreateSlot"]; err != nil {
		return nil, err
	}
	for _, s := range f.state.slots {
		if s.ProviderID == providerID && s.Date.Equal(date) && s.Time == at {
			return nil, &ConflictError{Entity: "slot", Reason: "a slot already exists at that date and time"}
		}
	}
	s := Slot{
		ID:          uuid.New(),
		ProviderID:  providerID,
		Date:        date,
		Time:        at,
		IsAvailable: true,
		CreatedAt:   testNow,
		UpdatedAt:   testNow,
	}
	f.state.slots[s.ID] = s
	return &s, nil
}

// GetSlots returns matches in map order; callers must not rely on ordering.
func (f *fakeStore) GetSlots(_ context.Context, providerID uuid.UUID, from time.Time, until *time.Time) ([]Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getSlotsCalls++
	if err := f.state.failOn["GetSlots"]; err != nil {
		return nil, err
	}
	var out []Slot
	for _, s := range f.state.slots {
		if s.ProviderID != providerID || s.Date.Before(from) {
			continue
		}
		if until != nil && !s.Date.Before(*until) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStore) ListAppointments(_ context.Context, providerID uuid.UUID, from time.Time, limit, offset int) ([]Appointment, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listOffsets = append(f.listOffsets, offset)
	if err := f.state.failOn["ListAppointments"]; err != nil {
		return nil, 0, err
	}
	var all []Appointment
	for _, a := range f.state.appointments {
		if a.ProviderID == providerID && !a.AppointmentDate.Before(from) {
			all = append(all, a)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].AppointmentDate.Equal(all[j].AppointmentDate) {
			return all[i].AppointmentDate.Before(all[j].AppointmentDate)
		}
		if all[i].AppointmentTime != all[j].AppointmentTime {
			return all[i].AppointmentTime < all[j].AppointmentTime
		}
		return all[i].ID.String() < all[j].ID.String()
	})
	if offset >= len(all) {
		return []Appointment{}, len(all), nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (f *fakeStore) CountAppointments(_ context.Context, providerID uuid.UUID) (*AppointmentSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.state.failOn["CountAppointments"]; err != nil {
		return nil, err
	}
	var s AppointmentSummary
	for _, a := range f.state.appointments {
		if a.ProviderID != providerID {
			continue
		}
		s.Total++
		switch a.Status {
		case StatusPending:
			s.Pending++
		case StatusSuccess:
			s.Completed++
		}
	}
	return &s, nil
}

func (f *fakeStore) GetPrescription(_ context.Context, appointmentID uuid.UUID) (*Prescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.state.prescriptions[appointmentID]
	if !ok {
		return nil, &NotFoundError{Entity: "prescription", ID: appointmentID}
	}
	return &p, nil
}

func (f *fakeStore) seedProvider(name, email string) Provider {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := Provider{
		ID:            uuid.New(),
		Name:          name,
		Email:         email,
		LicenseStatus: LicenseUnverified,
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}
	f.state.providers[p.ID] = p
	return p
}

func (f *fakeStore) seedSpecialization(category string) Specialization {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := Specialization{ID: uuid.New(), Category: category}
	f.state.specs[s.ID] = s
	return s
}

func (f *fakeStore) setLicenseStatus(providerID uuid.UUID, status LicenseStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.state.providers[providerID]
	p.LicenseStatus = status
	f.state.providers[providerID] = p
}

func (f *fakeStore) GetProvider(_ context.Context, id uuid.UUID) (*Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.state.failOn["GetProvider"]; err != nil {
		return nil, err
	}
	p, ok := f.state.providers[id]
	if !ok {
		return nil, &NotFoundError{Entity: "provider", ID: id}
	}
	return &p, nil
}

func (f *fakeStore) UpdateProvider(_ context.Context, id uuid.UUID, u ProfileUpdate) (*Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.state.failOn["UpdateProvider"]; err != nil {
		return nil, err
	}
	p, ok := f.state.providers[id]
	if !ok {
		return nil, &NotFoundError{Entity: "provider", ID: id}
	}
	if u.Phone != nil {
		p.Phone = *u.Phone
	}
	if u.About != nil {
		p.About = *u.About
	}
	if u.FieldExperience != nil {
		p.FieldExperience = *u.FieldExperience
	}
	if u.Qualification != nil {
		p.Qualification = *u.Qualification
	}
	if u.Gender != nil {
		p.Gender = *u.Gender
	}
	f.state.providers[id] = p
	return &p, nil
}

func (f *fakeStore) SubmitLicense(_ context.Context, providerID uuid.UUID, number string, specializationID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.state.failOn["SubmitLicense"]; err != nil {
		return false, err
	}
	p, ok := f.state.providers[providerID]
	if !ok {
		return false, &NotFoundError{Entity: "provider", ID: providerID}
	}
	for _, other := range f.state.providers {
		if other.ID != providerID && other.LicenseNumber == number {
			return false, &ConflictError{Entity: "provider", ID: providerID, Reason: "license number is registered to another provider"}
		}
	}
	if p.LicenseStatus == LicenseVerified {
		return false, nil
	}
	spec := f.state.specs[specializationID]
	p.LicenseNumber = number
	p.LicenseStatus = LicenseSubmitted
	p.Specialization = &spec
	f.state.providers[providerID] = p
	return true, nil
}

func (f *fakeStore) ListSpecializations(_ context.Context) ([]Specialization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.state.failOn["ListSpecializations"]; err != nil {
		return nil, err
	}
	var out []Specialization
	for _, s := range f.state.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (f *fakeStore) GetSpecialization(_ context.Context, id uuid.UUID) (*Specialization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.state.failOn["GetSpecialization"]; err != nil {
		return nil, err
	}
	s, ok := f.state.specs[id]
	if !ok {
		return nil, &NotFoundError{Entity: "specialization", ID: id}
	}
	return &s, nil
}

// InTx holds the store lock for the whole transaction and restores the
// snapshot when fn fails.
func (f *fakeStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot := f.state.clone()
	if err := fn(f.state); err != nil {
		f.state = snapshot
		return err
	}
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (n *fakeNotifier) Notify(_ context.Context, alert Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.alerts = append(n.alerts, alert)
	return nil
}

func (n *fakeNotifier) sent() []Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Alert(nil), n.alerts...)
}

// fakeLocker mimics the Redis SetNX lock in memory.
type fakeLocker struct {
	mu   sync.Mutex
	held map[uuid.UUID]bool
}

var _ redisclient.Locker = (*fakeLocker)(nil)

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[uuid.UUID]bool{}}
}

func (l *fakeLocker) hold(slotID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[slotID] = true
}

func (l *fakeLocker) WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if l.held[slotID] {
		l.mu.Unlock()
		return redisclient.ErrLockNotAcquired
	}
	l.held[slotID] = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, slotID)
		l.mu.Unlock()
	}()
	return fn(ctx)
}

type testEnv struct {
	store    *fakeStore
	locker   *fakeLocker
	notifier *fakeNotifier
	svc      *Service
}

func newTestEnv() *testEnv {
	env := &testEnv{
		store:    newFakeStore(),
		locker:   newFakeLocker(),
		notifier: &fakeNotifier{},
	}
	env.svc = NewService(env.store, env.locker, env.notifier, WithClock(fixedClock))
	return env
}
