package booking

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hakeemcare/clinic-booking/internal/schedule"
	"github.com/hakeemcare/clinic-booking/internal/user"
)

// memoryLedger mimics the Postgres ledger, including the atomicity of the
// partial unique index: Create is a single locked check-and-insert.
type memoryLedger struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*Appointment
	live  map[string]uuid.UUID
	names map[uuid.UUID]string
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		byID:  make(map[uuid.UUID]*Appointment),
		live:  make(map[string]uuid.UUID),
		names: make(map[uuid.UUID]string),
	}
}

func slotKey(practitionerID uuid.UUID, date time.Time, t schedule.TimeOfDay) string {
	return fmt.Sprintf("%s|%s|%s", practitionerID, date.Format(time.DateOnly), t)
}

func (m *memoryLedger) Create(_ context.Context, appt *Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := slotKey(appt.PractitionerID, appt.Date, appt.Time)
	if _, held := m.live[key]; held {
		return nil, ErrSlotTaken
	}

	stored := *appt
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	m.byID[stored.ID] = &stored
	m.live[key] = stored.ID

	copied := stored
	return &copied, nil
}

func (m *memoryLedger) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	appt, ok := m.byID[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	copied := *appt
	return &copied, nil
}

func (m *memoryLedger) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	appt, ok := m.byID[id]
	if !ok || appt.Status != from {
		return nil, ErrAppointmentNotFound
	}

	appt.Status = to
	appt.UpdatedAt = time.Now()
	if to == StatusCancelled {
		delete(m.live, slotKey(appt.PractitionerID, appt.Date, appt.Time))
	}

	copied := *appt
	return &copied, nil
}

func (m *memoryLedger) BookedTimes(_ context.Context, practitionerID uuid.UUID, date time.Time) ([]schedule.TimeOfDay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var times []schedule.TimeOfDay
	for _, appt := range m.byID {
		if appt.PractitionerID == practitionerID &&
			appt.Date.Equal(date) &&
			appt.Status != StatusCancelled {
			times = append(times, appt.Time)
		}
	}
	return times, nil
}

func (m *memoryLedger) ListByPatient(_ context.Context, patientID uuid.UUID) ([]AppointmentDetail, error) {
	return m.list(func(a *Appointment) bool { return a.PatientID == patientID }), nil
}

func (m *memoryLedger) ListByPractitioner(_ context.Context, practitionerID uuid.UUID) ([]AppointmentDetail, error) {
	return m.list(func(a *Appointment) bool { return a.PractitionerID == practitionerID }), nil
}

func (m *memoryLedger) list(match func(*Appointment) bool) []AppointmentDetail {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []AppointmentDetail
	for _, appt := range m.byID {
		if match(appt) {
			result = append(result, AppointmentDetail{
				Appointment:      *appt,
				PatientName:      m.names[appt.PatientID],
				PractitionerName: m.names[appt.PractitionerID],
			})
		}
	}
	return result
}

type memoryUsers struct {
	users map[uuid.UUID]*user.User
}

func (m *memoryUsers) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return u, nil
}

type memorySchedules struct {
	schedules map[uuid.UUID]*schedule.Schedule
}

func (m *memorySchedules) GetByPractitioner(_ context.Context, practitionerID uuid.UUID) (*schedule.Schedule, error) {
	s, ok := m.schedules[practitionerID]
	if !ok {
		return nil, schedule.ErrScheduleNotFound
	}
	return s, nil
}

func (m *memorySchedules) Replace(_ context.Context, sched *schedule.Schedule) error {
	m.schedules[sched.PractitionerID] = sched
	return nil
}

// versionedCache mimics the Redis cache's per-practitioner versioning: a
// list Set under a version that a later Invalidate retired is unreadable.
type versionedCache struct {
	mu          sync.Mutex
	versions    map[uuid.UUID]int64
	entries     map[string][]schedule.TimeOfDay
	invalidated int
}

func newVersionedCache() *versionedCache {
	return &versionedCache{
		versions: make(map[uuid.UUID]int64),
		entries:  make(map[string][]schedule.TimeOfDay),
	}
}

func cacheKey(practitionerID uuid.UUID, date time.Time, version int64) string {
	return fmt.Sprintf("%s|%s|%d", practitionerID, date.Format(time.DateOnly), version)
}

func (c *versionedCache) Get(_ context.Context, practitionerID uuid.UUID, date time.Time) ([]schedule.TimeOfDay, int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	version := c.versions[practitionerID]
	times, ok := c.entries[cacheKey(practitionerID, date, version)]
	return times, version, ok, nil
}

func (c *versionedCache) Set(_ context.Context, practitionerID uuid.UUID, date time.Time, version int64, times []schedule.TimeOfDay) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheKey(practitionerID, date, version)] = times
	return nil
}

func (c *versionedCache) Invalidate(_ context.Context, practitionerID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.versions[practitionerID]++
	c.invalidated++
	return nil
}

type fixture struct {
	svc            *Service
	ledger         *memoryLedger
	users          *memoryUsers
	schedules      *memorySchedules
	practitionerID uuid.UUID
	patientID      uuid.UUID
	otherPatientID uuid.UUID
	cache          *versionedCache
}

func newFixture(t *testing.T, rules []schedule.DayRule) *fixture {
	t.Helper()

	practitionerID := uuid.New()
	patientID := uuid.New()
	otherPatientID := uuid.New()

	users := &memoryUsers{users: map[uuid.UUID]*user.User{
		practitionerID: {ID: practitionerID, Name: "Dr. Anwar", Role: user.RolePractitioner},
		patientID:      {ID: patientID, Name: "Sana", Role: user.RolePatient},
		otherPatientID: {ID: otherPatientID, Name: "Bilal", Role: user.RolePatient},
	}}

	schedules := &memorySchedules{schedules: make(map[uuid.UUID]*schedule.Schedule)}
	if rules != nil {
		schedules.schedules[practitionerID] = &schedule.Schedule{
			PractitionerID: practitionerID,
			Rules:          rules,
		}
	}

	ledger := newMemoryLedger()
	ledger.names[practitionerID] = "Dr. Anwar"
	ledger.names[patientID] = "Sana"
	ledger.names[otherPatientID] = "Bilal"

	cache := newVersionedCache()

	return &fixture{
		svc:            NewService(ledger, users, schedules, cache, zap.NewNop()),
		ledger:         ledger,
		users:          users,
		schedules:      schedules,
		practitionerID: practitionerID,
		patientID:      patientID,
		otherPatientID: otherPatientID,
		cache:          cache,
	}
}

func mondayRule(t *testing.T) []schedule.DayRule {
	t.Helper()
	start, err := schedule.ParseTimeOfDay("09:00")
	require.NoError(t, err)
	end, err := schedule.ParseTimeOfDay("11:00")
	require.NoError(t, err)
	return []schedule.DayRule{{Weekday: time.Monday, Start: start, End: end, SlotMinutes: 30}}
}

func slotTimes(slots []Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Time.String())
	}
	return out
}

func mustParse(t *testing.T, s string) schedule.TimeOfDay {
	t.Helper()
	parsed, err := schedule.ParseTimeOfDay(s)
	require.NoError(t, err)
	return parsed
}

var monday = time.Date(2026, time.September, 7, 0, 0, 0, 0, time.UTC)

func TestBookCancelRebookScenario(t *testing.T) {
	require.Equal(t, time.Monday, monday.Weekday())

	f := newFixture(t, mondayRule(t))
	ctx := context.Background()

	slots, err := f.svc.AvailableSlots(ctx, f.practitionerID, monday)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30"}, slotTimes(slots))

	appt, err := f.svc.CreateBooking(ctx, f.practitionerID, f.patientID, monday, mustParse(t, "10:00"))
	require.NoError(t, err)
	assert.Equal(t, StatusBooked, appt.Status)

	slots, err = f.svc.AvailableSlots(ctx, f.practitionerID, monday)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:30", "10:30"}, slotTimes(slots))

	// Same slot again, even for a different patient, is rejected.
	_, err = f.svc.CreateBooking(ctx, f.practitionerID, f.otherPatientID, monday, mustParse(t, "10:00"))
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	// Cancelling reopens the slot.
	_, err = f.svc.SetStatus(ctx, appt.ID, f.patientID, StatusCancelled)
	require.NoError(t, err)

	slots, err = f.svc.AvailableSlots(ctx, f.practitionerID, monday)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30"}, slotTimes(slots))

	_, err = f.svc.CreateBooking(ctx, f.practitionerID, f.otherPatientID, monday, mustParse(t, "10:00"))
	assert.NoError(t, err)
}

func TestConcurrentBookingHasExactlyOneWinner(t *testing.T) {
	f := newFixture(t, mondayRule(t))
	slot := mustParse(t, "09:00")

	const attempts = 50

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := f.svc.CreateBooking(context.Background(), f.practitionerID, uuid.New(), monday, slot)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case err == ErrSlotUnavailable:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, conflicts)
}

func TestAvailableSlotsNoScheduleMeansEmpty(t *testing.T) {
	f := newFixture(t, nil)

	slots, err := f.svc.AvailableSlots(context.Background(), f.practitionerID, monday)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestAvailableSlotsNoRuleForWeekdayMeansEmpty(t *testing.T) {
	f := newFixture(t, mondayRule(t))

	tuesday := monday.AddDate(0, 0, 1)
	slots, err := f.svc.AvailableSlots(context.Background(), f.practitionerID, tuesday)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestAvailableSlotsUnknownPractitioner(t *testing.T) {
	f := newFixture(t, mondayRule(t))

	_, err := f.svc.AvailableSlots(context.Background(), uuid.New(), monday)
	assert.ErrorIs(t, err, ErrPractitionerNotFound)

	// A patient id is not a practitioner either.
	_, err = f.svc.AvailableSlots(context.Background(), f.patientID, monday)
	assert.ErrorIs(t, err, ErrPractitionerNotFound)
}

func TestCreateBookingUnknownPractitioner(t *testing.T) {
	f := newFixture(t, mondayRule(t))

	_, err := f.svc.CreateBooking(context.Background(), uuid.New(), f.patientID, monday, mustParse(t, "09:00"))
	assert.ErrorIs(t, err, ErrPractitionerNotFound)
}

func TestSetStatusAuthorization(t *testing.T) {
	f := newFixture(t, mondayRule(t))
	ctx := context.Background()

	appt, err := f.svc.CreateBooking(ctx, f.practitionerID, f.patientID, monday, mustParse(t, "09:00"))
	require.NoError(t, err)

	// Patients cannot mark appointments completed.
	_, err = f.svc.SetStatus(ctx, appt.ID, f.patientID, StatusCompleted)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	// Strangers cannot cancel.
	_, err = f.svc.SetStatus(ctx, appt.ID, f.otherPatientID, StatusCancelled)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	// The owning practitioner completes.
	updated, err := f.svc.SetStatus(ctx, appt.ID, f.practitionerID, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, updated.Status)
}

func TestPatientCancelsOwnBooking(t *testing.T) {
	f := newFixture(t, mondayRule(t))
	ctx := context.Background()

	appt, err := f.svc.CreateBooking(ctx, f.practitionerID, f.patientID, monday, mustParse(t, "09:30"))
	require.NoError(t, err)

	updated, err := f.svc.SetStatus(ctx, appt.ID, f.patientID, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, updated.Status)
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	f := newFixture(t, mondayRule(t))
	ctx := context.Background()

	completed, err := f.svc.CreateBooking(ctx, f.practitionerID, f.patientID, monday, mustParse(t, "09:00"))
	require.NoError(t, err)
	_, err = f.svc.SetStatus(ctx, completed.ID, f.practitionerID, StatusCompleted)
	require.NoError(t, err)

	for _, target := range []Status{StatusCompleted, StatusCancelled} {
		_, err = f.svc.SetStatus(ctx, completed.ID, f.practitionerID, target)
		assert.ErrorIs(t, err, ErrInvalidTransition, "completed -> %s", target)
	}

	cancelled, err := f.svc.CreateBooking(ctx, f.practitionerID, f.patientID, monday, mustParse(t, "09:30"))
	require.NoError(t, err)
	_, err = f.svc.SetStatus(ctx, cancelled.ID, f.patientID, StatusCancelled)
	require.NoError(t, err)

	for _, target := range []Status{StatusCompleted, StatusCancelled} {
		_, err = f.svc.SetStatus(ctx, cancelled.ID, f.practitionerID, target)
		assert.ErrorIs(t, err, ErrInvalidTransition, "cancelled -> %s", target)
	}
}

func TestSetStatusRejectsUnsupportedTarget(t *testing.T) {
	f := newFixture(t, mondayRule(t))
	ctx := context.Background()

	appt, err := f.svc.CreateBooking(ctx, f.practitionerID, f.patientID, monday, mustParse(t, "09:00"))
	require.NoError(t, err)

	_, err = f.svc.SetStatus(ctx, appt.ID, f.practitionerID, StatusBooked)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSetStatusNotFound(t *testing.T) {
	f := newFixture(t, mondayRule(t))

	_, err := f.svc.SetStatus(context.Background(), uuid.New(), f.practitionerID, StatusCancelled)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestListForRequesterIsRoleScoped(t *testing.T) {
	f := newFixture(t, mondayRule(t))
	ctx := context.Background()

	_, err := f.svc.CreateBooking(ctx, f.practitionerID, f.patientID, monday, mustParse(t, "09:00"))
	require.NoError(t, err)
	_, err = f.svc.CreateBooking(ctx, f.practitionerID, f.otherPatientID, monday, mustParse(t, "09:30"))
	require.NoError(t, err)

	mine, err := f.svc.ListForRequester(ctx, f.patientID, user.RolePatient)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, f.patientID, mine[0].PatientID)

	clinics, err := f.svc.ListForRequester(ctx, f.practitionerID, user.RolePractitioner)
	require.NoError(t, err)
	assert.Len(t, clinics, 2)

	_, err = f.svc.ListForRequester(ctx, f.patientID, user.Role("admin"))
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

// pausingLedger lets a test hold the first availability resolution between
// its ledger read and its cache write.
type pausingLedger struct {
	*memoryLedger
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (l *pausingLedger) BookedTimes(ctx context.Context, practitionerID uuid.UUID, date time.Time) ([]schedule.TimeOfDay, error) {
	times, err := l.memoryLedger.BookedTimes(ctx, practitionerID, date)
	l.once.Do(func() {
		close(l.entered)
		<-l.release
	})
	return times, err
}

func TestResolverRacingABookingDoesNotCacheTheBookedSlot(t *testing.T) {
	f := newFixture(t, mondayRule(t))

	paused := &pausingLedger{
		memoryLedger: f.ledger,
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	resolver := NewService(paused, f.users, f.schedules, f.cache, zap.NewNop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := resolver.AvailableSlots(context.Background(), f.practitionerID, monday)
		assert.NoError(t, err)
	}()

	// The resolver has read the ledger but not yet written the cache.
	<-paused.entered
	_, err := f.svc.CreateBooking(context.Background(), f.practitionerID, f.patientID, monday, mustParse(t, "09:00"))
	require.NoError(t, err)
	close(paused.release)
	<-done

	// The resolver's write landed under a retired version, so the booked
	// slot must not resurface from the cache.
	slots, err := f.svc.AvailableSlots(context.Background(), f.practitionerID, monday)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:30", "10:00", "10:30"}, slotTimes(slots))
}

func TestBookingWritesInvalidateAvailabilityCache(t *testing.T) {
	f := newFixture(t, mondayRule(t))
	ctx := context.Background()

	appt, err := f.svc.CreateBooking(ctx, f.practitionerID, f.patientID, monday, mustParse(t, "09:00"))
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.invalidated)

	// Completion does not change the slot's availability.
	_, err = f.svc.SetStatus(ctx, appt.ID, f.practitionerID, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.invalidated)

	second, err := f.svc.CreateBooking(ctx, f.practitionerID, f.patientID, monday, mustParse(t, "09:30"))
	require.NoError(t, err)
	_, err = f.svc.SetStatus(ctx, second.ID, f.patientID, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, 3, f.cache.invalidated)
}
