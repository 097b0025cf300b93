package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hakeemcare/clinic-booking/internal/schedule"
	"github.com/hakeemcare/clinic-booking/internal/user"
)

var (
	// ErrSlotUnavailable is the expected outcome of losing a booking race or
	// picking an already-held slot. Callers re-fetch availability and choose
	// another slot; the service never retries on their behalf.
	ErrSlotUnavailable = errors.New("selected time slot is not available")

	ErrPractitionerNotFound = errors.New("practitioner not found")
	ErrNotAuthorized        = errors.New("not authorized for this appointment")
	ErrInvalidTransition    = errors.New("invalid status transition")
)

// AvailabilityCache holds resolved availability per (practitioner, date),
// versioned per practitioner. Get reports the version it read under; Set
// writes under that same version, so a list computed from data a concurrent
// Invalidate has since changed lands under a retired key. A cache error
// only costs a recomputation.
type AvailabilityCache interface {
	Get(ctx context.Context, practitionerID uuid.UUID, date time.Time) ([]schedule.TimeOfDay, int64, bool, error)
	Set(ctx context.Context, practitionerID uuid.UUID, date time.Time, version int64, times []schedule.TimeOfDay) error
	Invalidate(ctx context.Context, practitionerID uuid.UUID) error
}

type Service struct {
	repo      Repository
	users     user.Repository
	schedules schedule.Repository
	cache     AvailabilityCache // optional
	logger    *zap.Logger
}

func NewService(repo Repository, users user.Repository, schedules schedule.Repository, cache AvailabilityCache, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		users:     users,
		schedules: schedules,
		cache:     cache,
		logger:    logger,
	}
}

// AvailableSlots resolves the free slots for a practitioner on a date: the
// first schedule rule matching the weekday is expanded into candidate times
// and every time held by a non-cancelled appointment is removed. No schedule
// or no rule for that weekday means zero availability, not an error.
func (s *Service) AvailableSlots(ctx context.Context, practitionerID uuid.UUID, date time.Time) ([]Slot, error) {
	if err := s.checkPractitioner(ctx, practitionerID); err != nil {
		return nil, err
	}

	// The cache version is read before the schedule and ledger, so any
	// booking write that lands mid-resolution retires the Set below.
	var cacheVersion int64
	if s.cache != nil {
		times, version, ok, err := s.cache.Get(ctx, practitionerID, date)
		if err != nil {
			s.logger.Warn("availability cache read failed", zap.Error(err))
		} else if ok {
			return slotsFromTimes(times), nil
		}
		cacheVersion = version
	}

	sched, err := s.schedules.GetByPractitioner(ctx, practitionerID)
	if err != nil {
		if errors.Is(err, schedule.ErrScheduleNotFound) {
			return []Slot{}, nil
		}
		return nil, fmt.Errorf("load schedule: %w", err)
	}

	rule, ok := sched.RuleFor(date.Weekday())
	if !ok {
		return []Slot{}, nil
	}

	candidates := schedule.GenerateSlots(rule.Start, rule.End, rule.SlotMinutes)

	booked, err := s.repo.BookedTimes(ctx, practitionerID, date)
	if err != nil {
		return nil, fmt.Errorf("load booked times: %w", err)
	}

	taken := make(map[schedule.TimeOfDay]struct{}, len(booked))
	for _, t := range booked {
		taken[t] = struct{}{}
	}

	free := make([]schedule.TimeOfDay, 0, len(candidates))
	for _, t := range candidates {
		if _, held := taken[t]; !held {
			free = append(free, t)
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, practitionerID, date, cacheVersion, free); err != nil {
			s.logger.Warn("availability cache write failed", zap.Error(err))
		}
	}

	return slotsFromTimes(free), nil
}

// CreateBooking books a slot for the patient. The sole correctness guard at
// write time is the ledger's uniqueness invariant; the time is not checked
// against the live schedule, which may have changed since the slot was shown.
func (s *Service) CreateBooking(ctx context.Context, practitionerID, patientID uuid.UUID, date time.Time, t schedule.TimeOfDay) (*Appointment, error) {
	if err := s.checkPractitioner(ctx, practitionerID); err != nil {
		return nil, err
	}

	appt := &Appointment{
		ID:             uuid.New(),
		PractitionerID: practitionerID,
		PatientID:      patientID,
		Date:           date,
		Time:           t,
		Status:         StatusBooked,
	}

	created, err := s.repo.Create(ctx, appt)
	if err != nil {
		if errors.Is(err, ErrSlotTaken) {
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.invalidateAvailability(ctx, practitionerID)

	s.logger.Info("appointment booked",
		zap.String("appointment_id", created.ID.String()),
		zap.String("practitioner_id", practitionerID.String()),
		zap.String("date", created.Date.Format(time.DateOnly)),
		zap.String("time", created.Time.String()),
	)

	return created, nil
}

// SetStatus applies one of the two allowed transitions. Completion is
// reserved for the owning practitioner; cancellation is open to the owning
// practitioner or the booking patient. Terminal states are immutable.
func (s *Service) SetStatus(ctx context.Context, appointmentID, requesterID uuid.UUID, target Status) (*Appointment, error) {
	if target != StatusCompleted && target != StatusCancelled {
		return nil, ErrInvalidTransition
	}

	appt, err := s.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	switch target {
	case StatusCompleted:
		if requesterID != appt.PractitionerID {
			return nil, ErrNotAuthorized
		}
	case StatusCancelled:
		if requesterID != appt.PractitionerID && requesterID != appt.PatientID {
			return nil, ErrNotAuthorized
		}
	}

	if !CanTransition(appt.Status, target) {
		return nil, ErrInvalidTransition
	}

	updated, err := s.repo.UpdateStatus(ctx, appointmentID, StatusBooked, target)
	if err != nil {
		// The row was found above, so a miss here means a concurrent
		// transition got there first.
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	if target == StatusCancelled {
		// Cancelling reopens the slot, so cached availability is stale.
		s.invalidateAvailability(ctx, updated.PractitionerID)
	}

	s.logger.Info("appointment status updated",
		zap.String("appointment_id", updated.ID.String()),
		zap.String("status", string(updated.Status)),
	)

	return updated, nil
}

// ListForRequester returns the requester's role-scoped appointment list:
// patients see their own bookings, practitioners their clinic's.
func (s *Service) ListForRequester(ctx context.Context, requesterID uuid.UUID, role user.Role) ([]AppointmentDetail, error) {
	switch role {
	case user.RolePatient:
		return s.repo.ListByPatient(ctx, requesterID)
	case user.RolePractitioner:
		return s.repo.ListByPractitioner(ctx, requesterID)
	default:
		return nil, ErrNotAuthorized
	}
}

func (s *Service) checkPractitioner(ctx context.Context, practitionerID uuid.UUID) error {
	u, err := s.users.GetByID(ctx, practitionerID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return ErrPractitionerNotFound
		}
		return fmt.Errorf("load practitioner: %w", err)
	}
	if u.Role != user.RolePractitioner {
		return ErrPractitionerNotFound
	}
	return nil
}

func (s *Service) invalidateAvailability(ctx context.Context, practitionerID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, practitionerID); err != nil {
		s.logger.Warn("availability cache invalidation failed",
			zap.String("practitioner_id", practitionerID.String()),
			zap.Error(err),
		)
	}
}

func slotsFromTimes(times []schedule.TimeOfDay) []Slot {
	slots := make([]Slot, 0, len(times))
	for _, t := range times {
		slots = append(slots, Slot{Time: t, Available: true})
	}
	return slots
}
