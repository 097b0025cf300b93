package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hakeemcare/clinic-booking/internal/schedule"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotTaken is the storage layer's report that a non-cancelled
	// appointment already holds the (practitioner, date, time) triple.
	ErrSlotTaken = errors.New("slot already has a live appointment")
)

// Repository is the booking ledger.
type Repository interface {
	// Create inserts the appointment, enforcing atomically that at most one
	// non-cancelled appointment exists per (practitioner, date, time).
	// Returns ErrSlotTaken when the slot is held, including when a
	// concurrent create wins the race.
	Create(ctx context.Context, appt *Appointment) (*Appointment, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// UpdateStatus moves the appointment from one status to another as a
	// compare-and-set. ErrAppointmentNotFound means no row was in the
	// expected `from` status, including rows that raced to a terminal state.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// BookedTimes lists start times of non-cancelled appointments for the
	// practitioner on the date.
	BookedTimes(ctx context.Context, practitionerID uuid.UUID, date time.Time) ([]schedule.TimeOfDay, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]AppointmentDetail, error)
	ListByPractitioner(ctx context.Context, practitionerID uuid.UUID) ([]AppointmentDetail, error)
}
