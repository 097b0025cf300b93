package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/hakeemcare/clinic-booking/internal/schedule"
)

type Status string

const (
	StatusBooked    Status = "booked"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no transition may ever leave the status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether the status change is permitted. The only
// legal moves are booked -> completed and booked -> cancelled.
func CanTransition(from, to Status) bool {
	return from == StatusBooked && (to == StatusCompleted || to == StatusCancelled)
}

// Appointment is one booked slot. Rows are never deleted; cancellation is a
// status change so the slot's history stays auditable.
type Appointment struct {
	ID             uuid.UUID
	PractitionerID uuid.UUID
	PatientID      uuid.UUID
	Date           time.Time // calendar date, midnight UTC, no timezone meaning
	Time           schedule.TimeOfDay
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AppointmentDetail joins the display names both roles want in listings.
type AppointmentDetail struct {
	Appointment
	PatientName      string
	PractitionerName string
}

// Slot is one bookable time in an availability response. Only free slots are
// returned, so Available is always true on the wire.
type Slot struct {
	Time      schedule.TimeOfDay
	Available bool
}
