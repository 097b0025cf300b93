package schedule

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrScheduleNotFound = errors.New("clinic schedule not found")

// Repository stores at most one schedule per practitioner.
type Repository interface {
	GetByPractitioner(ctx context.Context, practitionerID uuid.UUID) (*Schedule, error)

	// Replace swaps the practitioner's schedule wholesale; there is no
	// incremental update path.
	Replace(ctx context.Context, sched *Schedule) error
}
