package schedule

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AvailabilityInvalidator retires cached slot lists derived from a
// practitioner's schedule.
type AvailabilityInvalidator interface {
	Invalidate(ctx context.Context, practitionerID uuid.UUID) error
}

type Service struct {
	repo        Repository
	invalidator AvailabilityInvalidator // optional
	logger      *zap.Logger
}

func NewService(repo Repository, invalidator AvailabilityInvalidator, logger *zap.Logger) *Service {
	return &Service{repo: repo, invalidator: invalidator, logger: logger}
}

// SetSchedule validates the submitted rules and replaces the practitioner's
// schedule wholesale. A *ValidationError lists every violated field.
func (s *Service) SetSchedule(ctx context.Context, practitionerID uuid.UUID, rules []DayRule) (*Schedule, error) {
	if err := ValidateRules(rules); err != nil {
		return nil, err
	}

	sched := &Schedule{
		PractitionerID: practitionerID,
		Rules:          rules,
	}
	if err := s.repo.Replace(ctx, sched); err != nil {
		return nil, fmt.Errorf("replace schedule: %w", err)
	}

	stored, err := s.repo.GetByPractitioner(ctx, practitionerID)
	if err != nil {
		return nil, fmt.Errorf("reload schedule: %w", err)
	}

	if s.invalidator != nil {
		// Replaced rules change every derived slot list for this
		// practitioner.
		if err := s.invalidator.Invalidate(ctx, practitionerID); err != nil {
			s.logger.Warn("availability cache invalidation failed",
				zap.String("practitioner_id", practitionerID.String()),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("schedule replaced",
		zap.String("practitioner_id", practitionerID.String()),
		zap.Int("rules", len(stored.Rules)),
	)

	return stored, nil
}

func (s *Service) GetSchedule(ctx context.Context, practitionerID uuid.UUID) (*Schedule, error) {
	sched, err := s.repo.GetByPractitioner(ctx, practitionerID)
	if err != nil {
		return nil, err
	}
	return sched, nil
}
