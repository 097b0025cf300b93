package user

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrUserNotFound = errors.New("user not found")

// Repository covers the identity lookups the booking core needs. Profile
// management lives elsewhere.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
}
