package user

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient      Role = "patient"
	RolePractitioner Role = "practitioner"
)

type User struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}
