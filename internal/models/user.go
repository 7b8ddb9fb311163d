package models

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies which side of a project a user is on.
type Role string

const (
	RoleHQ     Role = "hq"     // client business that owns the project
	RoleBoss   Role = "boss"   // freelance provider assigned to the project
	RoleShaper Role = "shaper" // feature tester, not a chat counterparty
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleHQ, RoleBoss, RoleShaper, RoleAdmin:
		return true
	}
	return false
}

// User is a platform user mirrored into this service.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
