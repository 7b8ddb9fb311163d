package models

import (
	"time"

	"github.com/google/uuid"
)

// Project mirrors the marketplace project a chat thread belongs to.
// Only the fields needed to resolve chat participants are synced.
type Project struct {
	ID        uuid.UUID  `json:"id"`
	OwnerID   uuid.UUID  `json:"owner_id"`           // HQ side
	BossID    *uuid.UUID `json:"boss_id,omitempty"`  // assigned provider, nil until assignment
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Participants returns the fixed set of user IDs entitled to the
// project's thread. Typically two: the owner and the assigned boss.
func (p *Project) Participants() []uuid.UUID {
	ids := []uuid.UUID{p.OwnerID}
	if p.BossID != nil {
		ids = append(ids, *p.BossID)
	}
	return ids
}

// HasParticipant reports whether userID may read and write the project's thread.
func (p *Project) HasParticipant(userID uuid.UUID) bool {
	for _, id := range p.Participants() {
		if id == userID {
			return true
		}
	}
	return false
}
