package models

import (
	"time"

	"github.com/google/uuid"
)

// Thread is the per-project chat conversation container.
// Created lazily on the first message, never deleted.
type Thread struct {
	ID           uuid.UUID `json:"id"`
	ProjectID    uuid.UUID `json:"project_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	MessageCount int64     `json:"message_count"`
}
