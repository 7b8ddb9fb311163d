package models

import "github.com/google/uuid"

// Attachment is a file carried by a message. Created at upload time,
// immutable afterwards, owned exclusively by its message.
type Attachment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// Message is a single chat message in a thread.
// Messages are totally ordered per thread by (Timestamp, ID); IDs are
// ULIDs, so millisecond ties resolve identically for every reader.
// Immutable once created except the read flag.
type Message struct {
	ID          string       `json:"id"` // ULID
	ThreadID    uuid.UUID    `json:"thread_id"`
	SenderID    uuid.UUID    `json:"sender_id"`
	SenderRole  Role         `json:"sender_role"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Read        bool         `json:"read"`
	ClientTag   string       `json:"client_tag,omitempty"` // sender-supplied idempotency tag
	Timestamp   int64        `json:"ts"`                   // Unix ms
}
