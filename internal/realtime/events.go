package realtime

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Inbound event names (client to server).
const (
	EventJoinChat    = "join-chat"
	EventLeaveChat   = "leave-chat"
	EventStartTyping = "start-typing"
	EventStopTyping  = "stop-typing"
)

// Outbound event names (server to client).
const (
	EventNewMessage        = "new-message"
	EventUserTyping        = "user-typing"
	EventUserStoppedTyping = "user-stopped-typing"
	EventNotification      = "new-message-notification"
)

// Event is the wire envelope for every websocket frame.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ThreadPayload carries a thread reference for join/leave/typing events.
type ThreadPayload struct {
	ThreadID uuid.UUID `json:"threadId"`
}

// TypingPayload announces that a user started typing in a thread.
type TypingPayload struct {
	ThreadID uuid.UUID `json:"threadId"`
	UserID   uuid.UUID `json:"userId"`
	Name     string    `json:"name"`
}

// StoppedTypingPayload announces that a user stopped typing.
type StoppedTypingPayload struct {
	ThreadID uuid.UUID `json:"threadId"`
	UserID   uuid.UUID `json:"userId"`
}

// NotificationPayload is delivered on a user's channel when a message
// arrives in a thread the user does not have open.
type NotificationPayload struct {
	ProjectID  uuid.UUID `json:"projectId"`
	ThreadID   uuid.UUID `json:"threadId"`
	SenderName string    `json:"senderName"`
	Preview    string    `json:"preview"`
}

// Marshal wraps a payload in the event envelope.
func Marshal(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Event: event, Data: data})
}
