// Package notify dispatches out-of-room notifications for new messages.
package notify

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/byour-platform/chat/internal/metrics"
	"github.com/byour-platform/chat/internal/models"
	"github.com/byour-platform/chat/internal/realtime"
)

// previewLimit is the maximum notification preview length in runes.
const previewLimit = 50

// Pusher is the slice of the hub the dispatcher needs.
type Pusher interface {
	InThread(threadID, userID uuid.UUID) bool
	SendToUser(userID uuid.UUID, payload []byte)
}

// Dispatcher decides, per persisted message, which participants get an
// out-of-band notification on their user channel. Participants with the
// thread open receive the message through the room broadcast instead.
type Dispatcher struct {
	hub    Pusher
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(hub Pusher, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{hub: hub, logger: logger}
}

// MessagePersisted notifies every project participant except the sender
// and anyone currently in the thread's room. Failures are logged only;
// notification delivery is transient and never fails the send.
func (d *Dispatcher) MessagePersisted(project *models.Project, msg *models.Message, senderName string) {
	payload, err := realtime.Marshal(realtime.EventNotification, realtime.NotificationPayload{
		ProjectID:  project.ID,
		ThreadID:   msg.ThreadID,
		SenderName: senderName,
		Preview:    Preview(msg.Body),
	})
	if err != nil {
		d.logger.Error().Err(err).Msg("notification payload marshal failed")
		return
	}

	for _, userID := range project.Participants() {
		if userID == msg.SenderID {
			continue
		}
		if d.hub.InThread(msg.ThreadID, userID) {
			continue
		}
		d.hub.SendToUser(userID, payload)
		metrics.NotificationsSent.Inc()
	}
}

// Preview truncates a message body to the notification preview length.
func Preview(body string) string {
	runes := []rune(body)
	if len(runes) <= previewLimit {
		return body
	}
	return string(runes[:previewLimit]) + "…"
}
