package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/byour-platform/chat/internal/models"
)

const (
	sendBuffer   = 32
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 50 * time.Second
	maxFrameSize = 4096
)

// Session is one live websocket connection for one user.
// rooms and typing are guarded by the hub's mutex.
type Session struct {
	hub  *Hub
	conn *websocket.Conn
	user *models.User

	send   chan []byte
	rooms  map[uuid.UUID]bool
	typing map[uuid.UUID]bool

	closeOnce sync.Once
}

// close tears the connection down; safe to call from any goroutine.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.conn.Close()
	})
}

// readLoop consumes inbound events until the connection drops, then
// unregisters the session.
func (s *Session) readLoop() {
	defer func() {
		s.hub.unregister(s)
		s.close()
		close(s.send)
	}()

	s.conn.SetReadLimit(maxFrameSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var evt Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			s.hub.logger.Warn().Err(err).
				Str("user_id", s.user.ID.String()).
				Msg("unparseable websocket frame")
			continue
		}

		s.handle(evt)
	}
}

// handle dispatches one inbound event.
func (s *Session) handle(evt Event) {
	var payload ThreadPayload
	if err := json.Unmarshal(evt.Data, &payload); err != nil || payload.ThreadID == (uuid.UUID{}) {
		return
	}

	switch evt.Event {
	case EventJoinChat:
		s.hub.join(s, payload.ThreadID)
	case EventLeaveChat:
		s.hub.leave(s, payload.ThreadID)
	case EventStartTyping:
		s.hub.startTyping(s, payload.ThreadID)
	case EventStopTyping:
		s.hub.stopTyping(s, payload.ThreadID)
	default:
		s.hub.logger.Warn().
			Str("event", evt.Event).
			Str("user_id", s.user.ID.String()).
			Msg("unknown websocket event")
	}
}

// writeLoop is the single writer for the connection; gorilla permits
// only one concurrent writer.
func (s *Session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case payload, ok := <-s.send:
			if !ok {
				s.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
