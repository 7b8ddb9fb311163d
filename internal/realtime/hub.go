package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/byour-platform/chat/internal/metrics"
	"github.com/byour-platform/chat/internal/models"
	"github.com/byour-platform/chat/internal/store"
)

// MembershipChecker guards join-chat: only a thread's project
// participants may enter its room.
type MembershipChecker interface {
	IsThreadParticipant(ctx context.Context, threadID, userID uuid.UUID) (bool, error)
}

// Hub owns all live websocket sessions. Each session is registered on a
// per-user channel at connect time and joins thread rooms explicitly.
// Message sending is not accepted here; persistence goes through the
// HTTP path and the handlers broadcast through the hub afterwards.
type Hub struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]map[*Session]bool
	users map[uuid.UUID]map[*Session]bool

	membership MembershipChecker
	redis      *store.RedisStore // optional, nil in dev without Redis
	logger     zerolog.Logger
}

// NewHub creates a hub. redis may be nil; typing TTL keys are then skipped.
func NewHub(membership MembershipChecker, redis *store.RedisStore, logger zerolog.Logger) *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Session]bool),
		users:      make(map[uuid.UUID]map[*Session]bool),
		membership: membership,
		redis:      redis,
		logger:     logger,
	}
}

// Register attaches an upgraded connection to the hub and starts its
// read and write loops. The returned session closes itself when the
// connection drops.
func (h *Hub) Register(conn *websocket.Conn, user *models.User) *Session {
	s := &Session{
		hub:    h,
		conn:   conn,
		user:   user,
		send:   make(chan []byte, sendBuffer),
		rooms:  make(map[uuid.UUID]bool),
		typing: make(map[uuid.UUID]bool),
	}

	h.mu.Lock()
	if h.users[user.ID] == nil {
		h.users[user.ID] = make(map[*Session]bool)
	}
	h.users[user.ID][s] = true
	h.mu.Unlock()

	metrics.RealtimeConnections.Inc()
	h.logger.Info().
		Str("user_id", user.ID.String()).
		Str("role", string(user.Role)).
		Msg("websocket session opened")

	go s.writeLoop()
	go s.readLoop()

	return s
}

// unregister removes a session from every registry and announces
// stopped-typing for any room where the session was mid-burst.
func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	var stopped []uuid.UUID
	for threadID := range s.rooms {
		if s.typing[threadID] {
			stopped = append(stopped, threadID)
		}
		if room := h.rooms[threadID]; room != nil {
			delete(room, s)
			if len(room) == 0 {
				delete(h.rooms, threadID)
			}
		}
	}
	if sessions := h.users[s.user.ID]; sessions != nil {
		delete(sessions, s)
		if len(sessions) == 0 {
			delete(h.users, s.user.ID)
		}
	}
	h.mu.Unlock()

	for _, threadID := range stopped {
		h.announceStoppedTyping(threadID, s)
	}

	metrics.RealtimeConnections.Dec()
	h.logger.Info().
		Str("user_id", s.user.ID.String()).
		Msg("websocket session closed")
}

// join adds a session to a thread room after a membership check.
func (h *Hub) join(s *Session, threadID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ok, err := h.membership.IsThreadParticipant(ctx, threadID, s.user.ID)
	if err != nil {
		h.logger.Error().Err(err).
			Str("thread_id", threadID.String()).
			Str("user_id", s.user.ID.String()).
			Msg("membership check failed")
		return
	}
	if !ok {
		h.logger.Warn().
			Str("thread_id", threadID.String()).
			Str("user_id", s.user.ID.String()).
			Msg("join rejected: not a participant")
		return
	}

	h.mu.Lock()
	if h.rooms[threadID] == nil {
		h.rooms[threadID] = make(map[*Session]bool)
	}
	h.rooms[threadID][s] = true
	s.rooms[threadID] = true
	h.mu.Unlock()
}

// leave removes a session from a thread room.
func (h *Hub) leave(s *Session, threadID uuid.UUID) {
	h.mu.Lock()
	wasTyping := s.typing[threadID]
	delete(s.typing, threadID)
	delete(s.rooms, threadID)
	if room := h.rooms[threadID]; room != nil {
		delete(room, s)
		if len(room) == 0 {
			delete(h.rooms, threadID)
		}
	}
	h.mu.Unlock()

	if wasTyping {
		h.announceStoppedTyping(threadID, s)
	}
}

// startTyping relays a typing burst to the room and mirrors it into a
// Redis TTL key for REST pollers.
func (h *Hub) startTyping(s *Session, threadID uuid.UUID) {
	h.mu.Lock()
	inRoom := s.rooms[threadID]
	if inRoom {
		s.typing[threadID] = true
	}
	h.mu.Unlock()
	if !inRoom {
		return
	}

	if h.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := h.redis.SetTyping(ctx, threadID, s.user.ID, s.user.Name); err != nil {
			h.logger.Warn().Err(err).Msg("typing key write failed")
		}
		cancel()
	}

	metrics.TypingEvents.Inc()

	payload, err := Marshal(EventUserTyping, TypingPayload{
		ThreadID: threadID,
		UserID:   s.user.ID,
		Name:     s.user.Name,
	})
	if err != nil {
		return
	}
	h.broadcastExcept(threadID, payload, s)
}

// stopTyping ends a typing burst.
func (h *Hub) stopTyping(s *Session, threadID uuid.UUID) {
	h.mu.Lock()
	wasTyping := s.typing[threadID]
	delete(s.typing, threadID)
	h.mu.Unlock()
	if !wasTyping {
		return
	}
	h.announceStoppedTyping(threadID, s)
}

func (h *Hub) announceStoppedTyping(threadID uuid.UUID, s *Session) {
	if h.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := h.redis.ClearTyping(ctx, threadID, s.user.ID); err != nil {
			h.logger.Warn().Err(err).Msg("typing key delete failed")
		}
		cancel()
	}

	payload, err := Marshal(EventUserStoppedTyping, StoppedTypingPayload{
		ThreadID: threadID,
		UserID:   s.user.ID,
	})
	if err != nil {
		return
	}
	h.broadcastExcept(threadID, payload, s)
}

// BroadcastToThread delivers a payload to every session in a thread room.
func (h *Hub) BroadcastToThread(threadID uuid.UUID, payload []byte) {
	h.broadcastExcept(threadID, payload, nil)
}

func (h *Hub) broadcastExcept(threadID uuid.UUID, payload []byte, except *Session) {
	h.mu.Lock()
	var stale []*Session
	for s := range h.rooms[threadID] {
		if s == except {
			continue
		}
		select {
		case s.send <- payload:
		default:
			// Session can't keep up; drop it rather than block the room.
			stale = append(stale, s)
		}
	}
	h.mu.Unlock()

	for _, s := range stale {
		s.close()
	}
}

// SendToUser delivers a payload to every open session of a user.
func (h *Hub) SendToUser(userID uuid.UUID, payload []byte) {
	h.mu.Lock()
	var stale []*Session
	for s := range h.users[userID] {
		select {
		case s.send <- payload:
		default:
			stale = append(stale, s)
		}
	}
	h.mu.Unlock()

	for _, s := range stale {
		s.close()
	}
}

// InThread reports whether the user has at least one session in the
// thread's room. Used to decide between in-room delivery and an
// out-of-band notification.
func (h *Hub) InThread(threadID, userID uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.rooms[threadID] {
		if s.user.ID == userID {
			return true
		}
	}
	return false
}
