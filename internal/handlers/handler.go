package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/byour-platform/chat/internal/notify"
	"github.com/byour-platform/chat/internal/store"
	"github.com/byour-platform/chat/internal/uploads"
)

// Broadcaster is the slice of the realtime hub the handlers need.
type Broadcaster interface {
	BroadcastToThread(threadID uuid.UUID, payload []byte)
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db       store.DataStore
	redis    *store.RedisStore // nil in dev without Redis
	hub      Broadcaster
	notifier *notify.Dispatcher
	objects  uploads.ObjectStore
	logger   zerolog.Logger
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(db store.DataStore, redis *store.RedisStore, hub Broadcaster, notifier *notify.Dispatcher, objects uploads.ObjectStore, logger zerolog.Logger) *Handler {
	return &Handler{
		db:       db,
		redis:    redis,
		hub:      hub,
		notifier: notifier,
		objects:  objects,
		logger:   logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
