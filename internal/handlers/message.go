package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/byour-platform/chat/internal/api/middleware"
	"github.com/byour-platform/chat/internal/metrics"
	"github.com/byour-platform/chat/internal/models"
	"github.com/byour-platform/chat/internal/realtime"
	"github.com/byour-platform/chat/internal/store"
)

// maxBodyLength is the maximum message body length in bytes.
const maxBodyLength = 4096

// PostMessageRequest is the request body for posting a message.
type PostMessageRequest struct {
	Body        string              `json:"body"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
	ClientTag   string              `json:"client_tag,omitempty"`
}

// PostMessage handles POST /projects/{projectID}/messages.
//
// The thread is created lazily on the first message. When a client_tag
// repeats a tag already claimed for this thread, the previously stored
// message is returned with 200 instead of storing a duplicate.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid project ID")
		return
	}

	project, err := h.db.GetProject(r.Context(), projectID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to load project")
		return
	}
	if project == nil {
		h.Error(w, http.StatusNotFound, "project not found")
		return
	}
	if !project.HasParticipant(user.ID) && user.Role != models.RoleAdmin {
		h.Error(w, http.StatusForbidden, "not a project participant")
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Body = strings.TrimSpace(req.Body)
	if req.Body == "" && len(req.Attachments) == 0 {
		h.Error(w, http.StatusBadRequest, "message requires a body or attachments")
		return
	}
	if len(req.Body) > maxBodyLength {
		h.Error(w, http.StatusBadRequest, "message body too long (max 4096 bytes)")
		return
	}

	// Thread is created on first message, not on project creation
	existing, err := h.db.GetThreadByProject(r.Context(), projectID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to load thread")
		return
	}

	thread, err := h.db.FindOrCreateThread(r.Context(), projectID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create thread")
		return
	}
	if existing == nil {
		metrics.ThreadsCreated.Inc()
		h.logger.Info().
			Str("project_id", projectID.String()).
			Str("thread_id", thread.ID.String()).
			Msg("thread created")
	}

	msg := &models.Message{
		ID:          ulid.Make().String(),
		ThreadID:    thread.ID,
		SenderID:    user.ID,
		SenderRole:  user.Role,
		Body:        req.Body,
		Attachments: req.Attachments,
		ClientTag:   req.ClientTag,
		Timestamp:   time.Now().UnixMilli(),
	}

	// Fast-path dedupe on the client tag before touching the database
	if req.ClientTag != "" && h.redis != nil {
		claimed, existingID, err := h.redis.ClaimSendTag(r.Context(), thread.ID, req.ClientTag, msg.ID)
		if err == nil && !claimed {
			if prev, err := h.db.GetMessage(r.Context(), existingID); err == nil && prev != nil {
				h.JSON(w, http.StatusOK, prev)
				return
			}
			// Claim exists but the insert never landed; let the new
			// attempt go through on the database constraint.
		}
	}

	if err := h.db.InsertMessage(r.Context(), msg); err != nil {
		if errors.Is(err, store.ErrDuplicateTag) {
			if prev, err := h.db.GetMessageByTag(r.Context(), thread.ID, req.ClientTag); err == nil && prev != nil {
				h.JSON(w, http.StatusOK, prev)
				return
			}
		}
		if req.ClientTag != "" && h.redis != nil {
			h.redis.ReleaseSendTag(r.Context(), thread.ID, req.ClientTag)
		}
		h.logger.Error().Err(err).
			Str("thread_id", thread.ID.String()).
			Msg("message insert failed")
		h.Error(w, http.StatusInternalServerError, "failed to store message")
		return
	}

	// Cache for search; best-effort
	if h.redis != nil {
		if err := h.redis.CacheMessage(r.Context(), msg); err != nil {
			h.logger.Warn().Err(err).Msg("message cache write failed")
		}
	}

	if payload, err := realtime.Marshal(realtime.EventNewMessage, msg); err == nil {
		h.hub.BroadcastToThread(thread.ID, payload)
	}
	h.notifier.MessagePersisted(project, msg, user.Name)

	metrics.MessagesPosted.WithLabelValues(string(user.Role)).Inc()

	h.JSON(w, http.StatusCreated, msg)
}

// MarkRead handles POST /messages/{messageID}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	messageID := chi.URLParam(r, "messageID")
	if _, err := ulid.ParseStrict(messageID); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid message ID")
		return
	}

	msg, err := h.db.GetMessage(r.Context(), messageID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to load message")
		return
	}
	if msg == nil {
		h.Error(w, http.StatusNotFound, "message not found")
		return
	}

	ok, err := h.db.IsThreadParticipant(r.Context(), msg.ThreadID, user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to check membership")
		return
	}
	if !ok && user.Role != models.RoleAdmin {
		h.Error(w, http.StatusForbidden, "not a thread participant")
		return
	}

	if err := h.db.MarkMessageRead(r.Context(), messageID); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to mark message read")
		return
	}

	h.JSON(w, http.StatusOK, map[string]bool{"read": true})
}
