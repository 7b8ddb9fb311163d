package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/byour-platform/chat/internal/api/middleware"
	"github.com/byour-platform/chat/internal/models"
)

// TypingUser is one user currently typing in a thread.
type TypingUser struct {
	UserID uuid.UUID `json:"userId"`
	Name   string    `json:"name"`
}

// GetTyping handles GET /threads/{threadID}/typing.
//
// REST fallback for clients without a websocket. The indicator keys
// expire on their own, so a vanished client never shows as typing for
// more than a few seconds.
func (h *Handler) GetTyping(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	threadID, err := uuid.Parse(chi.URLParam(r, "threadID"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid thread ID")
		return
	}

	thread, err := h.db.GetThread(r.Context(), threadID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to load thread")
		return
	}
	if thread == nil {
		h.Error(w, http.StatusNotFound, "thread not found")
		return
	}

	project, err := h.db.GetProject(r.Context(), thread.ProjectID)
	if err != nil || project == nil {
		h.Error(w, http.StatusInternalServerError, "failed to load project")
		return
	}
	if !project.HasParticipant(user.ID) && user.Role != models.RoleAdmin {
		h.Error(w, http.StatusForbidden, "not a thread participant")
		return
	}

	typing := make([]TypingUser, 0, 1)
	if h.redis != nil {
		for _, userID := range project.Participants() {
			if userID == user.ID {
				continue
			}
			name, err := h.redis.GetTyping(r.Context(), threadID, userID)
			if err != nil {
				h.logger.Warn().Err(err).Msg("typing key read failed")
				continue
			}
			if name != "" {
				typing = append(typing, TypingUser{UserID: userID, Name: name})
			}
		}
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{
		"typing": typing,
	})
}
