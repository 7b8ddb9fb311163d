package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/byour-platform/chat/internal/api/middleware"
	"github.com/byour-platform/chat/internal/models"
)

// Participant is one resolved chat participant.
type Participant struct {
	ID   uuid.UUID   `json:"id"`
	Name string      `json:"name"`
	Role models.Role `json:"role"`
}

// GetParticipants handles GET /projects/{projectID}/participants.
//
// Participants are the project owner and the assigned boss. A project
// without a boss yet has a single participant.
func (h *Handler) GetParticipants(w http.ResponseWriter, r *http.Request) {
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

	participants := make([]Participant, 0, 2)
	for _, userID := range project.Participants() {
		u, err := h.db.GetUser(r.Context(), userID)
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "failed to resolve participant")
			return
		}
		if u == nil {
			// Project references a user the sync has not delivered yet
			h.logger.Warn().
				Str("project_id", projectID.String()).
				Str("user_id", userID.String()).
				Msg("participant not found in user store")
			continue
		}
		participants = append(participants, Participant{ID: u.ID, Name: u.Name, Role: u.Role})
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{
		"participants": participants,
	})
}
