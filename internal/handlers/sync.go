package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/byour-platform/chat/internal/models"
)

// SyncUserRequest is the body for PUT /internal/users/{userID}.
type SyncUserRequest struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// SyncUser upserts a user record mirrored from the platform. The chat
// service never owns user accounts; it only needs names and roles for
// participant resolution.
func (h *Handler) SyncUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	var req SyncUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	name := sanitizeName(req.Name)
	if name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	role := models.Role(req.Role)
	if !role.Valid() {
		h.Error(w, http.StatusBadRequest, "unknown role")
		return
	}

	user := &models.User{ID: userID, Name: name, Role: role}
	if err := h.db.UpsertUser(r.Context(), user); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID.String()).Msg("user upsert failed")
		h.Error(w, http.StatusInternalServerError, "failed to sync user")
		return
	}

	h.JSON(w, http.StatusOK, user)
}

// SyncProjectRequest is the body for PUT /internal/projects/{projectID}.
type SyncProjectRequest struct {
	OwnerID uuid.UUID  `json:"owner_id"`
	BossID  *uuid.UUID `json:"boss_id,omitempty"`
}

// SyncProject upserts a project record mirrored from the platform.
// Assigning a boss later re-syncs the same project with boss_id set.
func (h *Handler) SyncProject(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid project ID")
		return
	}

	var req SyncProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.OwnerID == uuid.Nil {
		h.Error(w, http.StatusBadRequest, "owner_id is required")
		return
	}
	if req.BossID != nil && *req.BossID == uuid.Nil {
		h.Error(w, http.StatusBadRequest, "boss_id must be a valid user ID")
		return
	}

	project := &models.Project{ID: projectID, OwnerID: req.OwnerID, BossID: req.BossID}
	if err := h.db.UpsertProject(r.Context(), project); err != nil {
		h.logger.Error().Err(err).Str("project_id", projectID.String()).Msg("project upsert failed")
		h.Error(w, http.StatusInternalServerError, "failed to sync project")
		return
	}

	h.JSON(w, http.StatusOK, project)
}

// sanitizeName trims and limits a name to 100 characters, removing
// control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	if len(name) > 100 {
		name = name[:100]
	}

	return name
}
