package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/byour-platform/chat/internal/api/middleware"
	"github.com/byour-platform/chat/internal/models"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// ThreadResponse is the response for GET /projects/{projectID}/thread.
// Thread is null when no message has been sent yet.
type ThreadResponse struct {
	Thread   *models.Thread   `json:"thread"`
	Messages []models.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

// GetProjectThread handles GET /projects/{projectID}/thread.
//
// Messages come back in chronological order. The "before" query parameter
// pages backwards through history by timestamp.
func (h *Handler) GetProjectThread(w http.ResponseWriter, r *http.Request) {
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

	limit := defaultPageSize
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var before int64
	if beforeStr := r.URL.Query().Get("before"); beforeStr != "" {
		if b, err := strconv.ParseInt(beforeStr, 10, 64); err == nil && b > 0 {
			before = b
		}
	}

	thread, err := h.db.GetThreadByProject(r.Context(), projectID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to load thread")
		return
	}
	if thread == nil {
		// No message sent yet; the thread does not exist
		h.JSON(w, http.StatusOK, ThreadResponse{
			Thread:   nil,
			Messages: []models.Message{},
			HasMore:  false,
		})
		return
	}

	messages, hasMore, err := h.db.ListMessages(r.Context(), thread.ID, limit, before)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to load messages")
		return
	}

	h.JSON(w, http.StatusOK, ThreadResponse{
		Thread:   thread,
		Messages: messages,
		HasMore:  hasMore,
	})
}

// ListThreadsResponse is the response for GET /internal/threads.
type ListThreadsResponse struct {
	Threads []models.Thread `json:"threads"`
	Total   int             `json:"total"`
}

// ListThreads handles GET /internal/threads, most recently active first.
func (h *Handler) ListThreads(w http.ResponseWriter, r *http.Request) {
	limit := defaultPageSize
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o > 0 {
			offset = o
		}
	}

	threads, total, err := h.db.ListActiveThreads(r.Context(), limit, offset)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list threads")
		return
	}

	h.JSON(w, http.StatusOK, ListThreadsResponse{Threads: threads, Total: total})
}
