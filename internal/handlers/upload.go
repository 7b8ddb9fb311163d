package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/byour-platform/chat/internal/api/middleware"
	"github.com/byour-platform/chat/internal/models"
	"github.com/byour-platform/chat/internal/uploads"
)

// maxUploadMemory caps the in-memory portion of multipart parsing;
// larger parts spill to temp files.
const maxUploadMemory = 10 << 20

// UploadResponse is the response for POST /projects/{projectID}/uploads.
// Skipped lists files that failed to upload; the rest went through.
type UploadResponse struct {
	Attachments []models.Attachment `json:"attachments"`
	Skipped     []string            `json:"skipped,omitempty"`
}

// UploadAttachments handles POST /projects/{projectID}/uploads.
//
// Accepts a multipart form with one or more "files" parts and stages
// them in object storage. The returned attachment descriptors go into a
// subsequent message send; failed files are skipped, not fatal.
func (h *Handler) UploadAttachments(w http.ResponseWriter, r *http.Request) {
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

	if h.objects == nil {
		h.Error(w, http.StatusServiceUnavailable, "object storage not configured")
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	parts := r.MultipartForm.File["files"]
	if len(parts) == 0 {
		h.Error(w, http.StatusBadRequest, "no files provided")
		return
	}

	files := make([]uploads.File, 0, len(parts))
	var unreadable []string
	for _, part := range parts {
		f, err := part.Open()
		if err != nil {
			unreadable = append(unreadable, part.Filename)
			continue
		}
		defer f.Close()
		files = append(files, uploads.File{
			Name:        part.Filename,
			ContentType: part.Header.Get("Content-Type"),
			Size:        part.Size,
			Reader:      f,
		})
	}

	attachments, skipped := uploads.UploadAll(r.Context(), h.objects, projectID, files, h.logger)
	skipped = append(skipped, unreadable...)

	h.JSON(w, http.StatusOK, UploadResponse{
		Attachments: attachments,
		Skipped:     skipped,
	})
}
