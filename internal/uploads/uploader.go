// Package uploads streams attachment files to object storage.
package uploads

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/byour-platform/chat/internal/metrics"
	"github.com/byour-platform/chat/internal/models"
)

// ObjectStore uploads a blob and returns its public URL.
type ObjectStore interface {
	Upload(ctx context.Context, path string, r io.Reader, contentType string) (string, error)
}

// HTTPStore talks to an object-storage HTTP API: PUT-style uploads under
// a bucket, public reads under a /public prefix.
type HTTPStore struct {
	baseURL string
	bucket  string
	secret  string
	client  *http.Client
}

// NewHTTPStore creates an object storage client.
func NewHTTPStore(baseURL, bucket, secret string) *HTTPStore {
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		bucket:  bucket,
		secret:  secret,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Upload streams a file to the store and returns its public URL.
func (s *HTTPStore) Upload(ctx context.Context, path string, r io.Reader, contentType string) (string, error) {
	endpoint := fmt.Sprintf("%s/object/%s/%s", s.baseURL, s.bucket, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, r)
	if err != nil {
		return "", err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if s.secret != "" {
		req.Header.Set("Authorization", "Bearer "+s.secret)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("object store returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return fmt.Sprintf("%s/object/public/%s/%s", s.baseURL, s.bucket, path), nil
}

// File is one pending attachment upload.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// ObjectPath builds the storage path for an attachment:
// {projectID}/{unix ms}-{sanitized filename}.
func ObjectPath(projectID uuid.UUID, filename string, now time.Time) string {
	return fmt.Sprintf("%s/%d-%s", projectID, now.UnixMilli(), sanitizeFilename(filename))
}

// sanitizeFilename keeps the name URL-safe and strips path separators.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i != -1 {
		name = name[i+1:]
	}
	if name == "" {
		name = "file"
	}
	return url.PathEscape(name)
}

// UploadAll uploads a batch of files for a project. Files that fail are
// skipped and reported by name; the rest still go through. Nothing is
// rolled back on partial failure.
func UploadAll(ctx context.Context, store ObjectStore, projectID uuid.UUID, files []File, logger zerolog.Logger) ([]models.Attachment, []string) {
	attachments := make([]models.Attachment, 0, len(files))
	var skipped []string

	for _, f := range files {
		path := ObjectPath(projectID, f.Name, time.Now())

		publicURL, err := store.Upload(ctx, path, f.Reader, f.ContentType)
		if err != nil {
			logger.Error().Err(err).
				Str("project_id", projectID.String()).
				Str("file", f.Name).
				Msg("attachment upload failed")
			metrics.AttachmentsUploaded.WithLabelValues("failed").Inc()
			skipped = append(skipped, f.Name)
			continue
		}

		metrics.AttachmentsUploaded.WithLabelValues("ok").Inc()
		attachments = append(attachments, models.Attachment{
			ID:   ulid.Make().String(),
			Name: f.Name,
			URL:  publicURL,
			Type: f.ContentType,
			Size: f.Size,
		})
	}

	return attachments, skipped
}
