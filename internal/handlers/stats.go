package handlers

import (
	"net/http"
	"time"
)

// ThreadStats represents stats for a single thread.
type ThreadStats struct {
	ID           string `json:"id"`
	ProjectID    string `json:"project_id"`
	MessageCount int64  `json:"message_count"`
	LastActiveAt string `json:"last_active_at"`
}

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalThreads  int64         `json:"total_threads"`
	TotalMessages int64         `json:"total_messages"`
	LastActivity  string        `json:"last_activity"`
	ActiveThreads []ThreadStats `json:"active_threads"`
}

// Stats returns aggregate chat statistics for the admin dashboard.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	totalThreads, err := h.db.CountThreads(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count threads")
		return
	}

	totalMessages, err := h.db.CountMessages(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count messages")
		return
	}

	lastActivityTime, err := h.db.MostRecentActivity(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to get last activity")
		return
	}

	lastActivity := "no activity yet"
	if lastActivityTime != nil {
		lastActivity = formatTimeAgo(*lastActivityTime)
	}

	threads, _, err := h.db.ListActiveThreads(ctx, 5, 0)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list threads")
		return
	}

	activeThreads := make([]ThreadStats, 0, len(threads))
	for _, t := range threads {
		activeThreads = append(activeThreads, ThreadStats{
			ID:           t.ID.String(),
			ProjectID:    t.ProjectID.String(),
			MessageCount: t.MessageCount,
			LastActiveAt: t.LastActiveAt.UTC().Format(time.RFC3339),
		})
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		TotalThreads:  totalThreads,
		TotalMessages: totalMessages,
		LastActivity:  lastActivity,
		ActiveThreads: activeThreads,
	})
}

// formatTimeAgo formats a time as a human-readable "X ago" string.
func formatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return formatInt(mins) + " minutes ago"
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return formatInt(hours) + " hours ago"
	default:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return formatInt(days) + " days ago"
	}
}

// formatInt converts an int to string without importing strconv.
func formatInt(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
