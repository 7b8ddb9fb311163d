package handlers

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/byour-platform/chat/internal/api/middleware"
	"github.com/byour-platform/chat/internal/metrics"
	"github.com/byour-platform/chat/internal/models"
)

var searchWordRegex = regexp.MustCompile(`[a-z0-9]+`)

// stopWords are common words to exclude from search
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"to": true, "of": true, "in": true, "for": true, "on": true,
	"it": true, "that": true, "this": true, "with": true, "at": true,
	"by": true, "from": true, "as": true, "into": true, "like": true,
}

// SearchResponse represents the search response.
type SearchResponse struct {
	Query   string           `json:"query"`
	Results []models.Message `json:"results"`
	Total   int              `json:"total"`
}

// tokenize extracts searchable words from text.
func tokenize(text string) []string {
	lower := strings.ToLower(text)
	words := searchWordRegex.FindAllString(lower, -1)

	// Deduplicate and filter
	seen := make(map[string]bool)
	result := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) >= 3 && !seen[w] && !stopWords[w] {
			seen[w] = true
			result = append(result, w)
		}
	}

	// Limit to 5 tokens
	if len(result) > 5 {
		result = result[:5]
	}

	return result
}

// SearchThread handles GET /threads/{threadID}/search.
//
// Search runs against the Redis word index, which only covers the cache
// retention window. Results are scoped to the thread and require
// membership.
func (h *Handler) SearchThread(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	threadID, err := uuid.Parse(chi.URLParam(r, "threadID"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid thread ID")
		return
	}

	ok, err := h.db.IsThreadParticipant(r.Context(), threadID, user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to check membership")
		return
	}
	if !ok && user.Role != models.RoleAdmin {
		h.Error(w, http.StatusForbidden, "not a thread participant")
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		h.Error(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	if len(query) > 100 {
		h.Error(w, http.StatusBadRequest, "query too long (max 100 chars)")
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > 100 {
		limit = 100
	}

	var after int64
	if afterStr := r.URL.Query().Get("after"); afterStr != "" {
		if a, err := strconv.ParseInt(afterStr, 10, 64); err == nil {
			after = a
		}
	}

	tokens := tokenize(query)
	if len(tokens) == 0 || h.redis == nil {
		h.JSON(w, http.StatusOK, SearchResponse{
			Query:   query,
			Results: []models.Message{},
			Total:   0,
		})
		return
	}

	metrics.SearchQueries.Inc()

	messages, err := h.redis.SearchMessages(r.Context(), tokens, limit, after, threadID.String())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "search failed")
		return
	}

	h.JSON(w, http.StatusOK, SearchResponse{
		Query:   query,
		Results: messages,
		Total:   len(messages),
	})
}
