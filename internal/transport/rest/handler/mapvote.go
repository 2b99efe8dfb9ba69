package handler

import (
	"context"
	"net/http"
	"strconv"

	"pickupd/internal/model"
)

// MapVoteHistory lists resolved map votes
type MapVoteHistory interface {
	Recent(ctx context.Context, limit int64) ([]*model.MapVoteRecord, error)
}

// MapVoteHandler handles map vote endpoints
type MapVoteHandler struct {
	votes MapVoteHistory
}

// NewMapVoteHandler creates a new map vote handler
func NewMapVoteHandler(votes MapVoteHistory) *MapVoteHandler {
	return &MapVoteHandler{votes: votes}
}

// Recent handles GET /v1/map-votes?limit=
func (h *MapVoteHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := int64(defaultPageSize)
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if n > maxPageSize {
			n = maxPageSize
		}
		limit = n
	}

	records, err := h.votes.Recent(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}
