package handler

import (
	"context"
	"net/http"
	"strconv"

	"pickupd/internal/model"

	"github.com/gorilla/mux"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Matches is the launcher surface exposed over REST
type Matches interface {
	Get(ctx context.Context, matchID string) (*model.Match, error)
	GetByNumber(ctx context.Context, number int) (*model.Match, error)
	List(ctx context.Context, ascending bool, limit, offset int64) ([]*model.Match, int64, error)
	ForceEnd(ctx context.Context, matchID string) (*model.Match, error)
	Reinitialize(ctx context.Context, matchID string) (*model.Match, error)
}

// MatchHandler handles match endpoints
type MatchHandler struct {
	matches Matches
}

// NewMatchHandler creates a new match handler
func NewMatchHandler(matches Matches) *MatchHandler {
	return &MatchHandler{matches: matches}
}

// MatchPage is a page of matches with the total item count
type MatchPage struct {
	Results   []*model.Match `json:"results"`
	ItemCount int64          `json:"itemCount"`
}

// List handles GET /v1/matches?limit=&offset=&sort=
func (h *MatchHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := int64(defaultPageSize)
	if v := q.Get("limit"); v != "" {
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

	var offset int64
	if v := q.Get("offset"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		offset = n
	}

	var ascending bool
	switch q.Get("sort") {
	case "", "-launched_at":
	case "launched_at":
		ascending = true
	default:
		writeError(w, http.StatusBadRequest, "invalid sort")
		return
	}

	matches, count, err := h.matches.List(r.Context(), ascending, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if matches == nil {
		matches = []*model.Match{}
	}
	writeJSON(w, http.StatusOK, MatchPage{Results: matches, ItemCount: count})
}

// Get handles GET /v1/matches/{id}
func (h *MatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	match, err := h.matches.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

// GetByNumber handles GET /v1/matches/by-number/{number}
func (h *MatchHandler) GetByNumber(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(mux.Vars(r)["number"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid match number")
		return
	}
	match, err := h.matches.GetByNumber(r.Context(), number)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

// Skills handles GET /v1/matches/{id}/skills
func (h *MatchHandler) Skills(w http.ResponseWriter, r *http.Request) {
	match, err := h.matches.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, match.Skills())
}

// Action handles POST /v1/matches/{id}?reinitialize_server&force_end
func (h *MatchHandler) Action(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	q := r.URL.Query()

	var (
		match *model.Match
		err   error
	)
	switch {
	case q.Has("reinitialize_server"):
		match, err = h.matches.Reinitialize(r.Context(), id)
	case q.Has("force_end"):
		match, err = h.matches.ForceEnd(r.Context(), id)
	default:
		writeError(w, http.StatusBadRequest, "no action given")
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}
