package handler

import (
	"context"
	"net/http"
	"strconv"

	"pickupd/internal/model"
	"pickupd/internal/service"

	"github.com/gorilla/mux"
)

// GameServerPool is the pool surface exposed over REST
type GameServerPool interface {
	List() []*model.GameServer
	Get(id string) (*model.GameServer, error)
	LookupByEndpoint(ip string, port int) *model.GameServer
	Register(ctx context.Context, req *model.RegisterGameServerRequest) (*model.GameServer, error)
	Remove(ctx context.Context, id string) error
}

// HealthReports exposes the probe history kept by the health monitor
type HealthReports interface {
	GetServerHealth(id string) *service.ServerHealth
}

// ServerHealthReport is the admin view of one server's reachability
type ServerHealthReport struct {
	service.ServerHealth
	IsOnline bool `json:"isOnline"`
}

// GameServerHandler handles game server endpoints
type GameServerHandler struct {
	pool   GameServerPool
	health HealthReports
}

// NewGameServerHandler creates a new game server handler
func NewGameServerHandler(pool GameServerPool, health HealthReports) *GameServerHandler {
	return &GameServerHandler{pool: pool, health: health}
}

// List handles GET /v1/game-servers
func (h *GameServerHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pool.List())
}

// Get handles GET /v1/game-servers/{id}
func (h *GameServerHandler) Get(w http.ResponseWriter, r *http.Request) {
	gs, err := h.pool.Get(mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gs)
}

// Health handles GET /v1/game-servers/{id}/health
func (h *GameServerHandler) Health(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	gs, err := h.pool.Get(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	report := ServerHealthReport{
		ServerHealth: service.ServerHealth{GameServerID: id},
		IsOnline:     gs.IsOnline,
	}
	// not probed yet: zero timestamps
	if health := h.health.GetServerHealth(id); health != nil {
		report.ServerHealth = *health
	}
	writeJSON(w, http.StatusOK, report)
}

// ByEndpoint handles GET /v1/game-servers/by-endpoint?address=&port=
func (h *GameServerHandler) ByEndpoint(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	port, err := strconv.Atoi(r.URL.Query().Get("port"))
	if address == "" || err != nil {
		writeError(w, http.StatusBadRequest, "address and numeric port are required")
		return
	}

	gs := h.pool.LookupByEndpoint(address, port)
	if gs == nil {
		writeError(w, http.StatusNotFound, "game server not found")
		return
	}
	writeJSON(w, http.StatusOK, gs)
}

// Register handles POST /v1/game-servers
func (h *GameServerHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterGameServerRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	gs, err := h.pool.Register(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, gs)
}

// Remove handles DELETE /v1/game-servers/{id}
func (h *GameServerHandler) Remove(w http.ResponseWriter, r *http.Request) {
	if err := h.pool.Remove(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
