package handler

import (
	"net/http"

	"pickupd/internal/model"
)

// QueueReader exposes the current queue snapshot
type QueueReader interface {
	State() model.QueueState
}

// OnlinePlayers lists connected players
type OnlinePlayers interface {
	OnlinePlayers() []string
}

// QueueHandler handles queue and presence endpoints
type QueueHandler struct {
	queue    QueueReader
	presence OnlinePlayers
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(queue QueueReader, presence OnlinePlayers) *QueueHandler {
	return &QueueHandler{queue: queue, presence: presence}
}

// State handles GET /v1/queue
func (h *QueueHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.queue.State())
}

// OnlinePlayers handles GET /v1/online-players
func (h *QueueHandler) OnlinePlayers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"players": h.presence.OnlinePlayers()})
}
