package rest

import (
	"net/http"
	"os"

	"pickupd/internal/service"
	"pickupd/internal/transport/rest/handler"
	"pickupd/internal/transport/rest/middleware"
	"pickupd/internal/transport/ws"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService *service.AuthService
	GameServers handler.GameServerPool
	Health      handler.HealthReports
	Matches     handler.Matches
	Queue       ws.Queue
	Presence    handler.OnlinePlayers
	MapVotes    handler.MapVoteHistory
	WSHub       *ws.Hub
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	gameServerHandler := handler.NewGameServerHandler(c.GameServers, c.Health)
	matchHandler := handler.NewMatchHandler(c.Matches)
	queueHandler := handler.NewQueueHandler(c.Queue, c.Presence)
	mapVoteHandler := handler.NewMapVoteHandler(c.MapVotes)
	wsHandler := ws.NewHandler(c.WSHub, c.AuthService, c.Queue)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	r.Use(chimw.RequestID)
	r.Use(middleware.Logging)
	r.Use(chimw.Recoverer)
	r.Use(corsMiddleware)

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// WebSocket (token in query param)
	v1.HandleFunc("/ws", wsHandler.PlayerWS).Methods("GET")

	// Public routes
	v1.HandleFunc("/game-servers", gameServerHandler.List).Methods("GET", "OPTIONS")
	v1.HandleFunc("/game-servers/by-endpoint", gameServerHandler.ByEndpoint).Methods("GET", "OPTIONS")
	v1.HandleFunc("/game-servers/{id}", gameServerHandler.Get).Methods("GET", "OPTIONS")
	v1.HandleFunc("/queue", queueHandler.State).Methods("GET", "OPTIONS")
	v1.HandleFunc("/online-players", queueHandler.OnlinePlayers).Methods("GET", "OPTIONS")
	v1.HandleFunc("/map-votes", mapVoteHandler.Recent).Methods("GET", "OPTIONS")
	v1.HandleFunc("/matches", matchHandler.List).Methods("GET", "OPTIONS")
	v1.HandleFunc("/matches/by-number/{number}", matchHandler.GetByNumber).Methods("GET", "OPTIONS")
	v1.HandleFunc("/matches/{id}", matchHandler.Get).Methods("GET", "OPTIONS")

	// Admin routes
	adminRoutes := v1.NewRoute().Subrouter()
	adminRoutes.Use(authMW.RequireAdmin)

	adminRoutes.HandleFunc("/game-servers", gameServerHandler.Register).Methods("POST", "OPTIONS")
	adminRoutes.HandleFunc("/game-servers/{id}", gameServerHandler.Remove).Methods("DELETE", "OPTIONS")
	adminRoutes.HandleFunc("/game-servers/{id}/health", gameServerHandler.Health).Methods("GET", "OPTIONS")
	adminRoutes.HandleFunc("/matches/{id}/skills", matchHandler.Skills).Methods("GET", "OPTIONS")
	adminRoutes.HandleFunc("/matches/{id}", matchHandler.Action).Methods("POST", "OPTIONS")

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
		if allowedOrigins == "" {
			allowedOrigins = "*"
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
