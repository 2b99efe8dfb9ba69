package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pickupd/internal/cache"
	"pickupd/internal/config"
	"pickupd/internal/repository"
	"pickupd/internal/service"
	"pickupd/internal/transport/logrecv"
	"pickupd/internal/transport/rest"
	"pickupd/internal/transport/ws"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	log.Println("started")
	ctx := context.Background()

	cfg, err := config.Load(os.Getenv("PICKUPD_CONFIG"))
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	log.Printf("Queue layout: %d slots (%v), min roster %d", cfg.SlotCount(), cfg.SlotClasses(), cfg.Queue.MinRosterSize)
	log.Printf("Map pool: %v", cfg.Queue.Maps)

	// MongoDB connection
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(ctx)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		log.Fatal("Failed to ping MongoDB:", err)
	}
	log.Println("Connected to MongoDB")

	db := mongoClient.Database(cfg.MongoDatabase)

	// Redis connection
	rdb := redis.NewClient(&redis.Options{
		Addr: strings.TrimPrefix(cfg.RedisAddr, "redis://"),
	})
	defer rdb.Close()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatal("Failed to ping Redis:", err)
	}
	log.Println("Connected to Redis")

	// Initialize repositories
	gameServerRepo := repository.NewGameServerRepo(db)
	matchRepo := repository.NewMatchRepo(db)
	mapVoteRepo := repository.NewMapVoteRepo(db)
	playerRepo := repository.NewPlayerRepo(db)

	// Initialize caches
	queueCache := cache.NewQueueCache(rdb)
	presenceCache := cache.NewPresenceCache(rdb)

	// Sessions and queue seats do not survive a restart
	if prev, err := queueCache.GetState(ctx); err == nil && prev != nil && prev.Seated() > 0 {
		log.Printf("Discarding queue from previous run with %d seated players", prev.Seated())
	}
	if err := presenceCache.Reset(ctx); err != nil {
		log.Printf("Failed to reset online players: %v", err)
	}

	events := service.NewEventBus(cache.NewEventPublisher(rdb))

	// Initialize services
	pool := service.NewGameServerService(gameServerRepo, service.NewNetResolver(), events)
	if err := pool.Load(ctx); err != nil {
		log.Fatal("Failed to load game servers:", err)
	}

	control := service.NewUDPControlPlane(cfg.ControlPlane.Timeout)
	health := service.NewHealthMonitor(pool, control, cfg.Health.Interval, cfg.Health.ProbeTimeout)
	presence := service.NewPresenceService(cfg.Presence.GracePeriod, presenceCache, events)
	votes := service.NewMapVoteService(mapVoteRepo, events)
	launcher := service.NewLauncherService(matchRepo, playerRepo, pool, control, events)
	queue := service.NewQueueService(service.QueueConfig{
		SlotClasses:       cfg.SlotClasses(),
		MinRosterSize:     cfg.Queue.MinRosterSize,
		Maps:              cfg.Queue.Maps,
		VoteOptions:       cfg.Vote.Options,
		VoteDuration:      cfg.Vote.Duration,
		AllocationRetry:   cfg.Queue.AllocationRetry,
		LaunchRetryBudget: cfg.Queue.LaunchRetryBudget,
	}, playerRepo, presence, votes, pool, launcher, queueCache, events)
	authSvc := service.NewAuthService(cfg.JWTSecret)

	// Initialize WebSocket hub; it reports sessions to presence and receives pushes
	wsHub := ws.NewHub(presence)
	service.NewNotifier(events, wsHub)
	log.Println("WebSocket hub started")

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	health.Start(runCtx)
	go queue.Run(runCtx)

	receiver := logrecv.NewReceiver(cfg.Logs.ListenAddr, pool, launcher)
	go func() {
		if err := receiver.Serve(runCtx); err != nil {
			log.Printf("Log receiver stopped: %v", err)
		}
	}()

	container := &rest.Container{
		AuthService: authSvc,
		GameServers: pool,
		Health:      health,
		Matches:     launcher,
		Queue:       queue,
		Presence:    presence,
		MapVotes:    votes,
		WSHub:       wsHub,
	}

	router := rest.NewRouter(container)

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("ListenAndServe:", err)
		}
	}()

	<-runCtx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	health.Stop()
	presence.Close()
	events.Close()

	log.Println("Server exited")
}
