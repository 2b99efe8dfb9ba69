package service

import (
	"context"
	"log"
	"sync"
	"time"

	"pickupd/internal/model"
)

// ServerHealth tracks probe history for one game server.
type ServerHealth struct {
	GameServerID     string    `json:"gameServer"`
	LastCheck        time.Time `json:"lastCheck"`
	LastHealthy      time.Time `json:"lastHealthy"`
	ConsecutiveFails int       `json:"consecutiveFails"`
}

// HealthMonitor periodically probes every registered game server and records
// reachability through the pool's SetOnline. A single failed probe marks the
// server offline; there is no failure threshold.
type HealthMonitor struct {
	pool     *GameServerService
	probe    ControlPlane
	interval time.Duration
	timeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	servers map[string]*ServerHealth
}

// NewHealthMonitor creates a monitor that probes every interval, giving each
// probe at most timeout to answer.
func NewHealthMonitor(pool *GameServerService, probe ControlPlane, interval, timeout time.Duration) *HealthMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &HealthMonitor{
		pool:     pool,
		probe:    probe,
		interval: interval,
		timeout:  timeout,
		ctx:      ctx,
		cancel:   cancel,
		servers:  make(map[string]*ServerHealth),
	}
}

// Start launches the polling loop, which runs until ctx is cancelled or
// Stop is called. The first sweep runs immediately.
func (h *HealthMonitor) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.run(ctx)
}

func (h *HealthMonitor) run(ctx context.Context) {
	defer h.wg.Done()
	if h.ctx.Err() != nil {
		return
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	log.Printf("Health monitor started with interval %v", h.interval)
	h.CheckAll(ctx)

	for {
		select {
		case <-ticker.C:
			h.CheckAll(ctx)
		case <-ctx.Done():
			log.Println("Health monitor stopping due to context cancellation")
			return
		case <-h.ctx.Done():
			log.Println("Health monitor stopping due to internal cancellation")
			return
		}
	}
}

// Stop cancels the loop and waits for it to exit
func (h *HealthMonitor) Stop() {
	h.cancel()
	h.wg.Wait()
	log.Println("Health monitor stopped")
}

// CheckAll probes every registered server concurrently and waits for all probes.
func (h *HealthMonitor) CheckAll(ctx context.Context) {
	servers := h.pool.List()

	current := make(map[string]bool, len(servers))
	var wg sync.WaitGroup
	for _, gs := range servers {
		current[gs.ID] = true
		wg.Add(1)
		go func(gs *model.GameServer) {
			defer wg.Done()
			h.checkServer(ctx, gs)
		}(gs)
	}
	wg.Wait()

	// Forget servers that were deregistered
	h.mu.Lock()
	for id := range h.servers {
		if !current[id] {
			delete(h.servers, id)
		}
	}
	h.mu.Unlock()
}

func (h *HealthMonitor) checkServer(ctx context.Context, gs *model.GameServer) {
	probeCtx, cancel := context.WithTimeout(ctx, h.timeout)
	err := h.probe.Probe(probeCtx, gs)
	cancel()

	h.mu.Lock()
	health, ok := h.servers[gs.ID]
	if !ok {
		health = &ServerHealth{GameServerID: gs.ID}
		h.servers[gs.ID] = health
	}
	health.LastCheck = time.Now()
	if err != nil {
		health.ConsecutiveFails++
		log.Printf("Health check failed for game server %s (%s): %v", gs.ID, gs.Name, err)
	} else {
		health.ConsecutiveFails = 0
		health.LastHealthy = health.LastCheck
	}
	h.mu.Unlock()

	if err := h.pool.SetOnline(ctx, gs.ID, err == nil); err != nil {
		log.Printf("Failed to record status of game server %s: %v", gs.ID, err)
	}
}

// GetServerHealth returns a copy of the probe history, or nil if never probed
func (h *HealthMonitor) GetServerHealth(id string) *ServerHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, ok := h.servers[id]
	if !ok {
		return nil
	}
	c := *health
	return &c
}
