package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"pickupd/internal/cache"
	"pickupd/internal/model"
	"pickupd/internal/repository"
)

var statusNoServers = ErrAllocationExhausted.Error()

// QueueConfig holds the queue's tunables
type QueueConfig struct {
	SlotClasses       []string // one game class per slot
	MinRosterSize     int
	Maps              []string
	VoteOptions       int
	VoteDuration      time.Duration
	AllocationRetry   time.Duration
	LaunchRetryBudget int
}

// QueueService owns the roster and drives it through
// waiting -> voting -> allocating -> launching -> waiting.
//
// Every state change runs on the goroutine started by Run. Public methods
// submit a command and wait for it; callbacks from other services only
// enqueue commands, so they never block on the queue.
type QueueService struct {
	cfg      QueueConfig
	players  repository.PlayerRepo
	presence *PresenceService
	votes    *MapVoteService
	pool     *GameServerService
	launcher *LauncherService
	cache    cache.QueueCache
	events   *EventBus

	// command queue
	pmu     sync.Mutex
	pending []func()
	wake    chan struct{}

	// loop-owned state
	ctx         context.Context
	state       model.QueueStateName
	slots       []model.QueueSlot
	status      string
	roundID     string
	candidates  []string
	mapName     string
	server      *model.GameServer
	launchFails int
	launchGen   uint64
	lastMap     string
	retryTimer  *time.Timer

	snapMu   sync.RWMutex
	snapshot model.QueueState

	// latest snapshot waiting for the cache writer
	cacheMu   sync.Mutex
	cacheNext *model.QueueState
	cacheWake chan struct{}
}

// NewQueueService wires the orchestrator to its collaborators. queueCache may be nil.
func NewQueueService(
	cfg QueueConfig,
	players repository.PlayerRepo,
	presence *PresenceService,
	votes *MapVoteService,
	pool *GameServerService,
	launcher *LauncherService,
	queueCache cache.QueueCache,
	events *EventBus,
) *QueueService {
	q := &QueueService{
		cfg:       cfg,
		players:   players,
		presence:  presence,
		votes:     votes,
		pool:      pool,
		launcher:  launcher,
		cache:     queueCache,
		events:    events,
		wake:      make(chan struct{}, 1),
		cacheWake: make(chan struct{}, 1),
		ctx:       context.Background(),
		state:     model.QueueWaiting,
		slots:     make([]model.QueueSlot, len(cfg.SlotClasses)),
	}
	for i, class := range cfg.SlotClasses {
		q.slots[i] = model.QueueSlot{ID: i, GameClass: class}
	}
	q.snapshot = q.buildSnapshot()

	presence.Subscribe(func(evt PresenceEvent) {
		if evt.Type == model.EventPlayerLeft {
			q.post(func() { q.handlePlayerLeft(evt.PlayerID) })
		}
	})
	votes.OnResolved(func(r model.VoteResult) {
		q.post(func() { q.handleVoteResolved(r) })
	})
	events.Subscribe(func(model.Event) {
		q.post(q.tryAllocate)
	}, model.EventServerFreeChanged, model.EventServerOnlineChanged)

	return q
}

// Run processes commands until ctx is cancelled
func (q *QueueService) Run(ctx context.Context) {
	q.ctx = ctx
	if last, err := q.launcher.LastMap(ctx); err != nil {
		log.Printf("Failed to read last played map: %v", err)
	} else {
		q.lastMap = last
	}
	if q.cache != nil {
		go q.writeCache(ctx)
	}
	log.Printf("Queue started with %d slots", len(q.slots))
	q.publishState()

	for {
		select {
		case <-ctx.Done():
			if q.retryTimer != nil {
				q.retryTimer.Stop()
			}
			log.Println("Queue stopped")
			return
		case <-q.wake:
		}

		q.pmu.Lock()
		batch := q.pending
		q.pending = nil
		q.pmu.Unlock()

		for _, fn := range batch {
			fn()
		}
	}
}

func (q *QueueService) post(fn func()) {
	q.pmu.Lock()
	q.pending = append(q.pending, fn)
	q.pmu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// do runs fn on the queue goroutine and waits for it
func (q *QueueService) do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	q.post(func() { done <- fn() })
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the latest queue snapshot
func (q *QueueService) State() model.QueueState {
	q.snapMu.RLock()
	defer q.snapMu.RUnlock()
	return copyState(q.snapshot)
}

// Join seats a player in a slot. A player already in the queue moves to the new slot.
func (q *QueueService) Join(ctx context.Context, playerID string, slotID int) error {
	player, err := q.players.GetByID(ctx, playerID)
	if err != nil {
		return storageErr("get player", err)
	}
	if player == nil {
		return fmt.Errorf("%w: player %s", ErrNotFound, playerID)
	}
	if !player.HasAcceptedRules {
		return ErrRulesNotAccepted
	}
	if !q.presence.IsOnline(playerID) {
		return ErrPlayerOffline
	}

	return q.do(ctx, func() error {
		if q.state != model.QueueWaiting {
			return ErrQueueLocked
		}
		if slotID < 0 || slotID >= len(q.slots) {
			return ErrNoSuchSlot
		}
		target := &q.slots[slotID]
		if target.PlayerID == playerID {
			return nil
		}
		if target.PlayerID != "" {
			return ErrSlotTaken
		}
		if i := q.slotOf(playerID); i >= 0 {
			q.slots[i].PlayerID = ""
			q.slots[i].Ready = false
		}
		target.PlayerID = playerID
		target.Ready = false

		log.Printf("Player %s joined the queue at slot %d (%s)", playerID, slotID, target.GameClass)
		q.publishState()
		return nil
	})
}

// Leave removes a player from the queue while it is still filling
func (q *QueueService) Leave(ctx context.Context, playerID string) error {
	return q.do(ctx, func() error {
		i := q.slotOf(playerID)
		if i < 0 {
			return ErrNotQueued
		}
		if q.state != model.QueueWaiting {
			return ErrQueueLocked
		}
		q.slots[i].PlayerID = ""
		q.slots[i].Ready = false

		log.Printf("Player %s left the queue", playerID)
		q.publishState()
		return nil
	})
}

// MarkReady flags a seated, connected player as ready
func (q *QueueService) MarkReady(ctx context.Context, playerID string) error {
	if !q.presence.IsOnline(playerID) {
		return ErrPlayerOffline
	}
	return q.do(ctx, func() error {
		i := q.slotOf(playerID)
		if i < 0 {
			return ErrNotQueued
		}
		if q.state != model.QueueWaiting {
			return ErrQueueLocked
		}
		if q.slots[i].Ready {
			return nil
		}
		q.slots[i].Ready = true
		q.maybeStartVote()
		q.publishState()
		return nil
	})
}

// Vote casts a map vote in the active round
func (q *QueueService) Vote(ctx context.Context, playerID, mapName string) error {
	var roundID string
	err := q.do(ctx, func() error {
		if q.state != model.QueueVoting {
			return ErrNoActiveRound
		}
		roundID = q.roundID
		return nil
	})
	if err != nil {
		return err
	}
	return q.votes.CastVote(roundID, playerID, mapName)
}

func (q *QueueService) maybeStartVote() {
	if q.state != model.QueueWaiting {
		return
	}
	eligible := make([]string, 0, len(q.slots))
	for _, s := range q.slots {
		if s.PlayerID == "" || !s.Ready {
			return
		}
		eligible = append(eligible, s.PlayerID)
	}

	candidates := CandidatesFor(q.cfg.Maps, q.lastMap, q.cfg.VoteOptions)
	roundID, err := q.votes.StartRound(candidates, eligible, q.cfg.VoteDuration)
	if err != nil {
		log.Printf("Failed to start map vote: %v", err)
		return
	}
	q.state = model.QueueVoting
	q.roundID = roundID
	q.candidates = candidates
	q.status = ""
}

func (q *QueueService) handleVoteResolved(r model.VoteResult) {
	if q.state != model.QueueVoting || r.RoundID != q.roundID {
		return
	}
	q.state = model.QueueAllocating
	q.mapName = r.Map
	q.roundID = ""
	q.launchFails = 0
	q.tryAllocate()
	q.publishState()
}

func (q *QueueService) tryAllocate() {
	if q.state != model.QueueAllocating {
		return
	}

	gs := q.pool.FindFree()
	if gs == nil {
		q.waitForServer(statusNoServers)
		return
	}
	taken, err := q.pool.Take(q.ctx, gs.ID)
	if err != nil {
		log.Printf("Failed to take game server %s: %v", gs.ID, err)
		q.waitForServer(statusNoServers)
		return
	}
	if q.retryTimer != nil {
		q.retryTimer.Stop()
		q.retryTimer = nil
	}

	q.state = model.QueueLaunching
	q.server = taken
	q.status = ""
	q.launchGen++
	gen := q.launchGen
	ctx := q.ctx
	mapName := q.mapName
	roster := q.roster()

	go func() {
		match, err := q.launcher.Launch(ctx, taken, mapName, roster)
		q.post(func() { q.handleLaunchResult(gen, taken, match, err) })
	}()
	q.publishState()
}

// waitForServer keeps the queue in allocating and schedules another attempt
func (q *QueueService) waitForServer(status string) {
	changed := q.status != status
	q.status = status
	if q.retryTimer == nil {
		var t *time.Timer
		t = time.AfterFunc(q.cfg.AllocationRetry, func() {
			q.post(func() {
				if q.retryTimer == t {
					q.retryTimer = nil
				}
				q.tryAllocate()
			})
		})
		q.retryTimer = t
	}
	if changed {
		log.Printf("Queue is waiting: %s", status)
		q.publishState()
	}
}

func (q *QueueService) handleLaunchResult(gen uint64, server *model.GameServer, match *model.Match, err error) {
	if gen != q.launchGen {
		// The roster changed while launching
		if err == nil {
			log.Printf("Match #%d launched for an abandoned roster, ending it", match.Number)
			ctx := q.ctx
			go func() {
				if _, err := q.launcher.ForceEnd(ctx, match.ID); err != nil {
					log.Printf("Failed to end abandoned match #%d: %v", match.Number, err)
				}
			}()
		} else {
			q.release(server.ID)
		}
		return
	}

	if err == nil {
		log.Printf("Match #%d launched on %s", match.Number, server.Name)
		q.lastMap = match.Map
		for i := range q.slots {
			q.slots[i].PlayerID = ""
			q.slots[i].Ready = false
		}
		q.resetRound()
		q.launchFails = 0
		q.publishState()
		return
	}

	q.launchFails++
	q.release(server.ID)
	q.server = nil

	if errors.Is(err, ErrControlPlane) && q.launchFails < q.cfg.LaunchRetryBudget {
		log.Printf("Launch attempt %d/%d failed, retrying: %v", q.launchFails, q.cfg.LaunchRetryBudget, err)
		q.state = model.QueueAllocating
		q.status = "launch failed, retrying"
		q.tryAllocate()
		q.publishState()
		return
	}

	log.Printf("ALERT: giving up launching after %d attempts: %v", q.launchFails, err)
	q.events.Publish(model.EventQueueAlert, map[string]interface{}{
		"message":  "match launch failed",
		"attempts": q.launchFails,
		"error":    err.Error(),
	})
	for i := range q.slots {
		q.slots[i].Ready = false
	}
	q.resetRound()
	q.status = "launch failed"
	q.launchFails = 0
	q.publishState()
}

func (q *QueueService) handlePlayerLeft(playerID string) {
	i := q.slotOf(playerID)
	if i < 0 {
		return
	}
	q.slots[i].PlayerID = ""
	q.slots[i].Ready = false
	log.Printf("Player %s removed from the queue after disconnecting", playerID)

	switch q.state {
	case model.QueueVoting:
		q.votes.Cancel(q.roundID)
	case model.QueueLaunching:
		// the pending launch result is discarded by generation
		q.launchGen++
	}
	if q.retryTimer != nil {
		q.retryTimer.Stop()
		q.retryTimer = nil
	}
	q.resetRound()

	seated := 0
	for _, s := range q.slots {
		if s.PlayerID != "" {
			seated++
		}
	}
	if seated < q.cfg.MinRosterSize {
		for j := range q.slots {
			q.slots[j].Ready = false
		}
	}
	q.publishState()
}

// resetRound returns to waiting without touching the slots
func (q *QueueService) resetRound() {
	q.state = model.QueueWaiting
	q.roundID = ""
	q.candidates = nil
	q.mapName = ""
	q.server = nil
	q.status = ""
}

func (q *QueueService) release(gameServerID string) {
	if _, err := q.pool.Release(q.ctx, gameServerID); err != nil {
		log.Printf("Failed to release game server %s: %v", gameServerID, err)
	}
}

func (q *QueueService) slotOf(playerID string) int {
	for i, s := range q.slots {
		if s.PlayerID == playerID {
			return i
		}
	}
	return -1
}

func (q *QueueService) roster() []model.RosterEntry {
	out := make([]model.RosterEntry, 0, len(q.slots))
	for _, s := range q.slots {
		if s.PlayerID != "" {
			out = append(out, model.RosterEntry{PlayerID: s.PlayerID, GameClass: s.GameClass})
		}
	}
	return out
}

func (q *QueueService) buildSnapshot() model.QueueState {
	snap := model.QueueState{
		State:       q.state,
		Slots:       append([]model.QueueSlot(nil), q.slots...),
		Status:      q.status,
		RoundID:     q.roundID,
		Candidates:  append([]string(nil), q.candidates...),
		Map:         q.mapName,
		LaunchFails: q.launchFails,
	}
	if q.server != nil {
		snap.GameServerID = q.server.ID
	}
	return snap
}

func (q *QueueService) publishState() {
	snap := q.buildSnapshot()
	q.snapMu.Lock()
	q.snapshot = snap
	q.snapMu.Unlock()

	if q.cache != nil {
		cached := copyState(snap)
		q.cacheMu.Lock()
		q.cacheNext = &cached
		q.cacheMu.Unlock()
		select {
		case q.cacheWake <- struct{}{}:
		default:
		}
	}
	q.events.Publish(model.EventQueueStateChanged, copyState(snap))
}

// writeCache mirrors snapshots into the cache one at a time. Snapshots
// published while a write is in flight collapse into the newest one.
func (q *QueueService) writeCache(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.cacheWake:
		}

		q.cacheMu.Lock()
		next := q.cacheNext
		q.cacheNext = nil
		q.cacheMu.Unlock()
		if next == nil {
			continue
		}

		writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := q.cache.SetState(writeCtx, next); err != nil {
			log.Printf("Failed to cache queue state: %v", err)
		}
		cancel()
	}
}

func copyState(s model.QueueState) model.QueueState {
	s.Slots = append([]model.QueueSlot(nil), s.Slots...)
	s.Candidates = append([]string(nil), s.Candidates...)
	return s
}
