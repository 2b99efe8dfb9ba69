package service

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"pickupd/internal/cache"
	"pickupd/internal/model"
)

// PresenceEvent is delivered to presence subscribers
type PresenceEvent struct {
	Type     model.EventType // EventPlayerJoined or EventPlayerLeft
	PlayerID string
}

type presenceEntry struct {
	sessions map[string]struct{}
	timer    *time.Timer
	gen      uint64
}

// PresenceService maps players to their live transport sessions. A player
// whose last session drops is only reported as left after the grace period
// passes without a reconnect.
type PresenceService struct {
	grace  time.Duration
	cache  cache.PresenceCache
	events *EventBus

	mu        sync.Mutex
	players   map[string]*presenceEntry
	listeners []func(PresenceEvent)

	// Ordered delivery queue drained by dispatch
	qmu     sync.Mutex
	pending []PresenceEvent
	signal  chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

// NewPresenceService creates a tracker and starts its dispatcher. presenceCache may be nil.
func NewPresenceService(grace time.Duration, presenceCache cache.PresenceCache, events *EventBus) *PresenceService {
	s := &PresenceService{
		grace:   grace,
		cache:   presenceCache,
		events:  events,
		players: make(map[string]*presenceEntry),
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.dispatch()
	return s
}

// Subscribe registers a listener. Listeners are called from a single
// goroutine in emission order.
func (s *PresenceService) Subscribe(fn func(PresenceEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Connected records a new transport session for a player
func (s *PresenceService) Connected(playerID, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.players[playerID]
	if !ok {
		entry = &presenceEntry{sessions: make(map[string]struct{})}
		s.players[playerID] = entry
		entry.sessions[sessionID] = struct{}{}
		log.Printf("Player %s connected (session %s)", playerID, sessionID)
		s.emitLocked(PresenceEvent{Type: model.EventPlayerJoined, PlayerID: playerID})
		return
	}

	if _, dup := entry.sessions[sessionID]; dup {
		return
	}
	entry.sessions[sessionID] = struct{}{}
	if entry.timer != nil {
		entry.timer.Stop()
		entry.timer = nil
		entry.gen++
		// no playerLeft went out, so no playerJoined either
		log.Printf("Player %s reconnected within grace period", playerID)
	}
}

// Disconnected drops a transport session and arms the grace timer when it was the last one
func (s *PresenceService) Disconnected(playerID, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.players[playerID]
	if !ok {
		return
	}
	if _, known := entry.sessions[sessionID]; !known {
		return
	}
	delete(entry.sessions, sessionID)
	if len(entry.sessions) > 0 {
		return
	}

	if entry.timer != nil {
		entry.timer.Stop()
	}
	entry.gen++
	gen := entry.gen
	entry.timer = time.AfterFunc(s.grace, func() { s.expire(playerID, gen) })
}

func (s *PresenceService) expire(playerID string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.players[playerID]
	if !ok || entry.gen != gen || len(entry.sessions) > 0 {
		return
	}
	delete(s.players, playerID)
	log.Printf("Player %s left", playerID)
	s.emitLocked(PresenceEvent{Type: model.EventPlayerLeft, PlayerID: playerID})
}

// SessionsOf returns the active session ids of a player, sorted
func (s *PresenceService) SessionsOf(playerID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.players[playerID]
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(entry.sessions))
	for id := range entry.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IsOnline reports whether the player has at least one live session
func (s *PresenceService) IsOnline(playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.players[playerID]
	return ok && len(entry.sessions) > 0
}

// OnlinePlayers lists players with at least one live session
func (s *PresenceService) OnlinePlayers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.players))
	for id, entry := range s.players {
		if len(entry.sessions) > 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Close stops grace timers and the dispatcher. Pending events are dropped.
func (s *PresenceService) Close() {
	s.mu.Lock()
	for _, entry := range s.players {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	s.mu.Unlock()

	close(s.done)
	<-s.stopped
}

func (s *PresenceService) emitLocked(evt PresenceEvent) {
	s.qmu.Lock()
	s.pending = append(s.pending, evt)
	s.qmu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *PresenceService) dispatch() {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}

		s.qmu.Lock()
		batch := s.pending
		s.pending = nil
		s.qmu.Unlock()

		s.mu.Lock()
		listeners := append([]func(PresenceEvent){}, s.listeners...)
		s.mu.Unlock()

		for _, evt := range batch {
			s.mirror(evt)
			for _, fn := range listeners {
				fn(evt)
			}
			s.events.Publish(evt.Type, model.PresenceChange{PlayerID: evt.PlayerID})
		}
	}
}

func (s *PresenceService) mirror(evt PresenceEvent) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var err error
	if evt.Type == model.EventPlayerJoined {
		err = s.cache.Add(ctx, evt.PlayerID)
	} else {
		err = s.cache.Remove(ctx, evt.PlayerID)
	}
	if err != nil {
		log.Printf("Failed to mirror presence of player %s: %v", evt.PlayerID, err)
	}
}
