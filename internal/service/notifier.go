package service

import (
	"sync"

	"pickupd/internal/model"
)

// Push message types sent to player sessions
const (
	PushQueueState   = "queue_state"
	PushVoteStarted  = "vote_started"
	PushVoteResolved = "vote_resolved"
	PushMatchStarted = "match_started"
	PushQueueAlert   = "queue_alert"
)

// Notifier translates bus events into pushes for connected players
type Notifier struct {
	out Broadcaster

	mu        sync.Mutex
	lastRound string
}

// NewNotifier subscribes to the bus and forwards to out
func NewNotifier(events *EventBus, out Broadcaster) *Notifier {
	n := &Notifier{out: out}
	events.Subscribe(n.onQueueState, model.EventQueueStateChanged)
	events.Subscribe(n.onVoteResolved, model.EventVoteResolved)
	events.Subscribe(n.onMatchState, model.EventMatchStateChanged)
	events.Subscribe(n.onAlert, model.EventQueueAlert)
	return n
}

func (n *Notifier) onQueueState(evt model.Event) {
	state, ok := evt.Payload.(model.QueueState)
	if !ok {
		return
	}
	n.out.BroadcastToAll(PushQueueState, state)

	n.mu.Lock()
	started := state.State == model.QueueVoting && state.RoundID != n.lastRound
	if started {
		n.lastRound = state.RoundID
	}
	n.mu.Unlock()

	if started {
		n.out.BroadcastToAll(PushVoteStarted, map[string]interface{}{
			"roundId":    state.RoundID,
			"candidates": state.Candidates,
		})
	}
}

func (n *Notifier) onVoteResolved(evt model.Event) {
	n.out.BroadcastToAll(PushVoteResolved, evt.Payload)
}

func (n *Notifier) onMatchState(evt model.Event) {
	change, ok := evt.Payload.(model.MatchStateChange)
	if !ok || change.State != model.MatchRunning {
		return
	}
	n.out.BroadcastToAll(PushMatchStarted, change)
}

func (n *Notifier) onAlert(evt model.Event) {
	n.out.BroadcastToAll(PushQueueAlert, evt.Payload)
}
