package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"pickupd/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []model.Event
	err    error
}

func (s *recordingSink) Publish(ctx context.Context, evt model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return s.err
}

func (s *recordingSink) types() []model.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.EventType, 0, len(s.events))
	for _, evt := range s.events {
		out = append(out, evt.Type)
	}
	return out
}

// hangingSink holds every delivery until its context gives up
type hangingSink struct {
	mu    sync.Mutex
	calls int
}

func (s *hangingSink) Publish(ctx context.Context, evt model.Event) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (s *hangingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestEventBus(t *testing.T) {
	sink := &recordingSink{}
	failing := &recordingSink{err: errBoom}
	bus := NewEventBus(failing)
	defer bus.Close()
	bus.AddSink(sink)

	var got []model.EventType
	bus.Subscribe(func(evt model.Event) { got = append(got, evt.Type) },
		model.EventPlayerJoined, model.EventPlayerLeft)

	bus.Publish(model.EventPlayerJoined, model.PresenceChange{PlayerID: "p1"})
	bus.Publish(model.EventVoteResolved, nil)
	bus.Publish(model.EventPlayerLeft, model.PresenceChange{PlayerID: "p1"})

	// subscribers have run by the time Publish returns
	assert.Equal(t, []model.EventType{model.EventPlayerJoined, model.EventPlayerLeft}, got)

	want := []model.EventType{model.EventPlayerJoined, model.EventVoteResolved, model.EventPlayerLeft}
	assert.Eventually(t, func() bool { return len(sink.types()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, sink.types(), "sinks see every event in publish order")
	assert.Eventually(t, func() bool { return len(failing.types()) == 3 }, time.Second, 5*time.Millisecond,
		"a failing sink does not stop delivery")
}

func TestEventBus_SlowSinkDoesNotBlockPublish(t *testing.T) {
	slow := &hangingSink{}
	sink := &recordingSink{}
	bus := NewEventBus(slow, sink)

	start := time.Now()
	for i := 0; i < 5; i++ {
		bus.Publish(model.EventQueueStateChanged, i)
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	require.Eventually(t, func() bool { return slow.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, sink.types(), "later sinks wait their turn behind the slow one")

	// Close aborts the stuck delivery
	done := make(chan struct{})
	go func() {
		bus.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
	assert.NotPanics(t, func() { bus.Publish(model.EventQueueAlert, nil) })
}

func TestEventBus_NilIsSilent(t *testing.T) {
	var bus *EventBus
	assert.NotPanics(t, func() { bus.Publish(model.EventQueueAlert, nil) })
	assert.NotPanics(t, bus.Close)
}

type pushRecorder struct {
	pushes []string
}

func (p *pushRecorder) BroadcastToAll(msgType string, payload interface{}) {
	p.pushes = append(p.pushes, msgType)
}

func TestNotifier(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()
	out := &pushRecorder{}
	NewNotifier(bus, out)

	voting := model.QueueState{State: model.QueueVoting, RoundID: "r1", Candidates: []string{"cp_a"}}
	bus.Publish(model.EventQueueStateChanged, voting)
	bus.Publish(model.EventQueueStateChanged, voting)
	bus.Publish(model.EventVoteResolved, model.VoteResult{RoundID: "r1", Map: "cp_a"})
	bus.Publish(model.EventMatchStateChanged, model.MatchStateChange{Number: 1, State: model.MatchLaunching})
	bus.Publish(model.EventMatchStateChanged, model.MatchStateChange{Number: 1, State: model.MatchRunning})

	assert.Equal(t, []string{
		PushQueueState, PushVoteStarted,
		PushQueueState,
		PushVoteResolved,
		PushMatchStarted,
	}, out.pushes)
}
