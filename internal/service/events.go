package service

import (
	"context"
	"log"
	"sync"
	"time"

	"pickupd/internal/model"
)

const sinkTimeout = 2 * time.Second

// EventSink receives every published event (Redis fan-out, websocket hub)
type EventSink interface {
	Publish(ctx context.Context, evt model.Event) error
}

// EventBus delivers typed events to in-process subscribers and external sinks.
// Subscribers run synchronously on the publishing goroutine, in publish order,
// and must not block. Sinks are fed in publish order from the bus's own
// goroutine, so a slow sink never holds up a publisher.
type EventBus struct {
	mu    sync.RWMutex
	subs  map[model.EventType][]func(model.Event)
	sinks []EventSink

	// sink delivery queue drained by dispatch
	qmu     sync.Mutex
	pending []model.Event
	signal  chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewEventBus creates an event bus with optional sinks and starts its sink dispatcher
func NewEventBus(sinks ...EventSink) *EventBus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &EventBus{
		subs:    make(map[model.EventType][]func(model.Event)),
		sinks:   sinks,
		signal:  make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// AddSink registers an external sink
func (b *EventBus) AddSink(sink EventSink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, sink)
}

// Subscribe registers fn for the given event types
func (b *EventBus) Subscribe(fn func(model.Event), types ...model.EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range types {
		b.subs[t] = append(b.subs[t], fn)
	}
}

// Publish delivers an event. Sink failures are logged, never returned.
func (b *EventBus) Publish(evtType model.EventType, payload interface{}) {
	if b == nil {
		return
	}
	evt := model.Event{Type: evtType, Payload: payload, At: time.Now()}

	b.mu.RLock()
	subs := append([]func(model.Event){}, b.subs[evtType]...)
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(evt)
	}

	b.qmu.Lock()
	b.pending = append(b.pending, evt)
	b.qmu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// Close stops the sink dispatcher, aborting an in-flight delivery. Undelivered events are dropped.
func (b *EventBus) Close() {
	if b == nil {
		return
	}
	b.cancel()
	<-b.stopped
}

func (b *EventBus) dispatch() {
	defer close(b.stopped)
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-b.signal:
		}

		b.qmu.Lock()
		batch := b.pending
		b.pending = nil
		b.qmu.Unlock()

		b.mu.RLock()
		sinks := append([]EventSink{}, b.sinks...)
		b.mu.RUnlock()

		for _, evt := range batch {
			if b.ctx.Err() != nil {
				return
			}
			b.deliver(sinks, evt)
		}
	}
}

func (b *EventBus) deliver(sinks []EventSink, evt model.Event) {
	ctx, cancel := context.WithTimeout(b.ctx, sinkTimeout)
	defer cancel()
	for _, sink := range sinks {
		if err := sink.Publish(ctx, evt); err != nil {
			log.Printf("Failed to publish %s event: %v", evt.Type, err)
		}
	}
}
