package event

import (
	"log/slog"
	"sync"
	"time"
)

// Type identifies a category of event.
type Type string

// Known event types.
const (
	ReconcileCompleted Type = "reconcile.completed"
	ReviewNeeded       Type = "review.needed"
	ReviewDecided      Type = "review.decided"
	MediaMissing       Type = "media.missing"
)

// Types lists every event type in a stable order.
var Types = []Type{ReconcileCompleted, ReviewNeeded, ReviewDecided, MediaMissing}

// Event represents something that happened in the system.
type Event struct {
	Type      Type           `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Handler is a function that processes an event.
type Handler func(Event)

// Publisher accepts events. *Bus and Discard implement it.
type Publisher interface {
	Publish(Event)
}

type discard struct{}

func (discard) Publish(Event) {}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

// Bus is an in-process event bus backed by a buffered channel.
type Bus struct {
	ch       chan Event
	mu       sync.RWMutex
	subs     map[Type][]Handler
	logger   *slog.Logger
	done     chan struct{}
	finished chan struct{}
	stopped  bool
}

// NewBus creates a new event bus with the given buffer size.
func NewBus(logger *slog.Logger, bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Bus{
		ch:       make(chan Event, bufSize),
		subs:     make(map[Type][]Handler),
		logger:   logger.With(slog.String("component", "event-bus")),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// Subscribe registers a handler for the given event type.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], h)
}

// SubscribeAll registers a handler for every known event type.
func (b *Bus) SubscribeAll(h Handler) {
	for _, t := range Types {
		b.Subscribe(t, h)
	}
}

// Publish sends an event to the bus. Non-blocking; drops with a warning if the buffer is full.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	select {
	case b.ch <- e:
	default:
		b.logger.Warn("event bus full, dropping event", "type", string(e.Type))
	}
}

// Start begins draining the channel and dispatching events to subscribers.
// Call this in a goroutine. It blocks until Stop is called.
func (b *Bus) Start() {
	defer close(b.finished)
	for {
		select {
		case e := <-b.ch:
			b.dispatch(e)
		case <-b.done:
			for {
				select {
				case e := <-b.ch:
					b.dispatch(e)
				default:
					return
				}
			}
		}
	}
}

// Stop signals the bus to stop processing events after draining the buffer.
func (b *Bus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.stopped {
		b.stopped = true
		close(b.done)
	}
}

// Wait blocks until Start has returned after Stop, or until timeout
// elapses. It reports whether the buffer was fully drained.
func (b *Bus) Wait(timeout time.Duration) bool {
	select {
	case <-b.finished:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (b *Bus) dispatch(e Event) {
	b.mu.RLock()
	handlers := b.subs[e.Type]
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked", "type", string(e.Type), "panic", r)
				}
			}()
			h(e)
		}()
	}
}
