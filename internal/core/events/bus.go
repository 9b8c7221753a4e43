package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

type Event interface {
	EventType() string
	EventID() string
	OccurredAt() time.Time
	Payload() interface{}
}

type BaseEvent struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) EventID() string {
	return e.ID
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

func (e BaseEvent) Payload() interface{} {
	return e.Data
}

type Handler func(ctx context.Context, event Event) error

// Publisher is what services depend on; *EventBus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// EventBus fans events out to in-process subscribers. Access decisions and
// account changes are published here so audit persistence and change logging
// never sit on the request path.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *slog.Logger
	inflight sync.WaitGroup
	slots    *semaphore.Weighted
}

// DefaultConcurrency is the number of subscribers allowed to run at once when
// no WithConcurrency option is given.
const DefaultConcurrency = 32

type Option func(*EventBus)

// WithConcurrency caps how many subscribers run at the same time. Values
// below one keep the default.
func WithConcurrency(n int) Option {
	return func(eb *EventBus) {
		if n > 0 {
			eb.slots = semaphore.NewWeighted(int64(n))
		}
	}
}

func NewEventBus(logger *slog.Logger, opts ...Option) *EventBus {
	eb := &EventBus{
		handlers: make(map[string][]Handler),
		logger:   logger,
		slots:    semaphore.NewWeighted(DefaultConcurrency),
	}
	for _, opt := range opts {
		opt(eb)
	}
	return eb
}

func (eb *EventBus) Subscribe(eventType string, handler Handler) {
	eb.mu.Lock()
	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
	n := len(eb.handlers[eventType])
	eb.mu.Unlock()

	eb.logger.Debug("subscribed", "event_type", eventType, "subscribers", n)
}

func (eb *EventBus) subscribers(eventType string) []Handler {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return eb.handlers[eventType]
}

// Publish hands the event to every subscriber on its own goroutine. Once the
// concurrency cap is reached it waits for a free slot, so a burst of events
// slows the publisher instead of piling up goroutines. It fails only when ctx
// ends while waiting; handler failures are logged, never returned.
// Handlers run on a context detached from the caller's cancellation so a
// finished request does not abort them.
func (eb *EventBus) Publish(ctx context.Context, event Event) error {
	handlers := eb.subscribers(event.EventType())
	if len(handlers) == 0 {
		return nil
	}

	hctx := context.WithoutCancel(ctx)
	for i, h := range handlers {
		if err := eb.slots.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("event %s not delivered to %d subscribers: %w", event.EventType(), len(handlers)-i, err)
		}
		eb.inflight.Add(1)
		go func(h Handler) {
			defer eb.inflight.Done()
			defer eb.slots.Release(1)
			eb.dispatch(hctx, h, event)
		}(h)
	}
	return nil
}

func (eb *EventBus) dispatch(ctx context.Context, h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.ErrorContext(ctx, "event subscriber panicked",
				"event_type", event.EventType(),
				"event_id", event.EventID(),
				"panic", fmt.Sprint(r))
		}
	}()

	if err := h(ctx, event); err != nil {
		eb.logger.ErrorContext(ctx, "event subscriber failed",
			"event_type", event.EventType(),
			"event_id", event.EventID(),
			"error", err)
	}
}

// Drain waits for in-flight subscribers or for ctx to end. Commands call it
// before closing the database so queued audit rows are not lost.
func (eb *EventBus) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		eb.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
