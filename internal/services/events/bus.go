// Package events is the in-process publish/subscribe bus that carries
// console notifications (planned restarts, backup outcomes) to the
// notifier and to WebSocket clients.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Type identifies the kind of an event.
type Type string

// Event types published by the console.
const (
	PlannedRestart Type = "planned_restart"
	BackupCreated  Type = "backup_created"
	BackupFailed   Type = "backup_failed"
	BackupRestored Type = "backup_restored"
)

// Event is one bus message.
type Event struct {
	ID   string            `json:"id"`
	Type Type              `json:"type"`
	Time time.Time         `json:"time"`
	Data map[string]string `json:"data,omitempty"`
}

// Handler handles an event. Handlers run on their own goroutine.
type Handler func(ctx context.Context, event Event)

// Publisher publishes events.
type Publisher interface {
	Publish(ctx context.Context, event Event) Event
}

// Bus is an asynchronous in-process event bus.
type Bus struct {
	logger zerolog.Logger
	now    func() time.Time

	mu          sync.RWMutex
	subscribers map[Type][]Handler
	all         []Handler

	wg sync.WaitGroup
}

// NewBus creates an empty bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		logger:      logger,
		now:         time.Now,
		subscribers: make(map[Type][]Handler),
	}
}

// Subscribe registers handler for events of type t.
func (b *Bus) Subscribe(t Type, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[t] = append(b.subscribers[t], handler)
	b.logger.Debug().Str("type", string(t)).Msg("handler subscribed")
}

// SubscribeAll registers handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.all = append(b.all, handler)
}

// Publish delivers event to every matching handler without waiting for them.
// A missing ID or Time is filled in; the completed event is returned.
func (b *Bus) Publish(ctx context.Context, event Event) Event {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Time.IsZero() {
		event.Time = b.now()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subscribers[event.Type])+len(b.all))
	handlers = append(handlers, b.subscribers[event.Type]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	b.logger.Debug().
		Str("event_id", event.ID).
		Str("type", string(event.Type)).
		Int("handlers", len(handlers)).
		Msg("event published")

	// Handlers outlive the publishing request.
	ctx = context.WithoutCancel(ctx)
	for _, h := range handlers {
		b.wg.Add(1)
		go b.run(ctx, h, event)
	}
	return event
}

func (b *Bus) run(ctx context.Context, h Handler, event Event) {
	defer b.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Interface("panic", r).
				Str("event_id", event.ID).
				Str("type", string(event.Type)).
				Msg("event handler panicked")
		}
	}()
	h(ctx, event)
}

// Wait blocks until every handler started so far has returned.
func (b *Bus) Wait() {
	b.wg.Wait()
}
