// Package registry holds the ordered list of configured events and writes
// every change back to the configuration file.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fgeck/gameserver-console/internal/models"
	"github.com/rs/zerolog"
)

// Sentinel errors.
var (
	ErrNotFound    = errors.New("event not found")
	ErrDuplicateID = errors.New("duplicate event id")
)

// Persister stores the event list.
type Persister interface {
	SaveEvents(events []models.ScheduledEvent) error
}

// Registry is the in-memory event list. Every mutation is persisted; when
// persisting fails the list is rolled back and the error returned.
type Registry struct {
	persister Persister
	logger    zerolog.Logger

	mu     sync.RWMutex
	events []models.ScheduledEvent
}

// New creates a registry holding events. Duplicate ids are rejected.
func New(logger zerolog.Logger, persister Persister, events []models.ScheduledEvent) (*Registry, error) {
	if err := checkUnique(events); err != nil {
		return nil, err
	}
	return &Registry{
		persister: persister,
		logger:    logger,
		events:    clone(events),
	}, nil
}

// List returns a copy of the events in configuration order.
func (r *Registry) List() []models.ScheduledEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return clone(r.events)
}

// Get returns the event with the given id.
func (r *Registry) Get(id string) (models.ScheduledEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.index(id)
	if i < 0 {
		return models.ScheduledEvent{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cloneEvent(r.events[i]), nil
}

// Add appends event.
func (r *Registry) Add(event models.ScheduledEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.index(event.EffectiveID()) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateID, event.EffectiveID())
	}
	next := append(clone(r.events), cloneEvent(event))
	return r.commit(next)
}

// Update replaces the event with the given id, keeping its position. The
// replacement may carry a new id as long as it stays unique.
func (r *Registry) Update(id string, event models.ScheduledEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if newID := event.EffectiveID(); newID != id && r.index(newID) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateID, newID)
	}
	next := clone(r.events)
	next[i] = cloneEvent(event)
	return r.commit(next)
}

// Remove deletes the event with the given id.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := clone(r.events)
	next = append(next[:i], next[i+1:]...)
	return r.commit(next)
}

// Replace swaps the whole list.
func (r *Registry) Replace(events []models.ScheduledEvent) error {
	if err := checkUnique(events); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.commit(clone(events))
}

// Load swaps the list without persisting it, for lists that were just read
// from the configuration file.
func (r *Registry) Load(events []models.ScheduledEvent) error {
	if err := checkUnique(events); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = clone(events)
	return nil
}

// commit persists next and installs it. The current list is untouched when
// persisting fails.
func (r *Registry) commit(next []models.ScheduledEvent) error {
	if r.persister != nil {
		if err := r.persister.SaveEvents(next); err != nil {
			r.logger.Error().Err(err).Msg("failed to persist events, keeping previous list")
			return fmt.Errorf("persisting events: %w", err)
		}
	}
	r.events = next
	r.logger.Debug().Int("events", len(next)).Msg("events updated")
	return nil
}

func (r *Registry) index(id string) int {
	for i, e := range r.events {
		if e.EffectiveID() == id {
			return i
		}
	}
	return -1
}

func checkUnique(events []models.ScheduledEvent) error {
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		id := e.EffectiveID()
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func clone(events []models.ScheduledEvent) []models.ScheduledEvent {
	out := make([]models.ScheduledEvent, len(events))
	for i, e := range events {
		out[i] = cloneEvent(e)
	}
	return out
}

func cloneEvent(e models.ScheduledEvent) models.ScheduledEvent {
	if e.Params != nil {
		e.Params = append([]string(nil), e.Params...)
	}
	return e
}
