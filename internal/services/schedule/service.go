// Package schedule is the editing surface for scheduled events. Every change
// is validated, persisted through the registry and applied to the one timer
// it affects.
package schedule

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fgeck/gameserver-console/internal/models"
	"github.com/fgeck/gameserver-console/internal/services/registry"
	"github.com/fgeck/gameserver-console/internal/services/scheduler"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrInvalidSchedule is returned for events that could never be scheduled.
var ErrInvalidSchedule = errors.New("invalid schedule")

// defaultBackupName names the backup event SetSchedule creates.
const defaultBackupName = "Backup"

// Store holds the persisted event list.
type Store interface {
	List() []models.ScheduledEvent
	Add(event models.ScheduledEvent) error
	Update(id string, event models.ScheduledEvent) error
	Remove(id string) error
}

// Scheduler owns the live timers.
type Scheduler interface {
	Register(event models.ScheduledEvent) error
	Unregister(id string) bool
	Reload(events []models.ScheduledEvent)
}

// Validator checks that an event's task is well-formed.
type Validator interface {
	Validate(event models.ScheduledEvent) error
}

// Service implements the schedule operations.
type Service struct {
	store     Store
	scheduler Scheduler
	validator Validator
	logger    zerolog.Logger
	now       func() time.Time
	newID     func() string

	// mu keeps the stored list and the live timers in step.
	mu sync.Mutex
}

// New creates a schedule service.
func New(logger zerolog.Logger, store Store, sched Scheduler, validator Validator) *Service {
	return &Service{
		store:     store,
		scheduler: sched,
		validator: validator,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// ListSchedules returns every configured event in order.
func (s *Service) ListSchedules() []models.ScheduledEvent {
	return s.store.List()
}

// AddSchedule validates, stores and schedules event. An event without any
// usable id is given a generated one.
func (s *Service) AddSchedule(event models.ScheduledEvent) (models.ScheduledEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addLocked(event)
}

func (s *Service) addLocked(event models.ScheduledEvent) (models.ScheduledEvent, error) {
	if event.EffectiveID() == "" {
		event.ID = s.newID()
	}
	if err := s.validate(event); err != nil {
		return models.ScheduledEvent{}, err
	}
	if err := s.store.Add(event); err != nil {
		return models.ScheduledEvent{}, err
	}

	s.apply(event)
	s.logger.Info().Str("event_id", event.EffectiveID()).Str("cron", event.Cron).Msg("schedule added")
	return event, nil
}

// UpdateSchedule replaces the event with the given id. When the replacement
// has no id of its own it keeps id.
func (s *Service) UpdateSchedule(id string, event models.ScheduledEvent) (models.ScheduledEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateLocked(id, event)
}

func (s *Service) updateLocked(id string, event models.ScheduledEvent) (models.ScheduledEvent, error) {
	if event.ID == "" {
		event.ID = id
	}
	if err := s.validate(event); err != nil {
		return models.ScheduledEvent{}, err
	}
	if err := s.store.Update(id, event); err != nil {
		return models.ScheduledEvent{}, err
	}

	if newID := event.EffectiveID(); newID != id {
		s.scheduler.Unregister(id)
	}
	s.apply(event)
	s.logger.Info().Str("event_id", event.EffectiveID()).Str("cron", event.Cron).Msg("schedule updated")
	return event, nil
}

// DeleteSchedule removes the event and cancels its timer.
func (s *Service) DeleteSchedule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Remove(id); err != nil {
		return err
	}
	s.scheduler.Unregister(id)
	s.logger.Info().Str("event_id", id).Msg("schedule deleted")
	return nil
}

// GetSchedule returns the cron expression and enabled flag of the first
// backup event. Without a backup event it returns an empty expression.
func (s *Service) GetSchedule() (string, bool) {
	event, ok := s.firstBackup()
	if !ok {
		return "", false
	}
	return event.Cron, event.Enabled
}

// SetSchedule sets the cron expression of the first backup event, creating
// one when there is none.
func (s *Service) SetSchedule(expr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.firstBackup()
	if !ok {
		_, err := s.addLocked(models.ScheduledEvent{
			Name:    defaultBackupName,
			Type:    models.TaskBackup,
			Cron:    expr,
			Enabled: true,
		})
		return err
	}

	event.Cron = expr
	_, err := s.updateLocked(event.EffectiveID(), event)
	return err
}

// EnableSchedule turns the first backup event on or off, keeping its cron
// expression.
func (s *Service) EnableSchedule(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.firstBackup()
	if !ok {
		return fmt.Errorf("%w: no backup schedule", registry.ErrNotFound)
	}

	event.Enabled = enabled
	_, err := s.updateLocked(event.EffectiveID(), event)
	return err
}

// AddBackupSchedule appends a backup event with a generated id.
func (s *Service) AddBackupSchedule(expr, description string) (models.ScheduledEvent, error) {
	event := models.ScheduledEvent{
		Name:    defaultBackupName,
		ID:      s.newID(),
		Type:    models.TaskBackup,
		Cron:    expr,
		Enabled: true,
	}
	if description != "" {
		event.Name = description
		event.Params = []string{description}
	}
	return s.AddSchedule(event)
}

// Reload reapplies the stored list to the scheduler.
func (s *Service) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scheduler.Reload(s.store.List())
}

func (s *Service) firstBackup() (models.ScheduledEvent, bool) {
	for _, e := range s.store.List() {
		if e.Type == models.TaskBackup {
			return e, true
		}
	}
	return models.ScheduledEvent{}, false
}

// validate rejects events the scheduler would reject. An empty expression
// is allowed and leaves the event unscheduled.
func (s *Service) validate(event models.ScheduledEvent) error {
	if event.Cron != "" {
		if _, err := scheduler.ValidateCron(event.Cron, s.now()); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
		}
	}
	if err := s.validator.Validate(event); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}
	return nil
}

// apply registers the stored event. Validation already ran, so a rejection
// here is only logged; the event stays stored with a rejected status.
func (s *Service) apply(event models.ScheduledEvent) {
	if err := s.scheduler.Register(event); err != nil {
		s.logger.Error().Err(err).Str("event_id", event.EffectiveID()).Msg("failed to schedule stored event")
	}
}
