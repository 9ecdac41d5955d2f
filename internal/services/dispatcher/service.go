// Package dispatcher executes the task of a scheduled event against the game
// server, its RCon interface and the backup manager.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fgeck/gameserver-console/internal/metrics"
	"github.com/fgeck/gameserver-console/internal/models"
	"github.com/fgeck/gameserver-console/internal/services/backup"
	"github.com/fgeck/gameserver-console/internal/services/events"
	"github.com/fgeck/gameserver-console/internal/services/rcon"
	"github.com/fgeck/gameserver-console/internal/services/supervisor"
	"github.com/rs/zerolog"
)

// ErrRCONNotConfigured is returned by RCon tasks when no RCon client is set.
var ErrRCONNotConfigured = errors.New("rcon is not configured")

// Service defines the interface for task dispatch.
type Service interface {
	Validate(event models.ScheduledEvent) error
	Dispatch(ctx context.Context, event models.ScheduledEvent) error
}

// Impl implements the dispatcher Service interface.
type Impl struct {
	supervisorSvc supervisor.Service
	rconSvc       rcon.Service // nil when rcon is not configured
	backupSvc     backup.Service
	bus           events.Publisher
	logger        zerolog.Logger

	wg sync.WaitGroup
}

// New creates a new dispatcher. rconSvc may be nil.
func New(
	logger zerolog.Logger,
	supervisorSvc supervisor.Service,
	rconSvc rcon.Service,
	backupSvc backup.Service,
	bus events.Publisher,
) *Impl {
	return &Impl{
		supervisorSvc: supervisorSvc,
		rconSvc:       rconSvc,
		backupSvc:     backupSvc,
		bus:           bus,
		logger:        logger,
	}
}

// Validate reports whether event describes a task the dispatcher can run.
func (s *Impl) Validate(event models.ScheduledEvent) error {
	_, err := ParseTask(event)
	return err
}

// Dispatch runs the task of event. Every task requires the server to be
// started; otherwise it is skipped with a warning and nil is returned.
func (s *Impl) Dispatch(ctx context.Context, event models.ScheduledEvent) error {
	task, err := ParseTask(event)
	if err != nil {
		return err
	}

	logger := s.logger.With().
		Str("event_id", event.EffectiveID()).
		Str("event", event.Name).
		Str("task_type", string(task.Type())).
		Logger()

	if state := s.supervisorSvc.State(ctx); state != models.ServerStarted {
		logger.Warn().Str("state", string(state)).Msg("server is not started, skipping task")
		metrics.RecordTask(string(task.Type()), "skipped")
		return nil
	}

	start := time.Now()
	logger.Info().Msg("running task")

	if err := s.run(ctx, logger, event, task); err != nil {
		metrics.RecordTask(string(task.Type()), "failed")
		return fmt.Errorf("%s task failed: %w", task.Type(), err)
	}

	metrics.RecordTask(string(task.Type()), "success")
	logger.Info().Dur("duration", time.Since(start)).Msg("task completed")
	return nil
}

func (s *Impl) run(ctx context.Context, logger zerolog.Logger, event models.ScheduledEvent, task Task) error {
	switch t := task.(type) {
	case Restart:
		return s.restart(ctx, logger, event)
	case Message:
		return s.withRCON(func(r rcon.Service) error { return r.Global(ctx, t.Text) })
	case KickAll:
		return s.withRCON(func(r rcon.Service) error { return r.KickAll(ctx) })
	case Lock:
		return s.withRCON(func(r rcon.Service) error { return r.Lock(ctx) })
	case Unlock:
		return s.withRCON(func(r rcon.Service) error { return r.Unlock(ctx) })
	case Backup:
		return s.backup(ctx, logger, event, t)
	default:
		return fmt.Errorf("%w: unhandled task %T", ErrInvalidEvent, task)
	}
}

func (s *Impl) withRCON(fn func(rcon.Service) error) error {
	if s.rconSvc == nil {
		return ErrRCONNotConfigured
	}
	return fn(s.rconSvc)
}

// restart announces the restart and kills the server without waiting for it.
func (s *Impl) restart(ctx context.Context, logger zerolog.Logger, event models.ScheduledEvent) error {
	s.bus.Publish(ctx, events.Event{
		Type: events.PlannedRestart,
		Data: map[string]string{
			"event_id": event.EffectiveID(),
			"event":    event.Name,
		},
	})

	killCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Interface("panic", r).Msg("server kill panicked")
			}
		}()
		if err := s.supervisorSvc.KillServer(killCtx); err != nil {
			logger.Error().Err(err).Msg("failed to kill server")
			return
		}
		logger.Info().Msg("server killed for planned restart")
	}()
	return nil
}

func (s *Impl) backup(ctx context.Context, logger zerolog.Logger, event models.ScheduledEvent, task Backup) error {
	result, err := s.backupSvc.Create(ctx)
	if err != nil {
		s.bus.Publish(ctx, events.Event{
			Type: events.BackupFailed,
			Data: map[string]string{
				"event_id": event.EffectiveID(),
				"error":    err.Error(),
			},
		})
		return err
	}
	if result.Skipped {
		logger.Warn().Msg("backup skipped, mission directory missing")
		return nil
	}

	s.bus.Publish(ctx, events.Event{
		Type: events.BackupCreated,
		Data: map[string]string{
			"event_id":    event.EffectiveID(),
			"artifact":    result.Name,
			"description": task.Description,
		},
	})
	logger.Info().Str("artifact", result.Name).Str("description", task.Description).Msg("scheduled backup created")
	return nil
}

// Wait blocks until pending server kills have returned.
func (s *Impl) Wait() {
	s.wg.Wait()
}
