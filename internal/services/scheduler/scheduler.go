// Package scheduler keeps one cron timer per configured event and hands every
// firing to the task dispatcher.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fgeck/gameserver-console/internal/metrics"
	"github.com/fgeck/gameserver-console/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ErrRejected is returned by Register when an event cannot be scheduled.
var ErrRejected = errors.New("event rejected")

// Dispatcher runs the task of a fired event.
type Dispatcher interface {
	Validate(event models.ScheduledEvent) error
	Dispatch(ctx context.Context, event models.ScheduledEvent) error
}

// Parser accepts the five-field cron grammar and descriptors such as @hourly.
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler owns the active timers.
type Scheduler struct {
	dispatcher Dispatcher
	logger     zerolog.Logger
	now        func() time.Time
	skip       atomic.Bool

	mu        sync.Mutex
	cron      *cron.Cron
	entries   map[string]cron.EntryID
	schedules map[string]cron.Schedule
	statuses  map[string]*models.EventStatus
	lastRuns  map[string]time.Time
	order     []string
}

// New creates a stopped scheduler.
func New(logger zerolog.Logger, dispatcher Dispatcher) *Scheduler {
	return NewWithClock(logger, dispatcher, time.Now)
}

// NewWithClock creates a stopped scheduler with a custom clock (for testing).
func NewWithClock(logger zerolog.Logger, dispatcher Dispatcher, now func() time.Time) *Scheduler {
	return &Scheduler{
		dispatcher: dispatcher,
		logger:     logger,
		now:        now,
		entries:    make(map[string]cron.EntryID),
		schedules:  make(map[string]cron.Schedule),
		statuses:   make(map[string]*models.EventStatus),
		lastRuns:   make(map[string]time.Time),
	}
}

// ValidateCron parses expr and checks that it fires at least once more.
func ValidateCron(expr string, now time.Time) (cron.Schedule, error) {
	schedule, err := Parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parsing cron expression %q: %w", expr, err)
	}
	if schedule.Next(now).IsZero() {
		return nil, fmt.Errorf("cron expression %q never fires", expr)
	}
	return schedule, nil
}

// Start schedules every event and starts the timer loop. Events that cannot
// be scheduled are logged and skipped; they never prevent the others.
func (s *Scheduler) Start(events []models.ScheduledEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		s.stopLocked()
	}

	adapter := cronLogger{logger: s.logger}
	s.cron = cron.New(
		cron.WithParser(Parser),
		cron.WithLogger(adapter),
		cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
	)
	s.statuses = make(map[string]*models.EventStatus)
	s.order = nil

	for _, event := range events {
		_ = s.registerLocked(event, false)
	}

	s.cron.Start()
	s.publishCounts()

	s.logger.Info().
		Int("configured", len(events)).
		Int("active", len(s.entries)).
		Msg("scheduler started")
}

// Stop removes every timer and stops the loop. The returned context is done
// once running tasks have returned. The active set is always cleared, even
// when removing an entry fails.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stopLocked()
}

func (s *Scheduler) stopLocked() context.Context {
	if s.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	for id, entryID := range s.entries {
		s.removeEntry(id, entryID)
	}
	s.entries = make(map[string]cron.EntryID)
	s.schedules = make(map[string]cron.Schedule)
	for _, st := range s.statuses {
		if st.State == models.EventScheduled {
			st.State = models.EventUnscheduled
			st.NextRun = nil
		}
	}

	ctx := s.cron.Stop()
	s.cron = nil
	s.publishCounts()

	s.logger.Info().Msg("scheduler stopped")
	return ctx
}

func (s *Scheduler) removeEntry(id string, entryID cron.EntryID) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("event_id", id).Msg("failed to cancel timer")
		}
	}()
	s.cron.Remove(entryID)
}

// Reload replaces the scheduled events.
func (s *Scheduler) Reload(events []models.ScheduledEvent) {
	s.Start(events)
}

// Register schedules one event on the running scheduler, replacing any timer
// with the same id.
func (s *Scheduler) Register(event models.ScheduledEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return fmt.Errorf("scheduler is not running")
	}

	id := event.EffectiveID()
	if entryID, ok := s.entries[id]; ok {
		s.removeEntry(id, entryID)
		delete(s.entries, id)
		delete(s.schedules, id)
	}

	err := s.registerLocked(event, true)
	s.publishCounts()
	return err
}

// Unregister cancels the timer of id and forgets it. It reports whether the
// event was known.
func (s *Scheduler) Unregister(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, known := s.statuses[id]
	if entryID, ok := s.entries[id]; ok && s.cron != nil {
		s.removeEntry(id, entryID)
	}
	delete(s.entries, id)
	delete(s.schedules, id)
	delete(s.statuses, id)
	delete(s.lastRuns, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.publishCounts()

	if known {
		s.logger.Info().Str("event_id", id).Msg("event unscheduled")
	}
	return known
}

// registerLocked records the status of event and adds its timer when it is
// schedulable. The returned error wraps ErrRejected for rejected events.
// Unless replace is set, an id that is already known is rejected.
func (s *Scheduler) registerLocked(event models.ScheduledEvent, replace bool) error {
	id := event.EffectiveID()
	status := &models.EventStatus{
		ID:   id,
		Name: event.Name,
		Type: event.Type,
		Cron: event.Cron,
	}

	logger := s.logger.With().
		Str("event_id", id).
		Str("event", event.Name).
		Str("task_type", string(event.Type)).
		Logger()

	reject := func(err error) error {
		status.State = models.EventRejected
		status.Error = err.Error()
		logger.Error().Err(err).Str("cron", event.Cron).Msg("event rejected")
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}

	if id == "" {
		return reject(errors.New("event has neither id nor alphanumeric name"))
	}
	if _, dup := s.statuses[id]; dup && !replace {
		// The first event with this id keeps its status and timer.
		logger.Error().Msg("duplicate event id, event rejected")
		return fmt.Errorf("%w: duplicate event id %q", ErrRejected, id)
	}
	if _, known := s.statuses[id]; !known {
		s.order = append(s.order, id)
	}
	s.statuses[id] = status

	if !event.Enabled {
		status.State = models.EventDisabled
		logger.Info().Msg("event disabled")
		return nil
	}
	if event.Cron == "" {
		status.State = models.EventUnscheduled
		logger.Warn().Msg("event has no cron expression, not scheduling")
		return nil
	}

	schedule, err := ValidateCron(event.Cron, s.now())
	if err != nil {
		return reject(err)
	}
	if err := s.dispatcher.Validate(event); err != nil {
		return reject(err)
	}

	s.entries[id] = s.cron.Schedule(schedule, cron.FuncJob(func() { s.fire(event) }))
	s.schedules[id] = schedule

	next := schedule.Next(s.now())
	status.State = models.EventScheduled
	status.NextRun = &next

	logger.Info().Str("cron", event.Cron).Time("next_run", next).Msg("event scheduled")
	return nil
}

// fire runs one timer firing. It never panics.
func (s *Scheduler) fire(event models.ScheduledEvent) {
	id := event.EffectiveID()
	logger := s.logger.With().
		Str("event_id", id).
		Str("event", event.Name).
		Str("task_type", string(event.Type)).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("task panicked")
		}
	}()

	s.markRun(id)

	if s.skip.Load() {
		logger.Info().Msg("events are skipped, not dispatching")
		metrics.RecordSkippedFiring()
		return
	}

	logger.Debug().Msg("event fired")
	if err := s.dispatcher.Dispatch(context.Background(), event); err != nil {
		logger.Error().Err(err).Msg("task failed")
	}
}

func (s *Scheduler) markRun(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastRuns[id] = s.now()
}

// SetSkip turns the global skip flag on or off. While set, firings are
// logged but not dispatched.
func (s *Scheduler) SetSkip(skip bool) {
	s.skip.Store(skip)
	s.logger.Info().Bool("skip", skip).Msg("skip events flag changed")
}

// Skipping reports the global skip flag.
func (s *Scheduler) Skipping() bool {
	return s.skip.Load()
}

// Active returns the number of live timers.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// Status returns the scheduling state of every known event in configuration
// order.
func (s *Scheduler) Status() []models.EventStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]models.EventStatus, 0, len(s.order))
	for _, id := range s.order {
		st := *s.statuses[id]
		if sched, ok := s.schedules[id]; ok {
			next := sched.Next(now)
			st.NextRun = &next
		}
		if last, ok := s.lastRuns[id]; ok {
			st.LastRun = &last
		}
		out = append(out, st)
	}
	return out
}

func (s *Scheduler) publishCounts() {
	counts := map[string]int{
		string(models.EventScheduled):   0,
		string(models.EventUnscheduled): 0,
		string(models.EventDisabled):    0,
		string(models.EventRejected):    0,
	}
	for _, st := range s.statuses {
		counts[string(st.State)]++
	}
	metrics.SetScheduledEvents(counts)
}
