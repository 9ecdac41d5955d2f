package scheduler

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/fgeck/gameserver-console/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock implementations.
type mockDispatcher struct {
	validateFunc func(event models.ScheduledEvent) error
	dispatchFunc func(ctx context.Context, event models.ScheduledEvent) error

	mu         sync.Mutex
	dispatched []string
}

func (m *mockDispatcher) Validate(event models.ScheduledEvent) error {
	if m.validateFunc != nil {
		return m.validateFunc(event)
	}
	return nil
}

func (m *mockDispatcher) Dispatch(ctx context.Context, event models.ScheduledEvent) error {
	m.mu.Lock()
	m.dispatched = append(m.dispatched, event.EffectiveID())
	m.mu.Unlock()
	if m.dispatchFunc != nil {
		return m.dispatchFunc(ctx, event)
	}
	return nil
}

func (m *mockDispatcher) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.dispatched...)
}

var testNow = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.Local)

func newTestScheduler(d Dispatcher) *Scheduler {
	return NewWithClock(zerolog.New(io.Discard), d, func() time.Time { return testNow })
}

func statusByID(t *testing.T, s *Scheduler, id string) models.EventStatus {
	t.Helper()
	for _, st := range s.Status() {
		if st.ID == id {
			return st
		}
	}
	t.Fatalf("no status for event %q", id)
	return models.EventStatus{}
}

func TestStart_BadEventDoesNotBlockOthers(t *testing.T) {
	s := newTestScheduler(&mockDispatcher{})
	defer s.Stop()

	s.Start([]models.ScheduledEvent{
		{Name: "A", Type: models.TaskBackup, Cron: "*/5 * * * *", Enabled: true},
		{Name: "B", Type: models.TaskRestart, Cron: "invalid", Enabled: true},
	})

	assert.Equal(t, 1, s.Active())

	a := statusByID(t, s, "A")
	assert.Equal(t, models.EventScheduled, a.State)
	require.NotNil(t, a.NextRun)
	assert.True(t, testNow.Add(5*time.Minute).Equal(*a.NextRun), "next run %s", *a.NextRun)

	b := statusByID(t, s, "B")
	assert.Equal(t, models.EventRejected, b.State)
	assert.NotEmpty(t, b.Error)
	assert.Nil(t, b.NextRun)
}

func TestStartStop_EndToEnd(t *testing.T) {
	s := newTestScheduler(&mockDispatcher{})

	s.Start([]models.ScheduledEvent{
		{Name: "A", Type: models.TaskBackup, Cron: "*/5 * * * *", Enabled: true},
		{Name: "B", Type: models.TaskRestart, Cron: "invalid", Enabled: true},
	})
	require.Equal(t, 1, s.Active())

	ctx := s.Stop()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("stop context not done")
	}
	assert.Equal(t, 0, s.Active())
	assert.Equal(t, models.EventUnscheduled, statusByID(t, s, "A").State)
}

func TestStart_States(t *testing.T) {
	d := &mockDispatcher{
		validateFunc: func(event models.ScheduledEvent) error {
			if event.Type == "bogus" {
				return errors.New("unknown task type")
			}
			return nil
		},
	}
	s := newTestScheduler(d)
	defer s.Stop()

	s.Start([]models.ScheduledEvent{
		{Name: "No Cron", Type: models.TaskBackup, Enabled: true},
		{Name: "Disabled", Type: models.TaskBackup, Cron: "0 * * * *", Enabled: false},
		{Name: "Bogus", Type: "bogus", Cron: "0 * * * *", Enabled: true},
		{Name: "Never", Type: models.TaskBackup, Cron: "0 0 30 2 *", Enabled: true},
		{Name: "Hourly", Type: models.TaskBackup, Cron: "@hourly", Enabled: true},
		{Name: "Steps", Type: models.TaskLock, Cron: "0-30/15 8-20 * * 1,3,5", Enabled: true},
	})

	assert.Equal(t, 2, s.Active())
	assert.Equal(t, models.EventUnscheduled, statusByID(t, s, "NoCron").State)
	assert.Equal(t, models.EventDisabled, statusByID(t, s, "Disabled").State)
	assert.Equal(t, models.EventRejected, statusByID(t, s, "Bogus").State)
	assert.Equal(t, models.EventRejected, statusByID(t, s, "Never").State)
	assert.Equal(t, models.EventScheduled, statusByID(t, s, "Hourly").State)
	assert.Equal(t, models.EventScheduled, statusByID(t, s, "Steps").State)

	ids := make([]string, 0)
	for _, st := range s.Status() {
		ids = append(ids, st.ID)
	}
	assert.Equal(t, []string{"NoCron", "Disabled", "Bogus", "Never", "Hourly", "Steps"}, ids)
}

func TestStart_DuplicateIDKeepsFirst(t *testing.T) {
	s := newTestScheduler(&mockDispatcher{})
	defer s.Stop()

	s.Start([]models.ScheduledEvent{
		{Name: "Backup", ID: "b1", Type: models.TaskBackup, Cron: "0 * * * *", Enabled: true},
		{Name: "Other", ID: "b1", Type: models.TaskRestart, Cron: "0 4 * * *", Enabled: true},
	})

	assert.Equal(t, 1, s.Active())
	st := statusByID(t, s, "b1")
	assert.Equal(t, "Backup", st.Name)
	assert.Len(t, s.Status(), 1)
}

func TestStart_RestartReplacesTimers(t *testing.T) {
	s := newTestScheduler(&mockDispatcher{})
	defer s.Stop()

	s.Start([]models.ScheduledEvent{
		{Name: "A", Type: models.TaskBackup, Cron: "0 * * * *", Enabled: true},
		{Name: "B", Type: models.TaskBackup, Cron: "0 * * * *", Enabled: true},
	})
	s.Reload([]models.ScheduledEvent{
		{Name: "C", Type: models.TaskBackup, Cron: "0 * * * *", Enabled: true},
	})

	assert.Equal(t, 1, s.Active())
	assert.Len(t, s.Status(), 1)
}

func TestFire_Dispatches(t *testing.T) {
	d := &mockDispatcher{}
	s := newTestScheduler(d)
	event := models.ScheduledEvent{Name: "A", Type: models.TaskBackup, Cron: "0 * * * *", Enabled: true}
	s.Start([]models.ScheduledEvent{event})
	defer s.Stop()

	s.fire(event)

	assert.Equal(t, []string{"A"}, d.calls())
	st := statusByID(t, s, "A")
	require.NotNil(t, st.LastRun)
	assert.True(t, testNow.Equal(*st.LastRun))
}

func TestFire_SkipFlag(t *testing.T) {
	d := &mockDispatcher{}
	s := newTestScheduler(d)
	event := models.ScheduledEvent{Name: "A", Type: models.TaskBackup, Cron: "0 * * * *", Enabled: true}

	s.SetSkip(true)
	s.fire(event)
	assert.True(t, s.Skipping())
	assert.Empty(t, d.calls())

	s.SetSkip(false)
	s.fire(event)
	assert.Equal(t, []string{"A"}, d.calls())
}

func TestFire_RecoversPanicAndError(t *testing.T) {
	d := &mockDispatcher{
		dispatchFunc: func(_ context.Context, event models.ScheduledEvent) error {
			if event.Name == "Panic" {
				panic("task exploded")
			}
			return errors.New("task failed")
		},
	}
	s := newTestScheduler(d)

	assert.NotPanics(t, func() {
		s.fire(models.ScheduledEvent{Name: "Panic", Type: models.TaskBackup})
		s.fire(models.ScheduledEvent{Name: "Error", Type: models.TaskBackup})
	})
	assert.Equal(t, []string{"Panic", "Error"}, d.calls())
}

func TestTimer_SingleFlightPerEvent(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	d := &mockDispatcher{
		dispatchFunc: func(context.Context, models.ScheduledEvent) error {
			started <- struct{}{}
			<-release
			return nil
		},
	}
	s := newTestScheduler(d)
	s.Start([]models.ScheduledEvent{{Name: "Slow", Type: models.TaskBackup, Cron: "0 0 1 1 *", Enabled: true}})
	defer s.Stop()

	s.mu.Lock()
	job := s.cron.Entry(s.entries["Slow"]).WrappedJob
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		job.Run()
		close(done)
	}()
	<-started

	// A second firing while the first is still running is dropped.
	job.Run()
	close(release)
	<-done

	assert.Equal(t, []string{"Slow"}, d.calls())
}

func TestRegisterAndUnregister(t *testing.T) {
	s := newTestScheduler(&mockDispatcher{})
	s.Start(nil)
	defer s.Stop()

	require.NoError(t, s.Register(models.ScheduledEvent{Name: "A", Type: models.TaskBackup, Cron: "0 * * * *", Enabled: true}))
	assert.Equal(t, 1, s.Active())

	// Re-registering an id replaces its timer.
	require.NoError(t, s.Register(models.ScheduledEvent{Name: "A", Type: models.TaskBackup, Cron: "30 * * * *", Enabled: true}))
	assert.Equal(t, 1, s.Active())
	assert.Equal(t, "30 * * * *", statusByID(t, s, "A").Cron)

	err := s.Register(models.ScheduledEvent{Name: "B", Type: models.TaskBackup, Cron: "61 * * * *", Enabled: true})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, 1, s.Active())

	assert.True(t, s.Unregister("A"))
	assert.False(t, s.Unregister("missing"))
	assert.Equal(t, 0, s.Active())
}

func TestRegister_NotRunning(t *testing.T) {
	s := newTestScheduler(&mockDispatcher{})

	err := s.Register(models.ScheduledEvent{Name: "A", Type: models.TaskBackup, Cron: "0 * * * *", Enabled: true})

	assert.Error(t, err)
}

func TestStop_NotStarted(t *testing.T) {
	s := newTestScheduler(&mockDispatcher{})

	ctx := s.Stop()

	assert.Error(t, ctx.Err())
}

func TestValidateCron(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"*/5 * * * *", false},
		{"0 3 * * 0", false},
		{"@daily", false},
		{"0 0 1 1 *", false},
		{"", true},
		{"* * * *", true},
		{"60 * * * *", true},
		{"0 0 31 2 *", true},
		{"every minute", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := ValidateCron(tt.expr, testNow)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
