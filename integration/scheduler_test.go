//go:build integration

package integration

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fgeck/gameserver-console/internal/models"
	"github.com/fgeck/gameserver-console/internal/services/backup"
	"github.com/fgeck/gameserver-console/internal/services/dispatcher"
	"github.com/fgeck/gameserver-console/internal/services/events"
	"github.com/fgeck/gameserver-console/internal/services/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type startedServer struct{}

func (startedServer) State(context.Context) models.ServerState { return models.ServerStarted }
func (startedServer) KillServer(context.Context) error         { return nil }

func TestScheduledBackup_Integration(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "mpmissions")
	writeMission(t, source, "scheduled")

	backupSvc, err := backup.New(testLogger(), models.BackupSettings{
		Path:      filepath.Join(dir, "backups"),
		Source:    source,
		Prefix:    "mpmissions",
		MaxAge:    14,
		Retention: "max_age",
	})
	require.NoError(t, err)

	bus := events.NewBus(testLogger())
	var (
		mu      sync.Mutex
		created []events.Event
	)
	bus.Subscribe(events.BackupCreated, func(_ context.Context, e events.Event) {
		mu.Lock()
		defer mu.Unlock()
		created = append(created, e)
	})

	disp := dispatcher.New(testLogger(), startedServer{}, nil, backupSvc, bus)
	sched := scheduler.New(testLogger(), disp)

	sched.Start([]models.ScheduledEvent{
		{Name: "Backup", ID: "backup", Type: models.TaskBackup, Cron: "@every 1s", Params: []string{"nightly"}, Enabled: true},
		{Name: "Broken", Type: models.TaskBackup, Cron: "not a cron", Enabled: true},
	})
	assert.Equal(t, 1, sched.Active())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(created) > 0
	}, 5*time.Second, 50*time.Millisecond)

	<-sched.Stop().Done()
	disp.Wait()
	backupSvc.Wait()
	bus.Wait()

	artifacts, err := backupSvc.List(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, artifacts)
	assert.Equal(t, "scheduled", readInit(t, artifacts[0].Path))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "backup", created[0].Data["event_id"])
	assert.Equal(t, "nightly", created[0].Data["description"])
	assert.Equal(t, 0, sched.Active())
}
