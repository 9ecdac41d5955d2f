// Package metrics exposes Prometheus instrumentation for the console.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	taskExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gameserver_console_task_executions_total",
			Help: "Scheduled task executions by task type and outcome",
		},
		[]string{"task", "outcome"},
	)

	backupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gameserver_console_backups_total",
			Help: "Backup attempts by outcome",
		},
		[]string{"outcome"},
	)

	backupsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gameserver_console_backups_deleted_total",
			Help: "Backup artifacts removed by retention",
		},
	)

	backupDeleteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gameserver_console_backup_delete_failures_total",
			Help: "Expired backup artifacts that could not be removed",
		},
	)

	scheduledEvents = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gameserver_console_scheduled_events",
			Help: "Configured events by scheduling state",
		},
		[]string{"state"},
	)

	skippedFirings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gameserver_console_skipped_firings_total",
			Help: "Timer firings ignored because events are globally skipped or still running",
		},
	)

	realtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gameserver_console_realtime_connections",
			Help: "Number of active WebSocket connections",
		},
	)
)

// RecordTask records one dispatched task.
func RecordTask(task, outcome string) {
	taskExecutions.WithLabelValues(task, outcome).Inc()
}

// RecordBackup records one backup attempt ("created", "skipped", "failed").
func RecordBackup(outcome string) {
	backupsTotal.WithLabelValues(outcome).Inc()
}

// RecordCleanup records the outcome of a retention pass.
func RecordCleanup(deleted, failed int) {
	backupsDeleted.Add(float64(deleted))
	backupDeleteFailures.Add(float64(failed))
}

// SetScheduledEvents publishes the number of events per scheduling state.
func SetScheduledEvents(counts map[string]int) {
	scheduledEvents.Reset()
	for state, n := range counts {
		scheduledEvents.WithLabelValues(state).Set(float64(n))
	}
}

// RecordSkippedFiring records a timer firing that did not dispatch.
func RecordSkippedFiring() {
	skippedFirings.Inc()
}

// SetRealtimeConnections sets the number of active WebSocket connections.
func SetRealtimeConnections(n int) {
	realtimeConnections.Set(float64(n))
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
