package models

import "time"

// TaskType names the action a scheduled event performs.
type TaskType string

// Task types understood by the dispatcher.
const (
	TaskRestart TaskType = "restart"
	TaskMessage TaskType = "message"
	TaskKickAll TaskType = "kickAll"
	TaskLock    TaskType = "lock"
	TaskUnlock  TaskType = "unlock"
	TaskBackup  TaskType = "backup"
)

// ScheduledEvent is a configured, cron-driven task.
type ScheduledEvent struct {
	Name    string
	ID      string // optional; derived from Name when empty
	Type    TaskType
	Cron    string // empty disables the event
	Params  []string
	Enabled bool
}

// EffectiveID returns ID, or Name stripped of everything but ASCII letters
// and digits for events configured before ids existed.
func (e ScheduledEvent) EffectiveID() string {
	if e.ID != "" {
		return e.ID
	}
	out := make([]rune, 0, len(e.Name))
	for _, r := range e.Name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
		}
	}
	return string(out)
}

// Param returns params[i] and whether it was present.
func (e ScheduledEvent) Param(i int) (string, bool) {
	if i < 0 || i >= len(e.Params) {
		return "", false
	}
	return e.Params[i], true
}

// EventState is the scheduling state of a configured event.
type EventState string

// Event states reported by the scheduler.
const (
	EventUnscheduled EventState = "unscheduled" // no cron expression
	EventDisabled    EventState = "disabled"
	EventScheduled   EventState = "scheduled"
	EventRejected    EventState = "rejected"
)

// EventStatus reports the scheduler's view of one event.
type EventStatus struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Type    TaskType   `json:"type"`
	Cron    string     `json:"cron,omitempty"`
	State   EventState `json:"state"`
	NextRun *time.Time `json:"next_run,omitempty"`
	LastRun *time.Time `json:"last_run,omitempty"`
	Error   string     `json:"error,omitempty"`
}
