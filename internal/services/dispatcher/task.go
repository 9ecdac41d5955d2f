package dispatcher

import (
	"errors"
	"fmt"

	"github.com/fgeck/gameserver-console/internal/models"
)

// ErrInvalidEvent is returned for events whose task cannot be built.
var ErrInvalidEvent = errors.New("invalid event")

// Task is the action a scheduled event performs. The set of implementations
// is closed: Restart, Message, KickAll, Lock, Unlock and Backup.
type Task interface {
	Type() models.TaskType
	isTask()
}

// Restart announces a planned restart and kills the server process.
type Restart struct{}

// Message broadcasts Text to every player.
type Message struct {
	Text string
}

// KickAll kicks every connected player.
type KickAll struct{}

// Lock locks the server against new connections.
type Lock struct{}

// Unlock reopens a locked server.
type Unlock struct{}

// Backup snapshots the mission data.
type Backup struct {
	Description string
}

func (Restart) Type() models.TaskType { return models.TaskRestart }
func (Message) Type() models.TaskType { return models.TaskMessage }
func (KickAll) Type() models.TaskType { return models.TaskKickAll }
func (Lock) Type() models.TaskType    { return models.TaskLock }
func (Unlock) Type() models.TaskType  { return models.TaskUnlock }
func (Backup) Type() models.TaskType  { return models.TaskBackup }

func (Restart) isTask() {}
func (Message) isTask() {}
func (KickAll) isTask() {}
func (Lock) isTask()    {}
func (Unlock) isTask()  {}
func (Backup) isTask()  {}

// ParseTask builds the Task of event. Unknown types and a message without
// text are rejected.
func ParseTask(event models.ScheduledEvent) (Task, error) {
	switch event.Type {
	case models.TaskRestart:
		return Restart{}, nil
	case models.TaskMessage:
		text, ok := event.Param(0)
		if !ok || text == "" {
			return nil, fmt.Errorf("%w: message event %q has no text", ErrInvalidEvent, event.Name)
		}
		return Message{Text: text}, nil
	case models.TaskKickAll:
		return KickAll{}, nil
	case models.TaskLock:
		return Lock{}, nil
	case models.TaskUnlock:
		return Unlock{}, nil
	case models.TaskBackup:
		desc, _ := event.Param(0)
		return Backup{Description: desc}, nil
	default:
		return nil, fmt.Errorf("%w: unknown task type %q", ErrInvalidEvent, event.Type)
	}
}
