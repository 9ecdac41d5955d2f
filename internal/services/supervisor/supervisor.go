// Package supervisor keeps the game server process alive and reports its state.
package supervisor

import (
	"context"
	"errors"
	"time"

	"github.com/fgeck/gameserver-console/internal/models"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// ErrNotRunning is returned by KillServer when there is no process to kill.
var ErrNotRunning = errors.New("server is not running")

// Service defines the interface for the process supervisor.
type Service interface {
	State(ctx context.Context) models.ServerState
	KillServer(ctx context.Context) error
}

// TreeConfig holds restart tuning for the supervisor tree.
type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// DefaultTreeConfig returns suture's documented defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// NewTree creates the root supervisor. Lifecycle events are logged to logger.
func NewTree(logger zerolog.Logger, name string, cfg TreeConfig) *suture.Supervisor {
	defaults := DefaultTreeConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = defaults.FailureDecay
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = defaults.FailureBackoff
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}

	return suture.New(name, suture.Spec{
		EventHook:        EventHook(logger),
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	})
}

// EventHook adapts suture events to zerolog.
func EventHook(logger zerolog.Logger) suture.EventHook {
	return func(e suture.Event) {
		var ev *zerolog.Event
		switch e.Type() {
		case suture.EventTypeServicePanic:
			ev = logger.Error()
		case suture.EventTypeResume:
			ev = logger.Info()
		default:
			ev = logger.Warn()
		}
		ev.Fields(e.Map()).Msg(e.String())
	}
}
