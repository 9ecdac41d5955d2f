package supervisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/fgeck/gameserver-console/internal/models"
	"github.com/fgeck/gameserver-console/internal/services/ssh"
	"github.com/rs/zerolog"
)

// Remote drives a systemd unit on another host over SSH.
type Remote struct {
	sshSvc ssh.Service
	cfg    models.SSHConfig
	logger zerolog.Logger
}

// NewRemote creates a remote supervisor.
func NewRemote(logger zerolog.Logger, sshSvc ssh.Service, cfg models.SSHConfig) *Remote {
	return &Remote{
		sshSvc: sshSvc,
		cfg:    cfg,
		logger: logger,
	}
}

// State maps `systemctl is-active` onto a server state. An unreachable host
// reports stopped.
func (r *Remote) State(ctx context.Context) models.ServerState {
	result, err := r.sshSvc.Run(ctx, r.cfg, "systemctl is-active "+r.cfg.Unit)
	if err != nil || !result.CommandRun {
		ev := r.logger.Warn().Str("host", r.cfg.Host)
		if err == nil {
			err = result.Error
		}
		ev.Err(err).Msg("unable to query server state")
		return models.ServerStopped
	}

	// is-active exits non-zero for every state but active; the output is what counts.
	switch strings.TrimSpace(result.Output) {
	case "active", "reloading":
		return models.ServerStarted
	case "activating":
		return models.ServerStarting
	case "deactivating":
		return models.ServerStopping
	default:
		return models.ServerStopped
	}
}

// KillServer restarts the unit.
func (r *Remote) KillServer(ctx context.Context) error {
	cmd := "systemctl restart " + r.cfg.Unit
	if r.cfg.UseSudo {
		cmd = "sudo " + cmd
	}

	r.logger.Info().Str("host", r.cfg.Host).Str("unit", r.cfg.Unit).Msg("restarting remote game server")

	result, err := r.sshSvc.Run(ctx, r.cfg, cmd)
	if err != nil {
		return err
	}
	if result.Error != nil {
		return fmt.Errorf("failed to restart %s: %w", r.cfg.Unit, result.Error)
	}
	return nil
}
