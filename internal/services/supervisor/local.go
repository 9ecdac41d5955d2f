package supervisor

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/fgeck/gameserver-console/internal/models"
	"github.com/rs/zerolog"
)

// Process is a running game server process.
type Process interface {
	Wait() error
	Kill() error
}

// ProcessStarter launches the game server.
type ProcessStarter interface {
	Start(ctx context.Context, cfg models.ServerConfig) (Process, error)
}

// ExecStarter starts the executable with os/exec.
type ExecStarter struct{}

// Start launches cfg.Executable. The process is killed when ctx is done.
func (ExecStarter) Start(ctx context.Context, cfg models.ServerConfig) (Process, error) {
	cmd := exec.CommandContext(ctx, cfg.Executable, cfg.Args...) //nolint:gosec // executable comes from the operator's config
	cmd.Dir = cfg.WorkingDir
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p execProcess) Wait() error { return p.cmd.Wait() }
func (p execProcess) Kill() error { return p.cmd.Process.Kill() }

// Local runs the game server as a child process. It implements suture.Service:
// when the process exits, Serve returns and the supervisor tree starts it again.
type Local struct {
	cfg     models.ServerConfig
	starter ProcessStarter
	logger  zerolog.Logger

	mu    sync.Mutex
	state models.ServerState
	proc  Process
}

// NewLocal creates a local supervisor for cfg.
func NewLocal(logger zerolog.Logger, cfg models.ServerConfig) *Local {
	return NewLocalWithStarter(logger, cfg, ExecStarter{})
}

// NewLocalWithStarter creates a local supervisor with a custom starter (for testing).
func NewLocalWithStarter(logger zerolog.Logger, cfg models.ServerConfig, starter ProcessStarter) *Local {
	return &Local{
		cfg:     cfg,
		starter: starter,
		logger:  logger,
		state:   models.ServerStopped,
	}
}

// Serve starts the process and blocks until it exits or ctx is done.
func (l *Local) Serve(ctx context.Context) error {
	l.setState(models.ServerStarting)

	proc, err := l.starter.Start(ctx, l.cfg)
	if err != nil {
		l.setState(models.ServerStopped)
		return fmt.Errorf("failed to start server: %w", err)
	}

	l.mu.Lock()
	l.proc = proc
	l.mu.Unlock()

	l.logger.Info().Str("executable", l.cfg.Executable).Msg("game server process started")

	exited := make(chan error, 1)
	go func() { exited <- proc.Wait() }()

	ready := time.NewTimer(l.cfg.StartDelay)
	defer ready.Stop()

	for {
		select {
		case <-ready.C:
			l.mu.Lock()
			if l.state == models.ServerStarting {
				l.state = models.ServerStarted
				l.logger.Info().Msg("game server is up")
			}
			l.mu.Unlock()

		case err := <-exited:
			l.clear()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				l.logger.Warn().Err(err).Msg("game server process exited")
				return fmt.Errorf("server exited: %w", err)
			}
			l.logger.Warn().Msg("game server process exited")
			return fmt.Errorf("server exited")

		case <-ctx.Done():
			l.setState(models.ServerStopping)
			_ = proc.Kill()
			<-exited
			l.clear()
			return ctx.Err()
		}
	}
}

// State returns the current process state.
func (l *Local) State(_ context.Context) models.ServerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// KillServer kills the running process; the supervisor tree restarts it.
func (l *Local) KillServer(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.proc == nil {
		return ErrNotRunning
	}
	l.state = models.ServerStopping
	if err := l.proc.Kill(); err != nil {
		return fmt.Errorf("failed to kill server: %w", err)
	}
	return nil
}

// String implements fmt.Stringer for suture logs.
func (l *Local) String() string {
	return "game-server"
}

func (l *Local) setState(state models.ServerState) {
	l.mu.Lock()
	l.state = state
	l.mu.Unlock()
}

func (l *Local) clear() {
	l.mu.Lock()
	l.proc = nil
	l.state = models.ServerStopped
	l.mu.Unlock()
}
