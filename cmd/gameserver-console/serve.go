package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"reflect"
	"syscall"
	"time"

	"github.com/fgeck/gameserver-console/internal/config"
	"github.com/fgeck/gameserver-console/internal/models"
	"github.com/fgeck/gameserver-console/internal/server"
	"github.com/fgeck/gameserver-console/internal/services/backup"
	"github.com/fgeck/gameserver-console/internal/services/dispatcher"
	"github.com/fgeck/gameserver-console/internal/services/events"
	"github.com/fgeck/gameserver-console/internal/services/rcon"
	"github.com/fgeck/gameserver-console/internal/services/registry"
	"github.com/fgeck/gameserver-console/internal/services/schedule"
	"github.com/fgeck/gameserver-console/internal/services/scheduler"
	"github.com/fgeck/gameserver-console/internal/services/ssh"
	"github.com/fgeck/gameserver-console/internal/services/supervisor"
	"github.com/fgeck/gameserver-console/internal/services/telegram"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the console",
	Long: `Run the console until interrupted:
1. Supervise the game server (local process or systemd unit over SSH)
2. Schedule the configured events
3. Serve the HTTP API, WebSocket event stream and /metrics
4. Reload the schedule when the config file changes`,
	RunE: runServe,
}

//nolint:funlen // wiring
func runServe(cmd *cobra.Command, args []string) error {
	parser, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := log.Logger
	component := func(name string) zerolog.Logger {
		return logger.With().Str("component", name).Logger()
	}

	log.Info().
		Str("config", configFile).
		Str("mode", cfg.Server.Mode).
		Str("listen", cfg.HTTP.Listen).
		Int("events", len(cfg.Events)).
		Msg("configuration loaded")

	bus := events.NewBus(component("events"))

	backupSvc, err := backup.New(component("backup"), cfg.Backup)
	if err != nil {
		log.Error().Err(err).Msg("failed to set up backups")
		return err
	}

	tree := supervisor.NewTree(component("supervisor"), "gameserver-console", supervisor.TreeConfig{
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	})

	var supervisorSvc supervisor.Service
	if cfg.Server.Mode == config.ModeSSH {
		supervisorSvc = supervisor.NewRemote(component("supervisor"), ssh.New(component("ssh")), *cfg.Server.SSH)
	} else {
		local := supervisor.NewLocal(component("supervisor"), cfg.Server)
		tree.Add(local)
		supervisorSvc = local
	}

	var rconSvc rcon.Service
	if cfg.RCON != nil {
		rconSvc = rcon.New(component("rcon"), *cfg.RCON)
	}

	dispatcherSvc := dispatcher.New(component("dispatcher"), supervisorSvc, rconSvc, backupSvc, bus)
	sched := scheduler.New(component("scheduler"), dispatcherSvc)
	sched.SetSkip(cfg.SkipEvents)

	reg, err := registry.New(component("registry"), config.NewStore(configFile), cfg.Events)
	if err != nil {
		log.Error().Err(err).Msg("invalid event list")
		return err
	}
	scheduleSvc := schedule.New(component("schedule"), reg, sched, dispatcherSvc)

	if cfg.Telegram != nil {
		host, _ := os.Hostname()
		notifier := telegram.NewNotifier(component("telegram"), telegram.New(component("telegram")), *cfg.Telegram, host)
		notifier.Register(bus)
	}

	hub := server.NewHub(component("websocket"))
	bus.SubscribeAll(hub.Handle)
	tree.Add(hub)

	srv := server.New(component("http"), cfg.HTTP, server.Deps{
		Backups:    backupSvc,
		Schedules:  scheduleSvc,
		Scheduler:  sched,
		Supervisor: supervisorSvc,
		Bus:        bus,
		Hub:        hub,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	tree.Add(supervisor.NewHTTPService(httpServer, cfg.HTTP.ShutdownTimeout))

	parser.Watch(component("config"), func(next *models.ConsoleConfig) {
		sched.SetSkip(next.SkipEvents)
		// Our own write-backs land here too.
		if reflect.DeepEqual(next.Events, reg.List()) {
			return
		}
		if err := reg.Load(next.Events); err != nil {
			log.Error().Err(err).Msg("ignoring changed event list")
			return
		}
		scheduleSvc.Reload()
	})

	sched.Start(reg.List())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("listen", cfg.HTTP.Listen).Msg("console started")
	serveErr := tree.Serve(ctx)

	log.Info().Msg("shutting down")
	jobs := sched.Stop()
	select {
	case <-jobs.Done():
	case <-time.After(cfg.HTTP.ShutdownTimeout):
		log.Warn().Msg("timed out waiting for running tasks")
	}
	dispatcherSvc.Wait()
	backupSvc.Wait()
	bus.Wait()

	if serveErr != nil && ctx.Err() == nil && !errors.Is(serveErr, context.Canceled) {
		log.Error().Err(serveErr).Msg("supervisor tree stopped")
		return serveErr
	}

	log.Info().Msg("console stopped")
	return nil
}
