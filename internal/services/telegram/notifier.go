package telegram

import (
	"context"

	"github.com/fgeck/gameserver-console/internal/models"
	"github.com/fgeck/gameserver-console/internal/services/events"
	"github.com/rs/zerolog"
)

// Subscriber is the part of the event bus the notifier needs.
type Subscriber interface {
	Subscribe(t events.Type, handler events.Handler)
}

// Notifier turns bus events into Telegram messages.
type Notifier struct {
	svc    Service
	cfg    models.TelegramConfig
	host   string
	logger zerolog.Logger
}

// NewNotifier creates a notifier that reports as host.
func NewNotifier(logger zerolog.Logger, svc Service, cfg models.TelegramConfig, host string) *Notifier {
	return &Notifier{
		svc:    svc,
		cfg:    cfg,
		host:   host,
		logger: logger,
	}
}

// Register subscribes the notifier to restart and backup events.
func (n *Notifier) Register(bus Subscriber) {
	bus.Subscribe(events.PlannedRestart, n.Handle)
	bus.Subscribe(events.BackupFailed, n.Handle)
	bus.Subscribe(events.BackupRestored, n.Handle)
}

// Handle sends the notification for event. Failures are logged, never returned.
func (n *Notifier) Handle(ctx context.Context, event events.Event) {
	msg, ok := n.message(event)
	if !ok {
		return
	}

	result, err := n.svc.SendNotification(ctx, n.cfg, msg)
	if err != nil {
		n.logger.Error().Err(err).Str("event_type", string(event.Type)).Msg("failed to send Telegram notification")
		return
	}
	if result.Error != nil {
		n.logger.Error().Err(result.Error).Str("event_type", string(event.Type)).Msg("failed to send Telegram notification")
		return
	}

	n.logger.Debug().Str("event_type", string(event.Type)).Msg("Telegram notification sent")
}

func (n *Notifier) message(event events.Event) (models.TelegramMessage, bool) {
	msg := models.TelegramMessage{
		Kind: string(event.Type),
		Host: n.host,
		Time: event.Time,
	}

	switch event.Type {
	case events.PlannedRestart:
		msg.Success = true
		msg.Title = "Planned Restart"
		msg.Detail = "The server is restarting now."
		if name := event.Data["event"]; name != "" {
			msg.Detail = "The server is restarting now (" + name + ")."
		}
	case events.BackupFailed:
		msg.Title = "Backup Failed"
		msg.ErrorText = event.Data["error"]
	case events.BackupRestored:
		msg.Success = true
		msg.Title = "Backup Restored"
		msg.Artifact = event.Data["artifact"]
		msg.Detail = "Mission data was replaced. The previous state was backed up first."
	default:
		return msg, false
	}

	return msg, true
}
