// Package rcon is a BattlEye RCon client used to broadcast messages, kick
// players and lock the game server.
package rcon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fgeck/gameserver-console/internal/models"
	"github.com/rs/zerolog"
)

// ErrLoginFailed is returned when the server rejects the RCon password.
var ErrLoginFailed = errors.New("rcon login failed")

// Service defines the interface for RCon operations.
type Service interface {
	Global(ctx context.Context, message string) error
	KickAll(ctx context.Context) error
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
	Players(ctx context.Context) ([]models.Player, error)
}

// Dialer opens the UDP association to the server.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Client implements Service. Every call runs in its own short session:
// connect, log in, run the commands, disconnect.
type Client struct {
	cfg    models.RCONConfig
	dialer Dialer
	logger zerolog.Logger
}

// New creates a new RCon client.
func New(logger zerolog.Logger, cfg models.RCONConfig) *Client {
	return NewWithDialer(logger, cfg, &net.Dialer{})
}

// NewWithDialer creates a new RCon client with a custom dialer (for testing).
func NewWithDialer(logger zerolog.Logger, cfg models.RCONConfig, dialer Dialer) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{cfg: cfg, dialer: dialer, logger: logger}
}

// Global broadcasts message to every player.
func (c *Client) Global(ctx context.Context, message string) error {
	_, err := c.run(ctx, func(s *session) (any, error) {
		return s.command(ctx, "say -1 "+message)
	})
	if err == nil {
		c.logger.Info().Str("message", message).Msg("global message sent")
	}
	return err
}

// Lock locks the server against new connections.
func (c *Client) Lock(ctx context.Context) error {
	_, err := c.run(ctx, func(s *session) (any, error) {
		return s.command(ctx, "#lock")
	})
	return err
}

// Unlock reopens the server.
func (c *Client) Unlock(ctx context.Context) error {
	_, err := c.run(ctx, func(s *session) (any, error) {
		return s.command(ctx, "#unlock")
	})
	return err
}

// Players returns the connected players.
func (c *Client) Players(ctx context.Context) ([]models.Player, error) {
	out, err := c.run(ctx, func(s *session) (any, error) {
		return s.players(ctx)
	})
	if err != nil {
		return nil, err
	}
	return out.([]models.Player), nil
}

// KickAll kicks every connected player with the configured reason.
func (c *Client) KickAll(ctx context.Context) error {
	_, err := c.run(ctx, func(s *session) (any, error) {
		players, err := s.players(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range players {
			cmd := fmt.Sprintf("kick %d %s", p.ID, c.cfg.KickReason)
			if _, err := s.command(ctx, strings.TrimSpace(cmd)); err != nil {
				return nil, fmt.Errorf("kicking %s: %w", p.Name, err)
			}
			c.logger.Info().Int("player_id", p.ID).Str("player", p.Name).Msg("player kicked")
		}
		return nil, nil
	})
	return err
}

func (c *Client) run(ctx context.Context, fn func(s *session) (any, error)) (any, error) {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	conn, err := c.dialer.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to rcon %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	s := &session{conn: conn, timeout: c.cfg.Timeout, logger: c.logger}
	if err := s.login(ctx, c.cfg.Password); err != nil {
		return nil, err
	}
	return fn(s)
}

// session is one logged-in RCon connection.
type session struct {
	conn    net.Conn
	timeout time.Duration
	seq     byte
	logger  zerolog.Logger
}

func (s *session) login(ctx context.Context, password string) error {
	if err := s.write(ctx, encode(packetLogin, []byte(password))); err != nil {
		return err
	}
	for {
		typ, payload, err := s.read(ctx)
		if err != nil {
			return fmt.Errorf("waiting for login response: %w", err)
		}
		if typ != packetLogin {
			continue
		}
		if len(payload) < 1 || payload[0] != 0x01 {
			return ErrLoginFailed
		}
		return nil
	}
}

// command sends cmd and returns the (reassembled) response.
func (s *session) command(ctx context.Context, cmd string) (string, error) {
	seq := s.seq
	s.seq++

	if err := s.write(ctx, encode(packetCommand, append([]byte{seq}, cmd...))); err != nil {
		return "", err
	}

	var parts [][]byte
	received := 0
	for {
		typ, payload, err := s.read(ctx)
		if err != nil {
			return "", fmt.Errorf("waiting for response to %q: %w", cmd, err)
		}

		switch typ {
		case packetMessage:
			s.ack(ctx, payload)
			continue
		case packetCommand:
		default:
			continue
		}
		if len(payload) < 1 || payload[0] != seq {
			continue
		}
		body := payload[1:]

		// Multipart: 0x00 total index data.
		if len(body) >= 3 && body[0] == 0x00 {
			total, index := int(body[1]), int(body[2])
			if total == 0 || index >= total {
				return "", errMalformed
			}
			if parts == nil {
				parts = make([][]byte, total)
			}
			if index < len(parts) && parts[index] == nil {
				parts[index] = append([]byte{}, body[3:]...)
				received++
			}
			if received < len(parts) {
				continue
			}
			var sb strings.Builder
			for _, p := range parts {
				sb.Write(p)
			}
			return sb.String(), nil
		}
		return string(body), nil
	}
}

// ack acknowledges a server message so the server stops resending it.
func (s *session) ack(ctx context.Context, payload []byte) {
	if len(payload) < 1 {
		return
	}
	s.logger.Debug().Str("message", string(payload[1:])).Msg("rcon server message")
	if err := s.write(ctx, encode(packetMessage, payload[:1])); err != nil {
		s.logger.Debug().Err(err).Msg("failed to acknowledge server message")
	}
}

func (s *session) write(ctx context.Context, packet []byte) error {
	if err := s.conn.SetWriteDeadline(s.deadline(ctx)); err != nil {
		return err
	}
	_, err := s.conn.Write(packet)
	return err
}

func (s *session) read(ctx context.Context) (byte, []byte, error) {
	buf := make([]byte, 4096)
	for {
		if err := s.conn.SetReadDeadline(s.deadline(ctx)); err != nil {
			return 0, nil, err
		}
		n, err := s.conn.Read(buf)
		if err != nil {
			return 0, nil, err
		}
		typ, payload, err := decode(buf[:n])
		if err != nil {
			s.logger.Debug().Err(err).Msg("dropping invalid rcon packet")
			continue
		}
		return typ, append([]byte{}, payload...), nil
	}
}

func (s *session) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(s.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}

var playerLine = regexp.MustCompile(`^(\d+)\s+([0-9a-fA-F.:\[\]]+):\d+\s+-?\d+\s+\S+\s+(.+)$`)

func (s *session) players(ctx context.Context) ([]models.Player, error) {
	out, err := s.command(ctx, "players")
	if err != nil {
		return nil, err
	}
	return parsePlayers(out), nil
}

// parsePlayers parses the table returned by the "players" command.
func parsePlayers(out string) []models.Player {
	players := []models.Player{}
	for _, line := range strings.Split(out, "\n") {
		m := playerLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		name := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(m[3]), "(Lobby)"))
		players = append(players, models.Player{ID: id, Name: name, IP: m[2]})
	}
	return players
}
