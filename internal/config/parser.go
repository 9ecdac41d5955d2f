// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fgeck/gameserver-console/internal/artifact"
	"github.com/fgeck/gameserver-console/internal/models"
	"github.com/fgeck/gameserver-console/internal/services/retention"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Server supervision modes.
const (
	ModeLocal = "local"
	ModeSSH   = "ssh"
)

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path. The format follows the
// file extension; YAML is assumed otherwise.
func (p *Parser) LoadFile(path string) (*models.ConsoleConfig, error) {
	p.v.SetConfigFile(path)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		p.v.SetConfigType("json")
	}

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.ConsoleConfig, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

// Watch re-parses the file loaded by LoadFile whenever it changes on disk and
// hands valid configurations to onChange. Invalid edits are logged and ignored.
func (p *Parser) Watch(logger zerolog.Logger, onChange func(*models.ConsoleConfig)) {
	p.v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info().Str("file", e.Name).Str("op", e.Op.String()).Msg("config file changed")

		cfg, err := p.parse()
		if err != nil {
			logger.Error().Err(err).Msg("ignoring invalid config change")
			return
		}
		onChange(cfg)
	})
	p.v.WatchConfig()
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.ConsoleConfig, error) {
	cfg := &models.ConsoleConfig{}

	// Parse backup settings (required). The flat backupPath/backupMaxAge keys
	// of older configurations are still honoured.
	cfg.Backup = models.BackupSettings{
		Path:      p.expandEnv(p.v.GetString("backup.path")),
		Source:    p.expandEnv(p.v.GetString("backup.source")),
		Prefix:    p.v.GetString("backup.prefix"),
		MaxAge:    p.v.GetInt("backup.max_age"),
		Retention: p.v.GetString("backup.retention"),
	}
	if cfg.Backup.Path == "" {
		cfg.Backup.Path = p.expandEnv(p.v.GetString("backupPath"))
	}
	if cfg.Backup.MaxAge == 0 {
		cfg.Backup.MaxAge = p.v.GetInt("backupMaxAge")
	}

	if cfg.Backup.Path == "" {
		return nil, fmt.Errorf("backup.path is required")
	}
	if cfg.Backup.Source == "" {
		return nil, fmt.Errorf("backup.source is required")
	}
	if cfg.Backup.Prefix == "" {
		cfg.Backup.Prefix = artifact.DefaultPrefix
	}
	if cfg.Backup.MaxAge == 0 {
		cfg.Backup.MaxAge = 14
	}
	if cfg.Backup.Retention == "" {
		cfg.Backup.Retention = retention.StrategyMaxAge
	}

	// Parse server supervision.
	cfg.Server = models.ServerConfig{
		Mode:       p.v.GetString("server.mode"),
		Executable: p.expandEnv(p.v.GetString("server.executable")),
		Args:       p.v.GetStringSlice("server.args"),
		WorkingDir: p.expandEnv(p.v.GetString("server.working_dir")),
		StartDelay: p.v.GetDuration("server.start_delay"),
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = ModeLocal
	}
	if cfg.Server.StartDelay == 0 {
		cfg.Server.StartDelay = 30 * time.Second
	}

	if p.v.IsSet("server.ssh") { //nolint:nestif // config parsing with defaults
		cfg.Server.SSH = &models.SSHConfig{
			Host:     p.v.GetString("server.ssh.host"),
			Port:     p.v.GetInt("server.ssh.port"),
			Username: p.v.GetString("server.ssh.username"),
			KeyPath:  p.expandEnv(p.v.GetString("server.ssh.key_path")),
			Unit:     p.v.GetString("server.ssh.unit"),
			UseSudo:  p.v.GetBool("server.ssh.use_sudo"),
		}
		if cfg.Server.SSH.Port == 0 {
			cfg.Server.SSH.Port = 22
		}
		if cfg.Server.SSH.Username == "" {
			cfg.Server.SSH.Username = "root"
		}
		if cfg.Server.SSH.Unit == "" {
			cfg.Server.SSH.Unit = "dayz-server"
		}
	}

	// Parse optional RCon config.
	if p.v.IsSet("rcon") {
		cfg.RCON = &models.RCONConfig{
			Host:       p.v.GetString("rcon.host"),
			Port:       p.v.GetInt("rcon.port"),
			Password:   p.expandEnv(p.v.GetString("rcon.password")),
			Timeout:    p.v.GetDuration("rcon.timeout"),
			KickReason: p.v.GetString("rcon.kick_reason"),
		}

		if cfg.RCON.Password == "" {
			return nil, fmt.Errorf("rcon.password is required when rcon is configured")
		}
		if cfg.RCON.Host == "" {
			cfg.RCON.Host = "127.0.0.1"
		}
		if cfg.RCON.Port == 0 {
			cfg.RCON.Port = 2306
		}
		if cfg.RCON.Timeout == 0 {
			cfg.RCON.Timeout = 5 * time.Second
		}
		if cfg.RCON.KickReason == "" {
			cfg.RCON.KickReason = "Server restart"
		}
	}

	// Parse HTTP control surface.
	cfg.HTTP = models.HTTPConfig{
		Listen:          p.v.GetString("http.listen"),
		Username:        p.expandEnv(p.v.GetString("http.username")),
		Password:        p.expandEnv(p.v.GetString("http.password")),
		ShutdownTimeout: p.v.GetDuration("http.shutdown_timeout"),
	}
	if cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = ":8080"
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}

	// Parse optional Telegram config.
	if p.v.IsSet("telegram") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(p.v.GetString("telegram.bot_token")),
			ChatID:   p.expandEnv(p.v.GetString("telegram.chat_id")),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, fmt.Errorf("telegram.bot_token is required when telegram is configured")
		}
		if cfg.Telegram.ChatID == "" {
			return nil, fmt.Errorf("telegram.chat_id is required when telegram is configured")
		}
	}

	// Parse scheduled events. Bad cron expressions are left to the
	// scheduler so one broken event never blocks the others.
	var records []eventRecord
	if err := p.v.UnmarshalKey("events", &records); err != nil {
		return nil, fmt.Errorf("parsing events: %w", err)
	}
	cfg.Events = make([]models.ScheduledEvent, 0, len(records))
	for _, r := range records {
		cfg.Events = append(cfg.Events, r.toModel())
	}
	cfg.SkipEvents = p.v.GetBool("skip_events")

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate performs validation on the loaded configuration.
//
//nolint:gocyclo // one check per field
func Validate(cfg *models.ConsoleConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.Backup.Path == "" {
		return fmt.Errorf("backup.path is required")
	}
	if cfg.Backup.Source == "" {
		return fmt.Errorf("backup.source is required")
	}
	if within(cfg.Backup.Path, cfg.Backup.Source) {
		return fmt.Errorf("backup.path must not be inside backup.source")
	}
	if !artifact.ValidPrefix(cfg.Backup.Prefix) {
		return fmt.Errorf("backup.prefix must be alphanumeric")
	}
	if _, err := retention.New(cfg.Backup.Retention, time.Duration(cfg.Backup.MaxAge)*24*time.Hour); err != nil {
		return fmt.Errorf("backup.retention: %w", err)
	}

	switch cfg.Server.Mode {
	case ModeLocal:
		if cfg.Server.Executable == "" {
			return fmt.Errorf("server.executable is required in local mode")
		}
	case ModeSSH:
		if cfg.Server.SSH == nil || cfg.Server.SSH.Host == "" {
			return fmt.Errorf("server.ssh.host is required in ssh mode")
		}
		if cfg.Server.SSH.KeyPath == "" && len(cfg.Server.SSH.PrivateKey) == 0 {
			return fmt.Errorf("server.ssh.key_path is required in ssh mode")
		}
	default:
		return fmt.Errorf("server.mode must be one of: local, ssh")
	}

	if (cfg.HTTP.Username == "") != (cfg.HTTP.Password == "") {
		return fmt.Errorf("http.username and http.password must be set together")
	}

	seen := make(map[string]bool, len(cfg.Events))
	for i, e := range cfg.Events {
		id := e.EffectiveID()
		if id == "" {
			return fmt.Errorf("events[%d] needs a name or id", i)
		}
		if seen[id] {
			return fmt.Errorf("events[%d]: duplicate event id %q", i, id)
		}
		seen[id] = true
	}

	return nil
}

// within reports whether path equals dir or lies below it.
func within(path, dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
