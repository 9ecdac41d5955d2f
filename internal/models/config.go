// Package models contains the data structures used throughout gameserver-console.
package models

import "time"

// ConsoleConfig holds the complete configuration of the console.
type ConsoleConfig struct {
	Server     ServerConfig
	RCON       *RCONConfig // nil if not configured
	Backup     BackupSettings
	HTTP       HTTPConfig
	Telegram   *TelegramConfig // nil if not configured
	Events     []ScheduledEvent
	SkipEvents bool // maintenance mode: timers fire but tasks are not dispatched
}

// BackupSettings holds mission-data backup settings.
type BackupSettings struct {
	Path      string // backup root directory
	Source    string // live mission-data directory
	Prefix    string // artifact name prefix, e.g. "mpmissions"
	MaxAge    int    // days, used by the max_age retention policy
	Retention string // "max_age" (default), "marker", "timestamp"
}

// HTTPConfig holds the control surface settings.
type HTTPConfig struct {
	Listen          string
	Username        string // optional, enables basic auth together with Password
	Password        string
	ShutdownTimeout time.Duration
}
