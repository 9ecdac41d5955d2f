package models

import "time"

// ServerState is the operational state of the supervised game server.
type ServerState string

// Server states.
const (
	ServerStopped  ServerState = "stopped"
	ServerStarting ServerState = "starting"
	ServerStarted  ServerState = "started"
	ServerStopping ServerState = "stopping"
)

// ServerConfig holds process supervision settings.
type ServerConfig struct {
	Mode       string // "local" (default) or "ssh"
	Executable string
	Args       []string
	WorkingDir string
	StartDelay time.Duration // how long a fresh process must survive to count as started
	SSH        *SSHConfig    // required when Mode is "ssh"
}

// SSHConfig holds settings for driving a remote systemd unit.
type SSHConfig struct {
	Host       string
	Port       int
	Username   string
	PrivateKey []byte // loaded from file path
	KeyPath    string
	Unit       string // systemd unit of the game server
	UseSudo    bool
}

// SSHResult holds the result of an SSH command.
type SSHResult struct {
	CommandRun bool
	Output     string
	Error      error
}
