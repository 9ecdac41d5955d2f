package models

import "time"

// RCONConfig holds BattlEye RCon connection settings.
type RCONConfig struct {
	Host       string
	Port       int
	Password   string
	Timeout    time.Duration
	KickReason string
}

// Player is one entry of the RCon player list.
type Player struct {
	ID   int
	Name string
	IP   string
}
