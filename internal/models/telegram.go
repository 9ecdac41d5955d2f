package models

import "time"

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// TelegramMessage holds the data for a console notification.
type TelegramMessage struct {
	Kind      string // event type that triggered the notification
	Success   bool
	Host      string
	Time      time.Time
	Title     string
	Detail    string
	Artifact  string
	ErrorText string
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
