package domain

import "time"

// User represents a Telegram user registered through /start.
type User struct {
	ID           int64
	TelegramID   int64
	FirstName    string
	LastName     string
	Username     string
	LanguageCode string
	CreatedAt    time.Time
	LastSeenAt   time.Time
}
