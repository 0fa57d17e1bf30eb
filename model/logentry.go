package model

import "time"

// LogEntry is one persisted message of a user's conversation. Entries are
// never updated or deleted.
type LogEntry struct {
	ID           string
	UserID       int64
	FromReviewer bool
	Text         string
	CreatedAt    time.Time
}
