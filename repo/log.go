package repo

import (
	"SurveyBot/model"
	"context"
)

// ConversationLog is the durable, append-only message history of every user.
// Implementations must be safe for concurrent use.
type ConversationLog interface {
	// Append writes the message before returning.
	Append(ctx context.Context, userID int64, text string, fromReviewer bool) (model.LogEntry, error)
	// HistoryFor returns the user's entries in insertion order.
	HistoryFor(ctx context.Context, userID int64) ([]model.LogEntry, error)
	// DistinctUsersWithHistory returns every user id with at least one entry, ascending.
	DistinctUsersWithHistory(ctx context.Context) ([]int64, error)
	Close() error
}
