package repo

import (
	"SurveyBot/model"
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"google.golang.org/api/option"
)

const conversationsPath = "conversations"

// firebaseEntry is the node stored under conversations/<userID>/<pushKey>.
type firebaseEntry struct {
	UserID       int64  `json:"userId"`
	FromReviewer bool   `json:"fromReviewer"`
	Text         string `json:"text"`
	Timestamp    int64  `json:"timestamp"` // unix millis
}

func (e firebaseEntry) toEntry(key string) model.LogEntry {
	return model.LogEntry{
		ID:           key,
		UserID:       e.UserID,
		FromReviewer: e.FromReviewer,
		Text:         e.Text,
		CreatedAt:    time.UnixMilli(e.Timestamp).UTC(),
	}
}

// FirebaseLog keeps the conversation log in the Firebase Realtime Database.
// Push keys are chronological, so ordering by key is insertion order.
type FirebaseLog struct {
	app    *firebase.App
	client *db.Client
}

// NewFirebaseLog creates a new Firebase connector
func NewFirebaseLog(ctx context.Context, serviceAccountKeyPath string, databaseURL string) (*FirebaseLog, error) {
	// Load the service account key file
	opt := option.WithCredentialsFile(serviceAccountKeyPath)

	config := &firebase.Config{
		DatabaseURL: databaseURL,
	}
	app, err := firebase.NewApp(ctx, config, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting database client: %w", err)
	}

	return &FirebaseLog{
		app:    app,
		client: client,
	}, nil
}

func (fl *FirebaseLog) userRef(userID int64) *db.Ref {
	return fl.client.NewRef(conversationsPath).Child(strconv.FormatInt(userID, 10))
}

// Append pushes a new entry for the user
func (fl *FirebaseLog) Append(ctx context.Context, userID int64, text string, fromReviewer bool) (model.LogEntry, error) {
	entry := firebaseEntry{
		UserID:       userID,
		FromReviewer: fromReviewer,
		Text:         text,
		Timestamp:    time.Now().UnixMilli(),
	}
	newRef, err := fl.userRef(userID).Push(ctx, entry)
	if err != nil {
		return model.LogEntry{}, fmt.Errorf("error appending message: %w", err)
	}
	return entry.toEntry(newRef.Key), nil
}

// HistoryFor reads every entry of the user ordered by push key
func (fl *FirebaseLog) HistoryFor(ctx context.Context, userID int64) ([]model.LogEntry, error) {
	nodes, err := fl.userRef(userID).OrderByKey().GetOrdered(ctx)
	if err != nil {
		return nil, fmt.Errorf("error reading history: %w", err)
	}

	entries := make([]model.LogEntry, 0, len(nodes))
	for _, node := range nodes {
		var entry firebaseEntry
		if err := node.Unmarshal(&entry); err != nil {
			return nil, fmt.Errorf("error decoding entry %s: %w", node.Key(), err)
		}
		entries = append(entries, entry.toEntry(node.Key()))
	}
	return entries, nil
}

// DistinctUsersWithHistory lists the user keys under the conversations root
func (fl *FirebaseLog) DistinctUsersWithHistory(ctx context.Context) ([]int64, error) {
	var shallow map[string]interface{}
	if err := fl.client.NewRef(conversationsPath).GetShallow(ctx, &shallow); err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}
	return parseUserKeys(shallow), nil
}

// Close releases nothing; the database client holds no open connections.
func (fl *FirebaseLog) Close() error {
	return nil
}

func parseUserKeys(shallow map[string]interface{}) []int64 {
	ids := make([]int64, 0, len(shallow))
	for key := range shallow {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
