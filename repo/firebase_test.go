package repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseUserKeysSortsAndSkipsInvalid(t *testing.T) {
	shallow := map[string]interface{}{
		"300":    true,
		"12":     true,
		"abc":    true,
		"-5":     true,
		"100500": true,
	}
	assert.Equal(t, []int64{-5, 12, 300, 100500}, parseUserKeys(shallow))
}

func TestFirebaseEntryToEntry(t *testing.T) {
	ts := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	entry := firebaseEntry{UserID: 9, FromReviewer: true, Text: "hi", Timestamp: ts.UnixMilli()}.toEntry("-Nabc")

	assert.Equal(t, "-Nabc", entry.ID)
	assert.Equal(t, int64(9), entry.UserID)
	assert.True(t, entry.FromReviewer)
	assert.Equal(t, "hi", entry.Text)
	assert.True(t, ts.Equal(entry.CreatedAt))
}
