package repo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenGormSQLiteCreatesParentDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "path", "support_bot.db")

	db, err := OpenGorm("sqlite", dbPath)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	_, err = os.Stat(filepath.Dir(dbPath))
	assert.NoError(t, err)
}

func TestOpenGormInvalidDriver(t *testing.T) {
	_, err := OpenGorm("invalid", "x")
	assert.Error(t, err)
}

func TestOpenGormPostgresRequiresDSN(t *testing.T) {
	_, err := OpenGorm("postgres", "  ")
	assert.Error(t, err)
}

func TestSQLiteFilePath(t *testing.T) {
	tests := []struct {
		dsn      string
		wantPath string
		wantOK   bool
	}{
		{dsn: ":memory:", wantOK: false},
		{dsn: "file::memory:?cache=shared", wantOK: false},
		{dsn: "file:data/bot.db?mode=memory", wantOK: false},
		{dsn: "data/bot.db?_pragma=busy_timeout(5000)", wantPath: "data/bot.db", wantOK: true},
		{dsn: "file:/var/lib/bot.db?cache=shared", wantPath: "/var/lib/bot.db", wantOK: true},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			path, ok := sqliteFilePath(tt.dsn)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}
