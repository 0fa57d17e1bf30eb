package repo

import (
	"SurveyBot/model"
	"context"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
)

// messageRow maps the messages table (id, user_id, from_admin, text, timestamp)
// used by existing support_bot.db files.
type messageRow struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	UserID    int64     `gorm:"not null;index"`
	FromAdmin bool      `gorm:"not null;default:false"`
	Text      string    `gorm:"type:text;not null"`
	Timestamp time.Time `gorm:"not null"`
}

func (messageRow) TableName() string {
	return "messages"
}

func (r messageRow) toEntry() model.LogEntry {
	return model.LogEntry{
		ID:           strconv.FormatUint(r.ID, 10),
		UserID:       r.UserID,
		FromReviewer: r.FromAdmin,
		Text:         r.Text,
		CreatedAt:    r.Timestamp,
	}
}

// GormLog stores the conversation log in a single messages table.
type GormLog struct {
	db *gorm.DB
}

func NewGormLog(driver, dsn string) (*GormLog, error) {
	gormDB, err := OpenGorm(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open conversation log: %w", err)
	}
	return NewGormLogFromDB(gormDB)
}

func NewGormLogFromDB(gormDB *gorm.DB) (*GormLog, error) {
	if err := gormDB.AutoMigrate(&messageRow{}); err != nil {
		return nil, fmt.Errorf("migrate messages table: %w", err)
	}
	return &GormLog{db: gormDB}, nil
}

func (l *GormLog) Append(ctx context.Context, userID int64, text string, fromReviewer bool) (model.LogEntry, error) {
	row := messageRow{
		UserID:    userID,
		FromAdmin: fromReviewer,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
	if err := l.db.WithContext(ctx).Create(&row).Error; err != nil {
		return model.LogEntry{}, fmt.Errorf("insert message: %w", err)
	}
	return row.toEntry(), nil
}

func (l *GormLog) HistoryFor(ctx context.Context, userID int64) ([]model.LogEntry, error) {
	var rows []messageRow
	err := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("get chat history: %w", err)
	}
	out := make([]model.LogEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntry())
	}
	return out, nil
}

func (l *GormLog) DistinctUsersWithHistory(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := l.db.WithContext(ctx).
		Model(&messageRow{}).
		Distinct().
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list users with messages: %w", err)
	}
	return ids, nil
}

func (l *GormLog) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.Close()
}
