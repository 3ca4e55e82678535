package repository

import (
	"log"

	pushdomain "fcm-push-backend/internal/push/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LogRepository records one append-only row per delivery attempt.
type LogRepository interface {
	// Record must never block or fail the dispatch path; storage errors
	// are swallowed.
	Record(entry pushdomain.NotificationLog)
	ListRecent(limit int) ([]pushdomain.NotificationLog, error)
}

// logRepository implements LogRepository interface
type logRepository struct {
	db *gorm.DB
}

// NewLogRepository creates a new instance of logRepository
func NewLogRepository(db *gorm.DB) LogRepository {
	return &logRepository{
		db: db,
	}
}

func (r *logRepository) Record(entry pushdomain.NotificationLog) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if err := r.db.Create(&entry).Error; err != nil {
		log.Printf("[PushLog] failed to record notification log: %v", err)
	}
}

func (r *logRepository) ListRecent(limit int) ([]pushdomain.NotificationLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []pushdomain.NotificationLog
	err := r.db.Order("sent_at desc").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
