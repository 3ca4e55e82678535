package domain

import "time"

// Log statuses.
const (
	LogStatusSent   = "Sent"
	LogStatusFailed = "Failed"
)

// NotificationLog is one append-only audit row per delivery attempt.
// It is written when logging is enabled and never read on the dispatch path.
type NotificationLog struct {
	ID               string    `json:"id" gorm:"primaryKey"`
	NotificationType string    `json:"notification_type"`
	Status           string    `json:"status" gorm:"index"`
	RecipientUser    string    `json:"recipient_user" gorm:"index"`
	DeviceID         string    `json:"device_id"`
	TokenPreview     string    `json:"token_preview"`
	Title            string    `json:"title"`
	Body             string    `json:"body"`
	DataPayload      string    `json:"data_payload" gorm:"type:text"`
	Response         string    `json:"response" gorm:"type:text"`
	ErrorMessage     string    `json:"error_message"`
	SentAt           time.Time `json:"sent_at"`
}
