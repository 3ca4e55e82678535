package domain

import "time"

// Device represents one registered app installation for a user.
// A user may hold many devices; fanout only ever touches enabled ones.
type Device struct {
	ID                string    `json:"id" gorm:"primaryKey"`
	User              string    `json:"user" gorm:"column:user_id;index;uniqueIndex:idx_devices_user_token;not null"`
	Token             string    `json:"-" gorm:"uniqueIndex:idx_devices_user_token;not null"` // Don't expose token in JSON
	DeviceID          string    `json:"device_id" gorm:"index"`
	DeviceName        string    `json:"device_name"`
	DeviceModel       string    `json:"device_model"`
	OSVersion         string    `json:"os_version"`
	AppVersion        string    `json:"app_version"`
	Enabled           bool      `json:"enabled"`
	LastUsed          time.Time `json:"last_used"`
	NotificationCount int       `json:"notification_count"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TokenPreview returns a shortened token safe for logs.
func (d *Device) TokenPreview() string {
	return TokenPreview(d.Token)
}

// TokenPreview shortens an FCM token for log output.
func TokenPreview(token string) string {
	if len(token) <= 20 {
		return token
	}
	return token[:20] + "..."
}
