package domain

import (
	"encoding/json"
	"time"
)

// Settings is the single push configuration row. It is read as an
// immutable snapshot at the start of every dispatch call and mutated
// only through the admin settings endpoint.
type Settings struct {
	ID                 uint      `json:"-" gorm:"primaryKey"`
	Enabled            bool      `json:"enabled"`
	ProjectID          string    `json:"project_id"`
	ServiceAccountJSON string    `json:"-" gorm:"type:text"` // Never expose credential material
	ServerKey          string    `json:"-"`                  // Legacy API fallback
	ChannelID          string    `json:"channel_id"`
	DefaultTitle       string    `json:"default_title"`
	DefaultSound       string    `json:"default_sound"`
	SendAsync          bool      `json:"send_async"`
	MaxRetries         int       `json:"max_retries"`
	RetryBackoffMillis int       `json:"retry_backoff_millis"`
	LogNotifications   bool      `json:"log_notifications"`
	UpdatedAt          time.Time `json:"updated_at"`
}

const (
	DefaultChannelID     = "push_notifications"
	DefaultSound         = "default"
	DefaultMaxRetries    = 3
	DefaultBackoffMillis = 500
)

// ApplyDefaults fills zero-valued tunables so a freshly created row is usable.
func (s *Settings) ApplyDefaults() {
	if s.ChannelID == "" {
		s.ChannelID = DefaultChannelID
	}
	if s.DefaultSound == "" {
		s.DefaultSound = DefaultSound
	}
	if s.MaxRetries <= 0 {
		s.MaxRetries = DefaultMaxRetries
	}
	if s.RetryBackoffMillis <= 0 {
		s.RetryBackoffMillis = DefaultBackoffMillis
	}
}

// HasServiceAccount reports whether structurally valid service account
// material is configured. Structural validity here means parseable JSON;
// the issuer decides the rest.
func (s *Settings) HasServiceAccount() bool {
	return s.ServiceAccountJSON != "" && json.Valid([]byte(s.ServiceAccountJSON))
}

// HasServerKey reports whether a legacy API key is configured.
func (s *Settings) HasServerKey() bool {
	return s.ServerKey != ""
}

// RetryBackoff returns the configured backoff base as a duration.
func (s *Settings) RetryBackoff() time.Duration {
	return time.Duration(s.RetryBackoffMillis) * time.Millisecond
}

// Validate checks that the configuration can carry a dispatch at all.
// Violations fail the whole call before any device is contacted.
func (s *Settings) Validate() error {
	if !s.Enabled {
		return &ConfigError{Reason: "push notifications are disabled"}
	}
	if s.ServiceAccountJSON != "" && !json.Valid([]byte(s.ServiceAccountJSON)) {
		return &ConfigError{Reason: "service account JSON is malformed"}
	}
	if !s.HasServiceAccount() && !s.HasServerKey() {
		return &ConfigError{Reason: "no FCM credentials configured"}
	}
	if s.HasServiceAccount() && s.ProjectID == "" {
		return &ConfigError{Reason: "project id is required for the v1 API"}
	}
	return nil
}
