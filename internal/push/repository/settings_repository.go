package repository

import (
	"errors"

	pushdomain "fcm-push-backend/internal/push/domain"

	"gorm.io/gorm"
)

// settingsRowID pins the configuration to a single row.
const settingsRowID = 1

// SettingsRepository persists the singleton push configuration row.
type SettingsRepository interface {
	Get() (*pushdomain.Settings, error)
	Save(s *pushdomain.Settings) error
}

// settingsRepository implements SettingsRepository interface
type settingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository creates a new instance of settingsRepository
func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepository{
		db: db,
	}
}

// Get loads the settings row, creating a disabled default one on first use.
func (r *settingsRepository) Get() (*pushdomain.Settings, error) {
	var s pushdomain.Settings
	err := r.db.First(&s, settingsRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s = pushdomain.Settings{ID: settingsRowID}
		s.ApplyDefaults()
		if err := r.db.Create(&s).Error; err != nil {
			return nil, err
		}
		return &s, nil
	}
	if err != nil {
		return nil, err
	}
	s.ApplyDefaults()
	return &s, nil
}

func (r *settingsRepository) Save(s *pushdomain.Settings) error {
	s.ID = settingsRowID
	s.ApplyDefaults()
	return r.db.Save(s).Error
}
