package repository

import (
	"errors"
	"time"

	pushdomain "fcm-push-backend/internal/push/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeviceRepository owns the set of device rows per user.
type DeviceRepository interface {
	Register(user string, token string, meta DeviceMetadata) (*pushdomain.Device, error)
	Unregister(user string, token string, deviceID string) error
	ListByUser(user string) ([]pushdomain.Device, error)
	ListEnabled(user string) ([]pushdomain.Device, error)
	ListAllEnabledExcept(excludedUsers []string) ([]pushdomain.Device, error)
	MarkInvalid(token string) error
	MarkUsed(token string) error
}

// DeviceMetadata is the optional device info supplied at registration.
type DeviceMetadata struct {
	DeviceID    string
	DeviceName  string
	DeviceModel string
	OSVersion   string
	AppVersion  string
}

// deviceRepository implements DeviceRepository interface
type deviceRepository struct {
	db *gorm.DB
}

// NewDeviceRepository creates a new instance of deviceRepository
func NewDeviceRepository(db *gorm.DB) DeviceRepository {
	return &deviceRepository{
		db: db,
	}
}

// Register upserts a device row. The same installation re-registering
// (same token, or same device id with a rotated token) updates the
// existing row in place and re-enables it; it never creates a duplicate.
func (r *deviceRepository) Register(user string, token string, meta DeviceMetadata) (*pushdomain.Device, error) {
	if user == "" {
		return nil, &pushdomain.ValidationError{Reason: "user is required"}
	}
	if token == "" {
		return nil, &pushdomain.ValidationError{Reason: "token is required"}
	}

	deviceID := meta.DeviceID
	if deviceID == "" {
		// Stable fallback so a re-register without metadata still matches.
		if len(token) >= 16 {
			deviceID = token[:16]
		} else {
			deviceID = token
		}
	}

	var device pushdomain.Device
	err := r.db.Transaction(func(tx *gorm.DB) error {
		// Exact token match first, then same installation with a rotated token.
		err := tx.Where("user_id = ? AND token = ?", user, token).First(&device).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = tx.Where("user_id = ? AND device_id = ?", user, deviceID).First(&device).Error
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			device = pushdomain.Device{
				ID:          uuid.New().String(),
				User:        user,
				Token:       token,
				DeviceID:    deviceID,
				DeviceName:  meta.DeviceName,
				DeviceModel: meta.DeviceModel,
				OSVersion:   meta.OSVersion,
				AppVersion:  meta.AppVersion,
				Enabled:     true,
				LastUsed:    now,
			}
			return tx.Create(&device).Error
		}

		device.Token = token
		device.Enabled = true
		device.LastUsed = now
		if meta.DeviceName != "" {
			device.DeviceName = meta.DeviceName
		}
		if meta.DeviceModel != "" {
			device.DeviceModel = meta.DeviceModel
		}
		if meta.OSVersion != "" {
			device.OSVersion = meta.OSVersion
		}
		if meta.AppVersion != "" {
			device.AppVersion = meta.AppVersion
		}
		return tx.Save(&device).Error
	})
	if err != nil {
		return nil, err
	}
	return &device, nil
}

// Unregister removes the matching rows. Silently succeeds when nothing
// matches, so repeated calls are harmless.
func (r *deviceRepository) Unregister(user string, token string, deviceID string) error {
	if user == "" {
		return &pushdomain.ValidationError{Reason: "user is required"}
	}
	q := r.db.Where("user_id = ?", user)
	switch {
	case token != "":
		q = q.Where("token = ?", token)
	case deviceID != "":
		q = q.Where("device_id = ?", deviceID)
	default:
		return &pushdomain.ValidationError{Reason: "token or device_id required"}
	}
	return q.Delete(&pushdomain.Device{}).Error
}

func (r *deviceRepository) ListByUser(user string) ([]pushdomain.Device, error) {
	var devices []pushdomain.Device
	err := r.db.Where("user_id = ?", user).Order("last_used desc").Find(&devices).Error
	if err != nil {
		return nil, err
	}
	return devices, nil
}

func (r *deviceRepository) ListEnabled(user string) ([]pushdomain.Device, error) {
	var devices []pushdomain.Device
	err := r.db.Where("user_id = ? AND enabled = ?", user, true).Find(&devices).Error
	if err != nil {
		return nil, err
	}
	return devices, nil
}

// ListAllEnabledExcept returns every enabled device whose owner is not in
// excludedUsers. Used for broadcast fanout.
func (r *deviceRepository) ListAllEnabledExcept(excludedUsers []string) ([]pushdomain.Device, error) {
	var devices []pushdomain.Device
	q := r.db.Where("enabled = ?", true)
	if len(excludedUsers) > 0 {
		q = q.Where("user_id NOT IN ?", excludedUsers)
	}
	err := q.Find(&devices).Error
	if err != nil {
		return nil, err
	}
	return devices, nil
}

// MarkInvalid disables every row holding the token. Disabled rows are kept
// for audit; only a later successful Register re-enables them.
func (r *deviceRepository) MarkInvalid(token string) error {
	return r.db.Model(&pushdomain.Device{}).
		Where("token = ?", token).
		Update("enabled", false).Error
}

// MarkUsed bumps the delivery counter and last-used timestamp.
func (r *deviceRepository) MarkUsed(token string) error {
	return r.db.Model(&pushdomain.Device{}).
		Where("token = ?", token).
		Updates(map[string]interface{}{
			"last_used":          time.Now(),
			"notification_count": gorm.Expr("notification_count + 1"),
		}).Error
}
