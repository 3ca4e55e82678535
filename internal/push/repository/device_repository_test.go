package repository

import (
	"testing"

	pushdomain "fcm-push-backend/internal/push/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_pragma=foreign_keys(1)"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&pushdomain.Device{}, &pushdomain.NotificationLog{}, &pushdomain.Settings{}))
	t.Cleanup(func() {
		db.Exec("DELETE FROM devices")
		db.Exec("DELETE FROM notification_logs")
		db.Exec("DELETE FROM settings")
	})
	return db
}

const longToken = "fcm-token-aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func TestDeviceRepository_RegisterIsIdempotent(t *testing.T) {
	repo := NewDeviceRepository(newTestDB(t))

	first, err := repo.Register("alice", longToken, DeviceMetadata{DeviceName: "Pixel"})
	require.NoError(t, err)

	second, err := repo.Register("alice", longToken, DeviceMetadata{DeviceName: "Pixel"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	devices, err := repo.ListByUser("alice")
	require.NoError(t, err)
	assert.Len(t, devices, 1)
	assert.True(t, devices[0].Enabled)
}

func TestDeviceRepository_TokenRotationUpdatesRow(t *testing.T) {
	repo := NewDeviceRepository(newTestDB(t))

	first, err := repo.Register("alice", "old-token-1234567890", DeviceMetadata{DeviceID: "install-1"})
	require.NoError(t, err)

	rotated, err := repo.Register("alice", "new-token-0987654321", DeviceMetadata{DeviceID: "install-1"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, rotated.ID)
	assert.Equal(t, "new-token-0987654321", rotated.Token)

	devices, err := repo.ListByUser("alice")
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}

func TestDeviceRepository_RegisterRequiresUserAndToken(t *testing.T) {
	repo := NewDeviceRepository(newTestDB(t))

	_, err := repo.Register("", longToken, DeviceMetadata{})
	var verr *pushdomain.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = repo.Register("alice", "", DeviceMetadata{})
	assert.ErrorAs(t, err, &verr)
}

func TestDeviceRepository_MarkInvalidDisablesNotDeletes(t *testing.T) {
	repo := NewDeviceRepository(newTestDB(t))

	_, err := repo.Register("alice", longToken, DeviceMetadata{})
	require.NoError(t, err)

	require.NoError(t, repo.MarkInvalid(longToken))

	enabled, err := repo.ListEnabled("alice")
	require.NoError(t, err)
	assert.Empty(t, enabled)

	all, err := repo.ListByUser("alice")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].Enabled)
}

func TestDeviceRepository_RegisterReenablesDisabledDevice(t *testing.T) {
	repo := NewDeviceRepository(newTestDB(t))

	_, err := repo.Register("alice", longToken, DeviceMetadata{})
	require.NoError(t, err)
	require.NoError(t, repo.MarkInvalid(longToken))

	_, err = repo.Register("alice", longToken, DeviceMetadata{})
	require.NoError(t, err)

	enabled, err := repo.ListEnabled("alice")
	require.NoError(t, err)
	assert.Len(t, enabled, 1)
}

func TestDeviceRepository_UnregisterIsIdempotent(t *testing.T) {
	repo := NewDeviceRepository(newTestDB(t))

	_, err := repo.Register("alice", longToken, DeviceMetadata{})
	require.NoError(t, err)

	require.NoError(t, repo.Unregister("alice", longToken, ""))
	require.NoError(t, repo.Unregister("alice", longToken, ""))

	devices, err := repo.ListByUser("alice")
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestDeviceRepository_UnregisterByDeviceID(t *testing.T) {
	repo := NewDeviceRepository(newTestDB(t))

	_, err := repo.Register("alice", longToken, DeviceMetadata{DeviceID: "install-7"})
	require.NoError(t, err)

	require.NoError(t, repo.Unregister("alice", "", "install-7"))

	devices, err := repo.ListByUser("alice")
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestDeviceRepository_ListAllEnabledExcept(t *testing.T) {
	repo := NewDeviceRepository(newTestDB(t))

	_, err := repo.Register("alice", "token-alice-1234567890", DeviceMetadata{})
	require.NoError(t, err)
	_, err = repo.Register("bob", "token-bob-1234567890", DeviceMetadata{})
	require.NoError(t, err)
	_, err = repo.Register("carol", "token-carol-1234567890", DeviceMetadata{})
	require.NoError(t, err)
	require.NoError(t, repo.MarkInvalid("token-carol-1234567890"))

	devices, err := repo.ListAllEnabledExcept([]string{"alice"})
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "bob", devices[0].User)
}

func TestDeviceRepository_MarkUsedBumpsCounter(t *testing.T) {
	repo := NewDeviceRepository(newTestDB(t))

	_, err := repo.Register("alice", longToken, DeviceMetadata{})
	require.NoError(t, err)

	require.NoError(t, repo.MarkUsed(longToken))
	require.NoError(t, repo.MarkUsed(longToken))

	devices, err := repo.ListByUser("alice")
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, 2, devices[0].NotificationCount)
}
