package usecase

import (
	"time"

	pushdomain "fcm-push-backend/internal/push/domain"
	"fcm-push-backend/internal/push/repository"

	"github.com/patrickmn/go-cache"
)

const settingsCacheKey = "push_settings"

// SettingsProvider hands out immutable configuration snapshots. The row is
// read from storage at most once per TTL; every caller gets its own copy so
// a dispatch call never observes a concurrent admin update halfway through.
type SettingsProvider struct {
	repo  repository.SettingsRepository
	cache *cache.Cache
}

// NewSettingsProvider creates a provider with a short-lived snapshot cache.
func NewSettingsProvider(repo repository.SettingsRepository) *SettingsProvider {
	return &SettingsProvider{
		repo:  repo,
		cache: cache.New(30*time.Second, time.Minute),
	}
}

// Snapshot returns a copy of the current settings.
func (p *SettingsProvider) Snapshot() (*pushdomain.Settings, error) {
	if v, found := p.cache.Get(settingsCacheKey); found {
		s := *v.(*pushdomain.Settings)
		return &s, nil
	}
	s, err := p.repo.Get()
	if err != nil {
		return nil, err
	}
	p.cache.Set(settingsCacheKey, s, cache.DefaultExpiration)
	snap := *s
	return &snap, nil
}

// Update persists new settings and drops the cached snapshot so the next
// dispatch sees them immediately.
func (p *SettingsProvider) Update(s *pushdomain.Settings) error {
	if err := p.repo.Save(s); err != nil {
		return err
	}
	p.cache.Delete(settingsCacheKey)
	return nil
}
