package fcm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"golang.org/x/sync/singleflight"
)

// MessagingScope is the OAuth2 scope required by the FCM v1 API.
const MessagingScope = "https://www.googleapis.com/auth/firebase.messaging"

// refreshMargin is how long before expiry a cached token is considered stale.
const refreshMargin = 5 * time.Minute

// CredentialManager mints and caches a bearer access token from service
// account credential material. Concurrent callers hitting an expired cache
// share one in-flight mint instead of each contacting the issuer.
type CredentialManager struct {
	conf   *jwt.Config
	margin time.Duration

	mu    sync.Mutex
	token *oauth2.Token

	group singleflight.Group
}

// NewCredentialManager parses service account JSON and prepares a manager.
// Malformed credential material is rejected here, before any dispatch.
func NewCredentialManager(serviceAccountJSON []byte) (*CredentialManager, error) {
	conf, err := google.JWTConfigFromJSON(serviceAccountJSON, MessagingScope)
	if err != nil {
		return nil, fmt.Errorf("invalid service account JSON: %w", err)
	}
	return &CredentialManager{
		conf:   conf,
		margin: refreshMargin,
	}, nil
}

// Token returns a bearer access token, reusing the cached one while it is
// more than the safety margin away from expiry. Mint failures are not
// retried internally; the caller decides whether to retry the whole send.
func (m *CredentialManager) Token(ctx context.Context) (string, error) {
	if tok := m.cached(); tok != "" {
		return tok, nil
	}

	v, err, _ := m.group.Do("mint", func() (interface{}, error) {
		// A caller that queued behind an in-flight mint sees the fresh
		// token through the shared result; re-check for the next waiter.
		if tok := m.cached(); tok != "" {
			return tok, nil
		}
		tok, err := m.conf.TokenSource(ctx).Token()
		if err != nil {
			return nil, fmt.Errorf("minting access token: %w", err)
		}
		m.mu.Lock()
		m.token = tok
		m.mu.Unlock()
		return tok.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *CredentialManager) cached() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token != nil && m.token.Valid() && time.Until(m.token.Expiry) > m.margin {
		return m.token.AccessToken
	}
	return ""
}
