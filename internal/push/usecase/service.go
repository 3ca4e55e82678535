package usecase

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	pushdomain "fcm-push-backend/internal/push/domain"
	"fcm-push-backend/pkg/fcm"
)

// PushService is the public operation surface for sending notifications.
type PushService interface {
	SendToUser(ctx context.Context, user string, n pushdomain.Notification) (*pushdomain.AggregateResult, error)
	SendToUsers(ctx context.Context, users []string, n pushdomain.Notification) (*pushdomain.AggregateResult, error)
	SendToToken(ctx context.Context, token string, n pushdomain.Notification) (bool, error)
	SendToTopic(ctx context.Context, topic string, n pushdomain.Notification) (*pushdomain.AggregateResult, error)
	NotifyAll(ctx context.Context, n pushdomain.Notification, excludeUsers []string) (*pushdomain.AggregateResult, error)
	TestConnection(ctx context.Context) *pushdomain.ConnectionStatus
	Enabled() bool
}

// pushService implements PushService interface
type pushService struct {
	settings   *SettingsProvider
	dispatcher *Dispatcher
	// asyncTimeout bounds a background dispatch fired in async mode.
	asyncTimeout time.Duration
}

// NewPushService creates a new instance of pushService
func NewPushService(settings *SettingsProvider, dispatcher *Dispatcher) PushService {
	return &pushService{
		settings:     settings,
		dispatcher:   dispatcher,
		asyncTimeout: 5 * time.Minute,
	}
}

func (s *pushService) SendToUser(ctx context.Context, user string, n pushdomain.Notification) (*pushdomain.AggregateResult, error) {
	if strings.TrimSpace(user) == "" {
		return nil, &pushdomain.ValidationError{Reason: "user is required"}
	}
	return s.dispatch(ctx, Request{Users: []string{user}, Notification: n, Type: "user"})
}

func (s *pushService) SendToUsers(ctx context.Context, users []string, n pushdomain.Notification) (*pushdomain.AggregateResult, error) {
	cleaned := make([]string, 0, len(users))
	for _, u := range users {
		if strings.TrimSpace(u) != "" {
			cleaned = append(cleaned, u)
		}
	}
	if len(cleaned) == 0 {
		return nil, &pushdomain.ValidationError{Reason: "at least one user is required"}
	}
	return s.dispatch(ctx, Request{Users: cleaned, Notification: n, Type: "users"})
}

// SendToToken is the single-token convenience call: true means the
// transport accepted the message (or the dispatch was queued).
func (s *pushService) SendToToken(ctx context.Context, token string, n pushdomain.Notification) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return false, &pushdomain.ValidationError{Reason: "token is required"}
	}
	res, err := s.dispatch(ctx, Request{Token: token, Notification: n, Type: "token"})
	if err != nil {
		return false, err
	}
	return res.Queued || res.Success > 0, nil
}

func (s *pushService) SendToTopic(ctx context.Context, topic string, n pushdomain.Notification) (*pushdomain.AggregateResult, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, &pushdomain.ValidationError{Reason: "topic is required"}
	}
	return s.dispatch(ctx, Request{Topic: topic, Notification: n, Type: "topic"})
}

func (s *pushService) NotifyAll(ctx context.Context, n pushdomain.Notification, excludeUsers []string) (*pushdomain.AggregateResult, error) {
	return s.dispatch(ctx, Request{Broadcast: true, ExcludeUsers: excludeUsers, Notification: n, Type: "broadcast"})
}

// dispatch validates the notification, loads a settings snapshot and runs
// the fanout either synchronously or on a background task depending on the
// configured async flag.
func (s *pushService) dispatch(ctx context.Context, req Request) (*pushdomain.AggregateResult, error) {
	if strings.TrimSpace(req.Notification.Title) == "" {
		return nil, &pushdomain.ValidationError{Reason: "title is required"}
	}
	if strings.TrimSpace(req.Notification.Body) == "" {
		return nil, &pushdomain.ValidationError{Reason: "body is required"}
	}

	snapshot, err := s.settings.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("loading push settings: %w", err)
	}
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}

	if snapshot.SendAsync {
		go func() {
			bg, cancel := context.WithTimeout(context.Background(), s.asyncTimeout)
			defer cancel()
			res, err := s.dispatcher.Dispatch(bg, snapshot, req)
			if err != nil {
				log.Printf("[Push] async dispatch (%s) failed: %v", req.Type, err)
				return
			}
			log.Printf("[Push] async dispatch (%s) done: %d sent, %d failed", req.Type, res.Success, res.Failed)
		}()
		return &pushdomain.AggregateResult{Queued: true}, nil
	}

	return s.dispatcher.Dispatch(ctx, snapshot, req)
}

// TestConnection exercises the credential path and reports which transport
// variant a dispatch would use.
func (s *pushService) TestConnection(ctx context.Context) *pushdomain.ConnectionStatus {
	snapshot, err := s.settings.Snapshot()
	if err != nil {
		return &pushdomain.ConnectionStatus{Success: false, Message: fmt.Sprintf("failed to load settings: %v", err)}
	}
	if !snapshot.Enabled {
		return &pushdomain.ConnectionStatus{Success: false, Message: "push notifications are disabled"}
	}

	if snapshot.HasServiceAccount() {
		creds, err := fcm.NewCredentialManager([]byte(snapshot.ServiceAccountJSON))
		if err != nil {
			return &pushdomain.ConnectionStatus{Success: false, Message: err.Error()}
		}
		if _, err := creds.Token(ctx); err != nil {
			return &pushdomain.ConnectionStatus{
				Success: false,
				Message: fmt.Sprintf("service account authentication failed: %v", err),
				APIType: fcm.VariantV1,
			}
		}
		return &pushdomain.ConnectionStatus{
			Success:   true,
			Message:   "service account authenticated",
			ProjectID: snapshot.ProjectID,
			APIType:   fcm.VariantV1,
		}
	}
	if snapshot.HasServerKey() {
		return &pushdomain.ConnectionStatus{
			Success: true,
			Message: "legacy server key configured; authentication happens per request",
			APIType: fcm.VariantLegacy,
		}
	}
	return &pushdomain.ConnectionStatus{Success: false, Message: "no FCM credentials configured"}
}

// Enabled reports the enabled flag for the public validate endpoint.
func (s *pushService) Enabled() bool {
	snapshot, err := s.settings.Snapshot()
	if err != nil {
		return false
	}
	return snapshot.Enabled
}
