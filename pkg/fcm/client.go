package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"firebase.google.com/go/v4/messaging"
)

// Outcome is the closed classification of one transport call, decided at
// the adapter boundary right after the HTTP exchange.
type Outcome int

const (
	// OutcomeSuccess means the transport accepted the message.
	OutcomeSuccess Outcome = iota
	// OutcomeTransient covers network failures, timeouts and server-side
	// errors. Eligible for retry.
	OutcomeTransient
	// OutcomePermanent means the transport reported the token as
	// unregistered or structurally invalid. Never retried.
	OutcomePermanent
	// OutcomeAuth means the credentials were rejected. Call-wide fatal.
	OutcomeAuth
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransient:
		return "transient"
	case OutcomePermanent:
		return "permanent"
	case OutcomeAuth:
		return "auth"
	}
	return "unknown"
}

// Result is the classified outcome of one transport call.
type Result struct {
	Outcome   Outcome
	MessageID string
	Err       error
	Response  string // raw transport response, for the audit log
}

// Sender issues one transport call per device or topic.
type Sender interface {
	Send(ctx context.Context, target Target, n Notification) Result
	Variant() string
}

const (
	// VariantV1 is the current, project-scoped, bearer-authenticated API.
	VariantV1 = "v1"
	// VariantLegacy is the flat JSON API authenticated by a static key.
	VariantLegacy = "legacy"

	defaultV1BaseURL  = "https://fcm.googleapis.com"
	defaultLegacyURL  = "https://fcm.googleapis.com/fcm/send"
	defaultHTTPPolicy = 30 * time.Second
)

// V1Sender sends through the FCM HTTP v1 API.
type V1Sender struct {
	ProjectID string
	Creds     *CredentialManager
	BaseURL   string // overridable for tests
	Client    *http.Client
	Defaults  Defaults
}

// NewV1Sender builds a v1 sender from service account material.
func NewV1Sender(projectID string, serviceAccountJSON []byte, d Defaults) (*V1Sender, error) {
	creds, err := NewCredentialManager(serviceAccountJSON)
	if err != nil {
		return nil, err
	}
	return &V1Sender{
		ProjectID: projectID,
		Creds:     creds,
		BaseURL:   defaultV1BaseURL,
		Client:    &http.Client{Timeout: defaultHTTPPolicy},
		Defaults:  d,
	}, nil
}

func (s *V1Sender) Variant() string { return VariantV1 }

type v1Request struct {
	Message *messaging.Message `json:"message"`
}

type v1SuccessResponse struct {
	Name string `json:"name"`
}

type v1ErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Type      string `json:"@type"`
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

// Send issues one v1 call and classifies the response.
func (s *V1Sender) Send(ctx context.Context, target Target, n Notification) Result {
	token, err := s.Creds.Token(ctx)
	if err != nil {
		return Result{Outcome: OutcomeAuth, Err: err}
	}

	body, err := json.Marshal(v1Request{Message: BuildV1Message(target, n, s.Defaults)})
	if err != nil {
		return Result{Outcome: OutcomePermanent, Err: fmt.Errorf("encoding message: %w", err)}
	}

	url := fmt.Sprintf("%s/v1/projects/%s/messages:send", s.BaseURL, s.ProjectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: OutcomeTransient, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return Result{Outcome: OutcomeTransient, Err: fmt.Errorf("FCM v1 request: %w", err)}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	return classifyV1(resp.StatusCode, raw)
}

func classifyV1(status int, raw []byte) Result {
	if status == http.StatusOK {
		var ok v1SuccessResponse
		_ = json.Unmarshal(raw, &ok)
		return Result{Outcome: OutcomeSuccess, MessageID: ok.Name, Response: string(raw)}
	}

	var er v1ErrorResponse
	_ = json.Unmarshal(raw, &er)
	errCode := ""
	for _, d := range er.Error.Details {
		if d.ErrorCode != "" {
			errCode = d.ErrorCode
		}
	}
	msg := er.Error.Message
	if msg == "" {
		msg = string(raw)
	}
	err := fmt.Errorf("FCM v1 status %d (%s): %s", status, er.Error.Status, msg)

	switch {
	case errCode == "UNREGISTERED",
		er.Error.Status == "NOT_FOUND" && status == http.StatusNotFound,
		er.Error.Status == "INVALID_ARGUMENT":
		return Result{Outcome: OutcomePermanent, Err: err, Response: string(raw)}
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return Result{Outcome: OutcomeAuth, Err: err, Response: string(raw)}
	default:
		// 429, 5xx and anything unclassified.
		return Result{Outcome: OutcomeTransient, Err: err, Response: string(raw)}
	}
}

// LegacySender sends through the deprecated flat JSON API using a static
// server key. It performs no credential exchange at all.
type LegacySender struct {
	ServerKey string
	URL       string // overridable for tests
	Client    *http.Client
	Defaults  Defaults
}

// NewLegacySender builds a legacy sender.
func NewLegacySender(serverKey string, d Defaults) *LegacySender {
	return &LegacySender{
		ServerKey: serverKey,
		URL:       defaultLegacyURL,
		Client:    &http.Client{Timeout: defaultHTTPPolicy},
		Defaults:  d,
	}
}

func (s *LegacySender) Variant() string { return VariantLegacy }

type legacyResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
	// Topic sends respond with a bare message_id instead of results.
	MessageID int64 `json:"message_id"`
}

// Send issues one legacy call and classifies the response.
func (s *LegacySender) Send(ctx context.Context, target Target, n Notification) Result {
	body, err := json.Marshal(BuildLegacyMessage(target, n, s.Defaults))
	if err != nil {
		return Result{Outcome: OutcomePermanent, Err: fmt.Errorf("encoding message: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: OutcomeTransient, Err: err}
	}
	req.Header.Set("Authorization", "key="+s.ServerKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return Result{Outcome: OutcomeTransient, Err: fmt.Errorf("FCM legacy request: %w", err)}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	return classifyLegacy(resp.StatusCode, raw)
}

func classifyLegacy(status int, raw []byte) Result {
	if status == http.StatusUnauthorized {
		return Result{
			Outcome:  OutcomeAuth,
			Err:      fmt.Errorf("FCM legacy rejected server key (status %d)", status),
			Response: string(raw),
		}
	}
	if status != http.StatusOK {
		return Result{
			Outcome:  OutcomeTransient,
			Err:      fmt.Errorf("FCM legacy status %d: %s", status, raw),
			Response: string(raw),
		}
	}

	var lr legacyResponse
	if err := json.Unmarshal(raw, &lr); err != nil {
		return Result{
			Outcome:  OutcomeTransient,
			Err:      fmt.Errorf("FCM legacy invalid JSON: %w", err),
			Response: string(raw),
		}
	}

	if lr.Success >= 1 || (len(lr.Results) == 0 && lr.MessageID != 0) {
		id := ""
		if len(lr.Results) > 0 {
			id = lr.Results[0].MessageID
		} else if lr.MessageID != 0 {
			id = fmt.Sprintf("%d", lr.MessageID)
		}
		return Result{Outcome: OutcomeSuccess, MessageID: id, Response: string(raw)}
	}

	errName := "Unknown error"
	if len(lr.Results) > 0 && lr.Results[0].Error != "" {
		errName = lr.Results[0].Error
	}
	err := fmt.Errorf("FCM legacy error: %s", errName)

	switch errName {
	case "NotRegistered", "InvalidRegistration", "MismatchSenderId":
		return Result{Outcome: OutcomePermanent, Err: err, Response: string(raw)}
	default:
		return Result{Outcome: OutcomeTransient, Err: err, Response: string(raw)}
	}
}
