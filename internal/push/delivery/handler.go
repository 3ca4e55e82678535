package delivery

import (
	"errors"
	"net/http"

	authdelivery "fcm-push-backend/internal/auth/delivery"
	pushdomain "fcm-push-backend/internal/push/domain"
	"fcm-push-backend/internal/push/repository"
	"fcm-push-backend/internal/push/usecase"

	"github.com/gin-gonic/gin"
)

// Version reported by the public validate endpoint.
const Version = "1.0.0"

// PushHandler exposes the device and notification endpoints.
type PushHandler struct {
	service  usecase.PushService
	devices  repository.DeviceRepository
	logs     repository.LogRepository
	settings *usecase.SettingsProvider
}

// NewPushHandler creates a new PushHandler.
func NewPushHandler(service usecase.PushService, devices repository.DeviceRepository, logs repository.LogRepository, settings *usecase.SettingsProvider) *PushHandler {
	return &PushHandler{
		service:  service,
		devices:  devices,
		logs:     logs,
		settings: settings,
	}
}

// Validate is the public endpoint mobile clients poll during setup to
// verify the server URL. No auth required.
func (h *PushHandler) Validate(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     "push gateway is installed",
		"fcm_enabled": h.service.Enabled(),
		"version":     Version,
	})
}

type registerDeviceRequest struct {
	Token       string `json:"token" binding:"required"`
	DeviceID    string `json:"device_id"`
	DeviceName  string `json:"device_name"`
	DeviceModel string `json:"device_model"`
	OSVersion   string `json:"os_version"`
	AppVersion  string `json:"app_version"`
}

// RegisterDevice upserts the caller's device token.
func (h *PushHandler) RegisterDevice(c *gin.Context) {
	user := authdelivery.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req registerDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	device, err := h.devices.Register(user.ID, req.Token, repository.DeviceMetadata{
		DeviceID:    req.DeviceID,
		DeviceName:  req.DeviceName,
		DeviceModel: req.DeviceModel,
		OSVersion:   req.OSVersion,
		AppVersion:  req.AppVersion,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "device": device})
}

type unregisterDeviceRequest struct {
	Token    string `json:"token"`
	DeviceID string `json:"device_id"`
}

// UnregisterDevice removes the caller's device. Idempotent.
func (h *PushHandler) UnregisterDevice(c *gin.Context) {
	user := authdelivery.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req unregisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.devices.Unregister(user.ID, req.Token, req.DeviceID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListMyDevices returns every device registered for the caller.
func (h *PushHandler) ListMyDevices(c *gin.Context) {
	user := authdelivery.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	devices, err := h.devices.ListByUser(user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

type sendRequest struct {
	User     string            `json:"user"`
	Users    []string          `json:"users"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data"`
	ImageURL string            `json:"image_url"`
	RefType  string            `json:"ref_type"`
	RefName  string            `json:"ref_name"`
}

func (r *sendRequest) notification() pushdomain.Notification {
	return pushdomain.Notification{
		Title:    r.Title,
		Body:     r.Body,
		ImageURL: r.ImageURL,
		Data:     r.Data,
		RefType:  r.RefType,
		RefName:  r.RefName,
	}
}

// Send pushes a notification to one user or a list of users.
func (h *PushHandler) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var (
		result *pushdomain.AggregateResult
		err    error
	)
	if len(req.Users) > 0 {
		result, err = h.service.SendToUsers(c.Request.Context(), req.Users, req.notification())
	} else {
		result, err = h.service.SendToUser(c.Request.Context(), req.User, req.notification())
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type topicRequest struct {
	Topic    string            `json:"topic"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data"`
	ImageURL string            `json:"image_url"`
}

// SendToTopic pushes a notification to a transport-side topic.
func (h *PushHandler) SendToTopic(c *gin.Context) {
	var req topicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.service.SendToTopic(c.Request.Context(), req.Topic, pushdomain.Notification{
		Title:    req.Title,
		Body:     req.Body,
		Data:     req.Data,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type broadcastRequest struct {
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	Data         map[string]string `json:"data"`
	ImageURL     string            `json:"image_url"`
	ExcludeUsers []string          `json:"exclude_users"`
}

// Broadcast pushes a notification to every user with an enabled device,
// minus the excluded ones. The aggregate result reports partial completion
// without masking which recipients were missed.
func (h *PushHandler) Broadcast(c *gin.Context) {
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.service.NotifyAll(c.Request.Context(), pushdomain.Notification{
		Title:    req.Title,
		Body:     req.Body,
		Data:     req.Data,
		ImageURL: req.ImageURL,
	}, req.ExcludeUsers)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// TestConnection exercises the credential path and reports which transport
// variant is active. Administrative.
func (h *PushHandler) TestConnection(c *gin.Context) {
	status := h.service.TestConnection(c.Request.Context())
	code := http.StatusOK
	if !status.Success {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// GetSettings returns the current configuration. Credential material is
// reported as present/absent, never echoed back.
func (h *PushHandler) GetSettings(c *gin.Context) {
	snapshot, err := h.settings.Snapshot()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"settings":            snapshot,
		"has_service_account": snapshot.HasServiceAccount(),
		"has_server_key":      snapshot.HasServerKey(),
	})
}

type updateSettingsRequest struct {
	Enabled            bool   `json:"enabled"`
	ProjectID          string `json:"project_id"`
	ServiceAccountJSON string `json:"service_account_json"`
	ServerKey          string `json:"server_key"`
	ChannelID          string `json:"channel_id"`
	DefaultTitle       string `json:"default_title"`
	DefaultSound       string `json:"default_sound"`
	SendAsync          bool   `json:"send_async"`
	MaxRetries         int    `json:"max_retries"`
	RetryBackoffMillis int    `json:"retry_backoff_millis"`
	LogNotifications   bool   `json:"log_notifications"`
}

// UpdateSettings replaces the configuration row. Empty credential fields
// keep the stored values so admins never resubmit secrets.
func (h *PushHandler) UpdateSettings(c *gin.Context) {
	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	current, err := h.settings.Snapshot()
	if err != nil {
		respondError(c, err)
		return
	}

	updated := pushdomain.Settings{
		Enabled:            req.Enabled,
		ProjectID:          req.ProjectID,
		ServiceAccountJSON: req.ServiceAccountJSON,
		ServerKey:          req.ServerKey,
		ChannelID:          req.ChannelID,
		DefaultTitle:       req.DefaultTitle,
		DefaultSound:       req.DefaultSound,
		SendAsync:          req.SendAsync,
		MaxRetries:         req.MaxRetries,
		RetryBackoffMillis: req.RetryBackoffMillis,
		LogNotifications:   req.LogNotifications,
	}
	if updated.ServiceAccountJSON == "" {
		updated.ServiceAccountJSON = current.ServiceAccountJSON
	}
	if updated.ServerKey == "" {
		updated.ServerKey = current.ServerKey
	}

	if err := h.settings.Update(&updated); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListLogs returns recent audit rows. Administrative.
func (h *PushHandler) ListLogs(c *gin.Context) {
	entries, err := h.logs.ListRecent(100)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries})
}

// respondError maps the error taxonomy onto HTTP statuses. Partial
// delivery failure never lands here; it travels inside the 200 result.
func respondError(c *gin.Context, err error) {
	var (
		validationErr *pushdomain.ValidationError
		configErr     *pushdomain.ConfigError
		authErr       *pushdomain.AuthError
	)
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &configErr):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.As(err, &authErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
