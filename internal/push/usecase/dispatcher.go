package usecase

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	pushdomain "fcm-push-backend/internal/push/domain"
	"fcm-push-backend/internal/push/repository"
	"fcm-push-backend/pkg/fcm"
)

// maxBackoff caps one retry sleep; the overall call timeout bounds the rest.
const maxBackoff = 30 * time.Second

// SenderFactory selects and builds the transport for one dispatch call.
type SenderFactory interface {
	SenderFor(s *pushdomain.Settings) (fcm.Sender, error)
}

// senderFactory prefers the v1 API when service account material is
// present, falling back to the legacy key. The built senders are cached so
// the credential manager keeps its token across dispatch calls.
type senderFactory struct {
	mu       sync.Mutex
	saJSON   string
	project  string
	v1       *fcm.V1Sender
	key      string
	legacy   *fcm.LegacySender
}

// NewSenderFactory creates the default transport factory.
func NewSenderFactory() SenderFactory {
	return &senderFactory{}
}

func (f *senderFactory) SenderFor(s *pushdomain.Settings) (fcm.Sender, error) {
	defaults := fcm.Defaults{ChannelID: s.ChannelID, Sound: s.DefaultSound}

	f.mu.Lock()
	defer f.mu.Unlock()

	if s.HasServiceAccount() {
		if f.v1 == nil || f.saJSON != s.ServiceAccountJSON || f.project != s.ProjectID {
			v1, err := fcm.NewV1Sender(s.ProjectID, []byte(s.ServiceAccountJSON), defaults)
			if err != nil {
				return nil, &pushdomain.ConfigError{Reason: err.Error()}
			}
			f.v1 = v1
			f.saJSON = s.ServiceAccountJSON
			f.project = s.ProjectID
		}
		f.v1.Defaults = defaults
		return f.v1, nil
	}
	if s.HasServerKey() {
		if f.legacy == nil || f.key != s.ServerKey {
			f.legacy = fcm.NewLegacySender(s.ServerKey, defaults)
			f.key = s.ServerKey
		}
		f.legacy.Defaults = defaults
		return f.legacy, nil
	}
	return nil, &pushdomain.ConfigError{Reason: "no FCM credentials configured"}
}

// Request describes one dispatch call. Exactly one target kind is set:
// Users, Token, Topic, or Broadcast.
type Request struct {
	Users        []string
	Token        string
	Topic        string
	Broadcast    bool
	ExcludeUsers []string
	Notification pushdomain.Notification
	Type         string // type tag for the audit log
}

// Dispatcher fans one logical notification out to every resolved device
// with bounded parallelism, classifies per-device outcomes and applies the
// retry policy and device-state transitions.
type Dispatcher struct {
	devices  repository.DeviceRepository
	logs     repository.LogRepository
	factory  SenderFactory
	poolSize int
	timeout  time.Duration
	baseURL  string // deep-link base for reference documents
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(devices repository.DeviceRepository, logs repository.LogRepository, factory SenderFactory, poolSize int, timeout time.Duration, baseURL string) *Dispatcher {
	if poolSize <= 0 {
		poolSize = 8
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Dispatcher{
		devices:  devices,
		logs:     logs,
		factory:  factory,
		poolSize: poolSize,
		timeout:  timeout,
		baseURL:  baseURL,
	}
}

// job is one transport call to make. device is nil for raw-token and
// topic sends, which bypass the registry.
type job struct {
	device *pushdomain.Device
	target fcm.Target
}

// Dispatch runs one fanout call and returns the aggregate outcome.
// ConfigError fails the call before any device is contacted; a rejected
// credential aborts the remaining sends and is returned alongside the
// outcomes collected so far.
func (d *Dispatcher) Dispatch(ctx context.Context, settings *pushdomain.Settings, req Request) (*pushdomain.AggregateResult, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	sender, err := d.factory.SenderFor(settings)
	if err != nil {
		return nil, err
	}

	jobs, err := d.resolve(req)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return &pushdomain.AggregateResult{}, nil
	}

	title := req.Notification.Title
	if title == "" {
		title = settings.DefaultTitle
	}
	payload := fcm.Notification{
		Title:    title,
		Body:     req.Notification.Body,
		ImageURL: req.Notification.ImageURL,
		Data:     req.Notification.ResolveData(d.baseURL),
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	workers := d.poolSize
	if workers > len(jobs) {
		workers = len(jobs)
	}
	jobCh := make(chan job, len(jobs))
	for _, j := range jobs {
		jobCh <- j
	}
	close(jobCh)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		agg     pushdomain.AggregateResult
		authErr error
	)
	var authOnce sync.Once

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobCh {
				if ctx.Err() != nil {
					mu.Lock()
					agg.Failed++
					agg.Failures = append(agg.Failures, d.failure(j, "aborted: "+ctx.Err().Error()))
					mu.Unlock()
					continue
				}

				res := d.attempt(ctx, sender, j, payload, settings)
				d.applyTransitions(j, res)
				if settings.LogNotifications {
					d.record(j, req, payload, res)
				}

				mu.Lock()
				if res.Outcome == fcm.OutcomeSuccess {
					agg.Success++
				} else {
					agg.Failed++
					agg.Failures = append(agg.Failures, d.failure(j, res.Err.Error()))
				}
				mu.Unlock()

				if res.Outcome == fcm.OutcomeAuth {
					// Credentials are shared across the whole call; stop
					// contacting the remaining devices.
					authOnce.Do(func() {
						mu.Lock()
						authErr = &pushdomain.AuthError{Reason: "transport rejected credentials", Err: res.Err}
						mu.Unlock()
						cancel()
					})
				}
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	result := agg
	return &result, authErr
}

// resolve turns the request targets into concrete transport jobs.
func (d *Dispatcher) resolve(req Request) ([]job, error) {
	switch {
	case req.Token != "":
		return []job{{target: fcm.Target{Token: req.Token}}}, nil
	case req.Topic != "":
		return []job{{target: fcm.Target{Topic: req.Topic}}}, nil
	case req.Broadcast:
		devices, err := d.devices.ListAllEnabledExcept(req.ExcludeUsers)
		if err != nil {
			return nil, err
		}
		return deviceJobs(devices), nil
	default:
		var all []pushdomain.Device
		for _, user := range req.Users {
			devices, err := d.devices.ListEnabled(user)
			if err != nil {
				return nil, err
			}
			all = append(all, devices...)
		}
		return deviceJobs(all), nil
	}
}

func deviceJobs(devices []pushdomain.Device) []job {
	jobs := make([]job, 0, len(devices))
	for i := range devices {
		dev := devices[i]
		jobs = append(jobs, job{device: &dev, target: fcm.Target{Token: dev.Token}})
	}
	return jobs
}

// attempt issues the transport call for one job, retrying transient
// failures with exponential backoff. Other outcomes return immediately.
func (d *Dispatcher) attempt(ctx context.Context, sender fcm.Sender, j job, payload fcm.Notification, settings *pushdomain.Settings) fcm.Result {
	var res fcm.Result
	for attempt := 0; ; attempt++ {
		res = sender.Send(ctx, j.target, payload)
		if res.Outcome != fcm.OutcomeTransient || attempt >= settings.MaxRetries {
			return res
		}
		backoff := settings.RetryBackoff() << uint(attempt)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return res
		}
	}
}

// applyTransitions drives the device state machine from the classified
// outcome. Only a permanent token failure disables a device.
func (d *Dispatcher) applyTransitions(j job, res fcm.Result) {
	switch res.Outcome {
	case fcm.OutcomeSuccess:
		if j.device != nil {
			if err := d.devices.MarkUsed(j.device.Token); err != nil {
				log.Printf("[Dispatch] failed to mark device %s used: %v", j.device.ID, err)
			}
		}
	case fcm.OutcomePermanent:
		if j.target.Token != "" {
			if err := d.devices.MarkInvalid(j.target.Token); err != nil {
				log.Printf("[Dispatch] failed to disable token %s: %v", pushdomain.TokenPreview(j.target.Token), err)
			} else {
				log.Printf("[Dispatch] disabled unregistered token %s", pushdomain.TokenPreview(j.target.Token))
			}
		}
	}
}

func (d *Dispatcher) record(j job, req Request, payload fcm.Notification, res fcm.Result) {
	entry := pushdomain.NotificationLog{
		NotificationType: req.Type,
		Status:           pushdomain.LogStatusFailed,
		Title:            payload.Title,
		Body:             payload.Body,
		Response:         res.Response,
		SentAt:           time.Now(),
	}
	if res.Outcome == fcm.OutcomeSuccess {
		entry.Status = pushdomain.LogStatusSent
	} else if res.Err != nil {
		entry.ErrorMessage = res.Err.Error()
	}
	if len(payload.Data) > 0 {
		if b, err := json.Marshal(payload.Data); err == nil {
			entry.DataPayload = string(b)
		}
	}
	if j.device != nil {
		entry.RecipientUser = j.device.User
		entry.DeviceID = j.device.ID
	}
	if j.target.Token != "" {
		entry.TokenPreview = pushdomain.TokenPreview(j.target.Token)
	} else {
		entry.RecipientUser = "topic:" + j.target.Topic
	}
	d.logs.Record(entry)
}

func (d *Dispatcher) failure(j job, reason string) pushdomain.Failure {
	f := pushdomain.Failure{Reason: reason}
	if j.device != nil {
		f.User = j.device.User
		f.DeviceID = j.device.ID
	}
	if j.target.Token != "" {
		f.Token = pushdomain.TokenPreview(j.target.Token)
	}
	return f
}
