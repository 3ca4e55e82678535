package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	pushdomain "fcm-push-backend/internal/push/domain"
	"fcm-push-backend/internal/push/repository"
	"fcm-push-backend/pkg/fcm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevices is an in-memory DeviceRepository tracking state transitions.
type fakeDevices struct {
	mu       sync.Mutex
	devices  []pushdomain.Device
	invalid  []string
	used     []string
	listHits int
}

func (f *fakeDevices) Register(user string, token string, meta repository.DeviceMetadata) (*pushdomain.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := pushdomain.Device{ID: token, User: user, Token: token, Enabled: true}
	f.devices = append(f.devices, d)
	return &d, nil
}

func (f *fakeDevices) Unregister(user string, token string, deviceID string) error { return nil }

func (f *fakeDevices) ListByUser(user string) ([]pushdomain.Device, error) {
	return f.ListEnabled(user)
}

func (f *fakeDevices) ListEnabled(user string) ([]pushdomain.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listHits++
	var out []pushdomain.Device
	for _, d := range f.devices {
		if d.User == user && d.Enabled {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDevices) ListAllEnabledExcept(excluded []string) ([]pushdomain.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listHits++
	skip := make(map[string]bool, len(excluded))
	for _, u := range excluded {
		skip[u] = true
	}
	var out []pushdomain.Device
	for _, d := range f.devices {
		if d.Enabled && !skip[d.User] {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDevices) MarkInvalid(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalid = append(f.invalid, token)
	for i := range f.devices {
		if f.devices[i].Token == token {
			f.devices[i].Enabled = false
		}
	}
	return nil
}

func (f *fakeDevices) MarkUsed(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.used = append(f.used, token)
	return nil
}

func (f *fakeDevices) add(user, token string) {
	f.devices = append(f.devices, pushdomain.Device{ID: "dev-" + token, User: user, Token: token, Enabled: true})
}

func (f *fakeDevices) addDisabled(user, token string) {
	f.devices = append(f.devices, pushdomain.Device{ID: "dev-" + token, User: user, Token: token, Enabled: false})
}

// fakeLogs captures Record calls.
type fakeLogs struct {
	mu      sync.Mutex
	entries []pushdomain.NotificationLog
}

func (f *fakeLogs) Record(entry pushdomain.NotificationLog) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
}

func (f *fakeLogs) ListRecent(limit int) ([]pushdomain.NotificationLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pushdomain.NotificationLog(nil), f.entries...), nil
}

// scriptSender answers transport calls from a function and counts them.
type scriptSender struct {
	calls int64
	send  func(call int64, target fcm.Target) fcm.Result
}

func (s *scriptSender) Send(ctx context.Context, target fcm.Target, n fcm.Notification) fcm.Result {
	call := atomic.AddInt64(&s.calls, 1)
	return s.send(call, target)
}

func (s *scriptSender) Variant() string { return fcm.VariantV1 }

func (s *scriptSender) callCount() int64 { return atomic.LoadInt64(&s.calls) }

func alwaysSucceed() *scriptSender {
	return &scriptSender{send: func(call int64, target fcm.Target) fcm.Result {
		return fcm.Result{Outcome: fcm.OutcomeSuccess, MessageID: "msg"}
	}}
}

type fakeFactory struct {
	sender fcm.Sender
}

func (f *fakeFactory) SenderFor(s *pushdomain.Settings) (fcm.Sender, error) {
	return f.sender, nil
}

func testSettings() *pushdomain.Settings {
	s := &pushdomain.Settings{
		Enabled:            true,
		ServerKey:          "test-key",
		MaxRetries:         3,
		RetryBackoffMillis: 1,
	}
	s.ApplyDefaults()
	return s
}

func newTestDispatcher(devices repository.DeviceRepository, logs repository.LogRepository, sender fcm.Sender) *Dispatcher {
	return NewDispatcher(devices, logs, &fakeFactory{sender: sender}, 4, time.Minute, "https://app.example.com")
}

func TestDispatch_FanoutCoversAllEnabledDevices(t *testing.T) {
	devices := &fakeDevices{}
	devices.add("alice", "tok-a1")
	devices.add("alice", "tok-a2")
	devices.add("bob", "tok-b1")
	devices.addDisabled("alice", "tok-a3")

	sender := alwaysSucceed()
	d := newTestDispatcher(devices, &fakeLogs{}, sender)

	res, err := d.Dispatch(context.Background(), testSettings(), Request{Users: []string{"alice", "bob"}, Notification: pushdomain.Notification{Title: "t", Body: "b"}, Type: "users"})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Success)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, int64(3), sender.callCount())
	assert.ElementsMatch(t, []string{"tok-a1", "tok-a2", "tok-b1"}, devices.used)
}

func TestDispatch_PermanentFailureDisablesDevice(t *testing.T) {
	devices := &fakeDevices{}
	devices.add("alice", "tok-bad")
	devices.add("alice", "tok-good")

	sender := &scriptSender{send: func(call int64, target fcm.Target) fcm.Result {
		if target.Token == "tok-bad" {
			return fcm.Result{Outcome: fcm.OutcomePermanent, Err: errors.New("UNREGISTERED")}
		}
		return fcm.Result{Outcome: fcm.OutcomeSuccess}
	}}
	d := newTestDispatcher(devices, &fakeLogs{}, sender)

	res, err := d.Dispatch(context.Background(), testSettings(), Request{Users: []string{"alice"}, Notification: pushdomain.Notification{Title: "t", Body: "b"}})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"tok-bad"}, devices.invalid)

	// A later fanout no longer sees the disabled device.
	enabled, err := devices.ListEnabled("alice")
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "tok-good", enabled[0].Token)
}

func TestDispatch_TransientFailureRetriesUpToLimit(t *testing.T) {
	devices := &fakeDevices{}
	devices.add("alice", "tok-1")

	sender := &scriptSender{send: func(call int64, target fcm.Target) fcm.Result {
		return fcm.Result{Outcome: fcm.OutcomeTransient, Err: errors.New("UNAVAILABLE")}
	}}
	settings := testSettings()
	settings.MaxRetries = 2
	d := newTestDispatcher(devices, &fakeLogs{}, sender)

	res, err := d.Dispatch(context.Background(), settings, Request{Users: []string{"alice"}, Notification: pushdomain.Notification{Title: "t", Body: "b"}})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Failed)
	// One initial attempt plus MaxRetries retries, never more.
	assert.Equal(t, int64(3), sender.callCount())
	assert.Empty(t, devices.invalid, "transient failures must not disable the device")
}

func TestDispatch_TransientThenSuccess(t *testing.T) {
	devices := &fakeDevices{}
	devices.add("alice", "tok-1")

	sender := &scriptSender{send: func(call int64, target fcm.Target) fcm.Result {
		if call == 1 {
			return fcm.Result{Outcome: fcm.OutcomeTransient, Err: errors.New("INTERNAL")}
		}
		return fcm.Result{Outcome: fcm.OutcomeSuccess}
	}}
	d := newTestDispatcher(devices, &fakeLogs{}, sender)

	res, err := d.Dispatch(context.Background(), testSettings(), Request{Users: []string{"alice"}, Notification: pushdomain.Notification{Title: "t", Body: "b"}})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Success)
	assert.Equal(t, int64(2), sender.callCount())
	assert.Equal(t, []string{"tok-1"}, devices.used)
}

func TestDispatch_AuthFailureAbortsCall(t *testing.T) {
	devices := &fakeDevices{}
	for i := 0; i < 20; i++ {
		devices.add("alice", "tok-"+string(rune('a'+i)))
	}

	sender := &scriptSender{send: func(call int64, target fcm.Target) fcm.Result {
		return fcm.Result{Outcome: fcm.OutcomeAuth, Err: errors.New("UNAUTHENTICATED")}
	}}
	d := newTestDispatcher(devices, &fakeLogs{}, sender)

	res, err := d.Dispatch(context.Background(), testSettings(), Request{Users: []string{"alice"}, Notification: pushdomain.Notification{Title: "t", Body: "b"}})

	var authErr *pushdomain.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, 0, res.Success)
	assert.Equal(t, 20, res.Failed)
	assert.Empty(t, devices.invalid, "an auth failure says nothing about the tokens")
}

func TestDispatch_DisabledConfigFailsBeforeRegistry(t *testing.T) {
	devices := &fakeDevices{}
	devices.add("alice", "tok-1")

	settings := testSettings()
	settings.Enabled = false
	d := newTestDispatcher(devices, &fakeLogs{}, alwaysSucceed())

	_, err := d.Dispatch(context.Background(), settings, Request{Users: []string{"alice"}, Notification: pushdomain.Notification{Title: "t", Body: "b"}})

	var cfgErr *pushdomain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Zero(t, devices.listHits, "config violations must fail before touching the registry")
}

func TestDispatch_BroadcastExcludesUsers(t *testing.T) {
	devices := &fakeDevices{}
	devices.add("alice", "tok-a")
	devices.add("bob", "tok-b")
	devices.add("carol", "tok-c")

	var sent []string
	var mu sync.Mutex
	sender := &scriptSender{send: func(call int64, target fcm.Target) fcm.Result {
		mu.Lock()
		sent = append(sent, target.Token)
		mu.Unlock()
		return fcm.Result{Outcome: fcm.OutcomeSuccess}
	}}
	d := newTestDispatcher(devices, &fakeLogs{}, sender)

	res, err := d.Dispatch(context.Background(), testSettings(), Request{Broadcast: true, ExcludeUsers: []string{"alice"}, Notification: pushdomain.Notification{Title: "t", Body: "b"}})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Success)
	assert.ElementsMatch(t, []string{"tok-b", "tok-c"}, sent)
}

func TestDispatch_TopicBypassesRegistry(t *testing.T) {
	devices := &fakeDevices{}
	var gotTopic string
	sender := &scriptSender{send: func(call int64, target fcm.Target) fcm.Result {
		gotTopic = target.Topic
		return fcm.Result{Outcome: fcm.OutcomeSuccess}
	}}
	d := newTestDispatcher(devices, &fakeLogs{}, sender)

	res, err := d.Dispatch(context.Background(), testSettings(), Request{Topic: "announcements", Notification: pushdomain.Notification{Title: "t", Body: "b"}})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Success)
	assert.Equal(t, "announcements", gotTopic)
	assert.Zero(t, devices.listHits)
	assert.Empty(t, devices.used, "topic sends have no device row to touch")
}

func TestDispatch_RecordsLogsWhenEnabled(t *testing.T) {
	devices := &fakeDevices{}
	devices.add("alice", "tok-aaaaaaaaaaaaaaaaaaaaaaaa")
	logs := &fakeLogs{}

	settings := testSettings()
	settings.LogNotifications = true
	d := newTestDispatcher(devices, logs, alwaysSucceed())

	_, err := d.Dispatch(context.Background(), settings, Request{Users: []string{"alice"}, Notification: pushdomain.Notification{Title: "Hello", Body: "World"}, Type: "user"})
	require.NoError(t, err)

	require.Len(t, logs.entries, 1)
	entry := logs.entries[0]
	assert.Equal(t, pushdomain.LogStatusSent, entry.Status)
	assert.Equal(t, "alice", entry.RecipientUser)
	assert.Equal(t, "Hello", entry.Title)
	assert.NotContains(t, entry.TokenPreview, "tok-aaaaaaaaaaaaaaaaaaaaaaaa", "full tokens never reach the log")
}

func TestSenderFactory_PrefersV1OverLegacy(t *testing.T) {
	factory := NewSenderFactory()

	legacyOnly := testSettings()
	sender, err := factory.SenderFor(legacyOnly)
	require.NoError(t, err)
	assert.Equal(t, fcm.VariantLegacy, sender.Variant())

	noCreds := testSettings()
	noCreds.ServerKey = ""
	_, err = factory.SenderFor(noCreds)
	var cfgErr *pushdomain.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
