package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	alertapp "fleet-telemetry/internal/alerts/application"
	alerts "fleet-telemetry/internal/alerts/domain"
)

func floatPtr(v float64) *float64 { return &v }

func TestWebhookNotifierPayload(t *testing.T) {
	payloadCh := make(chan webhookPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		payloadCh <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL, WithRetries(0))
	if err != nil {
		t.Fatalf("new webhook channel: %v", err)
	}
	notifier, err := NewNotifier(channel, nil)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	alert := alerts.Alert{
		ID:             "alert-1",
		DeviceID:       "dev-1",
		FactoryID:      "factory-a",
		Category:       "temperature",
		Severity:       alerts.SeverityCritical,
		Status:         alerts.StatusActive,
		Title:          "Overheat",
		Message:        "Spindle above limit",
		MetricValue:    floatPtr(91.5),
		ThresholdValue: floatPtr(80),
		TriggeredAt:    time.Date(2026, 1, 26, 8, 0, 0, 0, time.UTC),
	}
	notifier.Notify(context.Background(), alertapp.Event{Type: alertapp.EventActive, Alert: alert})

	select {
	case payload := <-payloadCh:
		if payload.MsgType != "text" {
			t.Fatalf("expected msgtype text, got %s", payload.MsgType)
		}
		checks := []string{
			"[Alert Triggered]",
			"Factory: factory-a",
			"Device: dev-1",
			"Severity: CRITICAL",
			"Metric Value: 91.50",
			"Threshold: 80.00",
			"Triggered At: 2026-01-26T08:00:00Z",
			"Current Status: ACTIVE",
			"Spindle above limit",
		}
		for _, expected := range checks {
			if !strings.Contains(payload.Text.Content, expected) {
				t.Fatalf("expected content to include %q, got %s", expected, payload.Text.Content)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for webhook payload")
	}
}

func TestWebhookChannelNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL, WithRetries(0), WithTimeout(time.Second))
	if err != nil {
		t.Fatalf("new webhook channel: %v", err)
	}
	if err := channel.Send(context.Background(), "hello"); err == nil {
		t.Fatal("expected error for 502 response")
	}
	if _, err := NewWebhookChannel(""); err == nil {
		t.Fatal("expected error for empty url")
	}
}

type recordingChannel struct {
	mu       sync.Mutex
	contents []string
}

func (r *recordingChannel) Send(_ context.Context, content string) error {
	r.mu.Lock()
	r.contents = append(r.contents, content)
	r.mu.Unlock()
	return nil
}

func (r *recordingChannel) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.contents)
}

func (r *recordingChannel) Latest() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.contents) == 0 {
		return ""
	}
	return r.contents[len(r.contents)-1]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Add(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestNotifierCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 26, 10, 0, 0, 0, time.UTC)}
	channel := &recordingChannel{}
	notifier, err := NewNotifier(channel, nil, WithClock(clock), WithCooldown(10*time.Minute))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	alert := alerts.Alert{ID: "alert-1", FactoryID: "factory-a", Severity: alerts.SeverityWarning, Status: alerts.StatusActive, TriggeredAt: clock.Now()}

	notifier.Notify(context.Background(), alertapp.Event{Type: alertapp.EventActive, Alert: alert})
	notifier.Notify(context.Background(), alertapp.Event{Type: alertapp.EventActive, Alert: alert})
	if got := channel.Count(); got != 1 {
		t.Fatalf("expected 1 notification during cooldown, got %d", got)
	}

	alert.Status = alerts.StatusAcknowledged
	alert.AcknowledgedBy = "op-1"
	notifier.Notify(context.Background(), alertapp.Event{Type: alertapp.EventAcknowledged, Alert: alert})
	if got := channel.Count(); got != 2 {
		t.Fatalf("expected acknowledgement to bypass active cooldown, got %d", got)
	}
	if !strings.Contains(channel.Latest(), "By: op-1") {
		t.Fatalf("expected actor in content, got %s", channel.Latest())
	}

	clock.Add(11 * time.Minute)
	notifier.Notify(context.Background(), alertapp.Event{Type: alertapp.EventActive, Alert: alert})
	if got := channel.Count(); got != 3 {
		t.Fatalf("expected 3 notifications after cooldown, got %d", got)
	}
}

func TestNotifierDedupeWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 26, 11, 0, 0, 0, time.UTC)}
	channel := &recordingChannel{}
	notifier, err := NewNotifier(channel, nil, WithClock(clock), WithDedupeWindow(30*time.Minute))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	alert := alerts.Alert{ID: "alert-2", FactoryID: "factory-a", Severity: alerts.SeverityWarning, Status: alerts.StatusActive, MetricValue: floatPtr(12), TriggeredAt: clock.Now()}

	notifier.Notify(context.Background(), alertapp.Event{Type: alertapp.EventActive, Alert: alert})
	clock.Add(5 * time.Minute)
	notifier.Notify(context.Background(), alertapp.Event{Type: alertapp.EventActive, Alert: alert})
	if got := channel.Count(); got != 1 {
		t.Fatalf("expected 1 notification during dedupe window, got %d", got)
	}

	alert.MetricValue = floatPtr(15)
	notifier.Notify(context.Background(), alertapp.Event{Type: alertapp.EventActive, Alert: alert})
	if got := channel.Count(); got != 2 {
		t.Fatalf("expected notification when content changes, got %d", got)
	}
}

func TestNotifierMinSeverity(t *testing.T) {
	channel := &recordingChannel{}
	notifier, err := NewNotifier(channel, nil, WithMinSeverity(alerts.SeverityWarning))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	notifier.Notify(context.Background(), alertapp.Event{Type: alertapp.EventActive, Alert: alerts.Alert{ID: "a", Severity: alerts.SeverityInfo}})
	notifier.Notify(context.Background(), alertapp.Event{Type: alertapp.EventActive, Alert: alerts.Alert{ID: "b", Severity: alerts.SeverityCritical}})
	if got := channel.Count(); got != 1 {
		t.Fatalf("expected only the critical alert, got %d", got)
	}
}

func TestMultiNotifier(t *testing.T) {
	first := &recordingChannel{}
	second := &recordingChannel{}
	a, _ := NewNotifier(first, nil)
	b, _ := NewNotifier(second, nil)
	multi := NewMultiNotifier(a, nil, b)
	multi.Notify(context.Background(), alertapp.Event{Type: alertapp.EventResolved, Alert: alerts.Alert{ID: "x", Status: alerts.StatusResolved}})
	if first.Count() != 1 || second.Count() != 1 {
		t.Fatalf("expected fan-out to both notifiers, got %d and %d", first.Count(), second.Count())
	}
	if !strings.Contains(first.Latest(), "[Alert Resolved]") {
		t.Fatalf("unexpected content %s", first.Latest())
	}
}
