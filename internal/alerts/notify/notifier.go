package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	alertapp "fleet-telemetry/internal/alerts/application"
	alerts "fleet-telemetry/internal/alerts/domain"
)

// Clock provides time for cooldown bookkeeping.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier renders alert events and sends them through a channel.
type Notifier struct {
	channel      Channel
	template     *Template
	clock        Clock
	logger       *zap.Logger
	minSeverity  alerts.Severity
	mu           sync.Mutex
	sent         map[string]sendRecord
	cooldown     time.Duration
	dedupeWindow time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithCooldown sets a minimum interval between notifications for the same alert and event.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// WithMinSeverity drops events for alerts below the given severity.
func WithMinSeverity(severity alerts.Severity) Option {
	return func(n *Notifier) {
		n.minSeverity = severity
	}
}

// WithLogger assigns a logger for delivery failures.
func WithLogger(logger *zap.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewNotifier constructs an alert notifier.
func NewNotifier(channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("alert notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		channel:  channel,
		template: template,
		clock:    systemClock{},
		logger:   zap.NewNop(),
		sent:     make(map[string]sendRecord),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify implements application.Notifier.
func (n *Notifier) Notify(ctx context.Context, event alertapp.Event) {
	if n == nil || n.channel == nil {
		return
	}
	if severityRank(event.Alert.Severity) < severityRank(n.minSeverity) {
		return
	}
	content, err := n.template.Render(buildTemplateData(event.Type, event.Alert))
	if err != nil {
		n.logger.Warn("render alert notification", zap.String("alert_id", event.Alert.ID), zap.Error(err))
		return
	}
	if !n.shouldSend(event.Alert.ID, event.Type, content) {
		return
	}
	if err := n.channel.Send(ctx, content); err != nil {
		n.logger.Warn("send alert notification", zap.String("alert_id", event.Alert.ID), zap.Error(err))
		return
	}
	n.markSent(event.Alert.ID, event.Type, content)
}

func buildTemplateData(eventType string, alert alerts.Alert) TemplateData {
	data := TemplateData{
		AlertID:     alert.ID,
		FactoryID:   alert.FactoryID,
		DeviceID:    alert.DeviceID,
		Category:    alert.Category,
		Title:       alert.Title,
		Message:     alert.Message,
		Severity:    string(alert.Severity),
		TriggeredAt: alert.TriggeredAt.UTC().Format(time.RFC3339),
		Status:      string(alert.Status),
		Event:       eventType,
		EventLabel:  eventLabel(eventType),
	}
	if alert.MetricValue != nil {
		data.MetricValue = formatFloat(*alert.MetricValue)
	}
	if alert.ThresholdValue != nil {
		data.Threshold = formatFloat(*alert.ThresholdValue)
	}
	switch eventType {
	case alertapp.EventAcknowledged:
		data.Actor = alert.AcknowledgedBy
	case alertapp.EventResolved:
		data.Actor = alert.ResolvedBy
	}
	return data
}

func eventLabel(event string) string {
	switch event {
	case alertapp.EventActive:
		return "Triggered"
	case alertapp.EventAcknowledged:
		return "Acknowledged"
	case alertapp.EventResolved:
		return "Resolved"
	default:
		return event
	}
}

func severityRank(severity alerts.Severity) int {
	switch severity {
	case alerts.SeverityCritical:
		return 3
	case alerts.SeverityWarning:
		return 2
	case alerts.SeverityInfo:
		return 1
	default:
		return 0
	}
}

func formatFloat(value float64) string {
	return fmt.Sprintf("%.2f", value)
}

func (n *Notifier) shouldSend(alertID, eventType, content string) bool {
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	key := notificationKey(alertID, eventType)
	now := n.clock.Now().UTC()
	hash := hashContent(content)

	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hash && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *Notifier) markSent(alertID, eventType, content string) {
	key := notificationKey(alertID, eventType)
	n.mu.Lock()
	n.sent[key] = sendRecord{
		at:   n.clock.Now().UTC(),
		hash: hashContent(content),
	}
	n.mu.Unlock()
}

func notificationKey(alertID, eventType string) string {
	return alertID + "|" + eventType
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
