package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	alerts "fleet-telemetry/internal/alerts/domain"
	"fleet-telemetry/internal/auth"
	"fleet-telemetry/internal/bulk"
	masterdata "fleet-telemetry/internal/masterdata/domain"
	"fleet-telemetry/internal/observability/metrics"
)

// Lifecycle event types.
const (
	EventActive       = "active"
	EventAcknowledged = "acknowledged"
	EventResolved     = "resolved"
)

// Notifier publishes alert lifecycle events.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Event represents a lifecycle update.
type Event struct {
	Type  string       `json:"type"`
	Alert alerts.Alert `json:"alert"`
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Service owns the alert state machine.
type Service struct {
	alerts    alerts.Repository
	devices   masterdata.DeviceRepository
	factories masterdata.FactoryRepository
	notifier  Notifier
	clock     Clock
	newID     func() string
	logger    *zap.Logger
}

// ServiceOption customizes the alert service.
type ServiceOption func(*Service)

// WithNotifier assigns a notifier.
func WithNotifier(notifier Notifier) ServiceOption {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator overrides uuid generation.
func WithIDGenerator(fn func() string) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs an alert service.
func NewService(repo alerts.Repository, devices masterdata.DeviceRepository, factories masterdata.FactoryRepository, opts ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("alerts: nil repository")
	}
	if devices == nil {
		return nil, errors.New("alerts: nil device repository")
	}
	if factories == nil {
		return nil, errors.New("alerts: nil factory repository")
	}
	s := &Service{
		alerts:    repo,
		devices:   devices,
		factories: factories,
		clock:     systemClock{},
		newID:     uuid.NewString,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create raises one ACTIVE alert. The factory is inferred from the device when
// omitted; standard callers may only raise alerts in their own factory. An alert
// with neither factory nor device is fleet-wide and only privileged callers see it.
func (s *Service) Create(ctx context.Context, caller auth.Caller, draft alerts.Draft) (*alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	alert, err := s.build(ctx, draft)
	if err != nil {
		return nil, err
	}
	if err := caller.Authorize(alert.FactoryID); err != nil {
		return nil, err
	}
	if err := s.alerts.Create(ctx, alert); err != nil {
		return nil, fmt.Errorf("alerts: create: %w", err)
	}
	s.logger.Info("alert raised",
		zap.String("alert_id", alert.ID),
		zap.String("factory_id", alert.FactoryID),
		zap.String("severity", string(alert.Severity)),
	)
	s.notify(ctx, EventActive, *alert)
	return alert, nil
}

// CreateBulk raises alerts independently; rejected drafts are reported per index.
func (s *Service) CreateBulk(ctx context.Context, caller auth.Caller, drafts []alerts.Draft) (bulk.Result, error) {
	if s == nil {
		return bulk.Result{}, errors.New("alerts: nil service")
	}
	if !caller.Privileged() {
		return bulk.Result{}, auth.ErrForbidden
	}
	var res bulk.Result
	for idx, draft := range drafts {
		alert, err := s.build(ctx, draft)
		switch {
		case err == nil:
		case errors.Is(err, masterdata.ErrDeviceNotFound):
			res.Fail("Alert", idx, "Device %s not found", draft.DeviceID)
			continue
		case errors.Is(err, masterdata.ErrFactoryNotFound):
			res.Fail("Alert", idx, "Factory %s not found", alert.FactoryID)
			continue
		default:
			return res, err
		}
		if err := s.alerts.Create(ctx, alert); err != nil {
			return res, fmt.Errorf("alerts: create: %w", err)
		}
		res.Add()
		s.notify(ctx, EventActive, *alert)
	}
	metrics.AddBulkItems("alert", res.Created, res.Failed())
	s.logger.Info("bulk alert upload", zap.Int("created", res.Created), zap.Int("failed", res.Failed()))
	return res, nil
}

// Acknowledge marks an alert as seen by the caller.
func (s *Service) Acknowledge(ctx context.Context, caller auth.Caller, id string) (*alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	alert, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if err := alert.Acknowledge(caller.Subject, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.alerts.MarkAcknowledged(ctx, alert); err != nil {
		return nil, err
	}
	s.notify(ctx, EventAcknowledged, *alert)
	return alert, nil
}

// Resolve closes an alert. Resolving an already resolved alert changes nothing.
func (s *Service) Resolve(ctx context.Context, caller auth.Caller, id string) (*alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	alert, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	changed, err := alert.Resolve(caller.Subject, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !changed {
		return alert, nil
	}
	if err := s.alerts.MarkResolved(ctx, alert); err != nil {
		return nil, err
	}
	s.notify(ctx, EventResolved, *alert)
	return alert, nil
}

// List returns up to ListLimit alerts visible to the caller, newest first.
func (s *Service) List(ctx context.Context, caller auth.Caller, requestedFactory, statusLabel string) ([]alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	filter := alerts.Filter{Limit: alerts.ListLimit}
	// unknown status labels apply no filter
	if status, err := alerts.ParseStatus(statusLabel); err == nil {
		filter.Status = &status
	}
	scope := auth.ResolveScope(caller, requestedFactory)
	if scope.Empty() {
		return []alerts.Alert{}, nil
	}
	filter.FactoryID = scope.FactoryID()
	list, err := s.alerts.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []alerts.Alert{}
	}
	return list, nil
}

func (s *Service) load(ctx context.Context, caller auth.Caller, id string) (*alerts.Alert, error) {
	alert, err := s.alerts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, alerts.ErrNotFound
	}
	if err := caller.Authorize(alert.FactoryID); err != nil {
		return nil, err
	}
	return alert, nil
}

// build validates references and fills defaults. On a missing factory it still
// returns the partially built alert so callers can report the resolved id.
func (s *Service) build(ctx context.Context, draft alerts.Draft) (*alerts.Alert, error) {
	factoryID := strings.TrimSpace(draft.FactoryID)
	deviceID := strings.TrimSpace(draft.DeviceID)
	if deviceID != "" {
		device, err := s.devices.Get(ctx, deviceID)
		if err != nil {
			return nil, err
		}
		if device == nil {
			return nil, masterdata.ErrDeviceNotFound
		}
		if factoryID == "" {
			factoryID = device.FactoryID
		}
	}
	category := strings.TrimSpace(draft.Category)
	if category == "" {
		category = alerts.DefaultCategory
	}
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		title = alerts.DefaultTitle
	}
	alert := &alerts.Alert{
		ID:             s.newID(),
		DeviceID:       deviceID,
		FactoryID:      factoryID,
		Category:       category,
		Severity:       alerts.ParseSeverity(draft.Severity),
		Status:         alerts.StatusActive,
		Title:          title,
		Message:        draft.Message,
		MetricValue:    draft.MetricValue,
		ThresholdValue: draft.ThresholdValue,
		TriggeredAt:    s.clock.Now().UTC(),
	}

	if factoryID == "" {
		return alert, nil
	}
	ok, err := s.factories.Exists(ctx, factoryID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return alert, masterdata.ErrFactoryNotFound
	}
	return alert, nil
}

func (s *Service) notify(ctx context.Context, eventType string, alert alerts.Alert) {
	metrics.IncAlertEvent(eventType)
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, Event{Type: eventType, Alert: alert})
}
