package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	analytics "fleet-telemetry/internal/analytics/domain"
	"fleet-telemetry/internal/auth"
	masterdata "fleet-telemetry/internal/masterdata/domain"
	"fleet-telemetry/internal/observability/metrics"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Option customizes analytics services.
type Option func(*options)

type options struct {
	clock  Clock
	logger *zap.Logger
}

// WithClock assigns a clock.
func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: systemClock{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// InsightService computes factory health snapshots on demand.
type InsightService struct {
	devices    masterdata.DeviceRepository
	aggregator analytics.WindowAggregator
	anomalies  analytics.AnomalyCounter
	clock      Clock
	logger     *zap.Logger
}

// NewInsightService constructs an insight service.
func NewInsightService(devices masterdata.DeviceRepository, aggregator analytics.WindowAggregator, anomalies analytics.AnomalyCounter, opts ...Option) (*InsightService, error) {
	if devices == nil {
		return nil, errors.New("analytics: nil device repository")
	}
	if aggregator == nil {
		return nil, errors.New("analytics: nil window aggregator")
	}
	if anomalies == nil {
		return nil, errors.New("analytics: nil anomaly counter")
	}
	o := buildOptions(opts)
	return &InsightService{
		devices:    devices,
		aggregator: aggregator,
		anomalies:  anomalies,
		clock:      o.clock,
		logger:     o.logger,
	}, nil
}

// Insight summarises one factory over the trailing period ending now.
// Insights are always per factory, so a privileged caller must name one.
func (s *InsightService) Insight(ctx context.Context, caller auth.Caller, requestedFactory, periodLabel string) (analytics.Insight, error) {
	if s == nil {
		return analytics.Insight{}, errors.New("analytics: nil insight service")
	}
	period := analytics.ParsePeriod(periodLabel)
	started := time.Now()
	insight, err := s.insight(ctx, caller, requestedFactory, period)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveInsight(period.Label, result, time.Since(started))
	return insight, err
}

func (s *InsightService) insight(ctx context.Context, caller auth.Caller, requestedFactory string, period analytics.Period) (analytics.Insight, error) {
	scope := auth.ResolveScope(caller, requestedFactory)
	if scope.All() || scope.Empty() {
		return analytics.Insight{}, analytics.ErrTenantRequired
	}
	factoryID := scope.FactoryID()
	now := s.clock.Now().UTC()
	start := period.Start(now)

	total, err := s.devices.CountByFactory(ctx, factoryID)
	if err != nil {
		return analytics.Insight{}, fmt.Errorf("analytics: count devices: %w", err)
	}
	in := analytics.InsightInput{
		Period:      period,
		FactoryID:   factoryID,
		Now:         now,
		DeviceCount: total,
	}
	if total == 0 {
		return analytics.BuildInsight(in), nil
	}

	devices, err := s.devices.List(ctx, factoryID)
	if err != nil {
		return analytics.Insight{}, fmt.Errorf("analytics: list devices: %w", err)
	}

	ids := make([]string, 0, len(devices))
	for _, device := range devices {
		ids = append(ids, device.ID)
	}
	if in.Summary, err = s.aggregator.Aggregate(ctx, ids, start, now); err != nil {
		return analytics.Insight{}, fmt.Errorf("analytics: aggregate: %w", err)
	}
	if in.ActiveDevices, err = s.devices.CountActiveSince(ctx, factoryID, now.Add(-analytics.FreshnessWindow)); err != nil {
		return analytics.Insight{}, fmt.Errorf("analytics: count active: %w", err)
	}
	if in.Anomalies, err = s.anomalies.CountAnomalies(ctx, factoryID, start); err != nil {
		return analytics.Insight{}, fmt.Errorf("analytics: count anomalies: %w", err)
	}
	s.logger.Debug("insight computed",
		zap.String("factory_id", factoryID),
		zap.String("period", period.Label),
		zap.Int("devices", len(devices)),
	)
	return analytics.BuildInsight(in), nil
}
