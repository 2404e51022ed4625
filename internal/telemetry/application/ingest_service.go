package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fleet-telemetry/internal/auth"
	"fleet-telemetry/internal/bulk"
	masterdata "fleet-telemetry/internal/masterdata/domain"
	"fleet-telemetry/internal/observability/metrics"
	telemetry "fleet-telemetry/internal/telemetry/domain"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Option customizes telemetry services.
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

// IngestService validates readings against the registry, persists them and advances heartbeats.
type IngestService struct {
	devices  masterdata.DeviceRepository
	readings telemetry.ReadingStore
	clock    Clock
	logger   *zap.Logger
}

// NewIngestService constructs an ingest service.
func NewIngestService(devices masterdata.DeviceRepository, readings telemetry.ReadingStore, opts ...Option) (*IngestService, error) {
	if devices == nil {
		return nil, errors.New("telemetry: nil device repository")
	}
	if readings == nil {
		return nil, errors.New("telemetry: nil reading store")
	}
	o := buildOptions(opts)
	return &IngestService{devices: devices, readings: readings, clock: o.clock, logger: o.logger}, nil
}

// Ingest stores one reading for a device identified by its external id.
func (s *IngestService) Ingest(ctx context.Context, draft telemetry.Draft) (*telemetry.Reading, error) {
	if s == nil {
		return nil, errors.New("telemetry: nil ingest service")
	}
	device, err := s.devices.FindByExternalID(ctx, draft.DeviceID)
	if err != nil {
		return nil, err
	}
	if device == nil {
		metrics.IncIngestError("unknown_device")
		return nil, fmt.Errorf("%w: device %s not registered", masterdata.ErrDeviceNotFound, draft.DeviceID)
	}
	return s.store(ctx, device.ID, draft)
}

// IngestBulk stores readings addressed by internal device id. Each item is
// independent; misses are reported and skipped. Only privileged callers may
// bulk ingest, and no factory scope is applied to the items.
func (s *IngestService) IngestBulk(ctx context.Context, caller auth.Caller, drafts []telemetry.Draft) (bulk.Result, error) {
	if s == nil {
		return bulk.Result{}, errors.New("telemetry: nil ingest service")
	}
	if !caller.Privileged() {
		return bulk.Result{}, auth.ErrForbidden
	}
	var res bulk.Result
	for idx, draft := range drafts {
		device, err := s.devices.Get(ctx, draft.DeviceID)
		if err != nil {
			return res, err
		}
		if device == nil {
			res.Fail("Reading", idx, "Device %s not found", draft.DeviceID)
			continue
		}
		if _, err := s.store(ctx, device.ID, draft); err != nil {
			return res, err
		}
		res.Add()
	}
	metrics.AddBulkItems("reading", res.Created, res.Failed())
	s.logger.Info("bulk ingest", zap.Int("created", res.Created), zap.Int("failed", res.Failed()))
	return res, nil
}

func (s *IngestService) store(ctx context.Context, deviceID string, draft telemetry.Draft) (*telemetry.Reading, error) {
	now := s.clock.Now().UTC()
	reading := &telemetry.Reading{
		DeviceID: deviceID,
		TS:       draft.Stamp(now),
		Metrics:  draft.Metrics,
	}
	if err := s.readings.Insert(ctx, reading); err != nil {
		return nil, fmt.Errorf("telemetry: insert reading: %w", err)
	}
	if err := s.devices.TouchLastSeen(ctx, deviceID, reading.TS); err != nil {
		return nil, fmt.Errorf("telemetry: touch last seen: %w", err)
	}
	return reading, nil
}
