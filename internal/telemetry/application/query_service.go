package application

import (
	"context"
	"errors"
	"time"

	analytics "fleet-telemetry/internal/analytics/domain"
	"fleet-telemetry/internal/auth"
	masterdata "fleet-telemetry/internal/masterdata/domain"
	telemetry "fleet-telemetry/internal/telemetry/domain"
)

// Snapshot is the dashboard view of the most recent reading in scope.
type Snapshot struct {
	Temperature     *float64                `json:"temperature"`
	GasIndex        *float64                `json:"gas_index"`
	VibrationHealth analytics.VibrationBand `json:"vibration_health"`
	DeviceUptime    *float64                `json:"device_uptime"`
	LastUpdate      *time.Time              `json:"last_update"`
}

func emptySnapshot() Snapshot {
	return Snapshot{VibrationHealth: analytics.VibrationUnknown}
}

// QueryService answers read-side telemetry queries.
type QueryService struct {
	devices  masterdata.DeviceRepository
	readings telemetry.ReadingStore
	clock    Clock
}

// NewQueryService constructs a query service.
func NewQueryService(devices masterdata.DeviceRepository, readings telemetry.ReadingStore, opts ...Option) (*QueryService, error) {
	if devices == nil {
		return nil, errors.New("telemetry: nil device repository")
	}
	if readings == nil {
		return nil, errors.New("telemetry: nil reading store")
	}
	o := buildOptions(opts)
	return &QueryService{devices: devices, readings: readings, clock: o.clock}, nil
}

// Latest returns the newest reading visible to the caller, optionally narrowed
// to one device, with its vibration band and the fleet liveness ratio of the scope.
func (s *QueryService) Latest(ctx context.Context, caller auth.Caller, requestedFactory, deviceID string) (Snapshot, error) {
	if s == nil {
		return Snapshot{}, errors.New("telemetry: nil query service")
	}
	scope := auth.ResolveScope(caller, requestedFactory)
	if scope.Empty() {
		return emptySnapshot(), nil
	}
	devices, err := s.devices.List(ctx, scope.FactoryID())
	if err != nil {
		return Snapshot{}, err
	}

	now := s.clock.Now().UTC()
	since := now.Add(-analytics.FreshnessWindow)
	ids := make([]string, 0, len(devices))
	active := 0
	for _, device := range devices {
		if device.ActiveSince(since) {
			active++
		}
		if deviceID == "" || device.ID == deviceID {
			ids = append(ids, device.ID)
		}
	}
	if len(ids) == 0 {
		return emptySnapshot(), nil
	}

	latest, err := s.readings.LatestByDeviceSet(ctx, ids)
	if err != nil {
		return Snapshot{}, err
	}
	if latest == nil {
		return emptySnapshot(), nil
	}
	uptime := analytics.FleetRatio(active, len(devices))
	ts := latest.TS
	return Snapshot{
		Temperature:     latest.Temperature,
		GasIndex:        latest.GasIndex,
		VibrationHealth: analytics.ClassifyVibration(latest.Metrics),
		DeviceUptime:    &uptime,
		LastUpdate:      &ts,
	}, nil
}

// TimeSeries returns readings of one device in ascending time order.
func (s *QueryService) TimeSeries(ctx context.Context, caller auth.Caller, query telemetry.SeriesQuery) ([]telemetry.Reading, error) {
	if s == nil {
		return nil, errors.New("telemetry: nil query service")
	}
	if query.DeviceID == "" {
		return nil, telemetry.ErrInvalidQuery
	}
	start, end, limit, err := query.Bounds(s.clock.Now())
	if err != nil {
		return nil, err
	}
	device, err := s.devices.Get(ctx, query.DeviceID)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, masterdata.ErrDeviceNotFound
	}
	if err := caller.Authorize(device.FactoryID); err != nil {
		return nil, err
	}
	readings, err := s.readings.RangeByDevice(ctx, device.ID, start, end, limit, true)
	if err != nil {
		return nil, err
	}
	if readings == nil {
		readings = []telemetry.Reading{}
	}
	return readings, nil
}
