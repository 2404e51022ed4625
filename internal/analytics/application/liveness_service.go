package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	analytics "fleet-telemetry/internal/analytics/domain"
	"fleet-telemetry/internal/auth"
	masterdata "fleet-telemetry/internal/masterdata/domain"
)

// DeviceStatus is a device's registry entry plus its trailing 24h uptime.
type DeviceStatus struct {
	ID               string     `json:"id"`
	DeviceID         string     `json:"device_id"`
	DeviceName       string     `json:"device_name"`
	IsActive         bool       `json:"is_active"`
	LastSeen         *time.Time `json:"last_seen"`
	UptimePercentage *float64   `json:"uptime_percentage"`
}

// LivenessService reports per-device uptime.
type LivenessService struct {
	devices  masterdata.DeviceRepository
	activity analytics.ActivityCounter
	clock    Clock
}

// NewLivenessService constructs a liveness service.
func NewLivenessService(devices masterdata.DeviceRepository, activity analytics.ActivityCounter, opts ...Option) (*LivenessService, error) {
	if devices == nil {
		return nil, errors.New("analytics: nil device repository")
	}
	if activity == nil {
		return nil, errors.New("analytics: nil activity counter")
	}
	o := buildOptions(opts)
	return &LivenessService{devices: devices, activity: activity, clock: o.clock}, nil
}

// DeviceStatus returns the status of a device visible to the caller.
func (s *LivenessService) DeviceStatus(ctx context.Context, caller auth.Caller, deviceID string) (DeviceStatus, error) {
	if s == nil {
		return DeviceStatus{}, errors.New("analytics: nil liveness service")
	}
	if deviceID == "" {
		return DeviceStatus{}, masterdata.ErrDeviceNotFound
	}
	device, err := s.devices.Get(ctx, deviceID)
	if err != nil {
		return DeviceStatus{}, err
	}
	if device == nil {
		return DeviceStatus{}, masterdata.ErrDeviceNotFound
	}
	if err := caller.Authorize(device.FactoryID); err != nil {
		return DeviceStatus{}, err
	}

	now := s.clock.Now().UTC()
	buckets, err := s.activity.ActiveBuckets(ctx, device.ID, now.Add(-analytics.UptimeWindow), now, analytics.BucketWidth)
	if err != nil {
		return DeviceStatus{}, fmt.Errorf("analytics: active buckets: %w", err)
	}
	return DeviceStatus{
		ID:               device.ID,
		DeviceID:         device.ExternalID,
		DeviceName:       device.Name,
		IsActive:         device.IsActive,
		LastSeen:         device.LastSeen,
		UptimePercentage: analytics.UptimePercent(buckets),
	}, nil
}
