package masterdata

import (
	"context"
	"errors"
	"strings"
	"time"
)

// DefaultDeviceType is assigned when registration omits a type.
const DefaultDeviceType = "ESP32"

// Device is a registered sensor node owned by one factory.
type Device struct {
	ID          string     `json:"id"`
	ExternalID  string     `json:"device_id"`
	FactoryID   string     `json:"factory_id"`
	Name        string     `json:"device_name"`
	DeviceType  string     `json:"device_type"`
	MachineName string     `json:"machine_name,omitempty"`
	Location    string     `json:"location,omitempty"`
	IsActive    bool       `json:"is_active"`
	LastSeen    *time.Time `json:"last_seen"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Validate checks device invariants.
func (d Device) Validate() error {
	if d.ID == "" {
		return errors.New("device: empty id")
	}
	if strings.TrimSpace(d.ExternalID) == "" {
		return errors.New("device: empty external id")
	}
	if d.FactoryID == "" {
		return errors.New("device: empty factory id")
	}
	return nil
}

// ActiveSince reports whether the device has a heartbeat at or after since.
func (d Device) ActiveSince(since time.Time) bool {
	return d.LastSeen != nil && !d.LastSeen.Before(since)
}

// DeviceRepository manages device persistence.
//
// Get and FindByExternalID return (nil, nil) when the device does not exist.
// An empty factoryID on List means every factory.
type DeviceRepository interface {
	Get(ctx context.Context, id string) (*Device, error)
	FindByExternalID(ctx context.Context, externalID string) (*Device, error)
	List(ctx context.Context, factoryID string) ([]Device, error)
	CountByFactory(ctx context.Context, factoryID string) (int, error)
	CountActiveSince(ctx context.Context, factoryID string, since time.Time) (int, error)
	// TouchLastSeen advances last_seen to at unless the stored value is already newer.
	TouchLastSeen(ctx context.Context, id string, at time.Time) error
	Create(ctx context.Context, device *Device) error
}
