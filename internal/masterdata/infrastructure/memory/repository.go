package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	masterdata "fleet-telemetry/internal/masterdata/domain"
)

// Registry is an in-memory device and factory store for demo/testing.
// It implements both DeviceRepository and FactoryRepository.
type Registry struct {
	mu         sync.RWMutex
	devices    map[string]*masterdata.Device
	byExternal map[string]string
	factories  map[string]string
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		devices:    make(map[string]*masterdata.Device),
		byExternal: make(map[string]string),
		factories:  make(map[string]string),
	}
}

// AddFactory registers a factory id.
func (r *Registry) AddFactory(id, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = name
}

// Exists reports whether a factory is registered.
func (r *Registry) Exists(_ context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[id]
	return ok, nil
}

// Get loads a device by internal id.
func (r *Registry) Get(_ context.Context, id string) (*masterdata.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyDevice(r.devices[id]), nil
}

// FindByExternalID loads a device by external id.
func (r *Registry) FindByExternalID(_ context.Context, externalID string) (*masterdata.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byExternal[externalID]
	if !ok {
		return nil, nil
	}
	return copyDevice(r.devices[id]), nil
}

// List returns devices of a factory, or all when factoryID is empty, ordered by id.
func (r *Registry) List(_ context.Context, factoryID string) ([]masterdata.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []masterdata.Device
	for _, device := range r.devices {
		if factoryID != "" && device.FactoryID != factoryID {
			continue
		}
		result = append(result, *copyDevice(device))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// CountByFactory counts devices of a factory.
func (r *Registry) CountByFactory(_ context.Context, factoryID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, device := range r.devices {
		if device.FactoryID == factoryID {
			count++
		}
	}
	return count, nil
}

// CountActiveSince counts devices of a factory with a heartbeat at or after since.
func (r *Registry) CountActiveSince(_ context.Context, factoryID string, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, device := range r.devices {
		if device.FactoryID == factoryID && device.ActiveSince(since) {
			count++
		}
	}
	return count, nil
}

// TouchLastSeen advances last_seen unless the stored value is newer.
func (r *Registry) TouchLastSeen(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	device, ok := r.devices[id]
	if !ok {
		return masterdata.ErrDeviceNotFound
	}
	at = at.UTC()
	if device.LastSeen == nil || at.After(*device.LastSeen) {
		device.LastSeen = &at
	}
	return nil
}

// Create inserts a device; duplicate external ids fail with ErrDeviceExists.
func (r *Registry) Create(_ context.Context, device *masterdata.Device) error {
	if device == nil {
		return errors.New("device registry: nil device")
	}
	if err := device.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byExternal[device.ExternalID]; ok {
		return masterdata.ErrDeviceExists
	}
	if _, ok := r.devices[device.ID]; ok {
		return masterdata.ErrDeviceExists
	}
	if device.CreatedAt.IsZero() {
		device.CreatedAt = time.Now().UTC()
	}
	r.devices[device.ID] = copyDevice(device)
	r.byExternal[device.ExternalID] = device.ID
	return nil
}

func copyDevice(device *masterdata.Device) *masterdata.Device {
	if device == nil {
		return nil
	}
	clone := *device
	if device.LastSeen != nil {
		seen := *device.LastSeen
		clone.LastSeen = &seen
	}
	return &clone
}
