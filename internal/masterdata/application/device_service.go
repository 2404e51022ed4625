package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleet-telemetry/internal/auth"
	"fleet-telemetry/internal/bulk"
	masterdata "fleet-telemetry/internal/masterdata/domain"
	"fleet-telemetry/internal/observability/metrics"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// RegisterDevice is the input for device registration.
type RegisterDevice struct {
	ExternalID  string `json:"device_id" yaml:"device_id"`
	Name        string `json:"device_name" yaml:"device_name"`
	FactoryID   string `json:"factory_id" yaml:"factory_id"`
	DeviceType  string `json:"device_type,omitempty" yaml:"device_type"`
	MachineName string `json:"machine_name,omitempty" yaml:"machine_name"`
	Location    string `json:"location,omitempty" yaml:"location"`
}

// DeviceService owns device registration and listing.
type DeviceService struct {
	devices   masterdata.DeviceRepository
	factories masterdata.FactoryRepository
	clock     Clock
	newID     func() string
	logger    *zap.Logger
}

// ServiceOption customizes the device service.
type ServiceOption func(*DeviceService)

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *DeviceService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator overrides uuid generation.
func WithIDGenerator(fn func() string) ServiceOption {
	return func(s *DeviceService) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *DeviceService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewDeviceService constructs a device service.
func NewDeviceService(devices masterdata.DeviceRepository, factories masterdata.FactoryRepository, opts ...ServiceOption) (*DeviceService, error) {
	if devices == nil {
		return nil, errors.New("masterdata: nil device repository")
	}
	if factories == nil {
		return nil, errors.New("masterdata: nil factory repository")
	}
	s := &DeviceService{
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

// Register creates one device. Non-privileged callers may only register into their own factory.
func (s *DeviceService) Register(ctx context.Context, caller auth.Caller, input RegisterDevice) (*masterdata.Device, error) {
	if s == nil {
		return nil, errors.New("masterdata: nil service")
	}
	if err := caller.Authorize(input.FactoryID); err != nil {
		return nil, err
	}
	device, err := s.register(ctx, input, nil)
	if err != nil {
		return nil, err
	}
	s.logger.Info("device registered",
		zap.String("device_id", device.ID),
		zap.String("external_id", device.ExternalID),
		zap.String("factory_id", device.FactoryID),
	)
	return device, nil
}

// RegisterBulk creates devices independently; failures are reported per index.
// Bulk-registered devices start with a heartbeat at registration time.
func (s *DeviceService) RegisterBulk(ctx context.Context, caller auth.Caller, inputs []RegisterDevice) (bulk.Result, error) {
	if s == nil {
		return bulk.Result{}, errors.New("masterdata: nil service")
	}
	if !caller.Privileged() {
		return bulk.Result{}, auth.ErrForbidden
	}
	var res bulk.Result
	for idx, input := range inputs {
		now := s.clock.Now().UTC()
		_, err := s.register(ctx, input, &now)
		switch {
		case err == nil:
			res.Add()
		case errors.Is(err, masterdata.ErrDeviceExists):
			res.Fail("Device", idx, "%s already exists", input.ExternalID)
		case errors.Is(err, masterdata.ErrFactoryNotFound):
			res.Fail("Device", idx, "Factory %s not found", input.FactoryID)
		case IsValidation(err):
			res.Fail("Device", idx, "%v", err)
		default:
			return res, err
		}
	}
	metrics.AddBulkItems("device", res.Created, res.Failed())
	s.logger.Info("bulk device registration", zap.Int("created", res.Created), zap.Int("failed", res.Failed()))
	return res, nil
}

// List returns devices visible to the caller, optionally narrowed by a requested factory.
func (s *DeviceService) List(ctx context.Context, caller auth.Caller, requestedFactory string) ([]masterdata.Device, error) {
	if s == nil {
		return nil, errors.New("masterdata: nil service")
	}
	scope := auth.ResolveScope(caller, requestedFactory)
	if scope.Empty() {
		return []masterdata.Device{}, nil
	}
	devices, err := s.devices.List(ctx, scope.FactoryID())
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []masterdata.Device{}
	}
	return devices, nil
}

var errValidation = errors.New("masterdata: invalid device")

// IsValidation reports whether err is a rejected registration input.
func IsValidation(err error) bool {
	return errors.Is(err, errValidation)
}

func (s *DeviceService) register(ctx context.Context, input RegisterDevice, lastSeen *time.Time) (*masterdata.Device, error) {
	externalID := strings.TrimSpace(input.ExternalID)
	if externalID == "" {
		return nil, fmt.Errorf("%w: device_id is required", errValidation)
	}
	if input.FactoryID == "" {
		return nil, fmt.Errorf("%w: factory_id is required", errValidation)
	}

	existing, err := s.devices.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, masterdata.ErrDeviceExists
	}
	ok, err := s.factories.Exists(ctx, input.FactoryID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, masterdata.ErrFactoryNotFound
	}

	deviceType := strings.TrimSpace(input.DeviceType)
	if deviceType == "" {
		deviceType = masterdata.DefaultDeviceType
	}
	device := &masterdata.Device{
		ID:          s.newID(),
		ExternalID:  externalID,
		FactoryID:   input.FactoryID,
		Name:        input.Name,
		DeviceType:  deviceType,
		MachineName: input.MachineName,
		Location:    input.Location,
		IsActive:    true,
		LastSeen:    lastSeen,
		CreatedAt:   s.clock.Now().UTC(),
	}
	if err := s.devices.Create(ctx, device); err != nil {
		return nil, err
	}
	return device, nil
}
