package application

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-telemetry/internal/auth"
	masterdata "fleet-telemetry/internal/masterdata/domain"
	"fleet-telemetry/internal/masterdata/infrastructure/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newService(t *testing.T) (*DeviceService, *memory.Registry) {
	t.Helper()
	reg := memory.NewRegistry()
	reg.AddFactory("factory-a", "Plant A")
	reg.AddFactory("factory-b", "Plant B")
	seq := 0
	svc, err := NewDeviceService(reg, reg,
		WithClock(fixedClock{now: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("dev-%d", seq)
		}),
	)
	require.NoError(t, err)
	return svc, reg
}

var (
	admin = auth.Caller{Subject: "root", Role: auth.RoleAdmin}
	owner = auth.Caller{Subject: "owner", Role: auth.RoleFactoryOwner, TenantID: "factory-a"}
)

func TestRegister(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	device, err := svc.Register(ctx, owner, RegisterDevice{ExternalID: "esp-1", Name: "Lathe", FactoryID: "factory-a"})
	require.NoError(t, err)
	assert.Equal(t, "dev-1", device.ID)
	assert.Equal(t, masterdata.DefaultDeviceType, device.DeviceType)
	assert.True(t, device.IsActive)
	assert.Nil(t, device.LastSeen)

	_, err = svc.Register(ctx, owner, RegisterDevice{ExternalID: "esp-1", FactoryID: "factory-a"})
	assert.ErrorIs(t, err, masterdata.ErrDeviceExists)

	_, err = svc.Register(ctx, owner, RegisterDevice{ExternalID: "esp-2", FactoryID: "factory-b"})
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = svc.Register(ctx, admin, RegisterDevice{ExternalID: "esp-3", FactoryID: "factory-z"})
	assert.ErrorIs(t, err, masterdata.ErrFactoryNotFound)
}

func TestRegisterBulk(t *testing.T) {
	svc, reg := newService(t)
	ctx := context.Background()

	res, err := svc.RegisterBulk(ctx, admin, []RegisterDevice{
		{ExternalID: "esp-1", Name: "A", FactoryID: "factory-a"},
		{ExternalID: "esp-1", Name: "dup", FactoryID: "factory-a"},
		{ExternalID: "esp-2", Name: "B", FactoryID: "factory-x"},
		{ExternalID: "esp-3", Name: "C", FactoryID: "factory-b", DeviceType: "RPi"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, []string{
		"Device 1: esp-1 already exists",
		"Device 2: Factory factory-x not found",
	}, res.Errors)

	device, err := reg.FindByExternalID(ctx, "esp-3")
	require.NoError(t, err)
	require.NotNil(t, device.LastSeen)
	assert.Equal(t, "RPi", device.DeviceType)

	_, err = svc.RegisterBulk(ctx, owner, nil)
	assert.ErrorIs(t, err, auth.ErrForbidden)
}

func TestListScoped(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.RegisterBulk(ctx, admin, []RegisterDevice{
		{ExternalID: "esp-1", FactoryID: "factory-a"},
		{ExternalID: "esp-2", FactoryID: "factory-b"},
	})
	require.NoError(t, err)

	all, err := svc.List(ctx, admin, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := svc.List(ctx, admin, "factory-b")
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "esp-2", filtered[0].ExternalID)

	viewer := auth.Caller{Role: auth.RoleViewer, TenantID: "factory-a"}
	pinned, err := svc.List(ctx, viewer, "factory-b")
	require.NoError(t, err)
	require.Len(t, pinned, 1)
	assert.Equal(t, "esp-1", pinned[0].ExternalID)

	orphan, err := svc.List(ctx, auth.Caller{Role: auth.RoleViewer}, "")
	require.NoError(t, err)
	assert.Empty(t, orphan)
}
