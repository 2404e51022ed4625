package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	analytics "fleet-telemetry/internal/analytics/domain"
	"fleet-telemetry/internal/auth"
	masterdata "fleet-telemetry/internal/masterdata/domain"
	mdmemory "fleet-telemetry/internal/masterdata/infrastructure/memory"
	telemetry "fleet-telemetry/internal/telemetry/domain"
	"fleet-telemetry/internal/telemetry/infrastructure/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type anomalyStub struct {
	factoryID string
	since     time.Time
	count     int
}

func (a *anomalyStub) CountAnomalies(_ context.Context, factoryID string, since time.Time) (int, error) {
	a.factoryID = factoryID
	a.since = since
	return a.count, nil
}

var (
	now   = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	admin = auth.Caller{Subject: "root", Role: auth.RoleAdmin}
)

func f(v float64) *float64 { return &v }

func newInsightFixture(t *testing.T) (*InsightService, *mdmemory.Registry, *memory.ReadingStore, *anomalyStub) {
	t.Helper()
	ctx := context.Background()
	reg := mdmemory.NewRegistry()
	fresh := now.Add(-time.Minute)
	require.NoError(t, reg.Create(ctx, &masterdata.Device{ID: "a", ExternalID: "esp-a", FactoryID: "T", LastSeen: &fresh}))
	require.NoError(t, reg.Create(ctx, &masterdata.Device{ID: "b", ExternalID: "esp-b", FactoryID: "T"}))
	require.NoError(t, reg.Create(ctx, &masterdata.Device{ID: "c", ExternalID: "esp-c", FactoryID: "U", LastSeen: &fresh}))

	readings := memory.NewReadingStore()
	anomalies := &anomalyStub{count: 3}
	svc, err := NewInsightService(reg, readings, anomalies, WithClock(fixedClock{now: now}))
	require.NoError(t, err)
	return svc, reg, readings, anomalies
}

func TestInsightScenarioTwoDevicesOneReporting(t *testing.T) {
	svc, _, readings, anomalies := newInsightFixture(t)
	ctx := context.Background()
	t0 := now.Add(-3 * time.Hour)
	require.NoError(t, readings.Insert(ctx, &telemetry.Reading{DeviceID: "a", TS: t0, Metrics: telemetry.Metrics{Temperature: f(20)}}))
	require.NoError(t, readings.Insert(ctx, &telemetry.Reading{DeviceID: "a", TS: t0.Add(time.Hour), Metrics: telemetry.Metrics{Temperature: f(30)}}))
	require.NoError(t, readings.Insert(ctx, &telemetry.Reading{DeviceID: "c", TS: t0, Metrics: telemetry.Metrics{Temperature: f(90)}}))

	insight, err := svc.Insight(ctx, admin, "T", "24h")
	require.NoError(t, err)
	m := insight.Metrics
	require.NotNil(t, m.AvgTemperature)
	assert.Equal(t, 25.0, *m.AvgTemperature)
	assert.Equal(t, 30.0, *m.MaxTemperature)
	assert.Nil(t, m.AvgGasIndex)
	assert.Nil(t, m.EnergyConsumption)
	require.NotNil(t, m.DeviceUptimePercentage)
	assert.Equal(t, 50.0, *m.DeviceUptimePercentage)
	require.NotNil(t, m.VibrationHealthScore)
	assert.Equal(t, 100.0, *m.VibrationHealthScore)
	assert.Equal(t, 3, m.AnomaliesDetected)
	assert.Equal(t, "T", anomalies.factoryID)
	assert.Equal(t, now.Add(-24*time.Hour), anomalies.since)
	assert.Equal(t, now, insight.GeneratedAt)
}

func TestInsightStandardCallerPinnedToHomeFactory(t *testing.T) {
	svc, _, _, anomalies := newInsightFixture(t)
	viewer := auth.Caller{Role: auth.RoleViewer, TenantID: "U"}

	insight, err := svc.Insight(context.Background(), viewer, "T", "7d")
	require.NoError(t, err)
	assert.Equal(t, "U", insight.FactoryID)
	assert.Equal(t, "U", anomalies.factoryID)
	assert.Equal(t, "7d", insight.Period)
}

func TestInsightTenantRequired(t *testing.T) {
	svc, _, _, _ := newInsightFixture(t)
	_, err := svc.Insight(context.Background(), admin, "", "24h")
	assert.ErrorIs(t, err, analytics.ErrTenantRequired)

	_, err = svc.Insight(context.Background(), auth.Caller{Role: auth.RoleOperator}, "T", "24h")
	assert.ErrorIs(t, err, analytics.ErrTenantRequired)
}

func TestInsightFactoryWithoutDevices(t *testing.T) {
	svc, _, _, anomalies := newInsightFixture(t)
	insight, err := svc.Insight(context.Background(), admin, "empty", "bogus")
	require.NoError(t, err)
	assert.Equal(t, "24h", insight.Period)
	assert.Equal(t, analytics.InsightMetrics{}, insight.Metrics)
	assert.Empty(t, anomalies.factoryID)
}

type countingRegistry struct {
	*mdmemory.Registry
	counted []string
}

func (c *countingRegistry) CountByFactory(ctx context.Context, factoryID string) (int, error) {
	c.counted = append(c.counted, factoryID)
	return c.Registry.CountByFactory(ctx, factoryID)
}

func TestInsightTotalsFromRegistryCount(t *testing.T) {
	ctx := context.Background()
	reg := mdmemory.NewRegistry()
	fresh := now.Add(-time.Minute)
	require.NoError(t, reg.Create(ctx, &masterdata.Device{ID: "a", ExternalID: "esp-a", FactoryID: "T", LastSeen: &fresh}))
	require.NoError(t, reg.Create(ctx, &masterdata.Device{ID: "b", ExternalID: "esp-b", FactoryID: "T"}))
	require.NoError(t, reg.Create(ctx, &masterdata.Device{ID: "c", ExternalID: "esp-c", FactoryID: "T"}))
	counting := &countingRegistry{Registry: reg}

	svc, err := NewInsightService(counting, memory.NewReadingStore(), &anomalyStub{}, WithClock(fixedClock{now: now}))
	require.NoError(t, err)

	insight, err := svc.Insight(ctx, admin, "T", "7d")
	require.NoError(t, err)
	assert.Equal(t, []string{"T"}, counting.counted)
	require.NotNil(t, insight.Metrics.DeviceUptimePercentage)
	assert.InDelta(t, 100.0/3, *insight.Metrics.DeviceUptimePercentage, 1e-9)

	_, err = svc.Insight(ctx, admin, "empty", "24h")
	require.NoError(t, err)
	assert.Equal(t, []string{"T", "empty"}, counting.counted)
}

func TestInsightNoReadingsInWindow(t *testing.T) {
	svc, _, readings, _ := newInsightFixture(t)
	ctx := context.Background()
	require.NoError(t, readings.Insert(ctx, &telemetry.Reading{DeviceID: "a", TS: now.Add(-48 * time.Hour), Metrics: telemetry.Metrics{Temperature: f(20)}}))

	insight, err := svc.Insight(ctx, admin, "T", "24h")
	require.NoError(t, err)
	assert.Nil(t, insight.Metrics.AvgTemperature)
	assert.Nil(t, insight.Metrics.MaxTemperature)
	assert.Equal(t, 100.0, *insight.Metrics.VibrationHealthScore)
}

func TestDeviceStatus(t *testing.T) {
	ctx := context.Background()
	reg := mdmemory.NewRegistry()
	seen := now.Add(-time.Minute)
	require.NoError(t, reg.Create(ctx, &masterdata.Device{ID: "a", ExternalID: "esp-a", Name: "Press", FactoryID: "T", IsActive: true, LastSeen: &seen}))
	require.NoError(t, reg.Create(ctx, &masterdata.Device{ID: "b", ExternalID: "esp-b", FactoryID: "T"}))
	require.NoError(t, reg.Create(ctx, &masterdata.Device{ID: "c", ExternalID: "esp-c", FactoryID: "U"}))

	readings := memory.NewReadingStore()
	start := now.Add(-analytics.UptimeWindow)
	for i := 0; i < 15; i++ {
		base := start.Add(time.Duration(i) * analytics.BucketWidth)
		require.NoError(t, readings.Insert(ctx, &telemetry.Reading{DeviceID: "a", TS: base.Add(10 * time.Second)}))
		require.NoError(t, readings.Insert(ctx, &telemetry.Reading{DeviceID: "a", TS: base.Add(3 * time.Minute)}))
	}

	svc, err := NewLivenessService(reg, readings, WithClock(fixedClock{now: now}))
	require.NoError(t, err)
	viewer := auth.Caller{Role: auth.RoleViewer, TenantID: "T"}

	status, err := svc.DeviceStatus(ctx, viewer, "a")
	require.NoError(t, err)
	assert.Equal(t, "esp-a", status.DeviceID)
	assert.Equal(t, "Press", status.DeviceName)
	require.NotNil(t, status.UptimePercentage)
	assert.InDelta(t, 15.0/288.0*100, *status.UptimePercentage, 1e-9)

	silent, err := svc.DeviceStatus(ctx, viewer, "b")
	require.NoError(t, err)
	assert.Nil(t, silent.UptimePercentage)

	_, err = svc.DeviceStatus(ctx, viewer, "c")
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = svc.DeviceStatus(ctx, viewer, "zzz")
	assert.ErrorIs(t, err, masterdata.ErrDeviceNotFound)
}
