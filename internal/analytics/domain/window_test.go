package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	telemetry "fleet-telemetry/internal/telemetry/domain"
)

func TestSummarizeSkipsAbsentMetrics(t *testing.T) {
	readings := []telemetry.Reading{
		{DeviceID: "d1", Metrics: telemetry.Metrics{Temperature: f(20), PowerConsumption: f(1.5)}},
		{DeviceID: "d1", Metrics: telemetry.Metrics{Temperature: f(30), GasIndex: f(100)}},
		{DeviceID: "d2", Metrics: telemetry.Metrics{}},
	}
	s := Summarize(readings)
	require.NotNil(t, s.AvgTemperature)
	assert.InDelta(t, 25.0, *s.AvgTemperature, 1e-9)
	require.NotNil(t, s.MaxTemperature)
	assert.Equal(t, 30.0, *s.MaxTemperature)
	require.NotNil(t, s.AvgGasIndex)
	assert.Equal(t, 100.0, *s.AvgGasIndex)
	require.NotNil(t, s.SumPowerConsumption)
	assert.Equal(t, 1.5, *s.SumPowerConsumption)
	assert.Nil(t, s.AvgVibrationX)
}

func TestSummarizeEmpty(t *testing.T) {
	assert.Equal(t, WindowSummary{}, Summarize(nil))
}

func TestMaxTemperatureBelowZero(t *testing.T) {
	s := Summarize([]telemetry.Reading{
		{Metrics: telemetry.Metrics{Temperature: f(-8)}},
		{Metrics: telemetry.Metrics{Temperature: f(-3)}},
	})
	require.NotNil(t, s.MaxTemperature)
	assert.Equal(t, -3.0, *s.MaxTemperature)
}

func TestParsePeriod(t *testing.T) {
	now := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 7*24*time.Hour, ParsePeriod("7d").Window)
	assert.Equal(t, "30d", ParsePeriod("30d").Label)
	assert.Equal(t, DefaultPeriod, ParsePeriod("1y"))
	assert.Equal(t, now.Add(-24*time.Hour), ParsePeriod("").Start(now))
}
