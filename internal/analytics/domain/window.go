package analytics

import (
	"context"
	"time"

	telemetry "fleet-telemetry/internal/telemetry/domain"
)

// WindowSummary holds per-metric statistics over a device set and interval.
// A nil field means no reading in the window carried that metric.
type WindowSummary struct {
	AvgTemperature      *float64 `json:"avg_temperature"`
	MaxTemperature      *float64 `json:"max_temperature"`
	AvgGasIndex         *float64 `json:"avg_gas_index"`
	AvgVibrationX       *float64 `json:"avg_vibration_x"`
	AvgVibrationY       *float64 `json:"avg_vibration_y"`
	AvgVibrationZ       *float64 `json:"avg_vibration_z"`
	SumPowerConsumption *float64 `json:"sum_power_consumption"`
}

// WindowAggregator computes a WindowSummary over readings of deviceIDs with
// start <= ts <= end. An empty device set yields an all-nil summary.
type WindowAggregator interface {
	Aggregate(ctx context.Context, deviceIDs []string, start, end time.Time) (WindowSummary, error)
}

type mean struct {
	sum   float64
	count int
}

func (m *mean) add(v *float64) {
	if v == nil {
		return
	}
	m.sum += *v
	m.count++
}

func (m mean) value() *float64 {
	if m.count == 0 {
		return nil
	}
	v := m.sum / float64(m.count)
	return &v
}

// Summarize folds readings into a WindowSummary, skipping absent metrics per field.
func Summarize(readings []telemetry.Reading) WindowSummary {
	var (
		temp, gas, vx, vy, vz mean
		maxTemp               *float64
		power                 mean
	)
	for _, r := range readings {
		temp.add(r.Temperature)
		gas.add(r.GasIndex)
		vx.add(r.VibrationX)
		vy.add(r.VibrationY)
		vz.add(r.VibrationZ)
		power.add(r.PowerConsumption)
		if r.Temperature != nil && (maxTemp == nil || *r.Temperature > *maxTemp) {
			v := *r.Temperature
			maxTemp = &v
		}
	}
	summary := WindowSummary{
		AvgTemperature: temp.value(),
		MaxTemperature: maxTemp,
		AvgGasIndex:    gas.value(),
		AvgVibrationX:  vx.value(),
		AvgVibrationY:  vy.value(),
		AvgVibrationZ:  vz.value(),
	}
	if power.count > 0 {
		sum := power.sum
		summary.SumPowerConsumption = &sum
	}
	return summary
}
