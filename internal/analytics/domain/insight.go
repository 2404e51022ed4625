package analytics

import (
	"context"
	"errors"
	"time"
)

// ErrTenantRequired indicates an insight was requested without a factory.
var ErrTenantRequired = errors.New("analytics: factory id required")

// AnomalyCounter counts WARNING and CRITICAL alerts of a factory triggered at or after since.
type AnomalyCounter interface {
	CountAnomalies(ctx context.Context, factoryID string, since time.Time) (int, error)
}

// InsightMetrics is the derived health snapshot of one factory.
type InsightMetrics struct {
	AvgTemperature         *float64 `json:"avg_temperature"`
	MaxTemperature         *float64 `json:"max_temperature"`
	AvgGasIndex            *float64 `json:"avg_gas_index"`
	VibrationHealthScore   *float64 `json:"vibration_health_score"`
	DeviceUptimePercentage *float64 `json:"device_uptime_percentage"`
	AnomaliesDetected      int      `json:"anomalies_detected"`
	EnergyConsumption      *float64 `json:"energy_consumption"`
}

// Insight is computed on demand and never persisted.
type Insight struct {
	Period      string         `json:"period"`
	FactoryID   string         `json:"factory_id"`
	Metrics     InsightMetrics `json:"metrics"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// InsightInput carries everything BuildInsight needs.
type InsightInput struct {
	Period        Period
	FactoryID     string
	Now           time.Time
	DeviceCount   int
	ActiveDevices int
	Summary       WindowSummary
	Anomalies     int
}

// BuildInsight assembles an Insight. A factory without devices reports nil
// metrics and zero anomalies.
func BuildInsight(in InsightInput) Insight {
	insight := Insight{
		Period:      in.Period.Label,
		FactoryID:   in.FactoryID,
		GeneratedAt: in.Now,
	}
	if in.DeviceCount == 0 {
		return insight
	}
	score := VibrationScore(in.Summary)
	uptime := FleetRatio(in.ActiveDevices, in.DeviceCount)
	insight.Metrics = InsightMetrics{
		AvgTemperature:         in.Summary.AvgTemperature,
		MaxTemperature:         in.Summary.MaxTemperature,
		AvgGasIndex:            in.Summary.AvgGasIndex,
		VibrationHealthScore:   &score,
		DeviceUptimePercentage: &uptime,
		AnomaliesDetected:      in.Anomalies,
		EnergyConsumption:      in.Summary.SumPowerConsumption,
	}
	return insight
}
