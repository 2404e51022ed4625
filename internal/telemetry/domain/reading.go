package telemetry

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidQuery indicates a malformed time-series request.
var ErrInvalidQuery = errors.New("telemetry: invalid query")

// Metrics holds the optional sensor values of one reading. A nil field means
// the device did not report that metric.
type Metrics struct {
	Temperature      *float64 `json:"temperature" yaml:"temperature"`
	GasIndex         *float64 `json:"gas_index" yaml:"gas_index"`
	VibrationX       *float64 `json:"vibration_x" yaml:"vibration_x"`
	VibrationY       *float64 `json:"vibration_y" yaml:"vibration_y"`
	VibrationZ       *float64 `json:"vibration_z" yaml:"vibration_z"`
	Humidity         *float64 `json:"humidity" yaml:"humidity"`
	Pressure         *float64 `json:"pressure" yaml:"pressure"`
	PowerConsumption *float64 `json:"power_consumption" yaml:"power_consumption"`
}

// Empty reports whether no metric is present.
func (m Metrics) Empty() bool {
	return m.Temperature == nil && m.GasIndex == nil &&
		m.VibrationX == nil && m.VibrationY == nil && m.VibrationZ == nil &&
		m.Humidity == nil && m.Pressure == nil && m.PowerConsumption == nil
}

// Reading is an immutable timestamped sample for one device.
type Reading struct {
	ID       int64     `json:"id,omitempty"`
	DeviceID string    `json:"device_id"`
	TS       time.Time `json:"timestamp"`
	Metrics
}

// Draft is an unvalidated reading as submitted by a device or a bulk upload.
// DeviceID is the external id for single ingest and the internal id for bulk.
type Draft struct {
	DeviceID  string     `json:"device_id" yaml:"device_id"`
	Timestamp *time.Time `json:"timestamp,omitempty" yaml:"timestamp"`
	Metrics   `yaml:",inline"`
}

// Stamp resolves the reading timestamp, defaulting to now.
func (d Draft) Stamp(now time.Time) time.Time {
	if d.Timestamp != nil && !d.Timestamp.IsZero() {
		return d.Timestamp.UTC()
	}
	return now.UTC()
}

// ReadingStore is the append-only reading store.
type ReadingStore interface {
	Insert(ctx context.Context, reading *Reading) error
	// RangeByDevice returns readings with start <= ts <= end ordered by ts,
	// ascending or descending, capped at limit when limit > 0.
	RangeByDevice(ctx context.Context, deviceID string, start, end time.Time, limit int, ascending bool) ([]Reading, error)
	// RangeByDeviceSet returns readings of any device in ids with start <= ts <= end.
	RangeByDeviceSet(ctx context.Context, ids []string, start, end time.Time) ([]Reading, error)
	// LatestByDeviceSet returns the most recent reading of any device in ids, or nil.
	LatestByDeviceSet(ctx context.Context, ids []string) (*Reading, error)
}
