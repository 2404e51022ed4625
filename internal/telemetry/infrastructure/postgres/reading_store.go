package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	analytics "fleet-telemetry/internal/analytics/domain"
	telemetry "fleet-telemetry/internal/telemetry/domain"
)

const defaultReadingsTable = "sensor_readings"

const readingColumns = `id, device_id, ts, temperature, gas_index, vibration_x, vibration_y, vibration_z, humidity, pressure, power_consumption`

// ReadingStore is a Postgres implementation of the reading store and the
// analytics aggregation ports.
type ReadingStore struct {
	db    DBTX
	table string
}

// NewReadingStore constructs a store with the default table name.
func NewReadingStore(db DBTX, opts ...StoreOption) *ReadingStore {
	store := &ReadingStore{db: db, table: defaultReadingsTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// StoreOption configures the store.
type StoreOption func(*ReadingStore)

// WithTable overrides the default table name.
func WithTable(table string) StoreOption {
	return func(store *ReadingStore) {
		if table != "" {
			store.table = table
		}
	}
}

// Insert appends a reading and fills its id.
func (s *ReadingStore) Insert(ctx context.Context, reading *telemetry.Reading) error {
	if s == nil || s.db == nil {
		return errors.New("reading store: nil db")
	}
	if reading == nil || reading.DeviceID == "" || reading.TS.IsZero() {
		return errors.New("reading store: invalid reading")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	device_id,
	ts,
	temperature,
	gas_index,
	vibration_x,
	vibration_y,
	vibration_z,
	humidity,
	pressure,
	power_consumption
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
)
RETURNING id`, s.table)

	m := reading.Metrics
	return s.db.QueryRowContext(ctx, query,
		reading.DeviceID,
		reading.TS.UTC(),
		nullFloat(m.Temperature),
		nullFloat(m.GasIndex),
		nullFloat(m.VibrationX),
		nullFloat(m.VibrationY),
		nullFloat(m.VibrationZ),
		nullFloat(m.Humidity),
		nullFloat(m.Pressure),
		nullFloat(m.PowerConsumption),
	).Scan(&reading.ID)
}

// RangeByDevice returns readings of one device with start <= ts <= end.
func (s *ReadingStore) RangeByDevice(ctx context.Context, deviceID string, start, end time.Time, limit int, ascending bool) ([]telemetry.Reading, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("reading store: nil db")
	}
	if deviceID == "" {
		return nil, errors.New("reading store: empty device id")
	}
	order := "ASC"
	if !ascending {
		order = "DESC"
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE device_id = $1
	AND ts >= $2
	AND ts <= $3
ORDER BY ts %s, id %s`, readingColumns, s.table, order, order)
	args := []any{deviceID, start.UTC(), end.UTC()}
	if limit > 0 {
		query += "\nLIMIT $4"
		args = append(args, limit)
	}
	return s.query(ctx, query, args...)
}

// RangeByDeviceSet returns readings of every device in ids with start <= ts <= end.
func (s *ReadingStore) RangeByDeviceSet(ctx context.Context, ids []string, start, end time.Time) ([]telemetry.Reading, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("reading store: nil db")
	}
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE device_id = ANY($1)
	AND ts >= $2
	AND ts <= $3
ORDER BY ts ASC, id ASC`, readingColumns, s.table)
	return s.query(ctx, query, pq.Array(ids), start.UTC(), end.UTC())
}

// LatestByDeviceSet returns the newest reading among ids, or nil.
func (s *ReadingStore) LatestByDeviceSet(ctx context.Context, ids []string) (*telemetry.Reading, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("reading store: nil db")
	}
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE device_id = ANY($1)
ORDER BY ts DESC, id DESC
LIMIT 1`, readingColumns, s.table)
	readings, err := s.query(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, nil
	}
	return &readings[0], nil
}

// Aggregate summarises readings of deviceIDs with start <= ts <= end in one query.
func (s *ReadingStore) Aggregate(ctx context.Context, deviceIDs []string, start, end time.Time) (analytics.WindowSummary, error) {
	if s == nil || s.db == nil {
		return analytics.WindowSummary{}, errors.New("reading store: nil db")
	}
	if len(deviceIDs) == 0 {
		return analytics.WindowSummary{}, nil
	}
	query := fmt.Sprintf(`
SELECT
	AVG(temperature),
	MAX(temperature),
	AVG(gas_index),
	AVG(vibration_x),
	AVG(vibration_y),
	AVG(vibration_z),
	SUM(power_consumption)
FROM %s
WHERE device_id = ANY($1)
	AND ts >= $2
	AND ts <= $3`, s.table)

	var avgTemp, maxTemp, avgGas, avgX, avgY, avgZ, sumPower sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, query, pq.Array(deviceIDs), start.UTC(), end.UTC()).
		Scan(&avgTemp, &maxTemp, &avgGas, &avgX, &avgY, &avgZ, &sumPower); err != nil {
		return analytics.WindowSummary{}, err
	}
	return analytics.WindowSummary{
		AvgTemperature:      floatPtr(avgTemp),
		MaxTemperature:      floatPtr(maxTemp),
		AvgGasIndex:         floatPtr(avgGas),
		AvgVibrationX:       floatPtr(avgX),
		AvgVibrationY:       floatPtr(avgY),
		AvgVibrationZ:       floatPtr(avgZ),
		SumPowerConsumption: floatPtr(sumPower),
	}, nil
}

// ActiveBuckets counts distinct width-sized buckets from start holding a
// reading of deviceID. A reading at end lands in the last bucket.
func (s *ReadingStore) ActiveBuckets(ctx context.Context, deviceID string, start, end time.Time, width time.Duration) (int, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("reading store: nil db")
	}
	if width <= 0 || end.Before(start) {
		return 0, nil
	}
	buckets := int(end.Sub(start) / width)
	if buckets < 1 {
		buckets = 1
	}
	query := fmt.Sprintf(`
SELECT COUNT(DISTINCT LEAST(FLOOR(EXTRACT(EPOCH FROM (ts - $2)) / $4)::int, $5))
FROM %s
WHERE device_id = $1
	AND ts >= $2
	AND ts <= $3`, s.table)

	var count int
	if err := s.db.QueryRowContext(ctx, query, deviceID, start.UTC(), end.UTC(), width.Seconds(), buckets-1).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *ReadingStore) query(ctx context.Context, query string, args ...any) ([]telemetry.Reading, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []telemetry.Reading
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return readings, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReading(row rowScanner) (telemetry.Reading, error) {
	var (
		reading                   telemetry.Reading
		temp, gas, vx, vy, vz     sql.NullFloat64
		humidity, pressure, power sql.NullFloat64
	)
	if err := row.Scan(&reading.ID, &reading.DeviceID, &reading.TS, &temp, &gas, &vx, &vy, &vz, &humidity, &pressure, &power); err != nil {
		return telemetry.Reading{}, err
	}
	reading.TS = reading.TS.UTC()
	reading.Metrics = telemetry.Metrics{
		Temperature:      floatPtr(temp),
		GasIndex:         floatPtr(gas),
		VibrationX:       floatPtr(vx),
		VibrationY:       floatPtr(vy),
		VibrationZ:       floatPtr(vz),
		Humidity:         floatPtr(humidity),
		Pressure:         floatPtr(pressure),
		PowerConsumption: floatPtr(power),
	}
	return reading, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
