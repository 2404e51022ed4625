package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	alerts "fleet-telemetry/internal/alerts/domain"
)

const defaultAlertsTable = "alerts"

const alertColumns = `id, device_id, factory_id, alert_type, severity, status, title, message,
	metric_value, threshold_value, triggered_at, acknowledged_at, acknowledged_by, resolved_at, resolved_by`

// AlertRepository is a Postgres implementation for alerts.
type AlertRepository struct {
	db    DBTX
	table string
}

// NewAlertRepository constructs a repository with the default table name.
func NewAlertRepository(db DBTX, opts ...Option) *AlertRepository {
	repo := &AlertRepository{db: db, table: defaultAlertsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Option configures the repository.
type Option func(*AlertRepository)

// WithTable overrides the default table name.
func WithTable(table string) Option {
	return func(repo *AlertRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Create inserts a new alert.
func (r *AlertRepository) Create(ctx context.Context, alert *alerts.Alert) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	if alert == nil || alert.ID == "" {
		return errors.New("alert repo: invalid alert")
	}
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (
	id, device_id, factory_id, alert_type, severity, status, title, message,
	metric_value, threshold_value, triggered_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
)`, r.table),
		alert.ID,
		nullableString(alert.DeviceID),
		nullableString(alert.FactoryID),
		alert.Category,
		string(alert.Severity),
		string(alert.Status),
		alert.Title,
		alert.Message,
		nullableFloat(alert.MetricValue),
		nullableFloat(alert.ThresholdValue),
		alert.TriggeredAt.UTC(),
	)
	return err
}

// Get loads an alert by id.
func (r *AlertRepository) Get(ctx context.Context, id string) (*alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	if id == "" {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT %s
FROM %s
WHERE id = $1`, alertColumns, r.table), id)
	return scanAlert(row)
}

// MarkAcknowledged persists the acknowledgement.
func (r *AlertRepository) MarkAcknowledged(ctx context.Context, alert *alerts.Alert) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s
SET status = $1, acknowledged_at = $2, acknowledged_by = $3
WHERE id = $4`, r.table), string(alert.Status), nullableTime(alert.AcknowledgedAt), alert.AcknowledgedBy, alert.ID)
	return checkAffected(res, err)
}

// MarkResolved persists the resolution.
func (r *AlertRepository) MarkResolved(ctx context.Context, alert *alerts.Alert) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s
SET status = $1, resolved_at = $2, resolved_by = $3
WHERE id = $4`, r.table), string(alert.Status), nullableTime(alert.ResolvedAt), alert.ResolvedBy, alert.ID)
	return checkAffected(res, err)
}

// List returns alerts newest first.
func (r *AlertRepository) List(ctx context.Context, filter alerts.Filter) ([]alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE 1 = 1`, alertColumns, r.table)
	var args []any
	if filter.FactoryID != "" {
		args = append(args, filter.FactoryID)
		query += fmt.Sprintf(" AND factory_id = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY triggered_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alerts.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *alert)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CountAnomalies counts WARNING and CRITICAL alerts of a factory triggered at or after since.
func (r *AlertRepository) CountAnomalies(ctx context.Context, factoryID string, since time.Time) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("alert repo: nil db")
	}
	var count int
	err := r.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT COUNT(*)
FROM %s
WHERE factory_id = $1
	AND triggered_at >= $2
	AND severity IN ($3, $4)`, r.table),
		factoryID, since.UTC(), string(alerts.SeverityWarning), string(alerts.SeverityCritical),
	).Scan(&count)
	return count, err
}

type alertScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row alertScanner) (*alerts.Alert, error) {
	var alert alerts.Alert
	var deviceID, factoryID, ackedBy, resolvedBy sql.NullString
	var severity, status string
	var metricValue, thresholdValue sql.NullFloat64
	var ackedAt, resolvedAt sql.NullTime
	if err := row.Scan(
		&alert.ID,
		&deviceID,
		&factoryID,
		&alert.Category,
		&severity,
		&status,
		&alert.Title,
		&alert.Message,
		&metricValue,
		&thresholdValue,
		&alert.TriggeredAt,
		&ackedAt,
		&ackedBy,
		&resolvedAt,
		&resolvedBy,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	alert.DeviceID = deviceID.String
	alert.FactoryID = factoryID.String
	alert.Severity = alerts.ParseSeverity(severity)
	parsed, err := alerts.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	alert.Status = parsed
	alert.TriggeredAt = alert.TriggeredAt.UTC()
	if metricValue.Valid {
		v := metricValue.Float64
		alert.MetricValue = &v
	}
	if thresholdValue.Valid {
		v := thresholdValue.Float64
		alert.ThresholdValue = &v
	}
	if ackedAt.Valid {
		t := ackedAt.Time.UTC()
		alert.AcknowledgedAt = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time.UTC()
		alert.ResolvedAt = &t
	}
	alert.AcknowledgedBy = ackedBy.String
	alert.ResolvedBy = resolvedBy.String
	return &alert, nil
}

func checkAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return alerts.ErrNotFound
	}
	return nil
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullableFloat(value *float64) sql.NullFloat64 {
	if value == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *value, Valid: true}
}

func nullableTime(value *time.Time) sql.NullTime {
	if value == nil || value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}
