package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound indicates a missing alert record.
	ErrNotFound = errors.New("alert: not found")
	// ErrInvalidTransition indicates a lifecycle move the state machine forbids.
	ErrInvalidTransition = errors.New("alert: invalid status transition")
	// ErrInvalidStatus indicates an unknown status filter.
	ErrInvalidStatus = errors.New("alert: invalid status")
)

// Defaults applied to drafts that omit them.
const (
	DefaultCategory = "custom"
	DefaultTitle    = "Alert"
	// ListLimit caps List results.
	ListLimit = 100
)

// Severity is the closed set of alert severities.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// ParseSeverity matches case-insensitively; anything unrecognised is INFO.
func ParseSeverity(value string) Severity {
	switch Severity(strings.ToUpper(strings.TrimSpace(value))) {
	case SeverityWarning:
		return SeverityWarning
	case SeverityCritical:
		return SeverityCritical
	default:
		return SeverityInfo
	}
}

// Anomalous reports whether the severity counts toward insight anomalies.
func (s Severity) Anomalous() bool {
	switch s {
	case SeverityWarning, SeverityCritical:
		return true
	case SeverityInfo:
		return false
	default:
		return false
	}
}

// Status is the closed set of lifecycle states.
type Status string

const (
	StatusActive       Status = "ACTIVE"
	StatusAcknowledged Status = "ACKNOWLEDGED"
	StatusResolved     Status = "RESOLVED"
)

// ParseStatus accepts a status label in any case.
func ParseStatus(value string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(value))) {
	case StatusActive:
		return StatusActive, nil
	case StatusAcknowledged:
		return StatusAcknowledged, nil
	case StatusResolved:
		return StatusResolved, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, value)
	}
}

// Alert is a lifecycle-tracked notice about a device or factory. Alerts are never deleted.
type Alert struct {
	ID             string     `json:"id"`
	DeviceID       string     `json:"device_id,omitempty"`
	FactoryID      string     `json:"factory_id"`
	Category       string     `json:"alert_type"`
	Severity       Severity   `json:"severity"`
	Status         Status     `json:"status"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	MetricValue    *float64   `json:"metric_value"`
	ThresholdValue *float64   `json:"threshold_value"`
	TriggeredAt    time.Time  `json:"triggered_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at"`
	ResolvedBy     string     `json:"resolved_by,omitempty"`
}

// Acknowledge moves the alert to ACKNOWLEDGED. Re-acknowledging refreshes the
// timestamp and actor; a resolved alert cannot be acknowledged.
func (a *Alert) Acknowledge(actor string, at time.Time) error {
	switch a.Status {
	case StatusActive, StatusAcknowledged:
		at = at.UTC()
		a.Status = StatusAcknowledged
		a.AcknowledgedAt = &at
		a.AcknowledgedBy = actor
		return nil
	case StatusResolved:
		return ErrInvalidTransition
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, a.Status)
	}
}

// Resolve moves the alert to RESOLVED. It reports false when the alert was already resolved.
func (a *Alert) Resolve(actor string, at time.Time) (bool, error) {
	switch a.Status {
	case StatusActive, StatusAcknowledged:
		at = at.UTC()
		a.Status = StatusResolved
		a.ResolvedAt = &at
		a.ResolvedBy = actor
		return true, nil
	case StatusResolved:
		return false, nil
	default:
		return false, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, a.Status)
	}
}

// Draft is the unvalidated input for creating an alert.
type Draft struct {
	FactoryID      string   `json:"factory_id,omitempty" yaml:"factory_id"`
	DeviceID       string   `json:"device_id,omitempty" yaml:"device_id"`
	Category       string   `json:"alert_type,omitempty" yaml:"alert_type"`
	Severity       string   `json:"severity,omitempty" yaml:"severity"`
	Title          string   `json:"title,omitempty" yaml:"title"`
	Message        string   `json:"message,omitempty" yaml:"message"`
	MetricValue    *float64 `json:"metric_value,omitempty" yaml:"metric_value"`
	ThresholdValue *float64 `json:"threshold_value,omitempty" yaml:"threshold_value"`
}

// Filter narrows List results.
type Filter struct {
	// FactoryID empty means every factory.
	FactoryID string
	// Status nil means any status.
	Status *Status
	Limit  int
}

// Repository persists alerts. Get returns (nil, nil) for a missing id.
type Repository interface {
	Create(ctx context.Context, alert *Alert) error
	Get(ctx context.Context, id string) (*Alert, error)
	// MarkAcknowledged and MarkResolved persist a transition already applied to alert.
	MarkAcknowledged(ctx context.Context, alert *Alert) error
	MarkResolved(ctx context.Context, alert *Alert) error
	// List orders by triggered_at descending.
	List(ctx context.Context, filter Filter) ([]Alert, error)
	// CountAnomalies counts WARNING and CRITICAL alerts of a factory triggered at or after since.
	CountAnomalies(ctx context.Context, factoryID string, since time.Time) (int, error)
}
