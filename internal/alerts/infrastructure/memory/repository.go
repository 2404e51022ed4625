package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	alerts "fleet-telemetry/internal/alerts/domain"
)

// Repository is an in-memory alert store for demo/testing.
type Repository struct {
	mu     sync.RWMutex
	alerts map[string]*alerts.Alert
	seq    map[string]int
	next   int
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{alerts: make(map[string]*alerts.Alert), seq: make(map[string]int)}
}

// Create stores a new alert.
func (r *Repository) Create(_ context.Context, alert *alerts.Alert) error {
	if alert == nil || alert.ID == "" {
		return errors.New("alert memory: invalid alert")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.alerts[alert.ID]; ok {
		return errors.New("alert memory: duplicate id")
	}
	r.next++
	r.seq[alert.ID] = r.next
	r.alerts[alert.ID] = copyAlert(alert)
	return nil
}

// Get loads an alert by id.
func (r *Repository) Get(_ context.Context, id string) (*alerts.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyAlert(r.alerts[id]), nil
}

// MarkAcknowledged persists acknowledgement fields.
func (r *Repository) MarkAcknowledged(_ context.Context, alert *alerts.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.alerts[alert.ID]
	if !ok {
		return alerts.ErrNotFound
	}
	stored.Status = alert.Status
	stored.AcknowledgedAt = copyTime(alert.AcknowledgedAt)
	stored.AcknowledgedBy = alert.AcknowledgedBy
	return nil
}

// MarkResolved persists resolution fields.
func (r *Repository) MarkResolved(_ context.Context, alert *alerts.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.alerts[alert.ID]
	if !ok {
		return alerts.ErrNotFound
	}
	stored.Status = alert.Status
	stored.ResolvedAt = copyTime(alert.ResolvedAt)
	stored.ResolvedBy = alert.ResolvedBy
	return nil
}

// List returns alerts newest first. Ties keep reverse insertion order.
func (r *Repository) List(_ context.Context, filter alerts.Filter) ([]alerts.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	type entry struct {
		alert alerts.Alert
		seq   int
	}
	var entries []entry
	for id, alert := range r.alerts {
		if filter.FactoryID != "" && alert.FactoryID != filter.FactoryID {
			continue
		}
		if filter.Status != nil && alert.Status != *filter.Status {
			continue
		}
		entries = append(entries, entry{alert: *copyAlert(alert), seq: r.seq[id]})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].alert.TriggeredAt.Equal(entries[j].alert.TriggeredAt) {
			return entries[i].seq > entries[j].seq
		}
		return entries[i].alert.TriggeredAt.After(entries[j].alert.TriggeredAt)
	})
	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}
	result := make([]alerts.Alert, 0, len(entries))
	for _, e := range entries {
		result = append(result, e.alert)
	}
	return result, nil
}

// CountAnomalies counts WARNING and CRITICAL alerts of a factory since a time.
func (r *Repository) CountAnomalies(_ context.Context, factoryID string, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, alert := range r.alerts {
		if alert.FactoryID == factoryID && alert.Severity.Anomalous() && !alert.TriggeredAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func copyAlert(alert *alerts.Alert) *alerts.Alert {
	if alert == nil {
		return nil
	}
	copied := *alert
	copied.MetricValue = copyFloat(alert.MetricValue)
	copied.ThresholdValue = copyFloat(alert.ThresholdValue)
	copied.AcknowledgedAt = copyTime(alert.AcknowledgedAt)
	copied.ResolvedAt = copyTime(alert.ResolvedAt)
	return &copied
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
