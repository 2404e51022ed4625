package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	alerts "fleet-telemetry/internal/alerts/domain"
)

var t0 = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func TestListNewestFirstWithFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	require.NoError(t, repo.Create(ctx, &alerts.Alert{ID: "a", FactoryID: "f1", Status: alerts.StatusActive, TriggeredAt: t0}))
	require.NoError(t, repo.Create(ctx, &alerts.Alert{ID: "b", FactoryID: "f1", Status: alerts.StatusResolved, TriggeredAt: t0.Add(time.Hour)}))
	require.NoError(t, repo.Create(ctx, &alerts.Alert{ID: "c", FactoryID: "f2", Status: alerts.StatusActive, TriggeredAt: t0.Add(2 * time.Hour)}))

	all, err := repo.List(ctx, alerts.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})

	active := alerts.StatusActive
	f1Active, err := repo.List(ctx, alerts.Filter{FactoryID: "f1", Status: &active})
	require.NoError(t, err)
	require.Len(t, f1Active, 1)
	assert.Equal(t, "a", f1Active[0].ID)

	limited, err := repo.List(ctx, alerts.Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestCountAnomalies(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	require.NoError(t, repo.Create(ctx, &alerts.Alert{ID: "1", FactoryID: "f1", Severity: alerts.SeverityWarning, TriggeredAt: t0}))
	require.NoError(t, repo.Create(ctx, &alerts.Alert{ID: "2", FactoryID: "f1", Severity: alerts.SeverityCritical, TriggeredAt: t0.Add(time.Hour)}))
	require.NoError(t, repo.Create(ctx, &alerts.Alert{ID: "3", FactoryID: "f1", Severity: alerts.SeverityInfo, TriggeredAt: t0.Add(time.Hour)}))
	require.NoError(t, repo.Create(ctx, &alerts.Alert{ID: "4", FactoryID: "f1", Severity: alerts.SeverityCritical, TriggeredAt: t0.Add(-time.Second)}))
	require.NoError(t, repo.Create(ctx, &alerts.Alert{ID: "5", FactoryID: "f2", Severity: alerts.SeverityCritical, TriggeredAt: t0}))

	n, err := repo.CountAnomalies(ctx, "f1", t0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMarkTransitionsUnknownID(t *testing.T) {
	repo := NewRepository()
	assert.ErrorIs(t, repo.MarkAcknowledged(context.Background(), &alerts.Alert{ID: "x"}), alerts.ErrNotFound)
	assert.ErrorIs(t, repo.MarkResolved(context.Background(), &alerts.Alert{ID: "x"}), alerts.ErrNotFound)
}
