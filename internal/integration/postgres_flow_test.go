package integration_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	alertapp "fleet-telemetry/internal/alerts/application"
	alerts "fleet-telemetry/internal/alerts/domain"
	alertpg "fleet-telemetry/internal/alerts/infrastructure/postgres"
	aapp "fleet-telemetry/internal/analytics/application"
	"fleet-telemetry/internal/auth"
	mdapp "fleet-telemetry/internal/masterdata/application"
	mdpg "fleet-telemetry/internal/masterdata/infrastructure/postgres"
	tapp "fleet-telemetry/internal/telemetry/application"
	telemetry "fleet-telemetry/internal/telemetry/domain"
	telemetrypg "fleet-telemetry/internal/telemetry/infrastructure/postgres"
)

func TestFleetFlow_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"factories", "devices", "sensor_readings", "alerts"} {
		if !tableExists(db, table) {
			t.Skip("missing tables; run migrations")
		}
	}

	ctx := context.Background()
	factoryID := "factory-it"
	_, _ = db.ExecContext(ctx, "DELETE FROM alerts WHERE factory_id = $1", factoryID)
	_, _ = db.ExecContext(ctx, "DELETE FROM sensor_readings WHERE device_id IN (SELECT id FROM devices WHERE factory_id = $1)", factoryID)
	_, _ = db.ExecContext(ctx, "DELETE FROM devices WHERE factory_id = $1", factoryID)
	_, _ = db.ExecContext(ctx, "DELETE FROM factories WHERE id = $1", factoryID)

	factories := mdpg.NewFactoryRepository(db)
	if err := factories.Create(ctx, factoryID, "Integration Plant"); err != nil {
		t.Fatalf("create factory: %v", err)
	}
	devices := mdpg.NewDeviceRepository(db)
	readings := telemetrypg.NewReadingStore(db)
	alertRepo := alertpg.NewAlertRepository(db)

	admin := auth.Caller{Subject: "it", Role: auth.RoleAdmin}
	deviceSvc, err := mdapp.NewDeviceService(devices, factories)
	if err != nil {
		t.Fatalf("device service: %v", err)
	}
	device, err := deviceSvc.Register(ctx, admin, mdapp.RegisterDevice{ExternalID: "esp-it-1", Name: "IT", FactoryID: factoryID})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	ingest, err := tapp.NewIngestService(devices, readings)
	if err != nil {
		t.Fatalf("ingest service: %v", err)
	}
	temps := []float64{20, 30}
	for i, temp := range temps {
		ts := time.Now().UTC().Add(time.Duration(i-len(temps)) * time.Minute)
		v := temp
		vib := 6.0
		if _, err := ingest.Ingest(ctx, telemetry.Draft{
			DeviceID:  "esp-it-1",
			Timestamp: &ts,
			Metrics:   telemetry.Metrics{Temperature: &v, VibrationX: &vib},
		}); err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}

	alertSvc, err := alertapp.NewService(alertRepo, devices, factories)
	if err != nil {
		t.Fatalf("alert service: %v", err)
	}
	alert, err := alertSvc.Create(ctx, admin, alerts.Draft{DeviceID: device.ID, Severity: "CRITICAL", Title: "IT"})
	if err != nil {
		t.Fatalf("create alert: %v", err)
	}
	if _, err := alertSvc.Acknowledge(ctx, admin, alert.ID); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	resolved, err := alertSvc.Resolve(ctx, admin, alert.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != alerts.StatusResolved {
		t.Fatalf("expected resolved, got %s", resolved.Status)
	}

	insights, err := aapp.NewInsightService(devices, readings, alertRepo)
	if err != nil {
		t.Fatalf("insight service: %v", err)
	}
	insight, err := insights.Insight(ctx, admin, factoryID, "24h")
	if err != nil {
		t.Fatalf("insight: %v", err)
	}
	m := insight.Metrics
	if m.AvgTemperature == nil || *m.AvgTemperature != 25 {
		t.Fatalf("expected avg temperature 25, got %v", m.AvgTemperature)
	}
	if m.MaxTemperature == nil || *m.MaxTemperature != 30 {
		t.Fatalf("expected max temperature 30, got %v", m.MaxTemperature)
	}
	if m.AnomaliesDetected != 1 {
		t.Fatalf("expected 1 anomaly, got %d", m.AnomaliesDetected)
	}
	if m.DeviceUptimePercentage == nil || *m.DeviceUptimePercentage != 100 {
		t.Fatalf("expected full fleet uptime, got %v", m.DeviceUptimePercentage)
	}

	liveness, err := aapp.NewLivenessService(devices, readings)
	if err != nil {
		t.Fatalf("liveness service: %v", err)
	}
	status, err := liveness.DeviceStatus(ctx, admin, device.ID)
	if err != nil {
		t.Fatalf("device status: %v", err)
	}
	if !status.IsActive || status.UptimePercentage == nil {
		t.Fatalf("unexpected status %+v", status)
	}
}

func tableExists(db *sql.DB, name string) bool {
	var exists bool
	err := db.QueryRow(`
SELECT EXISTS (
	SELECT 1 FROM information_schema.tables
	WHERE table_schema = 'public' AND table_name = $1
)`, name).Scan(&exists)
	return err == nil && exists
}
