// Package fixtures loads YAML seed data and applies it through the
// application services, so seeded records pass the same validation as API input.
package fixtures

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	alertapp "fleet-telemetry/internal/alerts/application"
	alerts "fleet-telemetry/internal/alerts/domain"
	"fleet-telemetry/internal/auth"
	"fleet-telemetry/internal/bulk"
	mdapp "fleet-telemetry/internal/masterdata/application"
	masterdata "fleet-telemetry/internal/masterdata/domain"
	tapp "fleet-telemetry/internal/telemetry/application"
	telemetry "fleet-telemetry/internal/telemetry/domain"
)

// Factory is a seeded tenant.
type Factory struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Fixture is the seed file layout. Readings and alerts reference devices by
// their external id.
type Fixture struct {
	Factories []Factory              `yaml:"factories"`
	Devices   []mdapp.RegisterDevice `yaml:"devices"`
	Readings  []telemetry.Draft      `yaml:"readings"`
	Alerts    []alerts.Draft         `yaml:"alerts"`
}

// Load reads a fixture file.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fixtures: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a fixture, rejecting unknown keys.
func Parse(data []byte) (*Fixture, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f Fixture
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("fixtures: decode: %w", err)
	}
	return &f, nil
}

// FactoryCreator persists a factory.
type FactoryCreator func(ctx context.Context, id, name string) error

// Targets are the services a fixture is applied through.
type Targets struct {
	Factories FactoryCreator
	Devices   *mdapp.DeviceService
	Lookup    masterdata.DeviceRepository
	Ingest    *tapp.IngestService
	Alerts    *alertapp.Service
}

// Report summarises an apply run.
type Report struct {
	Factories int
	Devices   bulk.Result
	Readings  bulk.Result
	Alerts    bulk.Result
}

var seeder = auth.Caller{Subject: "seed", Role: auth.RoleAdmin}

// Apply seeds factories, devices, readings and alerts in that order. Rejected
// records are collected in the report; only store failures abort the run.
func Apply(ctx context.Context, f *Fixture, t Targets, logger *zap.Logger) (Report, error) {
	var report Report
	if f == nil {
		return report, nil
	}
	if t.Factories == nil || t.Devices == nil || t.Lookup == nil || t.Ingest == nil || t.Alerts == nil {
		return report, errors.New("fixtures: incomplete targets")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, factory := range f.Factories {
		if err := t.Factories(ctx, factory.ID, factory.Name); err != nil {
			return report, fmt.Errorf("fixtures: factory %s: %w", factory.ID, err)
		}
		report.Factories++
	}

	var err error
	report.Devices, err = t.Devices.RegisterBulk(ctx, seeder, f.Devices)
	if err != nil {
		return report, err
	}

	readings := make([]telemetry.Draft, len(f.Readings))
	for idx, draft := range f.Readings {
		draft.DeviceID, err = resolve(ctx, t.Lookup, draft.DeviceID)
		if err != nil {
			return report, err
		}
		readings[idx] = draft
	}
	report.Readings, err = t.Ingest.IngestBulk(ctx, seeder, readings)
	if err != nil {
		return report, err
	}

	drafts := make([]alerts.Draft, len(f.Alerts))
	for idx, draft := range f.Alerts {
		draft.DeviceID, err = resolve(ctx, t.Lookup, draft.DeviceID)
		if err != nil {
			return report, err
		}
		drafts[idx] = draft
	}
	report.Alerts, err = t.Alerts.CreateBulk(ctx, seeder, drafts)
	if err != nil {
		return report, err
	}

	logger.Info("fixtures applied",
		zap.Int("factories", report.Factories),
		zap.Int("devices", report.Devices.Created),
		zap.Int("readings", report.Readings.Created),
		zap.Int("alerts", report.Alerts.Created),
		zap.Int("rejected", report.Devices.Failed()+report.Readings.Failed()+report.Alerts.Failed()),
	)
	return report, nil
}

// resolve maps an external device id to the internal one. Unknown ids are
// returned unchanged so the bulk call reports them.
func resolve(ctx context.Context, lookup masterdata.DeviceRepository, externalID string) (string, error) {
	if externalID == "" {
		return "", nil
	}
	device, err := lookup.FindByExternalID(ctx, externalID)
	if err != nil {
		return "", err
	}
	if device == nil {
		return externalID, nil
	}
	return device.ID, nil
}
