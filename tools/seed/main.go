// Command seed applies a YAML fixture to the configured storage.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"fleet-telemetry/internal/bootstrap"
	"fleet-telemetry/internal/config"
	"fleet-telemetry/internal/fixtures"
	"fleet-telemetry/internal/observability/logging"
)

func main() {
	configPath := flag.String("config", os.Getenv("FLEET_CONFIG"), "path to YAML config file")
	fixturePath := flag.String("fixture", "", "path to YAML fixture")
	flag.Parse()

	if err := run(*configPath, *fixturePath); err != nil {
		fmt.Fprintln(os.Stderr, "seed:", err)
		os.Exit(1)
	}
}

func run(configPath, fixturePath string) error {
	if fixturePath == "" {
		return fmt.Errorf("-fixture is required")
	}
	cfg, err := config.NewLoader(configPath).Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, "console", "fleet-seed")
	if err != nil {
		return err
	}
	logger := log.Logger
	defer func() { _ = logger.Sync() }()
	if cfg.Storage.Driver == config.StorageMemory {
		logger.Warn("memory storage selected; seeded data is discarded on exit")
	}

	fixture, err := fixtures.Load(fixturePath)
	if err != nil {
		return err
	}
	ctx := context.Background()
	stores, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	services, err := bootstrap.NewServices(stores, nil, logger)
	if err != nil {
		return err
	}
	report, err := fixtures.Apply(ctx, fixture, fixtures.Targets{
		Factories: stores.CreateFactory,
		Devices:   services.Devices,
		Lookup:    stores.Devices,
		Ingest:    services.Ingest,
		Alerts:    services.Alerts,
	}, logger)
	if err != nil {
		return err
	}
	var rejected []string
	rejected = append(rejected, report.Devices.Errors...)
	rejected = append(rejected, report.Readings.Errors...)
	rejected = append(rejected, report.Alerts.Errors...)
	if len(rejected) > 0 {
		logger.Warn("rejected records", zap.String("errors", strings.Join(rejected, "; ")))
	}
	return nil
}
