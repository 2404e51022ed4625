package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	alertapp "fleet-telemetry/internal/alerts/application"
	alerthttp "fleet-telemetry/internal/alerts/interfaces/http"
	alertnotify "fleet-telemetry/internal/alerts/notify"
	analyticshttp "fleet-telemetry/internal/analytics/interfaces/http"
	apihttp "fleet-telemetry/internal/api/http"
	"fleet-telemetry/internal/bootstrap"
	"fleet-telemetry/internal/config"
	"fleet-telemetry/internal/fixtures"
	mdhttp "fleet-telemetry/internal/masterdata/interfaces/http"
	"fleet-telemetry/internal/observability/logging"
	"fleet-telemetry/internal/observability/metrics"
	telemetryhttp "fleet-telemetry/internal/telemetry/interfaces/http"
	telemetrymqtt "fleet-telemetry/internal/telemetry/interfaces/mqtt"
)

func main() {
	configPath := flag.String("config", os.Getenv("FLEET_CONFIG"), "path to YAML config file")
	flag.Parse()

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, "fleet-telemetry")
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := log.Logger
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open stores", zap.Error(err))
	}
	defer func() {
		if err := stores.Close(); err != nil {
			logger.Warn("close stores", zap.Error(err))
		}
	}()
	metrics.Init(stores.DB, logger)

	broker := alerthttp.NewSSEBroker()
	notifiers := []alertapp.Notifier{broker}
	if cfg.Alerts.WebhookURL != "" {
		webhook, err := buildWebhookNotifier(cfg.Alerts, logger)
		if err != nil {
			logger.Fatal("alert webhook", zap.Error(err))
		}
		notifiers = append(notifiers, webhook)
	}

	services, err := bootstrap.NewServices(stores, alertnotify.NewMultiNotifier(notifiers...), logger)
	if err != nil {
		logger.Fatal("build services", zap.Error(err))
	}

	if cfg.Seed.File != "" {
		fixture, err := fixtures.Load(cfg.Seed.File)
		if err != nil {
			logger.Fatal("load seed", zap.Error(err))
		}
		if _, err := fixtures.Apply(ctx, fixture, fixtures.Targets{
			Factories: stores.CreateFactory,
			Devices:   services.Devices,
			Lookup:    stores.Devices,
			Ingest:    services.Ingest,
			Alerts:    services.Alerts,
		}, logger); err != nil {
			logger.Fatal("apply seed", zap.Error(err))
		}
	}

	deviceHandler, err := mdhttp.NewHandler(services.Devices)
	if err != nil {
		logger.Fatal("devices handler", zap.Error(err))
	}
	dataHandler, err := telemetryhttp.NewHandler(services.Ingest, services.Query, logger)
	if err != nil {
		logger.Fatal("data handler", zap.Error(err))
	}
	analyticsHandler, err := analyticshttp.NewHandler(services.Insights, services.Liveness, logger)
	if err != nil {
		logger.Fatal("analytics handler", zap.Error(err))
	}
	alertHandler, err := alerthttp.NewHandler(services.Alerts, broker, logger)
	if err != nil {
		logger.Fatal("alerts handler", zap.Error(err))
	}

	if cfg.MQTT.Broker != "" {
		subscriber, err := telemetrymqtt.NewSubscriber(cfg.MQTT, services.Ingest, logger)
		if err != nil {
			logger.Fatal("mqtt subscriber", zap.Error(err))
		}
		if err := subscriber.Start(); err != nil {
			logger.Error("mqtt start", zap.Error(err))
		}
		defer subscriber.Stop()
	}

	if *configPath != "" {
		err := loader.Watch(func(next *config.Config) error {
			log.SetLevel(next.Log.Level)
			logger.Info("config reloaded", zap.String("log_level", log.Level().String()))
			return nil
		})
		if err != nil {
			logger.Warn("config watch disabled", zap.Error(err))
		}
	}

	router := apihttp.NewRouter(apihttp.Options{
		JWTSecret:     []byte(cfg.Auth.JWTSecret),
		IngestSecret:  []byte(cfg.Ingest.HMACSecret),
		IngestMaxSkew: cfg.Ingest.MaxSkew,
		Ingest:        dataHandler.IngestHandler(),
		Mounts:        []apihttp.Mounter{deviceHandler, dataHandler, analyticsHandler, alertHandler},
		Ready:         stores.Ping,
		Logger:        logger,
		Metrics:       true,
	})

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTP.Addr), zap.String("storage", cfg.Storage.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}

func buildWebhookNotifier(cfg config.AlertsConfig, logger *zap.Logger) (*alertnotify.Notifier, error) {
	channel, err := alertnotify.NewWebhookChannel(cfg.WebhookURL, alertnotify.WithTimeout(cfg.NotifyTimeout))
	if err != nil {
		return nil, err
	}
	tpl, err := alertnotify.NewTemplate(cfg.NotifyTemplate)
	if err != nil {
		return nil, err
	}
	return alertnotify.NewNotifier(channel, tpl,
		alertnotify.WithCooldown(cfg.NotifyCooldown),
		alertnotify.WithLogger(logger),
	)
}
