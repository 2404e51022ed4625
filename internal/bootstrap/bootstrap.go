// Package bootstrap opens the configured stores and builds the application
// services shared by the server and the seed tool.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	alertapp "fleet-telemetry/internal/alerts/application"
	alerts "fleet-telemetry/internal/alerts/domain"
	alertmem "fleet-telemetry/internal/alerts/infrastructure/memory"
	alertpg "fleet-telemetry/internal/alerts/infrastructure/postgres"
	aapp "fleet-telemetry/internal/analytics/application"
	analytics "fleet-telemetry/internal/analytics/domain"
	"fleet-telemetry/internal/config"
	mdapp "fleet-telemetry/internal/masterdata/application"
	masterdata "fleet-telemetry/internal/masterdata/domain"
	mdmem "fleet-telemetry/internal/masterdata/infrastructure/memory"
	mdpg "fleet-telemetry/internal/masterdata/infrastructure/postgres"
	mdredis "fleet-telemetry/internal/masterdata/infrastructure/redis"
	tapp "fleet-telemetry/internal/telemetry/application"
	telemetry "fleet-telemetry/internal/telemetry/domain"
	telemetrymem "fleet-telemetry/internal/telemetry/infrastructure/memory"
	telemetrypg "fleet-telemetry/internal/telemetry/infrastructure/postgres"
)

// ReadingStore is the telemetry store plus the analytics ports it serves.
type ReadingStore interface {
	telemetry.ReadingStore
	analytics.WindowAggregator
	analytics.ActivityCounter
}

// Stores bundles the repositories of one storage backend.
type Stores struct {
	Devices   masterdata.DeviceRepository
	Factories masterdata.FactoryRepository
	Readings  ReadingStore
	Alerts    alerts.Repository
	// CreateFactory persists a factory; used by fixtures.
	CreateFactory func(ctx context.Context, id, name string) error

	DB    *sql.DB
	Redis *redis.Client
}

// Ping checks the backing connections.
func (s *Stores) Ping(ctx context.Context) error {
	if s.DB != nil {
		if err := s.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if s.Redis != nil {
		return mdredis.Ping(ctx, s.Redis)
	}
	return nil
}

// Close releases connections.
func (s *Stores) Close() error {
	var errs []error
	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}
	if s.DB != nil {
		errs = append(errs, s.DB.Close())
	}
	return errors.Join(errs...)
}

// OpenStores builds the stores selected by cfg.Storage.Driver. When Redis is
// configured the device repository is fronted by a lookup cache.
func OpenStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stores, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var stores *Stores
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		reg := mdmem.NewRegistry()
		stores = &Stores{
			Devices:   reg,
			Factories: reg,
			Readings:  telemetrymem.NewReadingStore(),
			Alerts:    alertmem.NewRepository(),
			CreateFactory: func(_ context.Context, id, name string) error {
				reg.AddFactory(id, name)
				return nil
			},
		}
	case config.StoragePostgres:
		db, err := sql.Open(cfg.Database.Driver, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: open db: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap: ping db: %w", err)
		}
		factories := mdpg.NewFactoryRepository(db)
		stores = &Stores{
			Devices:       mdpg.NewDeviceRepository(db),
			Factories:     factories,
			Readings:      telemetrypg.NewReadingStore(db),
			Alerts:        alertpg.NewAlertRepository(db),
			CreateFactory: factories.Create,
			DB:            db,
		}
	default:
		return nil, fmt.Errorf("bootstrap: unsupported storage driver %q", cfg.Storage.Driver)
	}

	if cfg.Redis.Addr != "" {
		client := mdredis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		cached, err := mdredis.NewCachedDeviceRepository(stores.Devices, client, logger, mdredis.WithTTL(cfg.Redis.DeviceTTL))
		if err != nil {
			_ = client.Close()
			_ = stores.Close()
			return nil, err
		}
		stores.Devices = cached
		stores.Redis = client
		logger.Info("device cache enabled", zap.String("addr", cfg.Redis.Addr))
	}
	return stores, nil
}

// Services are the application services of all bounded contexts.
type Services struct {
	Devices  *mdapp.DeviceService
	Ingest   *tapp.IngestService
	Query    *tapp.QueryService
	Insights *aapp.InsightService
	Liveness *aapp.LivenessService
	Alerts   *alertapp.Service
}

// NewServices wires services over stores. notifier may be nil.
func NewServices(stores *Stores, notifier alertapp.Notifier, logger *zap.Logger) (*Services, error) {
	if stores == nil {
		return nil, errors.New("bootstrap: nil stores")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	devices, err := mdapp.NewDeviceService(stores.Devices, stores.Factories, mdapp.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	ingest, err := tapp.NewIngestService(stores.Devices, stores.Readings, tapp.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	query, err := tapp.NewQueryService(stores.Devices, stores.Readings, tapp.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	insights, err := aapp.NewInsightService(stores.Devices, stores.Readings, stores.Alerts, aapp.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	liveness, err := aapp.NewLivenessService(stores.Devices, stores.Readings, aapp.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	alertOpts := []alertapp.ServiceOption{alertapp.WithLogger(logger)}
	if notifier != nil {
		alertOpts = append(alertOpts, alertapp.WithNotifier(notifier))
	}
	alertSvc, err := alertapp.NewService(stores.Alerts, stores.Devices, stores.Factories, alertOpts...)
	if err != nil {
		return nil, err
	}
	return &Services{
		Devices:  devices,
		Ingest:   ingest,
		Query:    query,
		Insights: insights,
		Liveness: liveness,
		Alerts:   alertSvc,
	}, nil
}
