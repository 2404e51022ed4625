package metrics

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const dbGaugeTimeout = 2 * time.Second

func registerDBMetrics(db *sql.DB, logger *zap.Logger) {
	prometheus.MustRegister(newCountGauge(db, logger,
		metricPrefix+"alerts_active",
		"Alerts currently in ACTIVE status",
		"SELECT COUNT(*) FROM alerts WHERE status = 'ACTIVE'",
	))
	prometheus.MustRegister(newCountGauge(db, logger,
		metricPrefix+"devices_registered",
		"Registered devices",
		"SELECT COUNT(*) FROM devices",
	))
}

func newCountGauge(db *sql.DB, logger *zap.Logger, name, help, query string) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: name, Help: help},
		func() float64 {
			return queryCount(db, logger, query)
		},
	)
}

func queryCount(db *sql.DB, logger *zap.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), dbGaugeTimeout)
	defer cancel()

	var count int64
	if err := db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		if logger != nil {
			logger.Warn("metrics query failed", zap.String("query", query), zap.Error(err))
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
