package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "fleet_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestErrors   *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	bulkItemsTotal *prometheus.CounterVec

	alertEventsTotal *prometheus.CounterVec

	insightTotal   *prometheus.CounterVec
	insightLatency *prometheus.HistogramVec

	exportTotal *prometheus.CounterVec
)

// Init registers service metrics and, when db is set, DB-backed gauges.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total ingest requests by source and result",
			},
			[]string{"source", "result"},
		)
		ingestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_errors_total",
				Help: "Total ingest errors by reason",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source", "result"},
		)

		bulkItemsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "bulk_items_total",
				Help: "Bulk items processed by kind and outcome",
			},
			[]string{"kind", "outcome"},
		)

		alertEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_events_total",
				Help: "Total alert lifecycle events by type",
			},
			[]string{"event"},
		)

		insightTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "insight_total",
				Help: "Total insight computations by period and result",
			},
			[]string{"period", "result"},
		)
		insightLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "insight_latency_seconds",
				Help:    "Insight computation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"period"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total document exports by format and result",
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestErrors,
			ingestLatency,
			bulkItemsTotal,
			alertEventsTotal,
			insightTotal,
			insightLatency,
			exportTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveIngest records ingest duration and result for a source (http, mqtt, bulk).
func ObserveIngest(source, result string, duration time.Duration) {
	if source == "" {
		source = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(source, result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(source, result).Observe(duration.Seconds())
	}
}

// IncIngestError increments ingest error counter.
func IncIngestError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if ingestErrors != nil {
		ingestErrors.WithLabelValues(reason).Inc()
	}
}

// AddBulkItems records the outcome of a bulk request.
func AddBulkItems(kind string, created, failed int) {
	if bulkItemsTotal == nil {
		return
	}
	if created > 0 {
		bulkItemsTotal.WithLabelValues(kind, "created").Add(float64(created))
	}
	if failed > 0 {
		bulkItemsTotal.WithLabelValues(kind, "failed").Add(float64(failed))
	}
}

// IncAlertEvent increments alert lifecycle counters.
func IncAlertEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if alertEventsTotal != nil {
		alertEventsTotal.WithLabelValues(event).Inc()
	}
}

// ObserveInsight records insight latency and result.
func ObserveInsight(period, result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if insightTotal != nil {
		insightTotal.WithLabelValues(period, result).Inc()
	}
	if insightLatency != nil {
		insightLatency.WithLabelValues(period).Observe(duration.Seconds())
	}
}

// IncExport counts an xlsx or pdf export.
func IncExport(format, result string) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
