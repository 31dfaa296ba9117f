package prometheus

import (
	"time"

	"maintenance-service/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HttpRequestsTotal   *prometheus.CounterVec
	HttpRequestDuration *prometheus.HistogramVec

	// Visit lifecycle metrics
	VisitTransitionsCounter *prometheus.CounterVec
	VisitsGeneratedCounter  prometheus.Counter
	VisitsSkippedCounter    prometheus.Counter
	VisitsMissedCounter     prometheus.Counter

	// Inventory metrics
	StockMovementsCounter *prometheus.CounterVec

	// Analytics cache metrics
	AnalyticsCacheCounter *prometheus.CounterVec

	// Database operation metrics
	DbOperationDuration *prometheus.HistogramVec
)

// InitMetrics initializes Prometheus metrics with configuration
func InitMetrics(cfg *config.Config) {
	// Use metric prefix from configuration
	prefix := cfg.Metrics.Prefix

	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	VisitTransitionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_visit_transitions_total",
			Help: "Total number of visit status transitions",
		},
		[]string{"status"},
	)

	VisitsGeneratedCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_visits_generated_total",
			Help: "Total number of visits created by schedule generation",
		},
	)

	VisitsSkippedCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_visits_skipped_total",
			Help: "Total number of generation dates skipped as duplicates",
		},
	)

	VisitsMissedCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_visits_missed_total",
			Help: "Total number of visits flagged as missed by the sweeper",
		},
	)

	StockMovementsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_stock_movements_total",
			Help: "Total number of stock movement events",
		},
		[]string{"reason"},
	)

	AnalyticsCacheCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_analytics_cache_total",
			Help: "Analytics cache lookups by result",
		},
		[]string{"result"},
	)

	DbOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation_type"},
	)
}

// TrackDBOperation returns a function that records the duration of a database operation
func TrackDBOperation(operationType string) func(startTime time.Time) {
	return func(startTime time.Time) {
		if DbOperationDuration == nil {
			return
		}
		duration := time.Since(startTime).Seconds()
		DbOperationDuration.WithLabelValues(operationType).Observe(duration)
	}
}

// RecordVisitTransition increments the transition counter for a target status
func RecordVisitTransition(status string) {
	if VisitTransitionsCounter == nil {
		return
	}
	VisitTransitionsCounter.WithLabelValues(status).Inc()
}

// RecordGeneration adds the created/skipped counts of one generation run
func RecordGeneration(created, skipped int) {
	if VisitsGeneratedCounter == nil || VisitsSkippedCounter == nil {
		return
	}
	VisitsGeneratedCounter.Add(float64(created))
	VisitsSkippedCounter.Add(float64(skipped))
}

// RecordVisitsMissed adds the count of one missed-visit sweep
func RecordVisitsMissed(count int64) {
	if VisitsMissedCounter == nil {
		return
	}
	VisitsMissedCounter.Add(float64(count))
}

// RecordStockMovement increments the movement counter for a reason
func RecordStockMovement(reason string) {
	if StockMovementsCounter == nil {
		return
	}
	StockMovementsCounter.WithLabelValues(reason).Inc()
}

// RecordAnalyticsCache increments the cache counter with hit/miss
func RecordAnalyticsCache(hit bool) {
	if AnalyticsCacheCounter == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	AnalyticsCacheCounter.WithLabelValues(result).Inc()
}
