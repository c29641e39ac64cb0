package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session metrics
	SessionsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicebroker_sessions_started_total",
			Help: "Total number of sessions created",
		},
		[]string{"agent", "client_type"},
	)

	SessionsEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicebroker_sessions_ended_total",
			Help: "Total number of sessions closed",
		},
		[]string{"agent", "client_type", "reason"}, // reason: client|reaper|reconciler|admin|provider_error
	)

	SessionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voicebroker_session_duration_seconds",
			Help:    "Accounted session duration in seconds",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		},
		[]string{"agent"},
	)

	QuotaRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicebroker_quota_rejections_total",
			Help: "Session starts refused because the daily quota was used up",
		},
		[]string{"agent"},
	)

	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voicebroker_rate_limited_total",
			Help: "Session starts refused by the per-user rate limiter",
		},
	)

	PersistenceDegraded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicebroker_persistence_degraded_total",
			Help: "Durable writes that failed while the cache stayed authoritative",
		},
		[]string{"operation"},
	)

	// Provider metrics
	ProviderTokenCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicebroker_provider_token_calls_total",
			Help: "Total number of voice provider token requests",
		},
		[]string{"agent", "status"}, // status: success|error|timeout
	)

	ProviderTokenLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voicebroker_provider_token_latency_seconds",
			Help:    "Voice provider token request latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"agent"},
	)

	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicebroker_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voicebroker_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "voicebroker_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)

	// Database metrics
	DBQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicebroker_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"database", "operation", "status"}, // database: postgres|clickhouse|redis
	)

	DBQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voicebroker_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"database", "operation"},
	)

	// Event metrics
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicebroker_kafka_messages_total",
			Help: "Total Kafka messages produced/consumed",
		},
		[]string{"topic", "direction", "status"}, // direction: produced|consumed
	)

	// HTTP metrics
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicebroker_http_requests_total",
			Help: "Total HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)

	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voicebroker_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

var initOnce sync.Once

// Init registers all metrics with Prometheus. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			SessionsStarted,
			SessionsEnded,
			SessionDuration,
			QuotaRejections,
			RateLimited,
			PersistenceDegraded,
			ProviderTokenCalls,
			ProviderTokenLatency,
			WorkerExecutions,
			WorkerDuration,
			WorkerLastRun,
			DBQueries,
			DBQueryDuration,
			KafkaMessages,
			HTTPRequests,
			HTTPLatency,
		)
	})
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	WorkerExecutions.WithLabelValues(worker, status(err)).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}

// RecordSessionStarted records a created session
func RecordSessionStarted(agent, clientType string) {
	SessionsStarted.WithLabelValues(agent, clientType).Inc()
}

// RecordSessionEnded records a closed session and its accounted duration
func RecordSessionEnded(agent, clientType, reason string, durationSeconds int64) {
	SessionsEnded.WithLabelValues(agent, clientType, reason).Inc()
	SessionDuration.WithLabelValues(agent).Observe(float64(durationSeconds))
}

// RecordQuotaRejection records a start refused by the quota gate
func RecordQuotaRejection(agent string) {
	QuotaRejections.WithLabelValues(agent).Inc()
}

// RecordRateLimited records a start refused by the rate limiter
func RecordRateLimited() {
	RateLimited.Inc()
}

// RecordPersistenceDegraded records a swallowed durable write failure
func RecordPersistenceDegraded(operation string) {
	PersistenceDegraded.WithLabelValues(operation).Inc()
}

// RecordProviderTokenCall records a voice provider token request
func RecordProviderTokenCall(agent string, latency time.Duration, outcome string) {
	ProviderTokenCalls.WithLabelValues(agent, outcome).Inc()
	ProviderTokenLatency.WithLabelValues(agent).Observe(latency.Seconds())
}

// RecordDBQuery records a database query
func RecordDBQuery(database, operation string, duration time.Duration, err error) {
	DBQueries.WithLabelValues(database, operation, status(err)).Inc()
	DBQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// RecordKafkaMessage records a produced or consumed message
func RecordKafkaMessage(topic, direction string, err error) {
	KafkaMessages.WithLabelValues(topic, direction, status(err)).Inc()
}

// RecordHTTPRequest records a served request
func RecordHTTPRequest(route string, code int, duration time.Duration) {
	HTTPRequests.WithLabelValues(route, httpCode(code)).Inc()
	HTTPLatency.WithLabelValues(route).Observe(duration.Seconds())
}

func httpCode(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
