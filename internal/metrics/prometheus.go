package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gapsentry_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error|skipped
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gapsentry_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gapsentry_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)

	// Decision metrics
	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gapsentry_decisions_total",
			Help: "Per-symbol evaluation results by status",
		},
		[]string{"symbol", "status"},
	)

	Probability = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gapsentry_classifier_probability",
			Help:    "Acceptance probability of scored gaps",
			Buckets: prometheus.LinearBuckets(0.05, 0.1, 10),
		},
		[]string{"timeframe"},
	)

	Outcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gapsentry_simulated_outcomes_total",
			Help: "Simulated trade outcomes used as training labels",
		},
		[]string{"direction", "outcome"},
	)

	PersistenceOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gapsentry_classifier_persistence_total",
			Help: "Classifier state load/save attempts",
		},
		[]string{"operation", "backend", "status"},
	)

	// Exchange metrics
	ExchangeAPICalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gapsentry_exchange_api_calls_total",
			Help: "Total number of exchange API calls",
		},
		[]string{"exchange", "endpoint", "status"}, // status: success|error
	)

	ExchangeAPIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gapsentry_exchange_api_errors_total",
			Help: "Total number of exchange API errors",
		},
		[]string{"exchange", "code"},
	)

	ExchangeAPILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gapsentry_exchange_api_latency_seconds",
			Help:    "Exchange API latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"exchange", "endpoint"},
	)

	ExchangeRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gapsentry_exchange_retries_total",
			Help: "Retried exchange calls",
		},
		[]string{"exchange"},
	)

	// Database metrics
	DBQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gapsentry_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"database", "operation", "status"}, // database: postgres|clickhouse|redis|file
	)

	DBQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gapsentry_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"database", "operation"},
	)

	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gapsentry_kafka_messages_total",
			Help: "Total Kafka messages produced",
		},
		[]string{"topic", "status"},
	)
)

// Init registers all metrics with Prometheus
func Init() {
	prometheus.MustRegister(
		WorkerExecutions,
		WorkerDuration,
		WorkerLastRun,
		Decisions,
		Probability,
		Outcomes,
		PersistenceOps,
		ExchangeAPICalls,
		ExchangeAPIErrors,
		ExchangeAPILatency,
		ExchangeRetries,
		DBQueries,
		DBQueryDuration,
		KafkaMessages,
	)
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

// RecordWorkerSkip records a run skipped by the cadence guard
func RecordWorkerSkip(worker string) {
	WorkerExecutions.WithLabelValues(worker, "skipped").Inc()
}

// RecordDecision records one symbol's cycle result
func RecordDecision(symbol, decisionStatus string) {
	Decisions.WithLabelValues(symbol, decisionStatus).Inc()
}

// RecordScore records a classifier probability for a gap on timeframe
func RecordScore(timeframe string, p float64) {
	Probability.WithLabelValues(timeframe).Observe(p)
}

// RecordOutcome records a simulated label
func RecordOutcome(direction, outcome string) {
	Outcomes.WithLabelValues(direction, outcome).Inc()
}

// RecordPersistence records a classifier state load or save
func RecordPersistence(operation, backend string, err error) {
	PersistenceOps.WithLabelValues(operation, backend, status(err)).Inc()
}

// RecordExchangeAPICall records an exchange API call; code is the venue error code, if any
func RecordExchangeAPICall(exchange, endpoint string, latency time.Duration, err error, code string) {
	ExchangeAPICalls.WithLabelValues(exchange, endpoint, status(err)).Inc()
	ExchangeAPILatency.WithLabelValues(exchange, endpoint).Observe(latency.Seconds())

	if err != nil {
		if code == "" {
			code = "unknown"
		}
		ExchangeAPIErrors.WithLabelValues(exchange, code).Inc()
	}
}

// RecordExchangeRetry records one retried exchange call
func RecordExchangeRetry(exchange string) {
	ExchangeRetries.WithLabelValues(exchange).Inc()
}

// RecordDBQuery records a database query
func RecordDBQuery(database, operation string, duration time.Duration, err error) {
	DBQueries.WithLabelValues(database, operation, status(err)).Inc()
	DBQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// RecordKafkaMessage records a produced message
func RecordKafkaMessage(topic string, err error) {
	KafkaMessages.WithLabelValues(topic, status(err)).Inc()
}
