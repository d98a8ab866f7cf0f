package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	IngestLeadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_leads_total",
			Help: "Total number of leads processed by ingest service (count)",
		},
		[]string{"status"},
	)

	IngestProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_processing_duration_ms",
			Help:    "Processing duration for ingest service in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"status"},
	)

	DedupChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_checks_total",
			Help: "Total number of duplicate checks performed (count)",
		},
		[]string{"result"},
	)

	DedupCheckDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dedup_check_duration_ms",
			Help:    "Duration of duplicate checks in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"result"},
	)

	UnknownFieldsTracked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unknown_fields_tracked_total",
			Help: "Total number of unknown field observations recorded (count)",
		},
		[]string{"source_id"},
	)

	RoutingLeadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routing_leads_total",
			Help: "Total number of leads evaluated for routing (count)",
		},
		[]string{"status"},
	)

	RoutingEligibleTargets = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "routing_eligible_targets",
			Help:    "Number of eligible targets per routed lead (count)",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"tenant_id"},
	)

	RoutingSkippedTargetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routing_skipped_targets_total",
			Help: "Total number of targets skipped during routing (count)",
		},
		[]string{"reason"},
	)

	DeliveryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_attempts_total",
			Help: "Total number of outbound delivery attempts (count)",
		},
		[]string{"status", "method"},
	)

	DeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "delivery_duration_ms",
			Help:    "Duration of outbound delivery requests in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"status"},
	)

	GatewayIntakeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_intake_total",
			Help: "Total number of leads accepted through the intake API (count)",
		},
		[]string{"status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy", "reason"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "topic", "direction"},
	)

	KafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag (difference between latest offset and committed offset) (count)",
		},
		[]string{"service", "topic", "partition"},
	)

	KafkaReadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_read_duration_ms",
			Help:    "Duration of reading messages from Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	RuleEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_evaluations_total",
			Help: "Total number of source filter rule evaluations (count)",
		},
		[]string{"source_id", "result"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "database", "operation"},
	)

	DatabaseConnectionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of active database connections (count)",
		},
		[]string{"service", "database"},
	)
)

func RegisterIngestMetrics() {
	prometheus.MustRegister(IngestLeadsTotal)
	prometheus.MustRegister(IngestProcessingDuration)
	prometheus.MustRegister(DedupChecksTotal)
	prometheus.MustRegister(DedupCheckDuration)
	prometheus.MustRegister(UnknownFieldsTracked)
	prometheus.MustRegister(RuleEvaluationsTotal)
	registerFallbackUsageTotalOnce()
}

func RegisterRoutingMetrics() {
	prometheus.MustRegister(RoutingLeadsTotal)
	prometheus.MustRegister(RoutingEligibleTargets)
	prometheus.MustRegister(RoutingSkippedTargetsTotal)
	prometheus.MustRegister(DeliveryAttemptsTotal)
	prometheus.MustRegister(DeliveryDuration)
	registerFallbackUsageTotalOnce()
}

func RegisterGatewayMetrics() {
	prometheus.MustRegister(GatewayIntakeTotal)
	prometheus.MustRegister(RateLimitRequestsTotal)
	prometheus.MustRegister(DatabaseQueriesTotal)
	prometheus.MustRegister(DatabaseQueryDuration)
	prometheus.MustRegister(DatabaseConnectionsActive)
}

func registerFallbackUsageTotalOnce() {
	prometheus.MustRegister(FallbackUsageTotal)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaMessageSizeBytes)
	prometheus.MustRegister(KafkaConsumerLag)
	prometheus.MustRegister(KafkaReadDuration)
	prometheus.MustRegister(KafkaWriteDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func ObserveIngestDuration(duration time.Duration, status string) {
	IngestProcessingDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func ObserveDedupCheckDuration(duration time.Duration, result string) {
	DedupCheckDuration.WithLabelValues(result).Observe(float64(duration.Milliseconds()))
}

func ObserveDeliveryDuration(duration time.Duration, status string) {
	DeliveryDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func IncDedupCheck(result string) {
	DedupChecksTotal.WithLabelValues(result).Inc()
}

func IncUnknownFieldTracked(sourceID string) {
	UnknownFieldsTracked.WithLabelValues(sourceID).Inc()
}

func IncRoutingSkippedTarget(reason string) {
	RoutingSkippedTargetsTotal.WithLabelValues(reason).Inc()
}

func IncDeliveryAttempt(status, method string) {
	DeliveryAttemptsTotal.WithLabelValues(status, method).Inc()
}

func ObserveEligibleTargets(tenantID string, count int) {
	RoutingEligibleTargets.WithLabelValues(tenantID).Observe(float64(count))
}

func IncRuleEvaluation(sourceID, result string) {
	RuleEvaluationsTotal.WithLabelValues(sourceID, result).Inc()
}

// Helper functions for broker metrics
func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaMessageSize(service, topic, direction string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(service, topic, direction).Observe(float64(sizeBytes))
}

func SetKafkaConsumerLag(service, topic string, partition int, lag int64) {
	KafkaConsumerLag.WithLabelValues(service, topic, fmt.Sprintf("%d", partition)).Set(float64(lag))
}

func ObserveKafkaReadDuration(service, topic string, duration time.Duration) {
	KafkaReadDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func IncDatabaseQuery(service, database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(service, database, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(service, database, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(service, database, operation).Observe(float64(duration.Milliseconds()))
}

func SetDatabaseConnectionsActive(service, database string, count int) {
	DatabaseConnectionsActive.WithLabelValues(service, database).Set(float64(count))
}
