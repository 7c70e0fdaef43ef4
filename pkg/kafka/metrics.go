package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	consumerMessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_consumer_messages_received_total",
		Help: "Kafka messages fetched from the broker.",
	}, []string{"topic", "consumer_group"})

	consumerMessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_consumer_messages_processed_total",
		Help: "Kafka messages handled successfully.",
	}, []string{"topic", "consumer_group"})

	consumerMessagesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_consumer_messages_failed_total",
		Help: "Kafka messages whose handler failed every retry.",
	}, []string{"topic", "consumer_group"})

	consumerMessagesDuplicate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_consumer_messages_duplicate_total",
		Help: "Kafka messages skipped because their event id was already processed.",
	}, []string{"event_type"})

	consumerDeadLettered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_consumer_dlq_published_total",
		Help: "Kafka messages copied to a dead-letter topic.",
	}, []string{"topic", "consumer_group"})

	consumerProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kafka_consumer_processing_duration_seconds",
		Help:    "Time spent in the handler, retries included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic", "consumer_group"})

	producerMessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_producer_messages_published_total",
		Help: "Kafka messages published.",
	}, []string{"topic"})

	producerPublishErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_producer_publish_errors_total",
		Help: "Kafka publish failures.",
	}, []string{"topic"})

	producerPublishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kafka_producer_publish_duration_seconds",
		Help:    "Duration of Kafka publish calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kafka_publisher_circuit_breaker_state",
		Help: "Publisher circuit breaker state (0=closed, 1=half-open, 2=open).",
	}, []string{"name"})

	breakerRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_publisher_circuit_breaker_rejected_total",
		Help: "Publishes short-circuited by an open breaker.",
	}, []string{"name"})
)
