package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the topic management service.
// Metrics are organized by subsystem: topic submissions, status updates,
// analysis merging, event publishing, and normalizer calls. Everything is
// registered via promauto against the default registry.
type Metrics struct {
	// TopicsSubmitted counts new topics created through the submission endpoint.
	TopicsSubmitted prometheus.Counter

	// TopicsDeduplicated counts submissions that resolved to an existing topic.
	TopicsDeduplicated prometheus.Counter

	// TopicsCompleted counts topics that reached the completed state.
	TopicsCompleted prometheus.Counter

	// TopicsFailed counts topics that were marked failed.
	TopicsFailed prometheus.Counter

	// StatusUpdatesApplied counts applied status transitions, labeled by status.
	StatusUpdatesApplied *prometheus.CounterVec

	// StatusUpdatesRejected counts status messages discarded before applying,
	// labeled by reason (e.g. "unknown_status", "missing_topic_id", "decode").
	StatusUpdatesRejected *prometheus.CounterVec

	// AnalysisEventsReceived counts analysis result messages, labeled by kind
	// ("partial", "final").
	AnalysisEventsReceived *prometheus.CounterVec

	// InsightsMerged counts video insights persisted into topics.
	InsightsMerged prometheus.Counter

	// InsightsDuplicate counts insights skipped because their dedup key was
	// already present.
	InsightsDuplicate prometheus.Counter

	// EventsPublished counts outbound Kafka messages, labeled by topic.
	EventsPublished *prometheus.CounterVec

	// EventPublishFailures counts failed publishes, labeled by topic.
	EventPublishFailures *prometheus.CounterVec

	// NormalizerRequestsTotal counts normalization calls, labeled by model.
	NormalizerRequestsTotal *prometheus.CounterVec

	// NormalizerRequestsFailed counts failed normalization calls, labeled by
	// model and error type.
	NormalizerRequestsFailed *prometheus.CounterVec

	// NormalizerRequestDuration observes normalization call duration in seconds.
	NormalizerRequestDuration *prometheus.HistogramVec

	// NormalizerTokensUsed counts tokens consumed by normalization, labeled by
	// model and token type.
	NormalizerTokensUsed *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		TopicsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topics_submitted_total",
			Help:      "Total number of new topics created",
		}),
		TopicsDeduplicated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topics_deduplicated_total",
			Help:      "Total number of submissions resolved to an existing topic",
		}),
		TopicsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topics_completed_total",
			Help:      "Total number of topics that reached the completed state",
		}),
		TopicsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topics_failed_total",
			Help:      "Total number of topics marked failed",
		}),

		StatusUpdatesApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_updates_applied_total",
			Help:      "Total number of status transitions applied by status",
		}, []string{"status"}),
		StatusUpdatesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_updates_rejected_total",
			Help:      "Total number of status messages discarded by reason",
		}, []string{"reason"}),

		AnalysisEventsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_events_received_total",
			Help:      "Total number of analysis result messages by kind",
		}, []string{"kind"}),
		InsightsMerged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insights_merged_total",
			Help:      "Total number of video insights persisted",
		}),
		InsightsDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insights_duplicate_total",
			Help:      "Total number of video insights skipped as duplicates",
		}),

		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of outbound Kafka messages by topic",
		}, []string{"topic"}),
		EventPublishFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Total number of failed Kafka publishes by topic",
		}, []string{"topic"}),

		NormalizerRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalizer_requests_total",
			Help:      "Total number of normalization requests by model",
		}, []string{"model"}),
		NormalizerRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalizer_requests_failed_total",
			Help:      "Total number of failed normalization requests by model",
		}, []string{"model", "error_type"}),
		NormalizerRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "normalizer_request_duration_seconds",
			Help:      "Duration of normalization requests in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"model"}),
		NormalizerTokensUsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalizer_tokens_used_total",
			Help:      "Total number of tokens used by normalization requests",
		}, []string{"model", "token_type"}),
	}
}

// RecordTopicSubmitted records a newly created topic.
func (m *Metrics) RecordTopicSubmitted() {
	m.TopicsSubmitted.Inc()
}

// RecordTopicDeduplicated records a submission that matched an existing topic.
func (m *Metrics) RecordTopicDeduplicated() {
	m.TopicsDeduplicated.Inc()
}

// RecordTopicCompleted records a topic reaching the completed state.
func (m *Metrics) RecordTopicCompleted() {
	m.TopicsCompleted.Inc()
}

// RecordTopicFailed records a topic being marked failed.
func (m *Metrics) RecordTopicFailed() {
	m.TopicsFailed.Inc()
}

// RecordStatusApplied records an applied status transition.
func (m *Metrics) RecordStatusApplied(status string) {
	m.StatusUpdatesApplied.WithLabelValues(status).Inc()
}

// RecordStatusRejected records a status message discarded before applying.
func (m *Metrics) RecordStatusRejected(reason string) {
	m.StatusUpdatesRejected.WithLabelValues(reason).Inc()
}

// RecordAnalysisEvent records an inbound analysis result message.
func (m *Metrics) RecordAnalysisEvent(kind string) {
	m.AnalysisEventsReceived.WithLabelValues(kind).Inc()
}

// RecordInsightsMerged records insights persisted and duplicates skipped
// for one analysis event.
func (m *Metrics) RecordInsightsMerged(merged, duplicate int) {
	m.InsightsMerged.Add(float64(merged))
	m.InsightsDuplicate.Add(float64(duplicate))
}

// RecordEventPublished records a successful outbound publish.
func (m *Metrics) RecordEventPublished(topic string) {
	m.EventsPublished.WithLabelValues(topic).Inc()
}

// RecordEventPublishFailed records a failed outbound publish.
func (m *Metrics) RecordEventPublishFailed(topic string) {
	m.EventPublishFailures.WithLabelValues(topic).Inc()
}

// RecordNormalizerRequest records a normalization call with token usage.
func (m *Metrics) RecordNormalizerRequest(model string, durationSeconds float64, inputTokens, outputTokens int) {
	m.NormalizerRequestsTotal.WithLabelValues(model).Inc()
	m.NormalizerRequestDuration.WithLabelValues(model).Observe(durationSeconds)
	m.NormalizerTokensUsed.WithLabelValues(model, "input").Add(float64(inputTokens))
	m.NormalizerTokensUsed.WithLabelValues(model, "output").Add(float64(outputTokens))
}

// RecordNormalizerRequestFailed records a failed normalization call.
func (m *Metrics) RecordNormalizerRequestFailed(model, errorType string) {
	m.NormalizerRequestsFailed.WithLabelValues(model, errorType).Inc()
}
