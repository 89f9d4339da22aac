// Package metrics provides Prometheus metrics for the Warden service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IssuesCreatedTotal tracks issues created by category
	IssuesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "issues",
			Name:      "created_total",
			Help:      "Total number of issues created by category",
		},
		[]string{"category", "priority"},
	)

	// IssueStatusTransitionsTotal tracks status transitions
	IssueStatusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "issues",
			Name:      "status_transitions_total",
			Help:      "Total number of issue status transitions",
		},
		[]string{"status"},
	)

	// MergesTotal tracks completed merge operations
	MergesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "merge",
			Name:      "operations_total",
			Help:      "Total number of completed merge operations",
		},
	)

	// MergedIssuesTotal tracks duplicates closed by merges
	MergedIssuesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "merge",
			Name:      "issues_merged_total",
			Help:      "Total number of duplicate issues closed by merges",
		},
	)

	// DuplicateSearchesTotal tracks duplicate searches by cache outcome
	DuplicateSearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "matching",
			Name:      "searches_total",
			Help:      "Total number of duplicate searches by cache outcome",
		},
		[]string{"cache"},
	)

	// DuplicateSearchDuration tracks duplicate search duration in seconds
	DuplicateSearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "warden",
			Subsystem: "matching",
			Name:      "search_duration_seconds",
			Help:      "Duration of duplicate searches in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	// CandidatesScored tracks pool sizes scored per duplicate search
	CandidatesScored = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "warden",
			Subsystem: "matching",
			Name:      "candidates_scored",
			Help:      "Number of candidate issues scored per duplicate search",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// NotificationsStoredTotal tracks stored notifications by type
	NotificationsStoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "notifications",
			Name:      "stored_total",
			Help:      "Total number of notifications stored by type",
		},
		[]string{"type"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)
)

// RecordIssueCreated records an issue creation metric
func RecordIssueCreated(category, priority string) {
	IssuesCreatedTotal.WithLabelValues(category, priority).Inc()
}

// RecordStatusTransition records an issue status transition
func RecordStatusTransition(status string) {
	IssueStatusTransitionsTotal.WithLabelValues(status).Inc()
}

// RecordMerge records a completed merge operation
func RecordMerge(mergedCount int) {
	MergesTotal.Inc()
	MergedIssuesTotal.Add(float64(mergedCount))
}

// RecordDuplicateSearch records a duplicate search with its cache outcome
func RecordDuplicateSearch(cacheOutcome string, durationSeconds float64) {
	DuplicateSearchesTotal.WithLabelValues(cacheOutcome).Inc()
	DuplicateSearchDuration.Observe(durationSeconds)
}

// RecordCandidatesScored records the pool size scored by a search that
// missed the cache. Cache hits score nothing, so they never observe.
func RecordCandidatesScored(poolSize int) {
	CandidatesScored.Observe(float64(poolSize))
}

// RecordNotificationStored records a stored notification
func RecordNotificationStored(notificationType string) {
	NotificationsStoredTotal.WithLabelValues(notificationType).Inc()
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
}

// MergeObserver adapts the package counters to the merge executor's hook.
type MergeObserver struct{}

func (MergeObserver) ObserveMerge(mergedCount int) {
	RecordMerge(mergedCount)
}
