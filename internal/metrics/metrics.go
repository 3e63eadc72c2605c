// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Retrieval metrics
var (
	// RetrievalFallbackTotal counts exact-scan fallbacks taken because vector
	// search was unavailable or failed.
	RetrievalFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportbot_retrieval_fallback_total",
			Help: "Retrievals served by the exact cosine scan instead of vector search",
		},
		[]string{"reason"},
	)

	// RetrievalDuration measures end-to-end retrieval latency per path.
	RetrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "supportbot_retrieval_duration_seconds",
			Help:    "Retrieval latency distribution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)
)

// Sync metrics
var (
	// SyncOperationsTotal counts source sync outcomes.
	SyncOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportbot_sync_operations_total",
			Help: "Source sync operations by outcome",
		},
		[]string{"source_type", "outcome"},
	)

	// ChunksWrittenTotal counts chunks inserted into the knowledge store.
	ChunksWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportbot_chunks_written_total",
			Help: "Knowledge chunks written by source type",
		},
		[]string{"source_type"},
	)
)

// Answer metrics
var (
	// AnswersTotal counts chat answers by status.
	AnswersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportbot_answers_total",
			Help: "Chat answers by status",
		},
		[]string{"status"},
	)

	// QueryCacheTotal counts query-embedding cache lookups.
	QueryCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportbot_query_embedding_cache_total",
			Help: "Query embedding cache lookups by result",
		},
		[]string{"result"},
	)

	// SyncJobsTotal counts processed sync jobs by final status.
	SyncJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supportbot_sync_jobs_total",
			Help: "Processed sync jobs by status",
		},
		[]string{"status"},
	)
)

// ChangeEventsTotal counts consumed source change events.
var ChangeEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "supportbot_change_events_total",
		Help: "Source change events by action and outcome",
	},
	[]string{"action", "outcome"},
)

// ChatFeedbackTotal counts feedback left on answers.
var ChatFeedbackTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "supportbot_chat_feedback_total",
		Help: "Answer feedback by verdict",
	},
	[]string{"verdict"},
)
