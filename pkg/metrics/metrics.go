// Package metrics 提供 Prometheus 指标采集功能
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "ell"
)

var (
	// HTTP 请求指标
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "HTTP requests currently being served",
		},
	)

	HTTPPanicsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "panics_total",
			Help:      "Handler panics recovered by the HTTP server",
		},
		[]string{"path"},
	)

	// 融合指标
	FusionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fusion",
			Name:      "total",
			Help:      "Total number of context fusions",
		},
		[]string{"status"}, // ok/degraded/failed
	)

	FusionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fusion",
			Name:      "duration_seconds",
			Help:      "Context fusion duration in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"generated"},
	)

	FusionRecords = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fusion",
			Name:      "records",
			Help:      "Entity records per fused response",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	// 响应缓存指标
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Response cache lookups by outcome",
		},
		[]string{"cache", "outcome"}, // outcome: hit/miss/shared/refresh
	)

	// 记忆召回指标
	MemoryRecallTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "recall_total",
			Help:      "Total number of memory service calls",
		},
		[]string{"tool", "status"},
	)

	MemoryRecallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "call_duration_seconds",
			Help:      "Memory service call duration in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 3},
		},
		[]string{"tool"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "circuit_state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"name"},
	)

	// LLM 指标
	LLMTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_used_total",
			Help:      "Total tokens used for LLM calls",
		},
		[]string{"provider", "model", "type"}, // type: prompt/completion
	)

	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "LLM call duration in seconds",
			Buckets:   []float64{.5, 1, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	LLMCallTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_total",
			Help:      "Total number of LLM calls",
		},
		[]string{"provider", "model", "status"},
	)

	// 向量检索指标
	VectorSearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vector",
			Name:      "search_duration_seconds",
			Help:      "Vector store search duration in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1},
		},
		[]string{"backend"},
	)

	VectorSearchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vector",
			Name:      "search_total",
			Help:      "Total number of vector store searches",
		},
		[]string{"backend", "status"},
	)

	EmbeddingCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "cache_total",
			Help:      "Query embedding cache lookups",
		},
		[]string{"outcome"},
	)

	EmbeddingCallTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "call_total",
			Help:      "Embedding model calls",
		},
		[]string{"model", "status"},
	)

	EmbeddingTexts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "texts_total",
			Help:      "Texts sent to the embedding model",
		},
		[]string{"model"},
	)

	// 队列指标
	RedisStreamLag = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "stream_lag",
			Help:      "Redis stream consumer lag",
		},
		[]string{"stream", "consumer_group"},
	)

	RedisStreamProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "stream_processed_total",
			Help:      "Total number of Redis stream messages processed",
		},
		[]string{"stream", "status"},
	)
)
