package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval pipeline Prometheus metrics.
var (
	RetrievalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retrieval",
			Name:      "latency_seconds",
			Help:      "End-to-end retrieval call duration in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"collection"},
	)

	RetrievalHits = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retrieval",
			Name:      "hits",
			Help:      "Documents returned per retrieval call",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"collection"},
	)

	RetrievalFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrieval",
			Name:      "failures_total",
			Help:      "Variant-level retrieval failures by error class",
		},
		[]string{"collection", "error_class"},
	)

	PoolAcquiresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrieval",
			Name:      "pool_acquires_total",
			Help:      "Index connection acquires by outcome",
		},
		[]string{"outcome"}, // "hit" / "dial" / "exhausted" / "error"
	)

	PoolConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "retrieval",
			Name:      "pool_connections",
			Help:      "Index connections by state",
		},
		[]string{"state"}, // "idle" / "in_use"
	)

	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "retrieval",
			Name:      "circuit_state",
			Help:      "Circuit breaker state per collection (0=closed, 1=half-open, 2=open)",
		},
		[]string{"collection"},
	)

	SearchRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrieval",
			Name:      "search_retries_total",
			Help:      "Index search retry attempts",
		},
		[]string{"collection"},
	)
)

var retrievalMetricsRegistered bool

// RegisterRetrievalMetrics registers pipeline metrics. Must be called once from main.
func RegisterRetrievalMetrics() {
	if retrievalMetricsRegistered {
		return
	}
	prometheus.MustRegister(RetrievalLatency)
	prometheus.MustRegister(RetrievalHits)
	prometheus.MustRegister(RetrievalFailuresTotal)
	prometheus.MustRegister(PoolAcquiresTotal)
	prometheus.MustRegister(PoolConnections)
	prometheus.MustRegister(CircuitState)
	prometheus.MustRegister(SearchRetriesTotal)
	retrievalMetricsRegistered = true
}
