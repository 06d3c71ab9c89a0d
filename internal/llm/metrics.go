package llm

import "github.com/prometheus/client_golang/prometheus"

var (
	llmRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Model calls by provider and outcome (ok or failure kind).",
		},
		[]string{"provider", "outcome"},
	)
	llmRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_retries_total",
			Help: "Retries scheduled after a failed model call.",
		},
		[]string{"provider", "kind"},
	)
	llmLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "Model call latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider"},
	)
	llmCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_reply_cache_hits_total",
			Help: "Replies served from the prompt-hash cache.",
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(llmRequests, llmRetries, llmLatency, llmCacheHits)
}
