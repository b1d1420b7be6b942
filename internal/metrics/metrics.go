// Package metrics exposes prometheus collectors for the query pipeline.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Collector struct {
	strategies    *prometheus.CounterVec
	pathLatency   *prometheus.HistogramVec
	modelCalls    *prometheus.CounterVec
	errors        *prometheus.CounterVec
	maskFallbacks *prometheus.CounterVec
	contextTokens prometheus.Histogram
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		strategies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auditlens",
			Subsystem: "router",
			Name:      "strategy_total",
			Help:      "Queries routed per execution strategy",
		}, []string{"strategy"}),
		pathLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "auditlens",
			Subsystem: "router",
			Name:      "path_latency_seconds",
			Help:      "End-to-end latency per execution strategy",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"strategy"}),
		modelCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auditlens",
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Language model calls by model and outcome",
		}, []string{"model", "outcome"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auditlens",
			Subsystem: "router",
			Name:      "errors_total",
			Help:      "Failed queries by error code",
		}, []string{"code"}),
		maskFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auditlens",
			Subsystem: "privacy",
			Name:      "fallback_total",
			Help:      "Pseudonymization steps that degraded to local masking",
		}, []string{"stage"}),
		contextTokens: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "auditlens",
			Subsystem: "context",
			Name:      "estimated_tokens",
			Help:      "Estimated tokens of assembled contexts",
			Buckets:   prometheus.ExponentialBuckets(64, 2, 10),
		}),
	}
}

func (c *Collector) StrategySelected(strategy string) {
	if c == nil {
		return
	}
	c.strategies.WithLabelValues(strategy).Inc()
}

func (c *Collector) ObservePath(strategy string, d time.Duration) {
	if c == nil {
		return
	}
	c.pathLatency.WithLabelValues(strategy).Observe(d.Seconds())
}

func (c *Collector) ModelCall(model, outcome string) {
	if c == nil {
		return
	}
	c.modelCalls.WithLabelValues(model, outcome).Inc()
}

func (c *Collector) QueryFailed(code string) {
	if c == nil {
		return
	}
	c.errors.WithLabelValues(code).Inc()
}

func (c *Collector) MaskingFallback(stage string) {
	if c == nil {
		return
	}
	c.maskFallbacks.WithLabelValues(stage).Inc()
}

func (c *Collector) ContextTokens(n int) {
	if c == nil {
		return
	}
	c.contextTokens.Observe(float64(n))
}
