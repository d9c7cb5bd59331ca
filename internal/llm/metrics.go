package llm

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeSkipped = "skipped"
)

// Metrics 记录各模型服务的调用结果与耗时。
type Metrics struct {
	calls     *prometheus.CounterVec
	durations *prometheus.HistogramVec
	fallbacks prometheus.Counter
}

// NewMetrics 创建并注册适配器指标。
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, fmt.Errorf("prometheus registerer is nil")
	}
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ibscare_llm_provider_calls_total",
			Help: "LLM provider calls by outcome",
		}, []string{"provider", "outcome"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ibscare_llm_provider_duration_seconds",
			Help:    "LLM provider call latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"provider"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ibscare_llm_fallback_total",
			Help: "Replies served from the static fallback",
		}),
	}
	for _, c := range []prometheus.Collector{m.calls, m.durations, m.fallbacks} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) observe(provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(provider, outcome).Inc()
	if outcome != outcomeSkipped {
		m.durations.WithLabelValues(provider).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) observeFallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}
