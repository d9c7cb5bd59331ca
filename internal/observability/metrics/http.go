package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ibscare"

var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// HTTP 汇总 HTTP 请求的数量、错误与耗时。
type HTTP struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewRegistry 创建带有 Go 运行时与进程指标的注册表。
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewHTTP 创建并注册 HTTP 指标，reg 为空时只创建不注册。
func NewHTTP(reg prometheus.Registerer) (*HTTP, error) {
	m := &HTTP{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests processed.",
		}, []string{"handler", "method", "code"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_errors_total",
			Help:      "Total number of HTTP requests that resulted in a server error.",
		}, []string{"handler", "method"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   latencyBuckets,
		}, []string{"handler", "method"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.requests, m.errors, m.latency} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// ObserveHTTPRequest 记录一次请求。
func (m *HTTP) ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	if status >= http.StatusInternalServerError {
		m.errors.WithLabelValues(handler, method).Inc()
	}
	m.latency.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// Instrument 包装 next，以 handler 作为标签记录请求指标。
func (m *HTTP) Instrument(handler string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		m.ObserveHTTPRequest(handler, r.Method, sw.status, time.Since(start))
	})
}

// Handler 以 Prometheus 文本格式暴露 gatherer 中的指标。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}
