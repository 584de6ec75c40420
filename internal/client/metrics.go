package client

import (
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aegis-sign/custody/pkg/apierrors"
)

// Metrics 记录每个远端方法的调用结果与耗时。
type Metrics struct {
	invocations *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	limiterWait *prometheus.HistogramVec
}

// NewMetrics 在注册器中注册调用指标。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		invocations: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "custody",
			Subsystem: "client",
			Name:      "invocations_total",
			Help:      "Remote calls by method and outcome",
		}, []string{"method", "outcome"})),
		latency: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "custody",
			Subsystem: "client",
			Name:      "invocation_latency_ms",
			Help:      "Remote call latency in milliseconds",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000, 10000},
		}, []string{"method"})),
		limiterWait: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "custody",
			Subsystem: "client",
			Name:      "limiter_wait_ms",
			Help:      "Time spent waiting on the client-side rate limiter in milliseconds",
			Buckets:   []float64{0.1, 1, 5, 10, 50, 100, 500, 1000},
		}, []string{"method"})),
	}
}

// register 注册 collector；同名指标已注册时复用已有实例，同一注册器上可创建多个 Client。
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func outcomeLabel(err *apierrors.Error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(string(err.Code))
}

func (m *Metrics) observe(method string, err *apierrors.Error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(method, outcomeLabel(err)).Inc()
	m.latency.WithLabelValues(method).Observe(float64(elapsed.Microseconds()) / 1000)
}

func (m *Metrics) observeLimiter(method string, waited time.Duration) {
	if m == nil {
		return
	}
	m.limiterWait.WithLabelValues(method).Observe(float64(waited.Microseconds()) / 1000)
}
