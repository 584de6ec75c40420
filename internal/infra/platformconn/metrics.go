package platformconn

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/connectivity"
)

// Metrics 暴露 conn_state / conn_resets_total / dials_total。
type Metrics struct {
	connState *prometheus.GaugeVec
	resets    *prometheus.CounterVec
	dials     *prometheus.CounterVec
}

// NewMetrics 在注册器中注册连接指标。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		connState: register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "custody",
			Subsystem: "client",
			Name:      "conn_state",
			Help:      "gRPC connectivity state of the platform connection (0 idle, 1 connecting, 2 ready, 3 transient failure, 4 shutdown)",
		}, []string{"endpoint"})),
		resets: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "custody",
			Subsystem: "client",
			Name:      "conn_resets_total",
			Help:      "Total number of transient connection failures",
		}, []string{"endpoint"})),
		dials: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "custody",
			Subsystem: "client",
			Name:      "dials_total",
			Help:      "Connection establishment attempts by result",
		}, []string{"endpoint", "result"})),
	}
}

// register 注册 collector；同名指标已注册时复用已有实例，同一注册器上可创建多个 Manager。
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

func (m *Metrics) setState(endpoint string, s connectivity.State) {
	if m == nil {
		return
	}
	m.connState.WithLabelValues(endpoint).Set(float64(s))
}

func (m *Metrics) incReset(endpoint string) {
	if m == nil {
		return
	}
	m.resets.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) incDial(endpoint, result string) {
	if m == nil {
		return
	}
	m.dials.WithLabelValues(endpoint, result).Inc()
}
