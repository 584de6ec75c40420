// Package platformconn 管理到托管平台 API 的单条进程内缓存 gRPC 连接。
package platformconn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ErrClosed 表示 Manager 已关闭。
var ErrClosed = errors.New("platform connection closed")

// ErrNoEndpoint 表示配置缺少端点。
var ErrNoEndpoint = errors.New("platform endpoint is empty")

// Dialer 允许自定义拨号逻辑（测试中替换为 bufconn）。
type Dialer func(ctx context.Context, target Target, cfg Config) (*grpc.ClientConn, error)

// Target 描述平台端点。
type Target struct {
	Endpoint string
	Metadata map[string]string
}

// Manager 延迟且幂等地建立连接；并发首次调用共享同一次拨号，失败的拨号不会被缓存。
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg     Config
	target  Target
	dialer  Dialer
	metrics *Metrics
	logger  *slog.Logger
	health  *healthTracker
	backoff *Backoff

	group singleflight.Group

	mu       sync.Mutex
	conn     *grpc.ClientConn
	closed   bool
	lastErr  error
	dialedAt time.Time
}

// Option 自定义 Manager。
type Option func(*Manager)

// WithDialer 自定义拨号器。
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithLogger 注入 slog Logger。
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithRegisterer 指定 Prometheus 注册器。
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(m *Manager) { m.metrics = NewMetrics(reg) }
}

// WithMetrics 复用已注册的指标。
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// New 创建 Manager，不会立即拨号。
func New(cfg Config, opts ...Option) (*Manager, error) {
	if cfg.Endpoint == "" {
		return nil, ErrNoEndpoint
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		target:  Target{Endpoint: cfg.Endpoint},
		dialer:  defaultDialer,
		logger:  slog.Default(),
		health:  newHealthTracker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		backoff: NewBackoff(cfg.Backoff),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		m.dialer = defaultDialer
	}
	if m.metrics == nil {
		m.metrics = NewMetrics(nil)
	}
	return m, nil
}

// Conn 返回缓存的连接，必要时建立。ctx 只约束本次等待，拨号本身由 Manager 的生命周期控制。
func (m *Manager) Conn(ctx context.Context) (*grpc.ClientConn, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.conn != nil {
		conn := m.conn
		m.mu.Unlock()
		return conn, nil
	}
	m.mu.Unlock()

	ch := m.group.DoChan("dial", func() (any, error) { return m.establish() })
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*grpc.ClientConn), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) establish() (*grpc.ClientConn, error) {
	if !m.health.Open() {
		return nil, ErrClosed
	}
	dialCtx := m.ctx
	if m.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(m.ctx, m.cfg.DialTimeout)
		defer cancel()
	}
	start := time.Now()
	conn, err := m.dialer(dialCtx, m.target, m.cfg)
	if err != nil {
		m.metrics.incDial(m.target.Endpoint, "error")
		m.health.Failure()
		m.mu.Lock()
		m.lastErr = err
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return nil, ErrClosed
		}
		m.logger.Warn("platform dial failed", "endpoint", m.target.Endpoint, "err", err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			// 拨号超时属于网络故障，不再暴露 context 错误。
			return nil, fmt.Errorf("dial %s: no connection within %s: %v", m.target.Endpoint, m.cfg.DialTimeout, err)
		}
		return nil, fmt.Errorf("dial %s: %w", m.target.Endpoint, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		_ = conn.Close()
		return nil, ErrClosed
	}
	if m.conn != nil {
		_ = conn.Close()
		return m.conn, nil
	}
	m.conn = conn
	m.lastErr = nil
	m.dialedAt = time.Now()
	m.metrics.incDial(m.target.Endpoint, "ok")
	m.metrics.setState(m.target.Endpoint, conn.GetState())
	m.health.Success()
	m.logger.Info("platform connection established", "endpoint", m.target.Endpoint, "elapsed", time.Since(start))
	go m.watchConnectivity(conn)
	if m.cfg.HealthCheckInterval > 0 {
		go m.healthProbe(conn)
	}
	return conn, nil
}

// ReportResult 由调用方在每次调用后反馈结果，仅影响健康分级。
func (m *Manager) ReportResult(transportFailure bool) {
	if transportFailure {
		if m.health.Failure() {
			m.logger.Warn("platform connection degraded", "endpoint", m.target.Endpoint)
		}
		return
	}
	m.health.Success()
}

// Close 关闭连接并停止后台协程，重复调用安全。
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	m.cancel()
	m.health.Close()
	if conn == nil {
		return nil
	}
	m.metrics.setState(m.target.Endpoint, connectivity.Shutdown)
	return conn.Close()
}

// Snapshot 是连接状态的只读快照，用于调试端点。
type Snapshot struct {
	Endpoint      string    `json:"endpoint"`
	Connected     bool      `json:"connected"`
	State         string    `json:"state"`
	Health        Health    `json:"health"`
	Failures      int       `json:"consecutive_failures"`
	HealthChanged time.Time `json:"health_changed_at"`
	DialedAt      time.Time `json:"dialed_at,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	BackoffSteps  int       `json:"backoff_attempts"`
}

// Snapshot 返回当前状态。
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	conn := m.conn
	closed := m.closed
	lastErr := m.lastErr
	dialedAt := m.dialedAt
	m.mu.Unlock()

	state := "unconnected"
	switch {
	case closed:
		state = "closed"
	case conn != nil:
		state = conn.GetState().String()
	}
	health, failures, changed := m.health.snapshot()
	snap := Snapshot{
		Endpoint:      m.target.Endpoint,
		Connected:     conn != nil,
		State:         state,
		Health:        health,
		Failures:      failures,
		HealthChanged: changed,
		DialedAt:      dialedAt,
		BackoffSteps:  m.backoff.Attempts(),
	}
	if lastErr != nil {
		snap.LastError = lastErr.Error()
	}
	return snap
}

// watchConnectivity 观测状态变化；TransientFailure 后按退避重置拨号等待，不会重放任何调用。
func (m *Manager) watchConnectivity(conn *grpc.ClientConn) {
	for {
		state := conn.GetState()
		if state == connectivity.Shutdown {
			return
		}
		if !conn.WaitForStateChange(m.ctx, state) {
			return
		}
		next := conn.GetState()
		m.metrics.setState(m.target.Endpoint, next)
		switch next {
		case connectivity.TransientFailure:
			m.metrics.incReset(m.target.Endpoint)
			m.health.Failure()
			delay := m.backoff.Next()
			m.logger.Warn("platform connection transient failure", "endpoint", m.target.Endpoint, "retry_in", delay)
			select {
			case <-time.After(delay):
				conn.ResetConnectBackoff()
			case <-m.ctx.Done():
				return
			}
		case connectivity.Ready:
			m.backoff.Reset()
			m.health.Success()
		}
	}
}

// healthProbe 仅在配置了间隔时启用，适用于实现 grpc.health.v1 的本地托管代理。
func (m *Manager) healthProbe(conn *grpc.ClientConn) {
	interval := m.cfg.HealthCheckInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	client := healthpb.NewHealthClient(conn)
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			timeout := m.cfg.DialTimeout
			if timeout <= 0 || timeout > interval {
				timeout = interval
			}
			probeCtx, cancel := context.WithTimeout(m.ctx, timeout)
			resp, err := client.Check(probeCtx, &healthpb.HealthCheckRequest{Service: m.cfg.ServiceName})
			cancel()
			if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
				m.health.Failure()
				m.logger.Warn("platform health degraded", "endpoint", m.target.Endpoint, "err", err)
				continue
			}
			m.health.Success()
		}
	}
}
