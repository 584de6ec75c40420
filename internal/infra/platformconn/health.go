package platformconn

import (
	"sync"
	"time"
)

// Health 是连接的健康分级。
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthClosed   Health = "closed"
)

// healthTracker 根据连续失败次数在 healthy/degraded 间切换；closed 为终态。
// 它只用于观测与快照，不拦截调用，调用始终至多发出一次。
type healthTracker struct {
	threshold int
	cooldown  time.Duration

	mu         sync.Mutex
	state      Health
	failures   int
	lastChange time.Time
}

func newHealthTracker(threshold int, cooldown time.Duration) *healthTracker {
	if threshold <= 0 {
		threshold = 1
	}
	return &healthTracker{
		threshold:  threshold,
		cooldown:   cooldown,
		state:      HealthHealthy,
		lastChange: time.Now(),
	}
}

// Open 报告是否仍可建立/使用连接；degraded 超过冷却期后自动恢复。
func (h *healthTracker) Open() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case HealthClosed:
		return false
	case HealthDegraded:
		if time.Since(h.lastChange) > h.cooldown {
			h.set(HealthHealthy)
			h.failures = 0
		}
	}
	return true
}

func (h *healthTracker) Success() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == HealthClosed {
		return
	}
	h.failures = 0
	if h.state != HealthHealthy {
		h.set(HealthHealthy)
	}
}

// Failure 记录一次失败，返回本次是否触发降级。
func (h *healthTracker) Failure() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == HealthClosed {
		return false
	}
	h.failures++
	if h.failures >= h.threshold && h.state == HealthHealthy {
		h.set(HealthDegraded)
		return true
	}
	return false
}

func (h *healthTracker) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.set(HealthClosed)
}

func (h *healthTracker) set(s Health) {
	h.state = s
	h.lastChange = time.Now()
}

func (h *healthTracker) snapshot() (Health, int, time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state, h.failures, h.lastChange
}
