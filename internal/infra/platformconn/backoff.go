package platformconn

import (
	"math/rand"
	"sync"
	"time"
)

// Backoff 计算连接故障后重置拨号退避前的等待，按次数指数增长并带抖动。
// 它从不触发调用重放，只决定何时调用 ResetConnectBackoff。
type Backoff struct {
	cfg BackoffConfig

	mu       sync.Mutex
	attempts int
	rand     *rand.Rand
}

// NewBackoff 创建 Backoff。
func NewBackoff(cfg BackoffConfig) *Backoff {
	return &Backoff{
		cfg:  cfg,
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next 返回下一次等待时长，结果限定在 [Initial, Max]。
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	wait := b.cfg.Initial << b.attempts
	if wait <= 0 || wait > b.cfg.Max {
		wait = b.cfg.Max
	}
	if j := b.cfg.Jitter; j > 0 {
		wait = time.Duration(float64(wait) * (1 - j + 2*j*b.rand.Float64()))
	}
	if b.attempts < 16 {
		b.attempts++
	}
	return clamp(wait, b.cfg.Initial, b.cfg.Max)
}

// Attempts 返回自上次 Reset 以来的退避次数。
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Reset 在连接恢复 Ready 后清零。
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts = 0
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
