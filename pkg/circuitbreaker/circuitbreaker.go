// Package circuitbreaker 提供熔断器，用于保护可降级的外部依赖
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State 熔断器状态
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

// String 返回状态名
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen 熔断打开时直接返回
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config 熔断配置
type Config struct {
	Name             string
	FailureThreshold uint32        // 连续失败多少次打开
	SuccessThreshold uint32        // 半开状态下连续成功多少次关闭
	OpenTimeout      time.Duration // 打开后多久进入半开
}

// Option 可选配置
type Option func(*Breaker)

// WithClock 注入时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithStateChange 状态变化回调
func WithStateChange(fn func(name string, from, to State)) Option {
	return func(b *Breaker) { b.onStateChange = fn }
}

// Breaker 连续失败计数熔断器
type Breaker struct {
	cfg           Config
	now           func() time.Time
	onStateChange func(name string, from, to State)

	mu        sync.Mutex
	state     State
	failures  uint32
	successes uint32
	openedAt  time.Time
	probing   bool
}

// New 创建熔断器
func New(cfg Config, opts ...Option) *Breaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	b := &Breaker{cfg: cfg, now: time.Now, state: Closed}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State 返回当前状态
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advanceLocked()
	return b.state
}

// Do 在熔断保护下执行 fn
// 调用方自己取消（context.Canceled）不计为失败
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn(ctx)
	b.after(err)
	return err
}

// Execute 泛型版本，返回 fn 的结果
func Execute[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := b.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advanceLocked()
	switch b.state {
	case Open:
		return ErrCircuitOpen
	case HalfOpen:
		// 半开时同一时刻只放行一个探测请求
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		b.probing = false
	}
	if errors.Is(err, context.Canceled) {
		return
	}

	if err != nil {
		switch b.state {
		case HalfOpen:
			b.transitionLocked(Open)
		case Closed:
			b.failures++
			if b.failures >= b.cfg.FailureThreshold {
				b.transitionLocked(Open)
			}
		}
		return
	}

	switch b.state {
	case HalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.transitionLocked(Closed)
		}
	case Closed:
		b.failures = 0
	}
}

// advanceLocked 打开超时后转入半开
func (b *Breaker) advanceLocked() {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		b.transitionLocked(HalfOpen)
	}
}

func (b *Breaker) transitionLocked(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.failures = 0
	b.successes = 0
	b.probing = false
	if to == Open {
		b.openedAt = b.now()
	}
	if b.onStateChange != nil {
		b.onStateChange(b.cfg.Name, from, to)
	}
}
