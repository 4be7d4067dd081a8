// Package cache 提供进程内响应缓存（TTL 惰性过期 + singleflight 合并）
package cache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"ell-intel-api/pkg/metrics"
	"ell-intel-api/pkg/tracer"
)

var cacheTracer = otel.Tracer("cache")

// Outcome 一次 GetOrCompute 的结果来源
type Outcome string

const (
	OutcomeHit     Outcome = "hit"
	OutcomeMiss    Outcome = "miss"
	OutcomeShared  Outcome = "shared"
	OutcomeRefresh Outcome = "refresh"
)

// entry 写入后不可变，替换即换指针
// ticket 为产生该值的计算开始时领取的序号
type entry[V any] struct {
	key      string
	value    V
	storedAt time.Time
	ttl      time.Duration
	ticket   uint64
}

func (e *entry[V]) fresh(now time.Time) bool {
	return now.Sub(e.storedAt) < e.ttl
}

// Option 可选配置
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock 注入时钟
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// ResponseCache 进程内 KV 缓存
// 无后台淘汰：过期在读取时判断，同 key 下次写入时被替换
type ResponseCache[V any] struct {
	name string
	now  func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry[V]
	// seq 计算序号；floor 之前（含）领取的序号不再允许写入
	seq   uint64
	floor uint64

	group singleflight.Group
}

// New 创建缓存，name 用于指标标签
func New[V any](name string, opts ...Option) *ResponseCache[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &ResponseCache[V]{
		name:    name,
		now:     o.now,
		entries: make(map[string]*entry[V]),
	}
}

const refreshPrefix = "refresh\x00"

type flightResult[V any] struct {
	value V
	hit   bool
}

// GetOrCompute 读取未过期条目，否则调用 compute 并写入
//   - forceRefresh 跳过查找，调用 compute 并覆盖；并发刷新共享一次计算
//   - 条目只会被更晚开始的计算替换
//   - 同 key 并发未命中只调用一次 compute，其余调用方共享结果
//   - compute 失败不写缓存
//
// 共享的 compute 不随单个调用方取消而中断；调用方取消只结束自己的等待。
func (c *ResponseCache[V]) GetOrCompute(
	ctx context.Context,
	key string,
	ttl time.Duration,
	forceRefresh bool,
	compute func(ctx context.Context) (V, error),
) (V, Outcome, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.GetOrCompute",
		trace.WithAttributes(
			attribute.String("cache.name", c.name),
			attribute.Bool("cache.force_refresh", forceRefresh),
		))
	defer span.End()

	var zero V

	computeCtx := context.WithoutCancel(ctx)

	if forceRefresh {
		// 让之后到达的普通未命中不再加入刷新前发起的那次计算
		c.group.Forget(key)
		// 并发刷新彼此合并，但不与普通未命中合并
		ch := c.group.DoChan(refreshPrefix+key, func() (interface{}, error) {
			ticket := c.nextTicket()
			v, err := compute(computeCtx)
			if err != nil {
				return nil, err
			}
			c.store(key, v, ttl, ticket)
			return flightResult[V]{value: v}, nil
		})
		select {
		case <-ctx.Done():
			tracer.RecordError(span, ctx.Err())
			return zero, OutcomeRefresh, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				tracer.RecordError(span, res.Err)
				return zero, OutcomeRefresh, res.Err
			}
			c.observe(span, OutcomeRefresh)
			return res.Val.(flightResult[V]).value, OutcomeRefresh, nil
		}
	}

	if v, ok := c.lookup(key); ok {
		c.observe(span, OutcomeHit)
		return v, OutcomeHit, nil
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		// 再次检查（可能已被前一次计算填充）
		if v, ok := c.lookup(key); ok {
			return flightResult[V]{value: v, hit: true}, nil
		}
		ticket := c.nextTicket()
		v, err := compute(computeCtx)
		if err != nil {
			return nil, err
		}
		c.store(key, v, ttl, ticket)
		return flightResult[V]{value: v}, nil
	})

	select {
	case <-ctx.Done():
		tracer.RecordError(span, ctx.Err())
		return zero, OutcomeMiss, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			tracer.RecordError(span, res.Err)
			return zero, OutcomeMiss, res.Err
		}
		fr := res.Val.(flightResult[V])
		outcome := OutcomeMiss
		switch {
		case fr.hit:
			outcome = OutcomeHit
		case res.Shared:
			outcome = OutcomeShared
		}
		c.observe(span, outcome)
		return fr.value, outcome, nil
	}
}

// Get 只读查找，不触发计算
func (c *ResponseCache[V]) Get(key string) (V, bool) {
	return c.lookup(key)
}

// Len 当前条目数（含已过期未替换的）
func (c *ResponseCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Purge 清空缓存，返回清除条数
func (c *ResponseCache[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[string]*entry[V])
	// 清空前已开始的计算结束后不得回写
	c.floor = c.seq
	return n
}

func (c *ResponseCache[V]) lookup(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !e.fresh(c.now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *ResponseCache[V]) nextTicket() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// store 仅当本次计算晚于当前条目的计算开始时才写入；
// 刷新开始后才结束的旧计算不会覆盖刷新结果
func (c *ResponseCache[V]) store(key string, v V, ttl time.Duration, ticket uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ticket <= c.floor {
		return
	}
	if cur, ok := c.entries[key]; ok && cur.ticket > ticket {
		return
	}
	c.entries[key] = &entry[V]{key: key, value: v, storedAt: c.now(), ttl: ttl, ticket: ticket}
}

func (c *ResponseCache[V]) observe(span trace.Span, outcome Outcome) {
	span.SetAttributes(
		attribute.Bool("cache.hit", outcome == OutcomeHit),
		attribute.Bool("cache.shared", outcome == OutcomeShared),
	)
	metrics.CacheRequestsTotal.WithLabelValues(c.name, string(outcome)).Inc()
}
