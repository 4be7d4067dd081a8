// Package redis 提供 Redis 限流器实现
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

// RateLimiter 滑动窗口限流器
type RateLimiter struct {
	client *Client
}

// NewRateLimiter 创建限流器
func NewRateLimiter(client *Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow 检查是否允许请求（滑动窗口算法）
func (l *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.Allow")
	span.SetAttributes(
		attribute.String("ratelimit.key", key),
		attribute.Int("ratelimit.limit", limit),
		attribute.Int64("ratelimit.window_ms", window.Milliseconds()),
	)
	defer span.End()

	now := time.Now().UnixMilli()
	windowStart := now - window.Milliseconds()

	pipe := l.client.rdb.Pipeline()

	// 移除窗口外的请求
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart))

	// 获取当前窗口内的请求数
	countCmd := pipe.ZCard(ctx, key)

	_, err := pipe.Exec(ctx)
	if err != nil {
		span.RecordError(err)
		return false, err
	}

	count := countCmd.Val()
	span.SetAttributes(attribute.Int64("ratelimit.current_count", count))

	if count >= int64(limit) {
		span.SetAttributes(attribute.Bool("ratelimit.allowed", false))
		return false, nil
	}

	// 添加当前请求；同一毫秒内的请求用随机后缀区分
	pipe = l.client.rdb.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now),
		Member: fmt.Sprintf("%d-%s", now, uuid.NewString()),
	})
	pipe.Expire(ctx, key, window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return false, err
	}

	span.SetAttributes(attribute.Bool("ratelimit.allowed", true))
	return true, nil
}

// Remaining 获取剩余配额
func (l *RateLimiter) Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.Remaining")
	span.SetAttributes(attribute.String("ratelimit.key", key))
	defer span.End()

	now := time.Now().UnixMilli()
	windowStart := now - window.Milliseconds()

	pipe := l.client.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart))
	countCmd := pipe.ZCard(ctx, key)

	_, err := pipe.Exec(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	count := countCmd.Val()
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	span.SetAttributes(attribute.Int("ratelimit.remaining", remaining))
	return remaining, nil
}

// BuildRateLimitKey 构建限流键（调用方标识 + 路由）
func (l *RateLimiter) BuildRateLimitKey(caller, endpoint string) string {
	return l.client.Key("ratelimit", caller, endpoint)
}
