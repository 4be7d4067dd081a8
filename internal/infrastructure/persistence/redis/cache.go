package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var cacheTracer = otel.Tracer("redis.cache")

// Cache 共享缓存（JSON 编码），用于跨实例的查询向量缓存
type Cache struct {
	client *Client
}

// NewCache 创建缓存服务
func NewCache(client *Client) *Cache {
	return &Cache{
		client: client,
	}
}

// Key 拼接带前缀的键
func (c *Cache) Key(parts ...string) string {
	return c.client.Key(parts...)
}

// MGet 批量获取；未命中的位置为 nil
func (c *Cache) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.MGet",
		trace.WithAttributes(attribute.Int("cache.key_count", len(keys))))
	defer span.End()

	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := c.client.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	out := make([][]byte, len(vals))
	hits := 0
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[i] = []byte(s)
			hits++
		}
	}
	span.SetAttributes(attribute.Int("cache.hit_count", hits))
	return out, nil
}

// Set 设置缓存值
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	ctx, span := cacheTracer.Start(ctx, "cache.Set",
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.Int64("cache.ttl_ms", ttl.Milliseconds()),
		))
	defer span.End()

	bytes, err := json.Marshal(value)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return c.client.rdb.Set(ctx, key, bytes, ttl).Err()
}

// InvalidatePattern 按模式使缓存失效，返回删除数量
func (c *Cache) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.InvalidatePattern",
		trace.WithAttributes(attribute.String("cache.pattern", pattern)))
	defer span.End()

	iter := c.client.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		span.RecordError(err)
		return 0, err
	}

	if len(keys) == 0 {
		return 0, nil
	}
	span.SetAttributes(attribute.Int("cache.invalidated_count", len(keys)))
	if err := c.client.rdb.Del(ctx, keys...).Err(); err != nil {
		span.RecordError(err)
		return 0, err
	}
	return len(keys), nil
}
