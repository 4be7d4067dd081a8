// Package redis 提供 Redis 缓存、限流与消息队列连接
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"ell-intel-api/internal/config"
)

var tracer = otel.Tracer("redis")

// Client Redis 客户端
type Client struct {
	rdb    *redis.Client
	config *config.RedisConfig
}

// NewClient 创建 Redis 客户端
func NewClient(cfg *config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// 验证连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Client{
		rdb:    rdb,
		config: cfg,
	}, nil
}

// NewClientWith 包装已有连接（测试或共享连接池）
func NewClientWith(rdb *redis.Client, cfg *config.RedisConfig) *Client {
	if cfg == nil {
		cfg = &config.RedisConfig{}
	}
	return &Client{rdb: rdb, config: cfg}
}

// Redis 获取底层 Redis 客户端
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// Close 关闭 Redis 连接
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping 检查 Redis 连接
func (c *Client) Ping(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "redis.Ping")
	defer span.End()

	return c.rdb.Ping(ctx).Err()
}

// HealthCheck 健康检查
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "redis.HealthCheck")
	defer span.End()

	result, err := c.rdb.Ping(ctx).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("health check failed: %w", err)
	}
	if result != "PONG" {
		return fmt.Errorf("unexpected ping response: %s", result)
	}
	return nil
}

// Key 拼接带前缀的键
func (c *Client) Key(parts ...string) string {
	key := strings.Join(parts, ":")
	if c.config != nil && c.config.KeyPrefix != "" {
		return c.config.KeyPrefix + ":" + key
	}
	return key
}
