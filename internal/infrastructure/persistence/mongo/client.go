// Package mongo 提供 MongoDB Atlas Vector Search 访问层实现
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"

	"ell-intel-api/internal/config"
)

var tracer = otel.Tracer("mongo")

// Client MongoDB 客户端
type Client struct {
	mongo  *mongo.Client
	config *config.MongoConfig
}

// NewClient 连接 MongoDB 并 Ping 确认可用
func NewClient(ctx context.Context, cfg *config.MongoConfig) (*Client, error) {
	if cfg == nil || cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}

	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.Username != "" && cfg.Password != "" {
		opts.SetAuth(options.Credential{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := c.Ping(ctx, nil); err != nil {
		_ = c.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return &Client{mongo: c, config: cfg}, nil
}

// Collection 返回切片集合
func (c *Client) Collection() *mongo.Collection {
	return c.mongo.Database(c.config.Database).Collection(c.config.Collection)
}

// Close 断开连接
func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.mongo == nil {
		return nil
	}
	return c.mongo.Disconnect(ctx)
}

// HealthCheck 健康检查
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "mongo.HealthCheck")
	defer span.End()

	if err := c.mongo.Ping(ctx, nil); err != nil {
		span.RecordError(err)
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
