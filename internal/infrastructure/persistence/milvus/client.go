// Package milvus 客户记录切片的 Milvus 存储（HNSW + COSINE）
package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ell-intel-api/internal/config"
)

var tracer = otel.Tracer("milvus")

const (
	connectTimeout  = 10 * time.Second
	defaultSearchEf = 128
)

// Client 持有连接与集合前缀；所有操作都落在客户切片集合上
type Client struct {
	milvus client.Client
	config *config.MilvusConfig
}

// NewClient 建立 gRPC 连接；账号为空时按无认证连接
func NewClient(ctx context.Context, cfg *config.MilvusConfig) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("milvus config is nil")
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	mc, err := client.NewClient(cctx, client.Config{
		Address:  addr,
		Username: cfg.User,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus at %s: %w", addr, err)
	}
	return &Client{milvus: mc, config: cfg}, nil
}

func (c *Client) Close() error {
	if c == nil || c.milvus == nil {
		return nil
	}
	return c.milvus.Close()
}

// HealthCheck 探测连接；集合尚未创建（还没导入过数据）不算失败
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "milvus.HealthCheck")
	defer span.End()

	exists, err := c.HasCollection(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("milvus health check: %w", err)
	}
	span.SetAttributes(attribute.Bool("collection.exists", exists))
	return nil
}

// CollectionName 加前缀，如 ell_customer_chunks
func (c *Client) CollectionName(name string) string {
	if c.config.CollectionPrefix == "" {
		return name
	}
	return c.config.CollectionPrefix + "_" + name
}

// chunks 客户切片集合的完整名称
func (c *Client) chunks() string {
	return c.CollectionName(CollectionCustomerChunks)
}

func (c *Client) HasCollection(ctx context.Context) (bool, error) {
	ctx, span := tracer.Start(ctx, "milvus.HasCollection",
		trace.WithAttributes(attribute.String("collection", c.chunks())))
	defer span.End()

	return c.milvus.HasCollection(ctx, c.chunks())
}

// LoadCollection 同步加载到内存，加载完成前检索会失败
func (c *Client) LoadCollection(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "milvus.LoadCollection",
		trace.WithAttributes(attribute.String("collection", c.chunks())))
	defer span.End()

	return c.milvus.LoadCollection(ctx, c.chunks(), false)
}

func (c *Client) searchEf() int {
	if c.config.SearchEf > 0 {
		return c.config.SearchEf
	}
	return defaultSearchEf
}
