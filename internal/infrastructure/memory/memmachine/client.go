// Package memmachine 提供 MemMachine 长期记忆服务的 MCP 客户端
package memmachine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ell-intel-api/internal/config"
	"ell-intel-api/pkg/circuitbreaker"
	"ell-intel-api/pkg/logger"
	"ell-intel-api/pkg/metrics"
)

var tracer = otel.Tracer("memmachine")

// ErrMemoryUnavailable 记忆服务不可达、工具报错或熔断打开
var ErrMemoryUnavailable = errors.New("memory service unavailable")

const (
	ToolSearchMemory = "search_memory"
	ToolAddMemory    = "add_memory"

	TransportStreamableHTTP = "streamable_http"
	TransportSSE            = "sse"

	clientName    = "ell-intel-api"
	clientVersion = "1.0.0"

	defaultBaseURL = "http://localhost:8090"
	defaultUserID  = "default-user"
	defaultTimeout = 30 * time.Second
)

// Client MemMachine MCP 客户端。会话懒建立，失败后下次调用重建。
type Client struct {
	endpoint  string
	transport string
	userID    string
	timeout   time.Duration
	breaker   *circuitbreaker.Breaker

	mu      sync.Mutex
	session *client.Client
}

// NewClient 创建客户端（不连接）
func NewClient(cfg *config.MemMachineConfig) *Client {
	c := &Client{
		endpoint:  strings.TrimRight(defaultBaseURL, "/") + "/mcp/",
		transport: TransportStreamableHTTP,
		userID:    defaultUserID,
		timeout:   defaultTimeout,
	}
	if cfg == nil {
		return c
	}
	if u := strings.TrimSpace(cfg.BaseURL); u != "" {
		c.endpoint = strings.TrimRight(u, "/") + "/mcp/"
	}
	if t := strings.TrimSpace(cfg.Transport); t != "" {
		c.transport = t
	}
	if u := strings.TrimSpace(cfg.UserID); u != "" {
		c.userID = u
	}
	if cfg.Timeout > 0 {
		c.timeout = cfg.Timeout
	}
	if cfg.CircuitBreaker.Enabled {
		c.breaker = circuitbreaker.New(circuitbreaker.Config{
			Name:             "memmachine",
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
			OpenTimeout:      cfg.CircuitBreaker.OpenTimeout,
		}, circuitbreaker.WithStateChange(func(name string, from, to circuitbreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			logger.Warn(context.Background(), "circuit breaker state changed",
				"name", name, "from", from.String(), "to", to.String())
		}))
	}
	return c
}

// UserID 默认用户
func (c *Client) UserID() string { return c.userID }

// Endpoint MCP 端点
func (c *Client) Endpoint() string { return c.endpoint }

func (c *Client) connect(ctx context.Context) (*client.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return c.session, nil
	}

	headers := map[string]string{"user-id": c.userID}
	var (
		mc  *client.Client
		err error
	)
	switch c.transport {
	case TransportSSE:
		mc, err = client.NewSSEMCPClient(c.endpoint, transport.WithHeaders(headers))
	case TransportStreamableHTTP:
		mc, err = client.NewStreamableHttpClient(c.endpoint,
			transport.WithHTTPHeaders(headers),
			transport.WithHTTPTimeout(c.timeout),
		)
	default:
		return nil, fmt.Errorf("unsupported memmachine transport: %s", c.transport)
	}
	if err != nil {
		return nil, fmt.Errorf("create mcp client: %w", err)
	}

	if err := mc.Start(ctx); err != nil {
		_ = mc.Close()
		return nil, fmt.Errorf("start mcp transport: %w", err)
	}

	_, err = mc.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    clientName,
				Version: clientVersion,
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		_ = mc.Close()
		return nil, fmt.Errorf("initialize mcp session: %w", err)
	}

	c.session = mc
	return mc, nil
}

// reset 丢弃当前会话，下次调用重新握手
func (c *Client) reset(stale *client.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil && c.session == stale {
		_ = c.session.Close()
		c.session = nil
	}
}

// Close 关闭会话
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}

// callTool 调用工具并返回首个文本内容
func (c *Client) callTool(ctx context.Context, name string, args map[string]any) (string, error) {
	ctx, span := tracer.Start(ctx, "memmachine."+name,
		trace.WithAttributes(attribute.String("mcp.tool", name)))
	defer span.End()

	start := time.Now()
	call := func(ctx context.Context) (string, error) {
		return c.doCall(ctx, name, args)
	}

	var (
		text string
		err  error
	)
	if c.breaker != nil {
		text, err = circuitbreaker.Execute(ctx, c.breaker, call)
	} else {
		text, err = call(ctx)
	}
	metrics.MemoryRecallDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.MemoryRecallTotal.WithLabelValues(name, "error").Inc()
		span.RecordError(err)
		if errors.Is(err, ErrMemoryUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrMemoryUnavailable, err)
	}
	metrics.MemoryRecallTotal.WithLabelValues(name, "success").Inc()
	return text, nil
}

func (c *Client) doCall(ctx context.Context, name string, args map[string]any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	mc, err := c.connect(ctx)
	if err != nil {
		return "", err
	}

	res, err := mc.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		c.reset(mc)
		return "", fmt.Errorf("call %s: %w", name, err)
	}

	text := firstText(res)
	if res.IsError {
		return "", fmt.Errorf("%w: tool %s failed: %s", ErrMemoryUnavailable, name, text)
	}
	return text, nil
}

func firstText(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	for _, content := range res.Content {
		if tc, ok := mcp.AsTextContent(content); ok {
			return tc.Text
		}
	}
	return ""
}

func (c *Client) user(userID string) string {
	if u := strings.TrimSpace(userID); u != "" {
		return u
	}
	return c.userID
}

// Search 调用 search_memory，返回解析后的 JSON（非 JSON 文本包装为 {"content": text}）
func (c *Client) Search(ctx context.Context, userID, query string, limit int) (any, error) {
	text, err := c.callTool(ctx, ToolSearchMemory, map[string]any{
		"param": map[string]any{
			"user_id": c.user(userID),
			"query":   query,
			"limit":   limit,
		},
	})
	if err != nil {
		return nil, err
	}
	return decodeToolText(text), nil
}

// SearchMemories Search 并展开为记忆条目
func (c *Client) SearchMemories(ctx context.Context, userID, query string, limit int) ([]Memory, error) {
	raw, err := c.Search(ctx, userID, query, limit)
	if err != nil {
		return nil, err
	}
	return ParseMemories(raw), nil
}

// Add 调用 add_memory
func (c *Client) Add(ctx context.Context, userID, content string) (any, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("memory content is empty")
	}
	text, err := c.callTool(ctx, ToolAddMemory, map[string]any{
		"param": map[string]any{
			"user_id": c.user(userID),
			"content": content,
		},
	})
	if err != nil {
		return nil, err
	}
	return decodeToolText(text), nil
}

// HealthCheck 建立会话并 Ping
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	mc, err := c.connect(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMemoryUnavailable, err)
	}
	if err := mc.Ping(ctx); err != nil {
		c.reset(mc)
		return fmt.Errorf("%w: ping: %w", ErrMemoryUnavailable, err)
	}
	return nil
}
