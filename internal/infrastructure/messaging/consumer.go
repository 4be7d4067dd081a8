package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ell-intel-api/pkg/logger"
	"ell-intel-api/pkg/metrics"
)

var errRetriesExceeded = errors.New("message exceeded max retries")

// MessageHandler 消息处理函数
type MessageHandler func(ctx context.Context, msg *Message) error

// Consumer 消息消费者
type Consumer struct {
	client        *redis.Client
	stream        Stream
	group         ConsumerGroup
	consumerName  string
	blockTimeout  time.Duration
	claimInterval time.Duration
	reclaimIdle   time.Duration
	retryLimit    int
	backoff       BackoffConfig

	handlers map[string]MessageHandler
	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Stream        Stream
	Group         ConsumerGroup
	ConsumerName  string
	BlockTimeout  time.Duration
	ClaimInterval time.Duration
	RetryLimit    int
	Backoff       BackoffConfig
}

// NewConsumer 创建消息消费者
func NewConsumer(client *redis.Client, cfg ConsumerConfig) *Consumer {
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = 30 * time.Second
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = DefaultBackoffConfig()
	}
	if cfg.Backoff.Multiplier < 1 {
		cfg.Backoff.Multiplier = 2
	}
	if cfg.Backoff.Max < cfg.Backoff.Initial {
		cfg.Backoff.Max = cfg.Backoff.Initial
	}

	return &Consumer{
		client:        client,
		stream:        cfg.Stream,
		group:         cfg.Group,
		consumerName:  cfg.ConsumerName,
		blockTimeout:  cfg.BlockTimeout,
		claimInterval: cfg.ClaimInterval,
		reclaimIdle:   maxDuration(5*time.Minute, cfg.Backoff.Max*2),
		retryLimit:    cfg.RetryLimit,
		backoff:       cfg.Backoff,
		handlers:      make(map[string]MessageHandler),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// RegisterHandler 注册消息处理器
func (c *Consumer) RegisterHandler(msgType string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[msgType] = handler
}

// Start 启动消费者
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("consumer already running")
	}
	c.running = true
	c.mu.Unlock()

	// 确保消费者组存在
	err := c.client.XGroupCreateMkStream(ctx, string(c.stream), string(c.group), "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	go c.run(ctx)
	return nil
}

// Stop 停止消费者并等待消费循环退出
func (c *Consumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	close(c.stopCh)
	c.running = false
	c.mu.Unlock()
	<-c.doneCh
}

// run 消费循环
func (c *Consumer) run(ctx context.Context) {
	defer close(c.doneCh)

	logger.Info(ctx, "consumer started",
		"stream", c.stream,
		"group", c.group,
		"consumer", c.consumerName,
	)

	lastClaim := time.Now().Add(-c.claimInterval)

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "consumer stopped due to context cancellation")
			return
		case <-c.stopCh:
			logger.Info(ctx, "consumer stopped")
			return
		default:
		}

		c.processDuePending(ctx)
		if time.Since(lastClaim) >= c.claimInterval {
			c.reclaimStale(ctx)
			lastClaim = time.Now()
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    string(c.group),
			Consumer: c.consumerName,
			Streams:  []string{string(c.stream), ">"},
			Count:    10,
			Block:    c.blockTimeout,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			logger.Error(ctx, "failed to read from stream", err)
			c.sleep(ctx, time.Second)
			continue
		}

		for _, stream := range streams {
			for _, xmsg := range stream.Messages {
				c.processMessage(ctx, xmsg)
			}
		}
	}
}

func (c *Consumer) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-c.stopCh:
	case <-t.C:
	}
}

// decode 解析流消息，格式错误返回 nil
func decode(xmsg redis.XMessage) *Message {
	raw, ok := xmsg.Values["data"].(string)
	if !ok {
		return nil
	}
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil
	}
	return &msg
}

// processMessage 处理单条消息
func (c *Consumer) processMessage(ctx context.Context, xmsg redis.XMessage) {
	ctx, span := tracer.Start(ctx, "consumer.processMessage",
		trace.WithAttributes(
			attribute.String("stream", string(c.stream)),
			attribute.String("stream.message_id", xmsg.ID),
		))
	defer span.End()

	msg := decode(xmsg)
	if msg == nil {
		logger.Warn(ctx, "dropping malformed message", "message_id", xmsg.ID)
		metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "malformed").Inc()
		c.ack(ctx, xmsg.ID)
		return
	}

	ctx = logger.WithContext(ctx, logger.MessageIDKey, msg.ID)
	if msg.UserID != "" {
		ctx = logger.WithContext(ctx, logger.UserIDKey, msg.UserID)
	}
	if reqID := msg.GetMetadata("request_id"); reqID != "" {
		ctx = logger.WithContext(ctx, logger.RequestIDKey, reqID)
	}
	if traceID := msg.GetMetadata("trace_id"); traceID != "" {
		ctx = logger.WithContext(ctx, logger.TraceIDKey, traceID)
	}

	span.SetAttributes(
		attribute.String("message.id", msg.ID),
		attribute.String("message.type", msg.Type),
	)

	c.mu.RLock()
	handler, exists := c.handlers[msg.Type]
	c.mu.RUnlock()

	if !exists {
		logger.Warn(ctx, "no handler for message type", "type", msg.Type)
		metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "unhandled").Inc()
		c.ack(ctx, xmsg.ID)
		return
	}

	if err := handler(ctx, msg); err != nil {
		span.RecordError(err)
		logger.Error(ctx, "handler failed", err)
		metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "failed").Inc()
		c.handleFailure(ctx, xmsg, msg, err)
		return
	}

	metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "success").Inc()
	c.ack(ctx, xmsg.ID)
}

// ack 确认消息
func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, string(c.stream), string(c.group), id).Err(); err != nil {
		logger.Error(ctx, "failed to ack message", err, "message_id", id)
	}
}

// handleFailure 超过重试上限进死信队列，否则留在 pending 等退避后重投
func (c *Consumer) handleFailure(ctx context.Context, xmsg redis.XMessage, msg *Message, err error) {
	retryCount := c.getRetryCount(ctx, xmsg.ID)

	if retryCount >= c.retryLimit {
		logger.Warn(ctx, "message moved to DLQ after max retries",
			"retry_count", retryCount,
		)
		c.moveToDLQ(ctx, msg, err)
		c.ack(ctx, xmsg.ID)
		return
	}
	logger.Info(ctx, "message left pending for retry",
		"retry_count", retryCount,
		"next_backoff", c.backoff.CalculateBackoff(retryCount).String(),
	)
}

// getRetryCount 通过 XPENDING 获取消息的投递次数
func (c *Consumer) getRetryCount(ctx context.Context, messageID string) int {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: string(c.stream),
		Group:  string(c.group),
		Start:  messageID,
		End:    messageID,
		Count:  1,
	}).Result()

	if err != nil || len(pending) == 0 {
		return 0
	}

	return int(pending[0].RetryCount)
}

// moveToDLQ 移入死信队列
func (c *Consumer) moveToDLQ(ctx context.Context, msg *Message, err error) {
	dlqStream := c.stream.DLQStream()

	dlqMsg := map[string]interface{}{
		"original_stream": string(c.stream),
		"data":            msg,
		"error":           err.Error(),
		"failed_at":       time.Now().Unix(),
	}

	data, _ := json.Marshal(dlqMsg)
	if addErr := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: dlqStream,
		Values: map[string]interface{}{"data": string(data)},
	}).Err(); addErr != nil {
		logger.Error(ctx, "failed to write DLQ", addErr, "dlq", dlqStream)
		return
	}
	metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "dead_lettered").Inc()
}

// claim 认领 pending 消息，minIdle 为 0 时无条件认领
func (c *Consumer) claim(ctx context.Context, id string, minIdle time.Duration) ([]redis.XMessage, error) {
	return c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   string(c.stream),
		Group:    string(c.group),
		Consumer: c.consumerName,
		MinIdle:  minIdle,
		Messages: []string{id},
	}).Result()
}

// deadLetter 认领后直接进死信队列
func (c *Consumer) deadLetter(ctx context.Context, id string, minIdle time.Duration) {
	claimed, err := c.claim(ctx, id, minIdle)
	if err != nil {
		logger.Error(ctx, "failed to claim pending message for DLQ", err, "message_id", id)
		return
	}
	for _, xmsg := range claimed {
		if msg := decode(xmsg); msg != nil {
			c.moveToDLQ(ctx, msg, errRetriesExceeded)
		}
		c.ack(ctx, xmsg.ID)
	}
}

// processDuePending 重投本消费者名下已过退避时间的消息
func (c *Consumer) processDuePending(ctx context.Context) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   string(c.stream),
		Group:    string(c.group),
		Start:    "-",
		End:      "+",
		Count:    20,
		Consumer: c.consumerName,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return
		}
		logger.Error(ctx, "failed to query pending messages", err)
		return
	}

	for _, p := range pending {
		retryCount := int(p.RetryCount)
		if retryCount >= c.retryLimit {
			c.deadLetter(ctx, p.ID, 0)
			continue
		}

		backoff := c.backoff.CalculateBackoff(retryCount)
		if p.Idle < backoff {
			continue
		}

		claimed, claimErr := c.claim(ctx, p.ID, backoff)
		if claimErr != nil {
			logger.Error(ctx, "failed to claim pending message", claimErr, "message_id", p.ID)
			continue
		}
		for _, xmsg := range claimed {
			c.processMessage(ctx, xmsg)
		}
	}
}

// reclaimStale 接管其他消费者长时间未确认的消息
func (c *Consumer) reclaimStale(ctx context.Context) {
	if c.reclaimIdle <= 0 {
		return
	}

	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: string(c.stream),
		Group:  string(c.group),
		Start:  "-",
		End:    "+",
		Count:  20,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return
		}
		logger.Error(ctx, "failed to query pending messages for reclaim", err)
		return
	}

	for _, p := range pending {
		if p.Consumer == c.consumerName || p.Idle < c.reclaimIdle {
			continue
		}
		if int(p.RetryCount) >= c.retryLimit {
			c.deadLetter(ctx, p.ID, c.reclaimIdle)
			continue
		}

		claimed, claimErr := c.claim(ctx, p.ID, c.reclaimIdle)
		if claimErr != nil {
			logger.Error(ctx, "failed to reclaim pending message", claimErr, "message_id", p.ID)
			continue
		}
		for _, xmsg := range claimed {
			c.processMessage(ctx, xmsg)
		}
	}
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// MonitorDLQ 监控死信队列
func (c *Consumer) MonitorDLQ(ctx context.Context, alertThreshold int64) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			_, _ = c.reportLag(ctx)
			dlqStream := c.stream.DLQStream()
			n, err := c.client.XLen(ctx, dlqStream).Result()
			if err != nil {
				continue
			}
			if n > alertThreshold {
				logger.Warn(ctx, "DLQ has pending messages",
					"stream", dlqStream,
					"count", n,
				)
			}
		}
	}
}

// reportLag 以组内未确认消息数作为消费延迟
func (c *Consumer) reportLag(ctx context.Context) (int64, error) {
	pending, err := c.client.XPending(ctx, string(c.stream), string(c.group)).Result()
	if err != nil {
		return 0, err
	}
	metrics.RedisStreamLag.WithLabelValues(string(c.stream), string(c.group)).Set(float64(pending.Count))
	return pending.Count, nil
}
