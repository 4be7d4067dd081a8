package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ell-intel-api/pkg/logger"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Producer{
		client: client,
		maxLen: maxLen,
	}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()

	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishTurn 发布一轮问答
func (p *Producer) PublishTurn(ctx context.Context, turn *ConversationTurnMessage) (string, error) {
	msg, err := NewMessage(uuid.NewString(), TypeConversationTurn, turn.UserID, turn)
	if err != nil {
		return "", err
	}
	if turn.RequestID != "" {
		msg.SetMetadata("request_id", turn.RequestID)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		msg.SetMetadata("trace_id", sc.TraceID().String())
	}
	return p.Publish(ctx, StreamConversationTurn, msg)
}

// RecordTurn 实现 fusion.TurnRecorder
func (p *Producer) RecordTurn(ctx context.Context, userID, query, answer string) error {
	if p == nil {
		return nil
	}
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("conversation turn requires a user id")
	}
	requestID, _ := ctx.Value(logger.RequestIDKey).(string)
	_, err := p.PublishTurn(ctx, &ConversationTurnMessage{
		UserID:    userID,
		Query:     query,
		Answer:    answer,
		RequestID: requestID,
		AskedAt:   time.Now().UTC(),
	})
	return err
}
