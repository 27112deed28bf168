package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"site-gen-ai-api/internal/domain/entity"
	"site-gen-ai-api/pkg/logger"
	"site-gen-ai-api/pkg/tracer"
)

var msgTracer = otel.Tracer("messaging")

const defaultStreamMaxLen = 100000

// Producer 向对账流写入待重放的状态变更
type Producer struct {
	client redis.UniversalClient
	maxLen int64
}

// NewProducer maxLen 为流的近似长度上限，超出后裁掉最旧的消息
func NewProducer(client redis.UniversalClient, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &Producer{client: client, maxLen: maxLen}
}

// Enqueue 登记一次部署成功但未能落库的状态变更，由对账进程重放
func (p *Producer) Enqueue(ctx context.Context, change *entity.StatusChange) error {
	msg, err := NewReconcileMessage(ctx, change)
	if err != nil {
		return err
	}
	_, err = p.Publish(ctx, StreamGenerationReconcile, msg)
	return err
}

// Publish 写入一条消息，返回 Stream 分配的条目 ID
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := msgTracer.Start(ctx, "producer.Publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.type", msg.Type),
			attribute.String("generation.id", msg.Origin.GenerationID),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("encode message %s: %w", msg.ID, err)
	}

	entryID, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{"data": string(data)},
	}).Result()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}

	span.SetAttributes(attribute.String("stream.message_id", entryID))
	return entryID, nil
}

// NewReconcileMessage 以状态变更为载荷，并记下发起请求的标识
func NewReconcileMessage(ctx context.Context, change *entity.StatusChange) (*Message, error) {
	origin := Origin{
		GenerationID: change.RequestID,
		TraceID:      tracer.TraceID(ctx),
	}
	if reqID, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		origin.HTTPRequestID = reqID
	}
	return newMessage(uuid.NewString(), MessageTypeGenerationReconcile, change.OwnerID, change, origin)
}
