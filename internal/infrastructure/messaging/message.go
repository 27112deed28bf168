// Package messaging 提供基于 Redis Stream 的消息队列实现
package messaging

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"site-gen-ai-api/pkg/logger"
)

// 对账队列的流与消费者组
const (
	StreamGenerationReconcile Stream        = "stream:generation:reconcile"
	ConsumerGroupReconciler   ConsumerGroup = "cg-reconciler"

	MessageTypeGenerationReconcile = "generation_reconcile"
)

// Stream Redis Stream 名称
type Stream string

// DLQStream 超过重试上限的消息转入的死信流
func (s Stream) DLQStream() string {
	return "dlq:" + string(s)
}

// ConsumerGroup 消费者组名称
type ConsumerGroup string

// Message 流中一条消息，以 JSON 存放在 data 字段
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	OwnerID   string          `json:"owner_id"`
	Payload   json.RawMessage `json:"payload"`
	Origin    Origin          `json:"origin"`
	CreatedAt time.Time       `json:"created_at"`
}

// Origin 产生消息的那次请求，消费端据此把日志串回原请求
type Origin struct {
	GenerationID  string `json:"generation_id,omitempty"`
	HTTPRequestID string `json:"http_request_id,omitempty"`
	TraceID       string `json:"trace_id,omitempty"`
}

func newMessage(id, msgType, ownerID string, payload any, origin Origin) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        id,
		Type:      msgType,
		OwnerID:   ownerID,
		Payload:   raw,
		Origin:    origin,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// UnmarshalPayload 解析消息载荷
func (m *Message) UnmarshalPayload(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// logContext 把消息来源写入日志上下文
func (m *Message) logContext(ctx context.Context) context.Context {
	fields := []struct {
		key   logger.ContextKey
		value string
	}{
		{logger.UserIDKey, m.OwnerID},
		{logger.GenerationIDKey, m.Origin.GenerationID},
		{logger.RequestIDKey, m.Origin.HTTPRequestID},
		{logger.TraceIDKey, m.Origin.TraceID},
	}
	for _, f := range fields {
		if f.value != "" {
			ctx = logger.WithContext(ctx, f.key, f.value)
		}
	}
	return ctx
}

// BackoffConfig 重试退避：Initial * Multiplier^retry，不超过 Max
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{Initial: time.Second, Max: time.Minute, Multiplier: 2}
}

// Delay 第 retry 次重试前的等待时间
func (c BackoffConfig) Delay(retry int) time.Duration {
	d := float64(c.Initial) * math.Pow(c.Multiplier, float64(max(retry, 0)))
	if d >= float64(c.Max) {
		return c.Max
	}
	return time.Duration(d)
}
