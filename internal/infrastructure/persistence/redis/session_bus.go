package redis

import (
	"context"
	"encoding/json"

	"site-gen-ai-api/internal/domain/entity"
	"site-gen-ai-api/pkg/logger"
)

// SessionEventChannel 会话变更广播频道
const SessionEventChannel = "auth:session:events"

// SessionEventBus 通过 Redis Pub/Sub 在多个实例之间转发会话变更
type SessionEventBus struct {
	client *Client
}

// NewSessionEventBus 创建会话事件总线
func NewSessionEventBus(client *Client) *SessionEventBus {
	return &SessionEventBus{client: client}
}

// Publish 广播会话事件
func (b *SessionEventBus) Publish(ctx context.Context, event *entity.SessionEvent) error {
	ctx, span := tracer.Start(ctx, "redis.SessionEventBus.Publish")
	defer span.End()

	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := b.client.rdb.Publish(ctx, SessionEventChannel, raw).Err(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Run 订阅频道并把事件交给 handler，直到 ctx 结束
func (b *SessionEventBus) Run(ctx context.Context, handler func(context.Context, *entity.SessionEvent)) error {
	sub := b.client.rdb.Subscribe(ctx, SessionEventChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	logger.Info(ctx, "session event bus subscribed", "channel", SessionEventChannel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event entity.SessionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Warn(ctx, "dropping malformed session event", "error", err.Error())
				continue
			}
			handler(ctx, &event)
		}
	}
}
