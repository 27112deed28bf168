package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"site-gen-ai-api/internal/domain/entity"
	"site-gen-ai-api/internal/domain/repository"
)

const (
	stateKeyPrefix       = "auth:oidc:state:"
	sessionKeyPrefix     = "auth:session:"
	userSessionKeyPrefix = "auth:user_sessions:"
)

// SessionStore 基于 Redis 的登录状态与会话白名单
type SessionStore struct {
	client *Client
}

// NewSessionStore 创建会话存储
func NewSessionStore(client *Client) *SessionStore {
	return &SessionStore{client: client}
}

var _ repository.SessionRepository = (*SessionStore)(nil)

func stateKey(state string) string {
	return stateKeyPrefix + state
}

func sessionKey(userID, sessionID string) string {
	return fmt.Sprintf("%s%s:%s", sessionKeyPrefix, userID, sessionID)
}

func userSessionsKey(userID string) string {
	return userSessionKeyPrefix + userID
}

// SaveState 保存一次性握手状态
func (s *SessionStore) SaveState(ctx context.Context, state *entity.SignInState, ttl time.Duration) error {
	ctx, span := tracer.Start(ctx, "redis.SessionStore.SaveState")
	defer span.End()

	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := s.client.rdb.Set(ctx, stateKey(state.State), raw, ttl).Err(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// ConsumeState 原子读取并删除握手状态
func (s *SessionStore) ConsumeState(ctx context.Context, state string) (*entity.SignInState, error) {
	ctx, span := tracer.Start(ctx, "redis.SessionStore.ConsumeState")
	defer span.End()

	raw, err := s.client.rdb.GetDel(ctx, stateKey(state)).Bytes()
	if err != nil {
		if IsNil(err) {
			return nil, repository.ErrStateNotFound
		}
		span.RecordError(err)
		return nil, err
	}

	var out entity.SignInState
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode sign-in state: %w", err)
	}
	return &out, nil
}

// SaveSession 登记会话
func (s *SessionStore) SaveSession(ctx context.Context, userID, sessionID string, ttl time.Duration) error {
	ctx, span := tracer.Start(ctx, "redis.SessionStore.SaveSession",
		trace.WithAttributes(attribute.String("auth.user_id", userID)))
	defer span.End()

	// 会话 TTL 相同，最新登记的会话决定集合的过期时间
	_, err := s.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(userID, sessionID), "1", ttl)
		pipe.SAdd(ctx, userSessionsKey(userID), sessionID)
		pipe.Expire(ctx, userSessionsKey(userID), ttl)
		return nil
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// IsActive 检查会话是否仍在白名单中
func (s *SessionStore) IsActive(ctx context.Context, userID, sessionID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "redis.SessionStore.IsActive")
	defer span.End()

	n, err := s.client.rdb.Exists(ctx, sessionKey(userID, sessionID)).Result()
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	return n > 0, nil
}

// RevokeSession 吊销单个会话
func (s *SessionStore) RevokeSession(ctx context.Context, userID, sessionID string) error {
	ctx, span := tracer.Start(ctx, "redis.SessionStore.RevokeSession")
	defer span.End()

	_, err := s.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(userID, sessionID))
		pipe.SRem(ctx, userSessionsKey(userID), sessionID)
		return nil
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// RevokeUser 吊销用户全部会话
func (s *SessionStore) RevokeUser(ctx context.Context, userID string) (int, error) {
	ctx, span := tracer.Start(ctx, "redis.SessionStore.RevokeUser",
		trace.WithAttributes(attribute.String("auth.user_id", userID)))
	defer span.End()

	sessionIDs, err := s.client.rdb.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	keys := make([]string, 0, len(sessionIDs)+1)
	for _, sid := range sessionIDs {
		keys = append(keys, sessionKey(userID, sid))
	}
	keys = append(keys, userSessionsKey(userID))

	if err := s.client.rdb.Del(ctx, keys...).Err(); err != nil {
		span.RecordError(err)
		return 0, err
	}
	return len(sessionIDs), nil
}
