package repository

import (
	"context"
	"errors"
	"time"

	"site-gen-ai-api/internal/domain/entity"
)

// ErrStateNotFound OAuth state 不存在、已过期或已被使用
var ErrStateNotFound = errors.New("sign-in state not found")

// SessionRepository 登录会话存储接口
type SessionRepository interface {
	// SaveState 保存一次性握手状态
	SaveState(ctx context.Context, state *entity.SignInState, ttl time.Duration) error

	// ConsumeState 读取并删除握手状态，重复使用返回 ErrStateNotFound
	ConsumeState(ctx context.Context, state string) (*entity.SignInState, error)

	// SaveSession 登记一个有效会话
	SaveSession(ctx context.Context, userID, sessionID string, ttl time.Duration) error

	// IsActive 检查会话是否仍然有效
	IsActive(ctx context.Context, userID, sessionID string) (bool, error)

	// RevokeSession 吊销单个会话
	RevokeSession(ctx context.Context, userID, sessionID string) error

	// RevokeUser 吊销用户全部会话，返回被吊销的会话数
	RevokeUser(ctx context.Context, userID string) (int, error)
}
