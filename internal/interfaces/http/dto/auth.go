package dto

import (
	"time"

	"site-gen-ai-api/internal/domain/entity"
)

// SignInResponse 登录跳转地址（mode=json 时返回）
type SignInResponse struct {
	AuthorizeURL string `json:"authorize_url"`
}

// RefreshRequest 刷新令牌，Cookie 缺失时从请求体读取
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// UserDTO 用户身份
type UserDTO struct {
	ID       string `json:"id"`
	Email    string `json:"email,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// SessionResponse 会话令牌
type SessionResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        *UserDTO  `json:"user"`
}

// SessionStateResponse 当前会话状态
type SessionStateResponse struct {
	Authenticated bool     `json:"authenticated"`
	User          *UserDTO `json:"user,omitempty"`
}

// SessionEventDTO 会话变更推送
type SessionEventDTO struct {
	Type       string    `json:"type"`
	User       *UserDTO  `json:"user"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ToUserDTO 身份转换，nil 表示未登录
func ToUserDTO(identity *entity.Identity) *UserDTO {
	if identity == nil {
		return nil
	}
	return &UserDTO{
		ID:       identity.ID,
		Email:    identity.Email,
		Provider: string(identity.Provider),
	}
}

// ToSessionResponse 会话转换
func ToSessionResponse(session *entity.Session) *SessionResponse {
	return &SessionResponse{
		AccessToken: session.AccessToken,
		TokenType:   "bearer",
		ExpiresAt:   session.AccessExpiresAt,
		User:        ToUserDTO(&session.Identity),
	}
}

// ToSessionEventDTO 事件转换
func ToSessionEventDTO(event *entity.SessionEvent) *SessionEventDTO {
	return &SessionEventDTO{
		Type:       string(event.Type),
		User:       ToUserDTO(event.Identity),
		OccurredAt: event.OccurredAt,
	}
}
