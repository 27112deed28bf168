package entity

import "time"

// Session 已签发的登录会话
type Session struct {
	ID               string    `json:"session_id"`
	Identity         Identity  `json:"user"`
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	AccessExpiresAt  time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"-"`
}

// SessionEventType 会话变更类型
type SessionEventType string

const (
	SessionEventRestored  SessionEventType = "restored"
	SessionEventSignedIn  SessionEventType = "signed_in"
	SessionEventSignedOut SessionEventType = "signed_out"
)

// SessionEvent 会话变更通知；Identity 为空表示已登出
type SessionEvent struct {
	Type SessionEventType `json:"type"`
	// UserID 受影响的用户，登出事件同样携带
	UserID string `json:"user_id,omitempty"`
	// ClientKey 发起登录的匿名客户端，用于在登录完成前订阅
	ClientKey  string    `json:"client_key,omitempty"`
	Identity   *Identity `json:"identity,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	// Origin 发布事件的实例，跨实例转发时用于去重
	Origin string `json:"origin,omitempty"`
}

// SignInState 一次性 OAuth 握手状态
type SignInState struct {
	State        string    `json:"state"`
	Provider     Provider  `json:"provider"`
	RedirectTo   string    `json:"redirect_to"`
	CodeVerifier string    `json:"code_verifier"`
	ClientKey    string    `json:"client_key,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}
