package auth

import (
	"context"
	"errors"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"site-gen-ai-api/internal/domain/entity"
	"site-gen-ai-api/internal/domain/repository"
	"site-gen-ai-api/internal/infrastructure/backend"
	"site-gen-ai-api/pkg/logger"
	"site-gen-ai-api/pkg/metrics"
	"site-gen-ai-api/pkg/utils"
)

// IdentityBackend 托管认证后端
type IdentityBackend interface {
	AuthorizeURL(provider, redirectTo, codeChallenge string) string
	Settings(ctx context.Context) (*backend.Settings, error)
	ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*backend.TokenResponse, error)
}

// EventPublisher 跨实例广播会话事件
type EventPublisher interface {
	Publish(ctx context.Context, event *entity.SessionEvent) error
}

// Config 登录流程参数
type Config struct {
	Providers              []string
	CallbackURL            string
	StateTTL               time.Duration
	DefaultRedirect        string
	AllowedRedirectOrigins []string
	AccessTTL              time.Duration
	RefreshTTL             time.Duration
	// InstanceID 本进程标识，用于丢弃自己发出的广播
	InstanceID string
}

// SignInResult 登录回调结果
type SignInResult struct {
	Session    *entity.Session
	RedirectTo string
}

// AuthContext 当前会话身份与登录生命周期
type AuthContext struct {
	cfg      Config
	backend  IdentityBackend
	sessions repository.SessionRepository
	jwt      *utils.JWTManager
	broker   *Broker
	bus      EventPublisher
	now      func() time.Time
}

// NewAuthContext 创建认证上下文，bus 可为 nil（单实例部署）
func NewAuthContext(cfg Config, backend IdentityBackend, sessions repository.SessionRepository, jwt *utils.JWTManager, broker *Broker, bus EventPublisher) *AuthContext {
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = 10 * time.Minute
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	if broker == nil {
		broker = NewBroker()
	}
	return &AuthContext{
		cfg:      cfg,
		backend:  backend,
		sessions: sessions,
		jwt:      jwt,
		broker:   broker,
		bus:      bus,
		now:      time.Now,
	}
}

type sessionCtxKey struct{}
type clientKeyCtxKey struct{}

// WithSession 把已校验的会话放入请求上下文
func WithSession(ctx context.Context, session *entity.Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, session)
}

// SessionFromContext 读取请求上下文中的会话
func SessionFromContext(ctx context.Context) (*entity.Session, bool) {
	session, ok := ctx.Value(sessionCtxKey{}).(*entity.Session)
	return session, ok && session != nil
}

// WithClientKey 标记发起登录的匿名客户端
func WithClientKey(ctx context.Context, clientKey string) context.Context {
	return context.WithValue(ctx, clientKeyCtxKey{}, clientKey)
}

func clientKeyFromContext(ctx context.Context) string {
	key, _ := ctx.Value(clientKeyCtxKey{}).(string)
	return key
}

// CurrentIdentity 返回当前会话身份
func (a *AuthContext) CurrentIdentity(ctx context.Context) (*entity.Identity, bool) {
	session, ok := SessionFromContext(ctx)
	if !ok {
		return nil, false
	}
	id := session.Identity
	return &id, true
}

// SignIn 开始第三方登录握手，返回后端授权地址；结果通过会话变更事件送达
func (a *AuthContext) SignIn(ctx context.Context, providerName, redirectTo string) (string, error) {
	const op = "SignIn"

	provider := entity.Provider(strings.ToLower(strings.TrimSpace(providerName)))
	if !provider.IsValid() || !slices.Contains(a.cfg.Providers, string(provider)) {
		return "", newError(KindProviderRejected, op, errors.New("unsupported provider "+providerName))
	}

	settings, err := a.backend.Settings(ctx)
	if err != nil {
		return "", classifyBackendError(op, err)
	}
	if !settings.External[string(provider)] {
		return "", newError(KindProviderRejected, op, errors.New("provider disabled on backend"))
	}

	state, err := utils.NewRandomToken(32)
	if err != nil {
		return "", newError(KindNetworkFailure, op, err)
	}
	verifier, err := utils.NewCodeVerifier()
	if err != nil {
		return "", newError(KindNetworkFailure, op, err)
	}

	signIn := &entity.SignInState{
		State:        state,
		Provider:     provider,
		RedirectTo:   a.resolveRedirect(ctx, redirectTo),
		CodeVerifier: verifier,
		ClientKey:    clientKeyFromContext(ctx),
		ExpiresAt:    a.now().Add(a.cfg.StateTTL),
	}
	if err := a.sessions.SaveState(ctx, signIn, a.cfg.StateTTL); err != nil {
		return "", newError(KindNetworkFailure, op, err)
	}

	callback := a.cfg.CallbackURL + "?state=" + url.QueryEscape(state)
	return a.backend.AuthorizeURL(string(provider), callback, utils.CodeChallengeS256(verifier)), nil
}

// resolveRedirect 只允许跳回白名单来源，否则回落到默认地址
func (a *AuthContext) resolveRedirect(ctx context.Context, redirectTo string) string {
	redirectTo = strings.TrimSpace(redirectTo)
	if redirectTo == "" {
		return a.cfg.DefaultRedirect
	}
	u, err := url.Parse(redirectTo)
	if err != nil || u.Scheme == "" || u.Host == "" {
		logger.Warn(ctx, "ignoring malformed redirect", "redirect_to", redirectTo)
		return a.cfg.DefaultRedirect
	}
	if !slices.Contains(a.cfg.AllowedRedirectOrigins, u.Scheme+"://"+u.Host) {
		logger.Warn(ctx, "ignoring redirect to unlisted origin", "redirect_to", redirectTo)
		return a.cfg.DefaultRedirect
	}
	return redirectTo
}

// CompleteSignIn 处理登录回调：核销 state、换取用户、签发会话并通知订阅方
func (a *AuthContext) CompleteSignIn(ctx context.Context, state, code string) (*SignInResult, error) {
	const op = "CompleteSignIn"

	if strings.TrimSpace(state) == "" || strings.TrimSpace(code) == "" {
		return nil, newError(KindUnauthenticated, op, errors.New("missing state or code"))
	}

	signIn, err := a.sessions.ConsumeState(ctx, state)
	if err != nil {
		if errors.Is(err, repository.ErrStateNotFound) {
			return nil, newError(KindUnauthenticated, op, err)
		}
		return nil, newError(KindNetworkFailure, op, err)
	}
	if a.now().After(signIn.ExpiresAt) {
		return nil, newError(KindUnauthenticated, op, errors.New("sign-in state expired"))
	}

	token, err := a.backend.ExchangeCode(ctx, code, signIn.CodeVerifier)
	if err != nil {
		return nil, classifyBackendError(op, err)
	}

	identity := entity.Identity{
		ID:       token.User.ID,
		Email:    token.User.Email,
		Provider: signIn.Provider,
	}
	session, err := a.issue(ctx, identity)
	if err != nil {
		return nil, newError(KindNetworkFailure, op, err)
	}

	logger.Info(ctx, "user signed in", "user_id", identity.ID, "provider", identity.Provider)
	a.emit(ctx, &entity.SessionEvent{
		Type:      entity.SessionEventSignedIn,
		UserID:    identity.ID,
		ClientKey: signIn.ClientKey,
		Identity:  &identity,
	})

	return &SignInResult{Session: session, RedirectTo: signIn.RedirectTo}, nil
}

func (a *AuthContext) issue(ctx context.Context, identity entity.Identity) (*entity.Session, error) {
	sid := uuid.NewString()
	pair, err := a.jwt.GenerateTokenPair(utils.TokenSubject{
		UserID:    identity.ID,
		Email:     identity.Email,
		Provider:  string(identity.Provider),
		SessionID: sid,
	}, a.cfg.AccessTTL, a.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}
	if err := a.sessions.SaveSession(ctx, identity.ID, sid, a.cfg.RefreshTTL); err != nil {
		return nil, err
	}
	return &entity.Session{
		ID:               sid,
		Identity:         identity,
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}, nil
}

// Restore 校验访问令牌并恢复会话，已吊销的会话视为未登录
func (a *AuthContext) Restore(ctx context.Context, accessToken string) (*entity.Session, error) {
	return a.restore(ctx, "Restore", accessToken, utils.TokenTypeAccess)
}

func (a *AuthContext) restore(ctx context.Context, op, token, tokenType string) (*entity.Session, error) {
	if token == "" {
		return nil, newError(KindUnauthenticated, op, errors.New("missing token"))
	}
	claims, err := a.jwt.ParseToken(token, tokenType)
	if err != nil {
		return nil, newError(KindUnauthenticated, op, err)
	}

	active, err := a.sessions.IsActive(ctx, claims.UserID, claims.SessionID)
	if err != nil {
		return nil, newError(KindNetworkFailure, op, err)
	}
	if !active {
		return nil, newError(KindUnauthenticated, op, errors.New("session revoked"))
	}

	session := &entity.Session{
		ID: claims.SessionID,
		Identity: entity.Identity{
			ID:       claims.UserID,
			Email:    claims.Email,
			Provider: entity.Provider(claims.Provider),
		},
	}
	if claims.ExpiresAt != nil {
		session.AccessExpiresAt = claims.ExpiresAt.Time
	}
	if tokenType == utils.TokenTypeAccess {
		session.AccessToken = token
	} else {
		session.RefreshToken = token
	}
	return session, nil
}

// Refresh 轮换令牌：旧会话吊销，签发新会话
func (a *AuthContext) Refresh(ctx context.Context, refreshToken string) (*entity.Session, error) {
	const op = "Refresh"

	current, err := a.restore(ctx, op, refreshToken, utils.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	if err := a.sessions.RevokeSession(ctx, current.Identity.ID, current.ID); err != nil {
		return nil, newError(KindNetworkFailure, op, err)
	}
	session, err := a.issue(ctx, current.Identity)
	if err != nil {
		return nil, newError(KindNetworkFailure, op, err)
	}
	return session, nil
}

// SignOut 吊销当前用户的全部会话并通知订阅方
func (a *AuthContext) SignOut(ctx context.Context) error {
	const op = "SignOut"

	session, ok := SessionFromContext(ctx)
	if !ok {
		return newError(KindUnauthenticated, op, nil)
	}
	revoked, err := a.sessions.RevokeUser(ctx, session.Identity.ID)
	if err != nil {
		return newError(KindNetworkFailure, op, err)
	}

	logger.Info(ctx, "user signed out", "user_id", session.Identity.ID, "revoked_sessions", revoked)
	a.emit(ctx, &entity.SessionEvent{
		Type:   entity.SessionEventSignedOut,
		UserID: session.Identity.ID,
	})
	return nil
}

// OnSessionChanged 注册会话变更监听：立即以恢复的会话回调一次，之后每次登录登出再回调。
// ctx 结束时订阅自动释放
func (a *AuthContext) OnSessionChanged(ctx context.Context, key SubscriptionKey, callback func(*entity.SessionEvent)) (*Subscription, error) {
	identity, signedIn := a.CurrentIdentity(ctx)
	if signedIn && key.UserID == "" {
		key.UserID = identity.ID
	}
	if key.UserID == "" && key.ClientKey == "" {
		return nil, newError(KindUnauthenticated, "OnSessionChanged", errors.New("no session or client key"))
	}

	sub := a.broker.Subscribe(key, callback)
	go func() {
		select {
		case <-ctx.Done():
			sub.Cancel()
		case <-sub.Done():
		}
	}()

	restored := &entity.SessionEvent{
		Type:       entity.SessionEventRestored,
		UserID:     key.UserID,
		ClientKey:  key.ClientKey,
		OccurredAt: a.now(),
	}
	if signedIn {
		restored.Identity = identity
	}
	sub.prime(restored)
	return sub, nil
}

// HandleRemote 投递其他实例广播的事件
func (a *AuthContext) HandleRemote(ctx context.Context, event *entity.SessionEvent) {
	if event == nil || event.Origin == a.cfg.InstanceID {
		return
	}
	n := a.broker.Dispatch(event)
	logger.Debug(ctx, "remote session event dispatched", "type", event.Type, "subscribers", n)
}

func (a *AuthContext) emit(ctx context.Context, event *entity.SessionEvent) {
	event.OccurredAt = a.now()
	event.Origin = a.cfg.InstanceID
	metrics.SessionEventsTotal.WithLabelValues(string(event.Type)).Inc()

	a.broker.Dispatch(event)
	if a.bus == nil {
		return
	}
	if err := a.bus.Publish(ctx, event); err != nil {
		logger.Warn(ctx, "failed to broadcast session event", "type", event.Type, "error", err.Error())
	}
}
