// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"site-gen-ai-api/internal/application/auth"
	"site-gen-ai-api/internal/domain/entity"
	"site-gen-ai-api/internal/interfaces/http/dto"
	"site-gen-ai-api/pkg/errors"
	"site-gen-ai-api/pkg/logger"
)

// AuthService 登录会话上下文
type AuthService interface {
	CurrentIdentity(ctx context.Context) (*entity.Identity, bool)
	SignIn(ctx context.Context, provider, redirectTo string) (string, error)
	CompleteSignIn(ctx context.Context, state, code string) (*auth.SignInResult, error)
	Refresh(ctx context.Context, refreshToken string) (*entity.Session, error)
	SignOut(ctx context.Context) error
	OnSessionChanged(ctx context.Context, key auth.SubscriptionKey, callback func(*entity.SessionEvent)) (*auth.Subscription, error)
}

// AuthHandlerConfig 认证处理器配置
type AuthHandlerConfig struct {
	RefreshCookieName string
	// CookiePath 刷新 Cookie 只随认证接口发送
	CookiePath      string
	SecureCookie    bool
	RefreshTTL      time.Duration
	DefaultRedirect string
	// KeepAlive SSE 心跳间隔
	KeepAlive time.Duration
}

// AuthHandler 认证处理器
type AuthHandler struct {
	svc AuthService
	cfg AuthHandlerConfig
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(svc AuthService, cfg AuthHandlerConfig) *AuthHandler {
	if cfg.RefreshCookieName == "" {
		cfg.RefreshCookieName = "refresh_token"
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/v1/auth"
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 25 * time.Second
	}
	return &AuthHandler{svc: svc, cfg: cfg}
}

const maxClientKeyLength = 64

func clientKey(c *gin.Context) string {
	key := strings.TrimSpace(c.Query("client_key"))
	if len(key) > maxClientKeyLength {
		return ""
	}
	return key
}

// SignIn 发起第三方登录
// @Summary 第三方登录
// @Description 跳转到 GitHub / GitLab 授权页；mode=json 时返回跳转地址
// @Tags Auth
// @Param provider path string true "github 或 gitlab"
// @Param redirect_to query string false "登录完成后的前端地址"
// @Param client_key query string false "登录前订阅会话事件所用的客户端标识"
// @Success 302
// @Failure 403 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /v1/auth/signin/{provider} [get]
func (h *AuthHandler) SignIn(c *gin.Context) {
	ctx := c.Request.Context()
	if key := clientKey(c); key != "" {
		ctx = auth.WithClientKey(ctx, key)
	}

	authorizeURL, err := h.svc.SignIn(ctx, c.Param("provider"), c.Query("redirect_to"))
	if err != nil {
		writeError(c, err)
		return
	}

	if c.Query("mode") == "json" {
		dto.Success(c, &dto.SignInResponse{AuthorizeURL: authorizeURL})
		return
	}
	c.Redirect(http.StatusFound, authorizeURL)
}

// Callback 登录回调：签发会话，写入刷新 Cookie，并把访问令牌放在跳转地址的片段中
// @Summary 登录回调
// @Tags Auth
// @Param state query string true "握手状态"
// @Param code query string true "授权码"
// @Success 302
// @Router /auth/callback [get]
func (h *AuthHandler) Callback(c *gin.Context) {
	if reason := c.Query("error"); reason != "" {
		desc := c.Query("error_description")
		logger.Warn(c.Request.Context(), "sign-in rejected by provider", "error", reason, "description", desc)
		h.failCallback(c, errors.ErrProviderRejected.WithDetail(firstNonEmpty(desc, reason)))
		return
	}

	result, err := h.svc.CompleteSignIn(c.Request.Context(), c.Query("state"), c.Query("code"))
	if err != nil {
		logger.Warn(c.Request.Context(), "sign-in callback failed", "error", err.Error())
		h.failCallback(c, toAppError(err))
		return
	}

	h.setRefreshCookie(c, result.Session.RefreshToken, h.cfg.RefreshTTL)

	fragment := url.Values{}
	fragment.Set("access_token", result.Session.AccessToken)
	fragment.Set("token_type", "bearer")
	fragment.Set("expires_at", strconv.FormatInt(result.Session.AccessExpiresAt.Unix(), 10))
	c.Redirect(http.StatusFound, withFragment(result.RedirectTo, fragment))
}

// failCallback 浏览器回调失败时尽量跳回前端，由前端展示错误
func (h *AuthHandler) failCallback(c *gin.Context, appErr *errors.AppError) {
	if h.cfg.DefaultRedirect == "" {
		dto.Fail(c, appErr)
		return
	}
	fragment := url.Values{}
	fragment.Set("error", string(appErr.Code))
	fragment.Set("error_description", firstNonEmpty(appErr.Detail, appErr.Message))
	c.Redirect(http.StatusFound, withFragment(h.cfg.DefaultRedirect, fragment))
}

func withFragment(target string, fragment url.Values) string {
	base, _, _ := strings.Cut(target, "#")
	return base + "#" + fragment.Encode()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, token string, ttl time.Duration) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.RefreshCookieName, token, int(ttl.Seconds()), h.cfg.CookiePath, "", h.cfg.SecureCookie, true)
}

// Refresh 轮换令牌
// @Summary 刷新令牌
// @Tags Auth
// @Produce json
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Failure 401 {object} dto.ErrorResponse
// @Router /v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	token, err := c.Cookie(h.cfg.RefreshCookieName)
	if err != nil || token == "" {
		var req dto.RefreshRequest
		if bindErr := c.ShouldBindJSON(&req); bindErr == nil {
			token = req.RefreshToken
		}
	}
	if token == "" {
		dto.Fail(c, errors.ErrTokenMissing)
		return
	}

	session, err := h.svc.Refresh(c.Request.Context(), token)
	if err != nil {
		writeError(c, err)
		return
	}

	h.setRefreshCookie(c, session.RefreshToken, h.cfg.RefreshTTL)
	dto.Success(c, dto.ToSessionResponse(session))
}

// SignOut 登出并吊销会话
// @Summary 登出
// @Tags Auth
// @Success 204
// @Failure 401 {object} dto.ErrorResponse
// @Router /v1/auth/signout [post]
func (h *AuthHandler) SignOut(c *gin.Context) {
	if err := h.svc.SignOut(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	h.setRefreshCookie(c, "", -time.Second)
	dto.NoContent(c)
}

// Session 当前会话状态
// @Summary 当前会话
// @Tags Auth
// @Produce json
// @Success 200 {object} dto.Response[dto.SessionStateResponse]
// @Router /v1/auth/session [get]
func (h *AuthHandler) Session(c *gin.Context) {
	identity, ok := h.svc.CurrentIdentity(c.Request.Context())
	dto.Success(c, &dto.SessionStateResponse{
		Authenticated: ok,
		User:          dto.ToUserDTO(identity),
	})
}
