// Package backend 提供托管认证后端的 HTTP 客户端
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"site-gen-ai-api/pkg/tracer"
)

// APIError 后端返回的非 2xx 响应
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("backend status=%d: %s", e.StatusCode, e.Message)
}

// Config 后端客户端配置
type Config struct {
	URL       string
	PublicKey string
	Timeout   time.Duration
}

// Client 认证后端客户端，进程启动时创建，关闭时释放连接
type Client struct {
	baseURL    string
	publicKey  string
	httpClient *http.Client
}

// User 后端用户信息
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	AppMetadata struct {
		Provider string `json:"provider"`
	} `json:"app_metadata"`
}

// TokenResponse PKCE 换取结果
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         User   `json:"user"`
}

// Settings 后端公开设置，External 标记各登录提供方是否启用
type Settings struct {
	External map[string]bool `json:"external"`
}

// NewClient 创建后端客户端
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, errors.New("backend url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	if strings.TrimSpace(cfg.PublicKey) == "" {
		return nil, errors.New("backend public key is required")
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 8 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    base,
		publicKey:  cfg.PublicKey,
		httpClient: httpClient,
	}, nil
}

// AuthorizeURL 构造第三方登录跳转地址
func (c *Client) AuthorizeURL(provider, redirectTo, codeChallenge string) string {
	q := url.Values{}
	q.Set("provider", provider)
	q.Set("redirect_to", redirectTo)
	if codeChallenge != "" {
		q.Set("code_challenge", codeChallenge)
		q.Set("code_challenge_method", "s256")
	}
	return c.baseURL + "/auth/v1/authorize?" + q.Encode()
}

// Settings 获取后端启用的登录提供方
func (c *Client) Settings(ctx context.Context) (*Settings, error) {
	ctx, span := tracer.Start(ctx, "backend.Settings")
	defer span.End()

	var out Settings
	if err := c.do(ctx, http.MethodGet, "/auth/v1/settings", nil, "", &out); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	return &out, nil
}

// ExchangeCode 使用授权码与 code_verifier 换取用户会话
func (c *Client) ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*TokenResponse, error) {
	ctx, span := tracer.Start(ctx, "backend.ExchangeCode")
	defer span.End()

	payload := map[string]string{
		"auth_code":     authCode,
		"code_verifier": codeVerifier,
	}
	var out TokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=pkce", payload, "", &out); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	if out.User.ID == "" && out.AccessToken != "" {
		user, err := c.GetUser(ctx, out.AccessToken)
		if err != nil {
			return nil, err
		}
		out.User = *user
	}
	if out.User.ID == "" {
		err := &APIError{StatusCode: http.StatusBadGateway, Message: "token response missing user"}
		tracer.RecordError(span, err)
		return nil, err
	}
	return &out, nil
}

// GetUser 获取访问令牌对应的用户
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	ctx, span := tracer.Start(ctx, "backend.GetUser")
	defer span.End()

	var out User
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", nil, accessToken, &out); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	return &out, nil
}

// HealthCheck 检查后端可达
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/auth/v1/health", nil, "", nil)
}

// Close 释放空闲连接
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) do(ctx context.Context, method, path string, payload any, bearer string, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.publicKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer == "" {
		bearer = c.publicKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode backend response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Code             any    `json:"code"`
		ErrorCode        string `json:"error_code"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
	}
	_ = json.Unmarshal(raw, &body)

	apiErr := &APIError{StatusCode: resp.StatusCode, Code: body.ErrorCode}
	if apiErr.Code == "" {
		apiErr.Code = body.Error
	}
	for _, msg := range []string{body.ErrorDescription, body.Msg, body.Message} {
		if msg != "" {
			apiErr.Message = msg
			break
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
