package deploy

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

	"site-gen-ai-api/internal/domain/entity"
	"site-gen-ai-api/internal/domain/service"
)

const httpProviderName = "http"

// HTTPConfig Webhook 部署配置
type HTTPConfig struct {
	Endpoint string
	Token    string
}

// HTTPProvider 通过 Webhook 调用外部构建流水线
type HTTPProvider struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

type deployRequest struct {
	Prompt   string `json:"prompt"`
	Template string `json:"template"`
}

type deployResponse struct {
	URL   string `json:"url"`
	Error string `json:"error,omitempty"`
}

// NewHTTPProvider 创建 Webhook 部署提供方
// 超时由调用方的 context 控制
func NewHTTPProvider(cfg HTTPConfig, httpClient *http.Client) *HTTPProvider {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPProvider{
		endpoint:   strings.TrimSpace(cfg.Endpoint),
		token:      cfg.Token,
		httpClient: httpClient,
	}
}

var _ service.DeploymentProvider = (*HTTPProvider)(nil)

// Deploy 实现 service.DeploymentProvider
func (p *HTTPProvider) Deploy(ctx context.Context, prompt string, template entity.Template) (string, error) {
	body, err := json.Marshal(deployRequest{Prompt: prompt, Template: string(template)})
	if err != nil {
		return "", service.NewDeployError(httpProviderName, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", service.NewDeployError(httpProviderName, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		// 客户端超时与 context 超时都按 Timeout 处理
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, urlErr)
		}
		return "", service.NewDeployError(httpProviderName, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", service.NewDeployError(httpProviderName, err)
	}

	var out deployResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := out.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return "", service.NewDeployError(httpProviderName, fmt.Errorf("webhook status %d: %s", resp.StatusCode, msg))
	}

	if decodeErr != nil {
		return "", service.NewDeployError(httpProviderName, fmt.Errorf("decode webhook response: %w", decodeErr))
	}

	siteURL := strings.TrimSpace(out.URL)
	if siteURL == "" {
		return "", service.NewDeployError(httpProviderName, errors.New("webhook response missing url"))
	}
	if parsed, err := url.ParseRequestURI(siteURL); err != nil || parsed.Host == "" {
		return "", service.NewDeployError(httpProviderName, fmt.Errorf("webhook returned invalid url %q", siteURL))
	}

	return siteURL, nil
}
