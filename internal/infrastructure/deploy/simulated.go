// Package deploy 提供站点部署提供方实现
package deploy

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"site-gen-ai-api/internal/domain/entity"
	"site-gen-ai-api/internal/domain/service"
	"site-gen-ai-api/pkg/logger"
)

const simulatedProviderName = "simulated"

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// SimulatedConfig 模拟部署配置
type SimulatedConfig struct {
	Delay       time.Duration
	FailureRate float64
	Domain      string
}

// SimulatedProvider 模拟部署，等待固定时长后返回随机子域名地址
type SimulatedProvider struct {
	cfg   SimulatedConfig
	float func() float64
	intn  func(int) int
}

// NewSimulatedProvider 创建模拟部署提供方
func NewSimulatedProvider(cfg SimulatedConfig) *SimulatedProvider {
	if cfg.Domain == "" {
		cfg.Domain = "netlify.app"
	}
	return &SimulatedProvider{
		cfg:   cfg,
		float: rand.Float64,
		intn:  rand.IntN,
	}
}

var _ service.DeploymentProvider = (*SimulatedProvider)(nil)

// Deploy 实现 service.DeploymentProvider
func (p *SimulatedProvider) Deploy(ctx context.Context, prompt string, template entity.Template) (string, error) {
	if p.cfg.Delay > 0 {
		timer := time.NewTimer(p.cfg.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", service.NewDeployError(simulatedProviderName, ctx.Err())
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return "", service.NewDeployError(simulatedProviderName, err)
	}

	if p.cfg.FailureRate > 0 && p.float() < p.cfg.FailureRate {
		return "", service.NewDeployError(simulatedProviderName, errors.New("simulated build failure"))
	}

	url := fmt.Sprintf("https://demo-%s.%s", p.randomID(6), p.cfg.Domain)
	logger.Debug(ctx, "simulated deployment finished",
		"template", string(template),
		"prompt_chars", len(prompt),
		"url", url,
	)
	return url, nil
}

func (p *SimulatedProvider) randomID(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(idAlphabet[p.intn(len(idAlphabet))])
	}
	return b.String()
}
