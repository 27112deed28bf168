// Package config 提供配置加载和管理功能
package config

import (
	"fmt"
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Messaging     MessagingConfig     `yaml:"messaging" mapstructure:"messaging"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
	Backend       BackendConfig       `yaml:"backend" mapstructure:"backend"`
	Auth          AuthConfig          `yaml:"auth" mapstructure:"auth"`
	Deploy        DeployConfig        `yaml:"deploy" mapstructure:"deploy"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
	// GenerationTTL 生成记录读缓存过期时间
	GenerationTTL time.Duration `yaml:"generation_ttl" mapstructure:"generation_ttl"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// MessagingConfig 消息队列配置
type MessagingConfig struct {
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
}

// RedisStreamConfig Redis Stream 配置
type RedisStreamConfig struct {
	MaxLen        int           `yaml:"max_len" mapstructure:"max_len"`
	BlockTimeout  time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`
	ClaimInterval time.Duration `yaml:"claim_interval" mapstructure:"claim_interval"`
	RetryLimit    int           `yaml:"retry_limit" mapstructure:"retry_limit"`
	RetryBackoff  BackoffConfig `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial" mapstructure:"initial"`
	Max        time.Duration `yaml:"max" mapstructure:"max"`
	Multiplier float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt" mapstructure:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" mapstructure:"cors"`
}

// JWTConfig JWT 配置
type JWTConfig struct {
	Secret            string        `yaml:"secret" mapstructure:"secret"`
	Issuer            string        `yaml:"issuer" mapstructure:"issuer"`
	Expiration        time.Duration `yaml:"expiration" mapstructure:"expiration"`
	RefreshExpiration time.Duration `yaml:"refresh_expiration" mapstructure:"refresh_expiration"`
}

// RateLimitConfig 限流配置，按用户对提交接口做滑动窗口限流
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Limit   int           `yaml:"limit" mapstructure:"limit"`
	Window  time.Duration `yaml:"window" mapstructure:"window"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}

// BackendConfig 托管认证后端配置
type BackendConfig struct {
	URL       string        `yaml:"url" mapstructure:"url"`
	PublicKey string        `yaml:"public_key" mapstructure:"public_key"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// AuthConfig 登录流程配置
type AuthConfig struct {
	Providers []string `yaml:"providers" mapstructure:"providers"`
	// PublicBaseURL 本服务对外地址，用于拼接回调地址
	PublicBaseURL          string        `yaml:"public_base_url" mapstructure:"public_base_url"`
	CallbackPath           string        `yaml:"callback_path" mapstructure:"callback_path"`
	StateTTL               time.Duration `yaml:"state_ttl" mapstructure:"state_ttl"`
	DefaultRedirect        string        `yaml:"default_redirect" mapstructure:"default_redirect"`
	AllowedRedirectOrigins []string      `yaml:"allowed_redirect_origins" mapstructure:"allowed_redirect_origins"`
	RefreshCookieName      string        `yaml:"refresh_cookie_name" mapstructure:"refresh_cookie_name"`
	SecureCookie           bool          `yaml:"secure_cookie" mapstructure:"secure_cookie"`
}

// DeployConfig 站点部署配置
type DeployConfig struct {
	Provider  string                `yaml:"provider" mapstructure:"provider"`
	Timeout   time.Duration         `yaml:"timeout" mapstructure:"timeout"`
	Simulated SimulatedDeployConfig `yaml:"simulated" mapstructure:"simulated"`
	HTTP      HTTPDeployConfig      `yaml:"http" mapstructure:"http"`
}

// SimulatedDeployConfig 模拟部署配置
type SimulatedDeployConfig struct {
	Delay       time.Duration `yaml:"delay" mapstructure:"delay"`
	FailureRate float64       `yaml:"failure_rate" mapstructure:"failure_rate"`
	Domain      string        `yaml:"domain" mapstructure:"domain"`
}

// HTTPDeployConfig Webhook 部署配置
type HTTPDeployConfig struct {
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	Token    string `yaml:"token" mapstructure:"token"`
}

// 部署提供方名称
const (
	DeployProviderSimulated = "simulated"
	DeployProviderHTTP      = "http"
)

// Validate 校验启动必需的配置项
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	if c.Backend.PublicKey == "" {
		return fmt.Errorf("backend.public_key is required")
	}
	if c.Security.JWT.Secret == "" {
		return fmt.Errorf("security.jwt.secret is required")
	}
	switch c.Deploy.Provider {
	case DeployProviderSimulated:
		if c.Deploy.Simulated.FailureRate < 0 || c.Deploy.Simulated.FailureRate > 1 {
			return fmt.Errorf("deploy.simulated.failure_rate must be within [0,1], got %v", c.Deploy.Simulated.FailureRate)
		}
	case DeployProviderHTTP:
		if c.Deploy.HTTP.Endpoint == "" {
			return fmt.Errorf("deploy.http.endpoint is required for the http provider")
		}
	default:
		return fmt.Errorf("unknown deploy.provider %q", c.Deploy.Provider)
	}
	return nil
}
