// Package wire 提供依赖注入配置
package wire

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/wire"

	"site-gen-ai-api/internal/application/auth"
	"site-gen-ai-api/internal/application/generation"
	"site-gen-ai-api/internal/application/reconcile"
	"site-gen-ai-api/internal/config"
	"site-gen-ai-api/internal/domain/repository"
	"site-gen-ai-api/internal/domain/service"
	"site-gen-ai-api/internal/infrastructure/backend"
	"site-gen-ai-api/internal/infrastructure/deploy"
	"site-gen-ai-api/internal/infrastructure/messaging"
	"site-gen-ai-api/internal/infrastructure/persistence/postgres"
	"site-gen-ai-api/internal/infrastructure/persistence/redis"
	"site-gen-ai-api/internal/interfaces/http/handler"
	"site-gen-ai-api/internal/interfaces/http/middleware"
	"site-gen-ai-api/internal/interfaces/http/router"
	"site-gen-ai-api/pkg/utils"
)

// App API 网关运行所需的组件
type App struct {
	Router       *router.Router
	Auth         *auth.AuthContext
	SessionBus   *redis.SessionEventBus
	Orchestrator *generation.Orchestrator
}

// Worker 对账进程运行所需的组件
type Worker struct {
	Consumer   *messaging.Consumer
	Reconciler *reconcile.Reconciler
}

// PostgresSet PostgreSQL 提供者集合
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewGenerationRequestRepository,
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewCache,
	redis.NewRateLimiter,
	redis.NewSessionStore,
	redis.NewSessionEventBus,
	wire.Bind(new(middleware.RateLimiter), new(*redis.RateLimiter)),
)

// RepoSet 生成记录仓储：PostgreSQL 外包一层读缓存
var RepoSet = wire.NewSet(
	PostgresSet,
	ProvideGenerationRepository,
)

// MessagingSet 消息队列提供者集合
var MessagingSet = wire.NewSet(
	ProvideMessagingProducer,
	wire.Bind(new(generation.Reconciler), new(*messaging.Producer)),
)

// AuthSet 登录会话提供者集合
var AuthSet = wire.NewSet(
	ProvideBackendClient,
	ProvideJWTManager,
	auth.NewBroker,
	ProvideAuthContext,
)

// GenerationSet 生成编排提供者集合
var GenerationSet = wire.NewSet(
	ProvideDeploymentProvider,
	ProvideOrchestrator,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideAuthHandler,
	ProvideHealthHandler,
	handler.NewGenerationHandler,
	handler.NewTemplateHandler,
	wire.Bind(new(handler.GenerationService), new(*generation.Orchestrator)),
	wire.Struct(new(router.Handlers), "*"),
	ProvideMiddlewares,
	router.New,
)

// WorkerSet 对账进程提供者集合
var WorkerSet = wire.NewSet(
	ProvideConsumer,
	reconcile.NewReconciler,
)

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideGenerationRepository 提供带缓存的生成记录仓储
func ProvideGenerationRepository(inner *postgres.GenerationRequestRepository, cache *redis.Cache, cfg *config.Config) repository.GenerationRequestRepository {
	return redis.NewCachedGenerationRequestRepository(inner, cache, cfg.Cache.GenerationTTL)
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	return messaging.NewProducer(redisClient.Redis(), int64(maxLen))
}

// ProvideBackendClient 提供认证后端客户端
func ProvideBackendClient(cfg *config.Config) (*backend.Client, func(), error) {
	client, err := backend.NewClient(backend.Config{
		URL:       cfg.Backend.URL,
		PublicKey: cfg.Backend.PublicKey,
		Timeout:   cfg.Backend.Timeout,
	}, nil)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

// ProvideJWTManager 提供会话令牌签发器
func ProvideJWTManager(cfg *config.Config) *utils.JWTManager {
	return utils.NewJWTManager(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer)
}

// ProvideAuthContext 提供登录会话上下文
func ProvideAuthContext(cfg *config.Config, client *backend.Client, sessions *redis.SessionStore, jwt *utils.JWTManager, broker *auth.Broker, bus *redis.SessionEventBus) *auth.AuthContext {
	return auth.NewAuthContext(auth.Config{
		Providers:              cfg.Auth.Providers,
		CallbackURL:            callbackURL(cfg),
		StateTTL:               cfg.Auth.StateTTL,
		DefaultRedirect:        cfg.Auth.DefaultRedirect,
		AllowedRedirectOrigins: cfg.Auth.AllowedRedirectOrigins,
		AccessTTL:              cfg.Security.JWT.Expiration,
		RefreshTTL:             cfg.Security.JWT.RefreshExpiration,
	}, client, sessions, jwt, broker, bus)
}

func callbackURL(cfg *config.Config) string {
	path := cfg.Auth.CallbackPath
	if path == "" {
		path = "/auth/callback"
	}
	return strings.TrimRight(cfg.Auth.PublicBaseURL, "/") + path
}

// ProvideDeploymentProvider 按配置选择部署提供方
func ProvideDeploymentProvider(cfg *config.Config) service.DeploymentProvider {
	if cfg.Deploy.Provider == config.DeployProviderHTTP {
		return deploy.NewHTTPProvider(deploy.HTTPConfig{
			Endpoint: cfg.Deploy.HTTP.Endpoint,
			Token:    cfg.Deploy.HTTP.Token,
		}, nil)
	}
	return deploy.NewSimulatedProvider(deploy.SimulatedConfig{
		Delay:       cfg.Deploy.Simulated.Delay,
		FailureRate: cfg.Deploy.Simulated.FailureRate,
		Domain:      cfg.Deploy.Simulated.Domain,
	})
}

// ProvideOrchestrator 提供生成编排器
func ProvideOrchestrator(cfg *config.Config, identities *auth.AuthContext, store repository.GenerationRequestRepository, provider service.DeploymentProvider, reconciler generation.Reconciler) *generation.Orchestrator {
	return generation.NewOrchestrator(identities, store, provider, reconciler, generation.Config{
		ProviderName:  cfg.Deploy.Provider,
		DeployTimeout: cfg.Deploy.Timeout,
	})
}

// ProvideAuthHandler 提供认证处理器
func ProvideAuthHandler(cfg *config.Config, authCtx *auth.AuthContext) *handler.AuthHandler {
	return handler.NewAuthHandler(authCtx, handler.AuthHandlerConfig{
		RefreshCookieName: cfg.Auth.RefreshCookieName,
		SecureCookie:      cfg.Auth.SecureCookie,
		RefreshTTL:        cfg.Security.JWT.RefreshExpiration,
		DefaultRedirect:   cfg.Auth.DefaultRedirect,
	})
}

// ProvideHealthHandler 提供健康检查处理器，认证后端不可达只降级
func ProvideHealthHandler(cfg *config.Config, pg *postgres.Client, rc *redis.Client, client *backend.Client) *handler.HealthHandler {
	return handler.NewHealthHandler(cfg.App.Version,
		handler.NamedChecker{Name: "postgres", Checker: pg},
		handler.NamedChecker{Name: "redis", Checker: rc},
		handler.NamedChecker{Name: "backend", Checker: client, Optional: true},
	)
}

// ProvideMiddlewares 提供路由级中间件
func ProvideMiddlewares(cfg *config.Config, authCtx *auth.AuthContext, limiter middleware.RateLimiter) router.Middlewares {
	return router.Middlewares{
		Auth:         middleware.Auth(authCtx),
		OptionalAuth: middleware.OptionalAuth(authCtx),
		SubmitRateLimit: middleware.RateLimit(middleware.RateLimitConfig{
			Enabled: cfg.Security.RateLimit.Enabled,
			Limit:   cfg.Security.RateLimit.Limit,
			Window:  cfg.Security.RateLimit.Window,
			Scope:   "generation_submit",
		}, limiter),
	}
}

// ProvideConsumer 提供对账流消费者
func ProvideConsumer(cfg *config.Config, redisClient *redis.Client) *messaging.Consumer {
	stream := cfg.Messaging.RedisStream
	return messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamGenerationReconcile,
		Group:         messaging.ConsumerGroupReconciler,
		ConsumerName:  consumerName(),
		BlockTimeout:  stream.BlockTimeout,
		ClaimInterval: stream.ClaimInterval,
		RetryLimit:    stream.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    stream.RetryBackoff.Initial,
			Max:        stream.RetryBackoff.Max,
			Multiplier: stream.RetryBackoff.Multiplier,
		},
	})
}

func consumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "reconciler"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
