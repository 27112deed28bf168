package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

var cacheTracer = otel.Tracer("redis.cache")

// Loader 缓存未命中时的回源函数
//
// cacheable 为 false 的结果照常返回给调用方但不写入缓存，
// 用于尚在变化中的记录。
type Loader func(ctx context.Context) (value any, cacheable bool, err error)

// Cache JSON 读穿缓存，同一个键的并发回源合并为一次
type Cache struct {
	client *Client
	group  singleflight.Group
}

func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

// Fetch 读取 key 并解码到 dst
//
// Redis 故障返回 *CacheError，调用方可据此降级；loader 的错误原样返回。
// 无法解码的缓存条目视为未命中并被删除。
func (c *Cache) Fetch(ctx context.Context, key string, ttl time.Duration, dst any, load Loader) error {
	ctx, span := cacheTracer.Start(ctx, "cache.Fetch",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	raw, err := c.client.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if json.Unmarshal(raw, dst) == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return nil
		}
		_ = c.client.rdb.Del(ctx, key).Err()
	case !IsNil(err):
		span.RecordError(err)
		return &CacheError{Op: "get", Err: err}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	v, err, shared := c.group.Do(key, func() (any, error) {
		value, cacheable, err := load(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode cache entry: %w", err)
		}
		if cacheable {
			if err := c.client.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
				// 写缓存失败不影响本次读取
				span.RecordError(err)
			}
		}
		return data, nil
	})
	span.SetAttributes(attribute.Bool("cache.shared", shared))
	if err != nil {
		return err
	}
	return json.Unmarshal(v.([]byte), dst)
}

// Invalidate 删除缓存条目
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	ctx, span := cacheTracer.Start(ctx, "cache.Invalidate",
		trace.WithAttributes(attribute.Int("cache.key_count", len(keys))))
	defer span.End()

	if err := c.client.rdb.Del(ctx, keys...).Err(); err != nil {
		span.RecordError(err)
		return &CacheError{Op: "invalidate", Err: err}
	}
	return nil
}

// CacheError Redis 自身故障，区别于 loader 返回的业务错误
type CacheError struct {
	Op  string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}
