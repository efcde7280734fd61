// internal/pkg/cache/cache.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"bookstore/internal/pkg/logger"
)

// Cache 是一个基于 Redis 的读穿缓存：命中直接返回，
// 未命中时执行 compute 并以 TTL 写回。缓存故障一律降级为直接计算，
// 绝不让缓存问题影响业务路径。
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

// GetOrCompute 取出 key 对应的 JSON 值解码到 out；未命中时调用 compute，
// 把结果写回缓存并解码进 out。
func (c *Cache) GetOrCompute(ctx context.Context, key string, out any, compute func(ctx context.Context) (any, error)) error {
	if c.rdb != nil {
		raw, err := c.rdb.Get(ctx, key).Bytes()
		if err == nil {
			if jsonErr := json.Unmarshal(raw, out); jsonErr == nil {
				return nil
			}
			// 缓存里的值解不开就当未命中处理
		} else if !errors.Is(err, redis.Nil) {
			logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache read failed, falling through")
		}
	}

	value, err := compute(ctx)
	if err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return json.Unmarshal(data, out)
}
