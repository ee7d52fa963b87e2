// Package cache 提供按 TTL 过期的请求结果缓存。
//
// 值以 JSON 形式保存在 Backend 中，每次命中都会解码出一份新的副本，
// 调用方拿到的结果互不共享。过期条目不会在后台刷新，由下一个调用方同步重新加载；
// 同一个 key 的并发加载只会真正执行一次。
package cache

import (
	"context"
	"encoding/json"
	"time"

	"btc-market-feed/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Backend 缓存存储
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache 进程级缓存，通常每个进程只创建一个
type Cache struct {
	backend Backend
	group   singleflight.Group
	metrics *metrics.Metrics
}

// New 创建缓存，m 可以为 nil
func New(backend Backend, m *metrics.Metrics) *Cache {
	return &Cache{backend: backend, metrics: m}
}

// Remember 命中则返回缓存值，否则调用 load 并按 ttl 缓存其结果；load 失败时不缓存。
// c 为 nil 或 ttl 不为正时直接调用 load。
func Remember[T any](ctx context.Context, c *Cache, namespace, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if c == nil || ttl <= 0 {
		return load(ctx)
	}

	fullKey := namespace + ":" + key

	if raw, ok := c.lookup(ctx, namespace, fullKey); ok {
		var cached T
		err := json.Unmarshal(raw, &cached)
		if err == nil {
			return cached, nil
		}
		zap.L().Warn("⚠️ 缓存数据解码失败，重新加载", zap.String("key", fullKey), zap.Error(err))
	}

	raw, err, _ := c.group.Do(fullKey, func() (interface{}, error) {
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := c.backend.Set(ctx, fullKey, encoded, ttl); err != nil {
			zap.L().Warn("⚠️ 写入缓存失败", zap.String("key", fullKey), zap.Error(err))
		}
		return encoded, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	var out T
	if err := json.Unmarshal(raw.([]byte), &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func (c *Cache) lookup(ctx context.Context, namespace, key string) ([]byte, bool) {
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		zap.L().Warn("⚠️ 读取缓存失败，按未命中处理", zap.String("key", key), zap.Error(err))
		ok = false
	}
	c.metrics.ObserveCache(namespace, ok)
	return raw, ok
}
