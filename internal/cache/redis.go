package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"btc-market-feed/pkg/types"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisBackend 基于 Redis 的缓存，多个进程可共享同一份行情缓存
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend 连接 Redis 并测试连通性
func NewRedisBackend(redisConfig types.RedisConfig) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisConfig.URL,
		Password: redisConfig.Password,
		DB:       redisConfig.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Redis连接失败: %w", err)
	}
	zap.L().Info("✅ Redis连接成功", zap.String("addr", redisConfig.URL))

	return &RedisBackend{client: client, prefix: "btcfeed:"}, nil
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set 使用 SET EX 写入，过期由 Redis 负责
func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, r.prefix+key, value, ttl).Err()
}

// Close 关闭连接
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
