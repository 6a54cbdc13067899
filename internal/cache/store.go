// Package cache 提供控制台的缓存管理：查看状态、读写与删除键、清空以及列出键。
// 存储通过 Store 接口抽象，生产环境使用 Redis。
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oriys/localcloud/internal/domain"
)

// Store 缓存存储
type Store interface {
	Ping(ctx context.Context) error
	// Info 返回服务端信息文本（INFO server 段）
	Info(ctx context.Context) (string, error)
	Size(ctx context.Context) (int64, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get 在键不存在时返回 domain.ErrCacheKeyNotFound
	Get(ctx context.Context, key string) (string, error)
	// Del 返回实际删除的键数量
	Del(ctx context.Context, key string) (int64, error)
	Flush(ctx context.Context) error
	Keys(ctx context.Context, pattern string) ([]string, error)
	Close() error
}

// RedisOptions Redis 连接参数
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// DialTimeout 为 0 时使用 3 秒
	DialTimeout time.Duration
}

// RedisStore 基于 Redis 的缓存存储
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 创建 Redis 存储。连接是惰性的，创建本身不会失败。
func NewRedisStore(opts RedisOptions) *RedisStore {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 3 * time.Second
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:         opts.Addr,
			Password:     opts.Password,
			DB:           opts.DB,
			DialTimeout:  opts.DialTimeout,
			ReadTimeout:  opts.DialTimeout,
			WriteTimeout: opts.DialTimeout,
		}),
	}
}

// Ping 实现 Store
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Info 实现 Store
func (s *RedisStore) Info(ctx context.Context) (string, error) {
	return s.client.Info(ctx, "server").Result()
}

// Size 实现 Store
func (s *RedisStore) Size(ctx context.Context) (int64, error) {
	return s.client.DBSize(ctx).Result()
}

// Set 实现 Store
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Get 实现 Store
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: %s", domain.ErrCacheKeyNotFound, key)
	}
	return val, err
}

// Del 实现 Store
func (s *RedisStore) Del(ctx context.Context, key string) (int64, error) {
	return s.client.Del(ctx, key).Result()
}

// Flush 实现 Store，只清空当前 DB
func (s *RedisStore) Flush(ctx context.Context) error {
	return s.client.FlushDB(ctx).Err()
}

// Keys 实现 Store。使用 SCAN 迭代，避免 KEYS 阻塞服务端。
func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	keys := []string{}
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// Close 实现 Store
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
