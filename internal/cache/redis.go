package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisProvider 基于 Redis 的缓存，值以 JSON 存储
type RedisProvider struct {
	rdb     *redis.Client
	timeout time.Duration
}

// NewRedisProvider 使用已有客户端创建缓存
func NewRedisProvider(rdb *redis.Client) *RedisProvider {
	return &RedisProvider{rdb: rdb, timeout: 3 * time.Second}
}

// InitRedis 按环境变量连接 Redis，REDIS_ADDR 为空时返回 nil
func InitRedis(ctx context.Context) (*RedisProvider, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return nil, nil
	}
	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	})

	// 测试连接
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("Redis连接失败: %w", err)
	}

	log.Info().Str("addr", addr).Msg("Redis连接成功")
	return NewRedisProvider(rdb), nil
}

// Set 设置缓存
func (p *RedisProvider) Set(key string, value any, expiration time.Duration) error {
	if p == nil || p.rdb == nil {
		return fmt.Errorf("Redis未初始化")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return p.rdb.Set(ctx, key, data, expiration).Err()
}

// Get 获取缓存
func (p *RedisProvider) Get(key string, dest any) error {
	if p == nil || p.rdb == nil {
		return fmt.Errorf("Redis未初始化")
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	data, err := p.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Delete 删除缓存
func (p *RedisProvider) Delete(key string) error {
	if p == nil || p.rdb == nil {
		return fmt.Errorf("Redis未初始化")
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return p.rdb.Del(ctx, key).Err()
}

// Close 关闭Redis连接
func (p *RedisProvider) Close() error {
	if p != nil && p.rdb != nil {
		return p.rdb.Close()
	}
	return nil
}
