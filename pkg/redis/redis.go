package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client Redis客户端
type Client struct {
	*redis.Client
}

// Config Redis配置
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewClient 创建Redis客户端
func NewClient(config *Config) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{client}, nil
}

// NewClientFromAddr 使用地址直接创建客户端，不做连通性检查
func NewClientFromAddr(addr string) *Client {
	return &Client{redis.NewClient(&redis.Options{Addr: addr})}
}

// Set 设置键值对
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.Client.Set(ctx, key, value, expiration).Err()
}

// GetDel 原子地获取并删除键，键不存在时ok为false
func (c *Client) GetDel(ctx context.Context, key string) (value string, ok bool, err error) {
	value, err = c.Client.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Del 删除键
func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.Client.Del(ctx, keys...).Err()
}
