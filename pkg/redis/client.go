package redis

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// Options Redis连接参数
type Options struct {
	Addr     string
	Password string
	DB       int
	// Prefix 所有键的前缀，为空时不加前缀
	Prefix string
	// DialTimeout 连接及首次 Ping 的超时
	DialTimeout time.Duration
}

// Client Redis客户端包装器
type Client struct {
	rdb    *redis.Client
	prefix string
}

// NewClient 创建新的Redis客户端，并在返回前测试连接
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	})

	client := &Client{rdb: rdb, prefix: opts.Prefix}

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx); err != nil {
		rdb.Close()
		return nil, err
	}

	return client, nil
}

func (c *Client) key(k string) string {
	return c.prefix + k
}

// Ping 测试连接
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Set 设置键值对，ttl 为 0 时永久有效
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, c.key(key), value, ttl).Err()
}

// GetBytes 获取字节数组值，键不存在时返回 (nil, false, nil)
func (c *Client) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Del 删除键
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return c.rdb.Del(ctx, full...).Result()
}

// Close 关闭客户端连接
func (c *Client) Close() error {
	return c.rdb.Close()
}
