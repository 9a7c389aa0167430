package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"hostel-mess/backend/config"
)

// Client Redis 客户端封装
// 当前用于 Webhook 事件去重与接口限流；后续可扩展缓存等场景
type Client struct {
	rdb    *goredis.Client
	logger *zap.Logger
}

// NewClient 创建 Redis 连接并执行 Ping 健康检查
func NewClient(cfg *config.RedisConfig, logger *zap.Logger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	logger.Info("Redis 连接成功", zap.String("addr", cfg.Addr))

	return &Client{rdb: rdb, logger: logger}, nil
}

// ── Webhook 事件去重 ──

const webhookEventPrefix = "webhook:event:"

// MarkEventSeen 记录事件 ID，返回是否为首次出现
// 处理器按至少一次投递；SETNX 让重复投递在入口处就被识别
func (c *Client) MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, webhookEventPrefix+eventID, "1", ttl).Result()
}

// ClearEventSeen 撤销事件去重标记
// 事件落库失败、需要处理器重投时调用，否则重投会被当作重复事件吸收
func (c *Client) ClearEventSeen(ctx context.Context, eventID string) error {
	return c.rdb.Del(ctx, webhookEventPrefix+eventID).Err()
}

// ── 滑动窗口限流 ──

// CheckRateLimit 固定窗口计数限流，窗口内超过 limit 返回 false
func (c *Client) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= int64(limit), nil
}

// Close 关闭 Redis 连接
func (c *Client) Close() error {
	return c.rdb.Close()
}
