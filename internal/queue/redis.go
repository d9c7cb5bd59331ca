package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"IBSCare-AI/pkg/logger"
)

const minRetryBackoff = 100 * time.Millisecond

// RedisConfig 描述 Redis 队列的连接参数。
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	Queue     string
	BlockWait time.Duration
	// RetryBackoff 是取消息失败后重试间隔的上限，默认 5s。
	RetryBackoff time.Duration
}

// RedisQueue 使用 Redis list 实现简单的消息队列。
type RedisQueue struct {
	client     *redis.Client
	queue      string
	wait       time.Duration
	maxBackoff time.Duration
	logger     *slog.Logger
}

// NewRedisQueue 创建 Redis 队列实例。
func NewRedisQueue(ctx context.Context, cfg RedisConfig) (*RedisQueue, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	name := cfg.Queue
	if name == "" {
		name = "ibscare:reminders"
	}
	wait := cfg.BlockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	maxBackoff := cfg.RetryBackoff
	if maxBackoff <= 0 {
		maxBackoff = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisQueue{
		client:     client,
		queue:      name,
		wait:       wait,
		maxBackoff: maxBackoff,
		logger:     logger.Named("queue.redis"),
	}, nil
}

// Publish 将消息投递到 Redis。
func (q *RedisQueue) Publish(ctx context.Context, payload []byte) error {
	if err := q.client.LPush(ctx, q.queue, payload).Err(); err != nil {
		return fmt.Errorf("Redis 发布消息失败: %w", err)
	}
	return nil
}

// Len 返回队列长度。
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queue).Result()
}

// Consume 通过 BRPOP 从 Redis 获取消息，直到 ctx 取消或连接被关闭。
// 连接类错误按指数退避重试，处理失败的消息直接丢弃。
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	errCh := make(chan error, workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			errCh <- q.work(ctx, handler)
		}()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (q *RedisQueue) work(ctx context.Context, handler Handler) error {
	backoff := time.Duration(0)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		values, err := q.client.BRPop(ctx, q.wait, q.queue).Result()
		switch {
		case err == nil:
			backoff = 0
		case errors.Is(err, redis.Nil):
			backoff = 0
			continue
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, redis.ErrClosed):
			return err
		default:
			backoff = nextBackoff(backoff, q.maxBackoff)
			q.logger.Warn("Redis 取消息失败，稍后重试", slog.Duration("backoff", backoff), logger.Err(err))
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			continue
		}
		if len(values) != 2 {
			continue
		}
		_ = handler(ctx, []byte(values[1]))
	}
}

func nextBackoff(current, limit time.Duration) time.Duration {
	next := current * 2
	if next < minRetryBackoff {
		next = minRetryBackoff
	}
	if next > limit {
		next = limit
	}
	return next
}

// Close 关闭 Redis 连接。
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}
