package queue

import (
	"context"
	"errors"
	"fmt"
)

// ErrClosed 表示队列已关闭。
var ErrClosed = errors.New("队列已关闭")

// Handler 处理一条队列消息。返回的错误只会被记录，消息不会重新投递。
type Handler func(ctx context.Context, payload []byte) error

// Producer 负责向队列投递消息。
type Producer interface {
	Publish(ctx context.Context, payload []byte) error
	Close() error
}

// Consumer 负责从队列中消费消息，直到 ctx 取消。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}

// Config 汇总各队列驱动的配置。
type Config struct {
	Driver   string
	Size     int
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
}

// Open 根据驱动名称创建队列。
func Open(ctx context.Context, cfg Config) (Queue, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryQueue(cfg.Size), nil
	case "redis":
		return NewRedisQueue(ctx, cfg.Redis)
	case "rabbitmq":
		return NewRabbitMQQueue(cfg.RabbitMQ)
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Driver)
	}
}
