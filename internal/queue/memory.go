package queue

import (
	"context"
	"sync"
)

// MemoryQueue 使用 channel 模拟消息队列，适用于单进程部署与测试。
type MemoryQueue struct {
	ch     chan []byte
	mu     sync.RWMutex
	closed bool
}

// NewMemoryQueue 创建一个内存队列。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{ch: make(chan []byte, size)}
}

// Publish 将消息投递到队列。
func (q *MemoryQueue) Publish(ctx context.Context, payload []byte) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	msg := append([]byte(nil), payload...)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- msg:
		return nil
	}
}

// Len 返回当前积压的消息数。
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

// Consume 启动指定数量的工作协程消费队列中的消息。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-q.ch:
					if !ok {
						return
					}
					_ = handler(ctx, msg)
				}
			}
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Drain 同步处理当前积压的全部消息后返回，供一次性命令使用。
func (q *MemoryQueue) Drain(ctx context.Context, handler Handler) int {
	handled := 0
	for {
		select {
		case <-ctx.Done():
			return handled
		case msg, ok := <-q.ch:
			if !ok {
				return handled
			}
			_ = handler(ctx, msg)
			handled++
		default:
			return handled
		}
	}
}

// Close 关闭内存队列。
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if !q.closed {
		close(q.ch)
		q.closed = true
	}
	q.mu.Unlock()
	return nil
}
