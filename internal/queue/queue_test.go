package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryQueueConcurrentConsume(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	q := NewMemoryQueue(256)
	var handled atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, 4, func(ctx context.Context, payload []byte) error {
			handled.Add(1)
			return nil
		})
	}()

	total := 100
	for i := 0; i < total; i++ {
		if err := q.Publish(ctx, []byte(fmt.Sprintf("job-%d", i))); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	deadline := time.After(3 * time.Second)
	for handled.Load() < int32(total) {
		select {
		case <-deadline:
			t.Fatalf("消息未能及时处理，已完成 %d", handled.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected consume result: %v", err)
	}
}

func TestMemoryQueueDrainAndClose(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(8)
	for i := 0; i < 3; i++ {
		if err := q.Publish(ctx, []byte{byte(i)}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	var got []byte
	n := q.Drain(ctx, func(_ context.Context, payload []byte) error {
		got = append(got, payload...)
		return errors.New("ignored")
	})
	if n != 3 || len(got) != 3 || q.Len() != 0 {
		t.Fatalf("unexpected drain: n=%d got=%v len=%d", n, got, q.Len())
	}

	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Publish(ctx, []byte("late")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestRedisQueuePublishConsume(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	q, err := NewRedisQueue(ctx, RedisConfig{Address: mr.Addr(), Queue: "test:jobs", BlockWait: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("new redis queue: %v", err)
	}
	defer q.Close()

	for _, job := range []string{"a", "b", "c"} {
		if err := q.Publish(ctx, []byte(job)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if n, err := q.Len(ctx); err != nil || n != 3 {
		t.Fatalf("unexpected queue length: %d %v", n, err)
	}

	var (
		mu  sync.Mutex
		got []string
	)
	consumeCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(consumeCtx, 1, func(_ context.Context, payload []byte) error {
			mu.Lock()
			got = append(got, string(payload))
			mu.Unlock()
			return errors.New("handler failure must not requeue")
		})
	}()

	deadline := time.After(3 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("redis queue not drained, got %v", got)
		case <-time.After(20 * time.Millisecond):
		}
	}
	stop()
	<-done

	if fmt.Sprint(got) != "[a b c]" {
		t.Fatalf("expected FIFO order, got %v", got)
	}
	if n, _ := q.Len(ctx); n != 0 {
		t.Fatalf("failed messages must not be re-pushed, queue length %d", n)
	}
}

func TestRedisQueueSurvivesServerRestart(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	q, err := NewRedisQueue(ctx, RedisConfig{
		Address:      mr.Addr(),
		Queue:        "test:restart",
		BlockWait:    50 * time.Millisecond,
		RetryBackoff: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new redis queue: %v", err)
	}
	defer q.Close()

	got := make(chan string, 1)
	consumeCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(consumeCtx, 1, func(_ context.Context, payload []byte) error {
			got <- string(payload)
			return nil
		})
	}()

	mr.Close()
	select {
	case err := <-done:
		t.Fatalf("consume returned while ctx still live: %v", err)
	case <-time.After(500 * time.Millisecond):
	}

	if err := mr.Restart(); err != nil {
		t.Fatalf("restart miniredis: %v", err)
	}
	if err := q.Publish(ctx, []byte("after-restart")); err != nil {
		t.Fatalf("publish after restart: %v", err)
	}
	select {
	case payload := <-got:
		if payload != "after-restart" {
			t.Fatalf("unexpected payload: %s", payload)
		}
	case err := <-done:
		t.Fatalf("consume returned before recovering: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatalf("consumer did not recover after restart")
	}

	stop()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNextBackoff(t *testing.T) {
	limit := time.Second
	cases := []struct{ current, want time.Duration }{
		{0, minRetryBackoff},
		{minRetryBackoff, 2 * minRetryBackoff},
		{800 * time.Millisecond, limit},
		{limit, limit},
	}
	for _, tc := range cases {
		if got := nextBackoff(tc.current, limit); got != tc.want {
			t.Fatalf("nextBackoff(%v): expected %v, got %v", tc.current, tc.want, got)
		}
	}
}

func TestOpenValidation(t *testing.T) {
	ctx := context.Background()
	if _, err := Open(ctx, Config{Driver: "kafka"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
	if _, err := Open(ctx, Config{Driver: "redis"}); err == nil {
		t.Fatalf("expected error for missing redis address")
	}
	if _, err := Open(ctx, Config{Driver: "rabbitmq"}); err == nil {
		t.Fatalf("expected error for missing rabbitmq url")
	}
	q, err := Open(ctx, Config{})
	if err != nil {
		t.Fatalf("memory queue: %v", err)
	}
	if _, ok := q.(*MemoryQueue); !ok {
		t.Fatalf("default driver should be memory, got %T", q)
	}
}
