package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	xerrors "IBSCare-AI/internal/errors"
	"IBSCare-AI/pkg/logger"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultHistoryLimit = 10
	minHistoryLimit     = 10
	maxHistoryLimit     = 20
)

// ErrProviderDisabled 表示该模型服务未配置 API Key，适配器会直接跳过。
var ErrProviderDisabled = errors.New("provider disabled")

// Adapter 依次尝试各个模型服务，全部失败时返回固定兜底回复。
// 构造后配置只读，可被多个请求并发使用。
type Adapter struct {
	providers    []Provider
	timeout      time.Duration
	historyLimit int
	fallback     string
	logger       *slog.Logger
	metrics      *Metrics
}

// Option 定义可选配置。
type Option func(*Adapter)

// WithTimeout 设置单个模型服务调用的超时时间。
func WithTimeout(timeout time.Duration) Option {
	return func(a *Adapter) {
		if timeout > 0 {
			a.timeout = timeout
		}
	}
}

// WithHistoryLimit 设置发送给模型的历史消息条数，取值限制在 10~20。
func WithHistoryLimit(limit int) Option {
	return func(a *Adapter) {
		a.historyLimit = clampHistoryLimit(limit)
	}
}

// WithLogger 指定日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMetrics 指定指标采集器。
func WithMetrics(m *Metrics) Option {
	return func(a *Adapter) {
		a.metrics = m
	}
}

// WithFallbackReply 覆盖兜底回复文本。
func WithFallbackReply(reply string) Option {
	return func(a *Adapter) {
		if strings.TrimSpace(reply) != "" {
			a.fallback = reply
		}
	}
}

// NewAdapter 按优先级顺序构造适配器，nil provider 会被忽略。
func NewAdapter(providers []Provider, opts ...Option) *Adapter {
	a := &Adapter{
		timeout:      defaultTimeout,
		historyLimit: defaultHistoryLimit,
		fallback:     FallbackReply,
	}
	for _, p := range providers {
		if p != nil {
			a.providers = append(a.providers, p)
		}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if a.logger == nil {
		a.logger = logger.Named("llm")
	}
	return a
}

// Providers 返回按顺序排列的模型服务名称。
func (a *Adapter) Providers() []string {
	names := make([]string, 0, len(a.providers))
	for _, p := range a.providers {
		names = append(names, p.Name())
	}
	return names
}

// HistoryLimit 返回历史窗口大小。
func (a *Adapter) HistoryLimit() int {
	return a.historyLimit
}

// Generate 获取一条回复。该方法不会返回错误：每个模型服务的失败都只会让
// 适配器尝试下一个，最终落到兜底回复。
func (a *Adapter) Generate(ctx context.Context, systemPrompt string, history []Turn, message string) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	window := a.window(history)

	for _, p := range a.providers {
		name := p.Name()
		start := time.Now()
		completion, err := a.call(ctx, p, systemPrompt, window, message)
		elapsed := time.Since(start)

		if errors.Is(err, ErrProviderDisabled) {
			a.metrics.observe(name, outcomeSkipped, 0)
			a.logger.Debug("模型服务未启用，跳过", slog.String("provider", name))
			continue
		}
		if err == nil {
			completion.Text = strings.TrimSpace(completion.Text)
			if completion.Text == "" {
				err = xerrors.New(xerrors.CodeProviderUnavailable, "模型返回空回复")
			}
		}
		if err != nil {
			a.metrics.observe(name, outcomeFailure, elapsed)
			a.logger.Warn("模型服务调用失败",
				slog.String("provider", name),
				slog.Int64("duration_ms", elapsed.Milliseconds()),
				logger.Err(err),
			)
			continue
		}

		a.metrics.observe(name, outcomeSuccess, elapsed)
		tokens := completion.TokensUsed
		if !completion.Reported || tokens <= 0 {
			tokens = CountWords(message) + CountWords(completion.Text)
		}
		a.logger.Debug("模型服务调用成功",
			slog.String("provider", name),
			slog.Int("tokens_used", tokens),
			slog.Int64("duration_ms", elapsed.Milliseconds()),
		)
		return Result{Reply: completion.Text, TokensUsed: tokens, Provider: name}
	}

	a.metrics.observeFallback()
	a.logger.Warn("所有模型服务均不可用，返回兜底回复", slog.Int("providers", len(a.providers)))
	return Result{Reply: a.fallback, TokensUsed: 0, Provider: FallbackProvider}
}

type callResult struct {
	completion Completion
	err        error
}

// call 在独立协程中执行一次模型调用，保证无论 provider 是否遵守 ctx 都能在超时内返回。
func (a *Adapter) call(ctx context.Context, p Provider, systemPrompt string, history []Turn, message string) (Completion, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callResult{err: xerrors.New(xerrors.CodeProviderUnavailable, fmt.Sprintf("模型服务 panic: %v", r))}
			}
		}()
		completion, err := p.Generate(callCtx, systemPrompt, history, message)
		done <- callResult{completion: completion, err: err}
	}()

	select {
	case res := <-done:
		return res.completion, res.err
	case <-callCtx.Done():
		return Completion{}, xerrors.Wrap(xerrors.CodeTimeout, callCtx.Err(), "模型服务调用超时")
	}
}

// window 截取最近 historyLimit 条消息，保持从旧到新的顺序。
func (a *Adapter) window(history []Turn) []Turn {
	if len(history) <= a.historyLimit {
		return append([]Turn(nil), history...)
	}
	return append([]Turn(nil), history[len(history)-a.historyLimit:]...)
}

func clampHistoryLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultHistoryLimit
	case limit < minHistoryLimit:
		return minHistoryLimit
	case limit > maxHistoryLimit:
		return maxHistoryLimit
	default:
		return limit
	}
}

// unavailable 是未配置 API Key 时占位的 provider。
type unavailable struct {
	name string
}

// Unavailable 返回一个始终报告 ErrProviderDisabled 的 provider，用于保留失效的位置。
func Unavailable(name string) Provider {
	return unavailable{name: name}
}

func (u unavailable) Name() string { return u.name }

func (u unavailable) Generate(context.Context, string, []Turn, string) (Completion, error) {
	return Completion{}, ErrProviderDisabled
}
