package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	xerrors "IBSCare-AI/internal/errors"
	"IBSCare-AI/internal/health"
	"IBSCare-AI/internal/llm"
	"IBSCare-AI/internal/store"
	"IBSCare-AI/pkg/logger"
)

const (
	// MaxMessageLength 是单条用户消息允许的最大字符数。
	MaxMessageLength = 1000
	historyDepth     = 20
	defaultListLimit = 50
	maxListLimit     = 200
	// sortLayout 保证排序键按字典序与时间序一致。
	sortLayout = "2006-01-02T15:04:05.000000000Z"
)

// Message 是持久化的一条对话消息。
type Message struct {
	ID         string    `json:"id"`
	Role       llm.Role  `json:"role"`
	Content    string    `json:"content"`
	TokensUsed int       `json:"tokens_used,omitempty"`
	Provider   string    `json:"provider,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Reply 是一次对话的返回结果。
type Reply struct {
	Reply       string `json:"reply"`
	TokensUsed  int    `json:"tokens_used"`
	Provider    string `json:"provider"`
	ContextUsed bool   `json:"context_used"`
}

// Intro 是进入对话页时展示的欢迎语。
type Intro struct {
	Message          string   `json:"intro_message"`
	Suggestions      []string `json:"suggestions"`
	ContextAvailable bool     `json:"context_available"`
}

// Generator 生成模型回复，llm.Adapter 实现了该接口且从不返回错误。
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, history []llm.Turn, message string) llm.Result
}

// ContextSource 提供用户的健康上下文。
type ContextSource interface {
	Context(ctx context.Context, userID string, now time.Time) (health.Context, error)
}

// ClassificationSource 提供用户最近一次评估的亚型。
type ClassificationSource interface {
	Classification(ctx context.Context, userID string) (ibsType, severity string, err error)
}

// Service 组装上下文、调用模型并保存对话记录。
type Service struct {
	docs        store.Documents
	generator   Generator
	health      ContextSource
	assessments ClassificationSource
	now         func() time.Time
	logger      *slog.Logger
}

// Option 定义 Service 的可选配置。
type Option func(*Service)

// WithHealthContext 配置健康上下文来源。
func WithHealthContext(src ContextSource) Option {
	return func(s *Service) {
		s.health = src
	}
}

// WithAssessments 配置评估结果来源。
func WithAssessments(src ClassificationSource) Option {
	return func(s *Service) {
		s.assessments = src
	}
}

// WithClock 替换时间来源。
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService 创建对话服务。
func NewService(docs store.Documents, generator Generator, opts ...Option) *Service {
	s := &Service{
		docs:      docs,
		generator: generator,
		now:       time.Now,
		logger:    logger.Named("chat"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Send 处理一条用户消息。上下文加载失败只降级，不影响回复。
func (s *Service) Send(ctx context.Context, userID, message string) (Reply, error) {
	if s.generator == nil {
		return Reply{}, xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型适配器")
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return Reply{}, xerrors.New(xerrors.CodeInvalidArgument, "消息不能为空")
	}
	if utf8.RuneCountInString(message) > MaxMessageLength {
		return Reply{}, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("消息不能超过 %d 个字符", MaxMessageLength))
	}

	sentAt := s.now().UTC()
	history := s.loadHistory(ctx, userID)
	hc := s.loadContext(ctx, userID, sentAt)
	ibsType := hc.IBSType
	if ibsType == "" {
		ibsType = s.classification(ctx, userID)
	}

	result := s.generator.Generate(ctx, SystemPrompt(hc, ibsType), history, message)

	s.persist(ctx, userID, Message{Role: llm.RoleUser, Content: message, CreatedAt: sentAt})
	s.persist(ctx, userID, Message{
		Role:       llm.RoleAssistant,
		Content:    result.Reply,
		TokensUsed: result.TokensUsed,
		Provider:   result.Provider,
		CreatedAt:  later(s.now().UTC(), sentAt),
	})

	return Reply{
		Reply:       result.Reply,
		TokensUsed:  result.TokensUsed,
		Provider:    result.Provider,
		ContextUsed: hc.HasData,
	}, nil
}

// History 返回最近的对话消息，按时间升序。
func (s *Service) History(ctx context.Context, userID string, limit int) ([]Message, error) {
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	return s.recent(ctx, userID, limit)
}

// ClearHistory 删除用户的全部对话记录。
func (s *Service) ClearHistory(ctx context.Context, userID string) error {
	if err := s.docs.DeleteAll(ctx, store.CollectionChats, userID); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "清空对话记录失败")
	}
	s.logger.Info("对话记录已清空", slog.String("user_id", userID))
	return nil
}

func (s *Service) recent(ctx context.Context, userID string, limit int) ([]Message, error) {
	docs, err := s.docs.List(ctx, store.CollectionChats, userID, store.Query{Desc: true, Limit: limit})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询对话记录失败")
	}
	messages := make([]Message, len(docs))
	for i, doc := range docs {
		var msg Message
		if err := doc.Decode(&msg); err != nil {
			return nil, err
		}
		// 倒序查询，逆序写入得到时间升序。
		messages[len(docs)-1-i] = msg
	}
	return messages, nil
}

func (s *Service) loadHistory(ctx context.Context, userID string) []llm.Turn {
	messages, err := s.recent(ctx, userID, historyDepth)
	if err != nil {
		s.logger.Warn("加载对话历史失败", slog.String("user_id", userID), logger.Err(err))
		return nil
	}
	turns := make([]llm.Turn, 0, len(messages))
	for _, msg := range messages {
		turns = append(turns, llm.Turn{Role: msg.Role, Content: msg.Content})
	}
	return turns
}

func (s *Service) loadContext(ctx context.Context, userID string, now time.Time) health.Context {
	if s.health == nil {
		return health.Context{}
	}
	hc, err := s.health.Context(ctx, userID, now)
	if err != nil {
		s.logger.Warn("加载健康上下文失败", slog.String("user_id", userID), logger.Err(err))
		return health.Context{}
	}
	return hc
}

func (s *Service) classification(ctx context.Context, userID string) string {
	if s.assessments == nil {
		return ""
	}
	ibsType, _, err := s.assessments.Classification(ctx, userID)
	if err != nil {
		if !xerrors.IsCode(err, xerrors.CodeNotFound) {
			s.logger.Warn("读取评估结果失败", slog.String("user_id", userID), logger.Err(err))
		}
		return ""
	}
	return ibsType
}

func (s *Service) persist(ctx context.Context, userID string, msg Message) {
	msg.ID = uuid.NewString()
	sortKey := msg.CreatedAt.Format(sortLayout)
	if err := s.docs.Put(ctx, store.CollectionChats, userID, msg.ID, sortKey, msg); err != nil {
		s.logger.Error("保存对话消息失败",
			slog.String("user_id", userID),
			slog.String("role", string(msg.Role)),
			logger.Err(err),
		)
	}
}

// later 保证助手消息排在用户消息之后。
func later(t, after time.Time) time.Time {
	if !t.After(after) {
		return after.Add(time.Nanosecond)
	}
	return t
}
