package health

import (
	"context"
	"log/slog"
	"time"

	xerrors "IBSCare-AI/internal/errors"
	"IBSCare-AI/internal/store"
	"IBSCare-AI/pkg/logger"
)

// AssessmentSource 提供用户最近一次评估得到的 IBS 类型与严重程度。
type AssessmentSource interface {
	Classification(ctx context.Context, userID string) (ibsType, severity string, err error)
}

// Service 管理症状日志并生成健康上下文。
type Service struct {
	docs        store.Documents
	assessments AssessmentSource
	now         func() time.Time
	logger      *slog.Logger
}

// Option 定义 Service 的可选配置。
type Option func(*Service)

// WithAssessments 配置评估数据来源。
func WithAssessments(src AssessmentSource) Option {
	return func(s *Service) {
		s.assessments = src
	}
}

// WithClock 替换时间来源，主要用于测试。
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService 创建健康日志服务。
func NewService(docs store.Documents, opts ...Option) *Service {
	s := &Service{
		docs:   docs,
		now:    time.Now,
		logger: logger.Named("health"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// SaveLog 按 (用户, 日期) 写入日志，created 表示是否为首次写入。
func (s *Service) SaveLog(ctx context.Context, userID string, in LogInput) (Log, bool, error) {
	if userID == "" {
		return Log{}, false, xerrors.New(xerrors.CodeUnauthenticated, "缺少用户身份")
	}
	if err := in.Validate(); err != nil {
		return Log{}, false, err
	}
	in = in.normalize()

	now := s.now().UTC()
	created := false
	var existing Log
	err := s.docs.Get(ctx, store.CollectionLogs, userID, in.DateISO, &existing)
	switch {
	case err == nil:
	case xerrors.IsCode(err, xerrors.CodeNotFound):
		created = true
		existing.CreatedAt = now
	default:
		return Log{}, false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取日志失败")
	}

	entry := Log{
		UserID:    userID,
		DateISO:   in.DateISO,
		Mood:      in.Mood,
		PainLevel: in.PainLevel,
		Symptoms:  in.Symptoms,
		Triggers:  in.Triggers,
		Meals:     in.Meals,
		Notes:     in.Notes,
		CreatedAt: existing.CreatedAt,
		UpdatedAt: now,
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if err := s.docs.Put(ctx, store.CollectionLogs, userID, in.DateISO, in.DateISO, entry); err != nil {
		return Log{}, false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "保存日志失败")
	}
	s.logger.Info("症状日志已保存",
		slog.String("user_id", userID),
		slog.String("date", in.DateISO),
		slog.Bool("created", created),
	)
	return entry, created, nil
}

// ListLogs 返回闭区间 [from, to] 内按日期升序的日志，边界可为空。
func (s *Service) ListLogs(ctx context.Context, userID, from, to string) ([]Log, error) {
	for _, bound := range []string{from, to} {
		if bound == "" {
			continue
		}
		if _, err := time.Parse(DateLayout, bound); err != nil {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "日期范围格式无效，应为 YYYY-MM-DD")
		}
	}
	return s.list(ctx, userID, store.Query{From: from, To: to})
}

// HasLog 判断用户在指定日期是否已有日志。
func (s *Service) HasLog(ctx context.Context, userID, date string) (bool, error) {
	var entry Log
	err := s.docs.Get(ctx, store.CollectionLogs, userID, date, &entry)
	switch {
	case err == nil:
		return true, nil
	case xerrors.IsCode(err, xerrors.CodeNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Context 统计近 14 天（最多 50 条）的日志，并合并最近一次评估结果。
func (s *Service) Context(ctx context.Context, userID string, now time.Time) (Context, error) {
	cutoff := now.AddDate(0, 0, -contextWindowDays).Format(DateLayout)
	logs, err := s.list(ctx, userID, store.Query{From: cutoff, Desc: true, Limit: contextMaxLogs})
	if err != nil {
		return buildContext(nil), err
	}
	hc := buildContext(logs)
	if s.assessments != nil && hc.HasData {
		ibsType, severity, err := s.assessments.Classification(ctx, userID)
		switch {
		case err == nil:
			hc.IBSType, hc.Severity = ibsType, severity
		case xerrors.IsCode(err, xerrors.CodeNotFound):
		default:
			s.logger.Warn("读取评估结果失败", slog.String("user_id", userID), logger.Err(err))
		}
	}
	return hc, nil
}

// WeeklySummary 统计最近七天的记录情况。
func (s *Service) WeeklySummary(ctx context.Context, userID string, now time.Time) (WeeklySummary, error) {
	from := now.AddDate(0, 0, -(summaryWindowDays - 1)).Format(DateLayout)
	logs, err := s.list(ctx, userID, store.Query{From: from, To: now.Format(DateLayout), Desc: true})
	if err != nil {
		return WeeklySummary{}, err
	}
	return buildSummary(logs), nil
}

func (s *Service) list(ctx context.Context, userID string, q store.Query) ([]Log, error) {
	docs, err := s.docs.List(ctx, store.CollectionLogs, userID, q)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询日志失败")
	}
	logs := make([]Log, 0, len(docs))
	for _, doc := range docs {
		var entry Log
		if err := doc.Decode(&entry); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, nil
}
