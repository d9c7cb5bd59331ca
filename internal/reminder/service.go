package reminder

import (
	"context"
	"log/slog"
	"strings"
	"time"

	xerrors "IBSCare-AI/internal/errors"
	"IBSCare-AI/internal/health"
	"IBSCare-AI/internal/mail"
	"IBSCare-AI/internal/queue"
	"IBSCare-AI/internal/store"
	"IBSCare-AI/pkg/logger"
)

// SummarySource 计算用户最近七天的统计。
type SummarySource interface {
	WeeklySummary(ctx context.Context, userID string, now time.Time) (health.WeeklySummary, error)
}

// Recipient 是提醒的收件人。
type Recipient struct {
	UserID string
	Email  string
}

// Service 管理提醒设置，并将邮件任务投递到队列。
type Service struct {
	docs     store.Documents
	producer queue.Producer
	summary  SummarySource
	now      func() time.Time
	logger   *slog.Logger
}

// NewService 创建提醒服务。
func NewService(docs store.Documents, producer queue.Producer, summary SummarySource) *Service {
	return &Service{
		docs:     docs,
		producer: producer,
		summary:  summary,
		now:      time.Now,
		logger:   logger.Named("reminder"),
	}
}

// Setup 保存提醒设置并投递欢迎邮件，未指定 enabled 时视为开启。
func (s *Service) Setup(ctx context.Context, to Recipient, in Input) (Settings, error) {
	if err := to.validate(); err != nil {
		return Settings{}, err
	}
	if in.Enabled == nil {
		enabled := true
		in.Enabled = &enabled
	}
	settings, err := in.apply(Defaults(to.UserID, to.Email))
	if err != nil {
		return Settings{}, err
	}
	now := s.now().UTC()
	settings.CreatedAt, settings.UpdatedAt = now, now
	if err := s.save(ctx, settings); err != nil {
		return Settings{}, err
	}
	// 设置已保存，欢迎邮件投递失败只记录日志。
	if err := s.enqueue(ctx, Job{
		Kind:     mail.KindWelcome,
		UserID:   to.UserID,
		Email:    to.Email,
		Time:     settings.Time,
		Timezone: settings.Timezone,
	}); err != nil {
		s.logger.Warn("欢迎邮件投递失败", slog.String("user_id", to.UserID), logger.Err(err))
	}
	s.logger.Info("提醒已设置",
		slog.String("user_id", to.UserID),
		slog.String("time", settings.Time),
		slog.String("timezone", settings.Timezone),
	)
	return settings, nil
}

// Settings 返回用户的提醒设置，未设置时返回默认值。
func (s *Service) Settings(ctx context.Context, to Recipient) (Settings, error) {
	settings, found, err := s.load(ctx, to.UserID)
	if err != nil {
		return Settings{}, err
	}
	if !found {
		return Defaults(to.UserID, to.Email), nil
	}
	return settings, nil
}

// Update 局部更新提醒设置。
func (s *Service) Update(ctx context.Context, to Recipient, in Input) (Settings, error) {
	if err := to.validate(); err != nil {
		return Settings{}, err
	}
	current, err := s.Settings(ctx, to)
	if err != nil {
		return Settings{}, err
	}
	if current.Email == "" {
		current.Email = to.Email
	}
	updated, err := in.apply(current)
	if err != nil {
		return Settings{}, err
	}
	now := s.now().UTC()
	if updated.CreatedAt.IsZero() {
		updated.CreatedAt = now
	}
	updated.UpdatedAt = now
	if err := s.save(ctx, updated); err != nil {
		return Settings{}, err
	}
	return updated, nil
}

// SendTest 立即投递一封每日提醒。
func (s *Service) SendTest(ctx context.Context, to Recipient) error {
	if err := to.validate(); err != nil {
		return err
	}
	return s.enqueue(ctx, Job{Kind: mail.KindDailyReminder, UserID: to.UserID, Email: to.Email})
}

// WeeklySummary 计算周报并投递邮件。
func (s *Service) WeeklySummary(ctx context.Context, to Recipient) (health.WeeklySummary, error) {
	if err := to.validate(); err != nil {
		return health.WeeklySummary{}, err
	}
	if s.summary == nil {
		return health.WeeklySummary{}, xerrors.New(xerrors.CodeInitializationFailure, "未配置健康数据来源")
	}
	summary, err := s.summary.WeeklySummary(ctx, to.UserID, s.now())
	if err != nil {
		return health.WeeklySummary{}, err
	}
	if err := s.enqueue(ctx, Job{Kind: mail.KindWeeklySummary, UserID: to.UserID, Email: to.Email, Summary: &summary}); err != nil {
		return health.WeeklySummary{}, err
	}
	return summary, nil
}

func (s *Service) load(ctx context.Context, userID string) (Settings, bool, error) {
	var settings Settings
	err := s.docs.Get(ctx, store.CollectionReminders, userID, settingsDocID, &settings)
	switch {
	case err == nil:
		return settings, true, nil
	case xerrors.IsCode(err, xerrors.CodeNotFound):
		return Settings{}, false, nil
	default:
		return Settings{}, false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取提醒设置失败")
	}
}

func (s *Service) save(ctx context.Context, settings Settings) error {
	if err := s.docs.Put(ctx, store.CollectionReminders, settings.UserID, settingsDocID, settings.Time, settings); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "保存提醒设置失败")
	}
	return nil
}

func (s *Service) enqueue(ctx context.Context, job Job) error {
	return publish(ctx, s.producer, job)
}

func publish(ctx context.Context, producer queue.Producer, job Job) error {
	if producer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置提醒队列")
	}
	payload, err := job.encode()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "编码提醒任务失败")
	}
	if err := producer.Publish(ctx, payload); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "投递提醒任务失败")
	}
	return nil
}

func (r Recipient) validate() error {
	if r.UserID == "" {
		return xerrors.New(xerrors.CodeUnauthenticated, "缺少用户身份")
	}
	if strings.TrimSpace(r.Email) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "账号未绑定邮箱，无法发送提醒")
	}
	return nil
}
