package reminder

import (
	"context"
	"log/slog"
	"time"

	"IBSCare-AI/internal/mail"
	"IBSCare-AI/internal/queue"
	"IBSCare-AI/internal/store"
	"IBSCare-AI/pkg/logger"
)

// LogChecker 判断用户在某天是否已经记录过日志。
type LogChecker interface {
	HasLog(ctx context.Context, userID, date string) (bool, error)
}

// Scheduler 每分钟扫描一次提醒设置，为到点且当天未记录的用户投递提醒。
type Scheduler struct {
	docs     store.Documents
	logs     LogChecker
	producer queue.Producer
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	lastSweep time.Time
}

// SchedulerOption 定义 Scheduler 的可选配置。
type SchedulerOption func(*Scheduler)

// WithInterval 设置扫描间隔。
func WithInterval(interval time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithSchedulerClock 替换时间来源。
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler 创建提醒调度器。
func NewScheduler(docs store.Documents, logs LogChecker, producer queue.Producer, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		docs:     docs,
		logs:     logs,
		producer: producer,
		interval: time.Minute,
		now:      time.Now,
		logger:   logger.Named("reminder.scheduler"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Run 按间隔执行扫描，直到 ctx 被取消。
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("提醒调度器已启动", slog.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("提醒调度器已停止")
			return ctx.Err()
		case <-ticker.C:
			now := s.now().Truncate(time.Minute)
			// 同一分钟只扫描一次，避免重复发送。
			if now.Equal(s.lastSweep) {
				continue
			}
			s.lastSweep = now
			if _, err := s.Sweep(ctx, now); err != nil {
				s.logger.Error("提醒扫描失败", logger.Err(err))
			}
		}
	}
}

// Sweep 执行一次扫描，返回投递的提醒数量。单个用户的失败只记录日志。
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) (int, error) {
	sent := 0
	err := s.docs.Scan(ctx, store.CollectionReminders, func(doc store.Document) error {
		var settings Settings
		if err := doc.Decode(&settings); err != nil {
			s.logger.Warn("跳过无法解析的提醒设置", slog.String("user_id", doc.UserID), logger.Err(err))
			return nil
		}
		if settings.UserID == "" {
			settings.UserID = doc.UserID
		}
		date, due := settings.Due(now)
		if !due || settings.Email == "" {
			return nil
		}
		if s.logs != nil {
			logged, err := s.logs.HasLog(ctx, settings.UserID, date)
			if err != nil {
				s.logger.Warn("检查当日日志失败", slog.String("user_id", settings.UserID), logger.Err(err))
				return nil
			}
			if logged {
				return nil
			}
		}
		job := Job{Kind: mail.KindDailyReminder, UserID: settings.UserID, Email: settings.Email}
		if err := publish(ctx, s.producer, job); err != nil {
			s.logger.Error("投递每日提醒失败", slog.String("user_id", settings.UserID), logger.Err(err))
			return nil
		}
		sent++
		return nil
	})
	if sent > 0 {
		s.logger.Info("每日提醒已投递", slog.Int("count", sent), slog.Time("at", now))
	}
	return sent, err
}
