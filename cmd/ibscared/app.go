package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"IBSCare-AI/internal/assessment"
	"IBSCare-AI/internal/auth"
	"IBSCare-AI/internal/chat"
	"IBSCare-AI/internal/config"
	"IBSCare-AI/internal/health"
	"IBSCare-AI/internal/llm"
	"IBSCare-AI/internal/llm/gemini"
	"IBSCare-AI/internal/llm/groq"
	"IBSCare-AI/internal/mail"
	"IBSCare-AI/internal/observability/metrics"
	"IBSCare-AI/internal/queue"
	"IBSCare-AI/internal/reminder"
	"IBSCare-AI/internal/storage/sqlstore"
	"IBSCare-AI/internal/store"
	"IBSCare-AI/pkg/logger"
)

const memoryQueueSize = 1024

// app 持有进程内所有组件，Close 负责按相反顺序释放。
type app struct {
	cfg         *config.Config
	registry    *prometheus.Registry
	httpMetrics *metrics.HTTP

	docs        store.Documents
	queue       queue.Queue
	memoryQueue *queue.MemoryQueue

	auth        *auth.Service
	assessments *assessment.Service
	logs        *health.Service
	chat        *chat.Service
	reminders   *reminder.Service
	processor   *reminder.Processor

	closers []func() error
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	err = logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.Outputs,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
			Compress:   cfg.Logging.Audit.Compress,
		},
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func bootstrap(ctx context.Context, configPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, registry: metrics.NewRegistry()}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) (err error) {
	cfg := a.cfg

	if a.httpMetrics, err = metrics.NewHTTP(a.registry); err != nil {
		return err
	}
	if err = a.openStore(ctx); err != nil {
		return err
	}
	if err = a.openQueue(ctx); err != nil {
		return err
	}

	if a.auth, err = auth.NewService(auth.Config{
		Mode:      auth.Mode(cfg.Auth.Mode),
		ProjectID: cfg.Auth.FirebaseProjectID,
		CertsURL:  cfg.Auth.CertsURL,
	}); err != nil {
		return err
	}

	adapter, err := a.buildAdapter(ctx)
	if err != nil {
		return err
	}

	a.assessments = assessment.NewService(a.docs)
	a.logs = health.NewService(a.docs, health.WithAssessments(a.assessments))
	a.chat = chat.NewService(a.docs, adapter,
		chat.WithHealthContext(a.logs),
		chat.WithAssessments(a.assessments),
	)
	a.reminders = reminder.NewService(a.docs, a.queue, a.logs)

	reminderMetrics, err := reminder.NewMetrics(a.registry)
	if err != nil {
		return err
	}
	a.processor = reminder.NewProcessor(a.queue, a.buildSender(), cfg.Mail.AppURL, cfg.Queue.Workers, reminderMetrics)

	logger.L().Info("ibscared 初始化完成",
		slog.String("storage", cfg.Storage.Driver),
		slog.String("queue", cfg.Queue.Driver),
		slog.String("auth", string(a.auth.Mode())),
		slog.Any("providers", adapter.Providers()),
	)
	return nil
}

func sqlConfig(cfg *config.Config) sqlstore.Config {
	return sqlstore.Config{
		Driver:          cfg.Storage.Driver,
		DSN:             cfg.Storage.DSN,
		MaxOpenConns:    cfg.Storage.MaxOpenConns,
		MaxIdleConns:    cfg.Storage.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Storage.ConnMaxLifetimeSeconds) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Storage.ConnMaxIdleTimeSeconds) * time.Second,
	}
}

func (a *app) openStore(ctx context.Context) error {
	if a.cfg.Storage.Driver == "memory" {
		a.docs = store.NewMemoryStore()
		return nil
	}
	s, err := sqlstore.Open(ctx, sqlConfig(a.cfg))
	if err != nil {
		return err
	}
	a.docs = s
	a.closers = append(a.closers, s.Close)
	return nil
}

func (a *app) openQueue(ctx context.Context) error {
	q, err := queue.Open(ctx, queue.Config{
		Driver: a.cfg.Queue.Driver,
		Size:   memoryQueueSize,
		Redis: queue.RedisConfig{
			Address:   a.cfg.Queue.Redis.Address,
			Password:  a.cfg.Queue.Redis.Password,
			DB:        a.cfg.Queue.Redis.DB,
			Queue:     a.cfg.Queue.Redis.Queue,
			BlockWait: time.Duration(a.cfg.Queue.Redis.BlockWaitSeconds) * time.Second,
		},
		RabbitMQ: queue.RabbitMQConfig{
			URL:        a.cfg.Queue.RabbitMQ.URL,
			Queue:      a.cfg.Queue.RabbitMQ.Queue,
			Prefetch:   a.cfg.Queue.RabbitMQ.Prefetch,
			Durable:    a.cfg.Queue.RabbitMQ.Durable,
			AutoDelete: a.cfg.Queue.RabbitMQ.AutoDelete,
		},
	})
	if err != nil {
		return err
	}
	a.queue = q
	a.memoryQueue, _ = q.(*queue.MemoryQueue)
	a.closers = append(a.closers, q.Close)
	return nil
}

// buildAdapter 按 Gemini、Groq 的顺序组装模型服务，未配置的服务以占位实现保留顺序。
func (a *app) buildAdapter(ctx context.Context) (*llm.Adapter, error) {
	cfg := a.cfg.LLM
	log := logger.Named("llm")

	primary := llm.Unavailable("gemini")
	if cfg.Gemini.Enabled() {
		client, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:          cfg.Gemini.APIKey,
			BaseURL:         cfg.Gemini.BaseURL,
			Model:           cfg.Gemini.Model,
			MaxOutputTokens: cfg.Gemini.MaxOutputTokens,
			Temperature:     cfg.Gemini.Temperature,
		})
		if err != nil {
			log.Warn("Gemini 初始化失败，将跳过", logger.Err(err))
		} else {
			primary = client
		}
	} else {
		log.Warn("未配置 GEMINI_API_KEY，跳过 Gemini")
	}

	secondary := llm.Unavailable("groq")
	if cfg.Groq.Enabled() {
		client, err := groq.NewClient(groq.Config{
			APIKey:          cfg.Groq.APIKey,
			BaseURL:         cfg.Groq.BaseURL,
			Model:           cfg.Groq.Model,
			MaxOutputTokens: cfg.Groq.MaxOutputTokens,
			Temperature:     cfg.Groq.Temperature,
			Timeout:         cfg.Timeout(),
		})
		if err != nil {
			log.Warn("Groq 初始化失败，将跳过", logger.Err(err))
		} else {
			secondary = client
		}
	} else {
		log.Warn("未配置 GROQ_API_KEY，跳过 Groq")
	}

	m, err := llm.NewMetrics(a.registry)
	if err != nil {
		return nil, err
	}
	return llm.NewAdapter([]llm.Provider{primary, secondary},
		llm.WithHistoryLimit(cfg.HistoryLimit),
		llm.WithTimeout(cfg.Timeout()),
		llm.WithMetrics(m),
		llm.WithLogger(log),
	), nil
}

// buildSender 在 SMTP 凭据不全时退化为只写日志的发信器。
func (a *app) buildSender() mail.Sender {
	if !a.cfg.Mail.Configured() {
		logger.L().Warn("未配置 SMTP 凭据，提醒邮件只记录日志")
		return mail.NewLogSender(logger.Named("mail"))
	}
	sender, err := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     a.cfg.Mail.Server,
		Port:     a.cfg.Mail.Port,
		UseTLS:   a.cfg.Mail.UseTLS,
		Username: a.cfg.Mail.Username,
		Password: a.cfg.Mail.Password,
		From:     a.cfg.Mail.DefaultSender,
	})
	if err != nil {
		logger.L().Warn("SMTP 配置无效，提醒邮件只记录日志", logger.Err(err))
		return mail.NewLogSender(logger.Named("mail"))
	}
	return sender
}

// Close 释放存储与队列连接。
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := logger.Sync(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
