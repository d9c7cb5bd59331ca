package reminder

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"IBSCare-AI/internal/mail"
	"IBSCare-AI/internal/queue"
	"IBSCare-AI/pkg/logger"
)

// Metrics 统计邮件任务的处理结果。
type Metrics struct {
	deliveries *prometheus.CounterVec
}

// NewMetrics 创建并注册提醒相关指标。
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ibscare",
			Subsystem: "reminder",
			Name:      "deliveries_total",
			Help:      "Reminder email jobs processed, by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
	if reg != nil {
		if err := reg.Register(m.deliveries); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(kind mail.Kind, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(string(kind), outcome).Inc()
}

// Processor 消费队列中的邮件任务并发送。
type Processor struct {
	consumer queue.Consumer
	sender   mail.Sender
	appURL   string
	workers  int
	metrics  *Metrics
	logger   *slog.Logger
}

// NewProcessor 创建邮件任务处理器。
func NewProcessor(consumer queue.Consumer, sender mail.Sender, appURL string, workers int, metrics *Metrics) *Processor {
	if workers <= 0 {
		workers = 1
	}
	return &Processor{
		consumer: consumer,
		sender:   sender,
		appURL:   appURL,
		workers:  workers,
		metrics:  metrics,
		logger:   logger.Named("reminder.processor"),
	}
}

// Run 启动 worker 消费任务，直到 ctx 被取消。
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("邮件任务处理器已启动", slog.Int("workers", p.workers))
	return p.consumer.Consume(ctx, p.workers, p.Handle)
}

// Handle 处理单个任务。失败的任务只记录日志，不会重新入队。
func (p *Processor) Handle(ctx context.Context, payload []byte) error {
	job, err := decodeJob(payload)
	if err != nil {
		p.metrics.observe("invalid", "failure")
		p.logger.Warn("丢弃无效的提醒任务", logger.Err(err))
		return err
	}
	msg, err := job.render(p.appURL)
	if err != nil {
		p.metrics.observe(job.Kind, "failure")
		p.logger.Warn("渲染提醒邮件失败", slog.String("kind", string(job.Kind)), logger.Err(err))
		return err
	}
	if err := p.sender.Send(ctx, msg); err != nil {
		p.metrics.observe(job.Kind, "failure")
		p.logger.Error("发送提醒邮件失败",
			slog.String("kind", string(job.Kind)),
			slog.String("user_id", job.UserID),
			logger.Err(err),
		)
		return err
	}
	p.metrics.observe(job.Kind, "success")
	p.logger.Info("提醒邮件已发送", slog.String("kind", string(job.Kind)), slog.String("user_id", job.UserID))
	return nil
}
