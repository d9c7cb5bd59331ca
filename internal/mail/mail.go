package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"gopkg.in/gomail.v2"

	xerrors "IBSCare-AI/internal/errors"
	"IBSCare-AI/pkg/logger"
)

// Message 是一封待发送的邮件。
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Validate 校验收件人与主题。
func (m Message) Validate() error {
	if _, err := mail.ParseAddress(m.To); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("收件人地址无效: %q", m.To))
	}
	if strings.TrimSpace(m.Subject) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "邮件主题不能为空")
	}
	if m.Text == "" && m.HTML == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "邮件正文不能为空")
	}
	return nil
}

// Sender 定义发送邮件所需的能力。
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig 描述 SMTP 服务器参数。
type SMTPConfig struct {
	Host     string
	Port     int
	UseTLS   bool
	Username string
	Password string
	From     string
}

// SMTPSender 通过 SMTP 发送邮件。
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPSender 创建 SMTP 发信器。
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, errors.New("SMTP host 不能为空")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	if _, err := mail.ParseAddress(from); err != nil {
		return nil, fmt.Errorf("发件人地址无效: %w", err)
	}
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	// 587 端口走 STARTTLS，465 端口走隐式 TLS。
	dialer.SSL = cfg.UseTLS && cfg.Port == 465
	return &SMTPSender{dialer: dialer, from: from}, nil
}

// Send 发送邮件。gomail 不支持 ctx，取消只在发送前检查。
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(s.compose(msg)); err != nil {
		return xerrors.Wrap(xerrors.CodeDeliveryFailure, err, "SMTP 发送失败")
	}
	return nil
}

func (s *SMTPSender) compose(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		m.SetBody("text/html", msg.HTML)
	default:
		m.SetBody("text/plain", msg.Text)
	}
	return m
}

// LogSender 不真正发信，只记录日志，用于未配置 SMTP 的环境。
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender 创建日志发信器。
func NewLogSender(l *slog.Logger) *LogSender {
	if l == nil {
		l = logger.Named("mail")
	}
	return &LogSender{logger: l}
}

// Send 校验并记录邮件。
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.logger.Info("邮件未发送（SMTP 未配置）",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}
