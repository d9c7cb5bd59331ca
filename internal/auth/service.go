package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"IBSCare-AI/pkg/logger"
)

// Verifier 校验 ID Token 并返回对应的用户。
type Verifier interface {
	Verify(ctx context.Context, idToken string) (*Subject, error)
}

// Service 负责 HTTP 端点的身份验证。
type Service struct {
	mode     Mode
	verifier Verifier
	audit    *slog.Logger
}

// Option 定义 Service 的可选配置。
type Option func(*Service)

// WithVerifier 替换令牌校验器。
func WithVerifier(v Verifier) Option {
	return func(s *Service) {
		s.verifier = v
	}
}

// WithHTTPClient 指定拉取公钥证书使用的 HTTP 客户端。
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		if fv, ok := s.verifier.(*FirebaseVerifier); ok && client != nil {
			fv.certs.client = client
		}
	}
}

// NewService 构造身份认证服务实例。
func NewService(cfg Config, opts ...Option) (*Service, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(string(cfg.Mode))))
	if mode == "" {
		mode = ModeFirebase
	}
	svc := &Service{mode: mode, audit: logger.Audit()}

	switch mode {
	case ModeFirebase:
		verifier, err := NewFirebaseVerifier(cfg.ProjectID, cfg.CertsURL, nil)
		if err != nil {
			return nil, err
		}
		svc.verifier = verifier
	case ModeDisabled:
		// 调试模式下若配置了 project id，仍然校验携带的令牌。
		if strings.TrimSpace(cfg.ProjectID) != "" {
			verifier, err := NewFirebaseVerifier(cfg.ProjectID, cfg.CertsURL, nil)
			if err != nil {
				return nil, err
			}
			svc.verifier = verifier
		}
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.Mode)
	}

	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// Mode 返回当前身份认证服务的工作模式。
func (s *Service) Mode() Mode {
	if s == nil {
		return ModeDisabled
	}
	return s.mode
}

// Verify 校验 ID Token。
func (s *Service) Verify(ctx context.Context, idToken string) (*Subject, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return nil, ErrMissingToken
	}
	if s == nil || s.verifier == nil {
		return nil, ErrNoVerifier
	}
	return s.verifier.Verify(ctx, idToken)
}

// AuthenticateRequest 从请求头中识别调用方。
func (s *Service) AuthenticateRequest(r *http.Request) (*Subject, error) {
	header := r.Header.Get("Authorization")
	if s.Mode() == ModeDisabled {
		if uid := strings.TrimSpace(r.Header.Get(DebugUIDHeader)); uid != "" {
			return &Subject{UID: uid, Email: uid + "@debug.local"}, nil
		}
		if s == nil || s.verifier == nil || strings.TrimSpace(header) == "" {
			return nil, ErrMissingToken
		}
	}
	token, err := parseBearer(header)
	if err != nil {
		return nil, err
	}
	return s.Verify(r.Context(), token)
}
