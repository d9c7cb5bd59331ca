package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"

	"IBSCare-AI/internal/assessment"
	"IBSCare-AI/internal/auth"
	"IBSCare-AI/internal/chat"
	"IBSCare-AI/internal/health"
	"IBSCare-AI/internal/observability/metrics"
	"IBSCare-AI/internal/reminder"
	"IBSCare-AI/pkg/logger"
)

// maxBodyBytes 限制请求体大小。
const maxBodyBytes = 1 << 20

// Dependencies 汇总 API 依赖的业务服务。
type Dependencies struct {
	Auth        *auth.Service
	Logs        *health.Service
	Chat        *chat.Service
	Assessments *assessment.Service
	Reminders   *reminder.Service
}

// Server 负责暴露 REST 接口。
type Server struct {
	addr     string
	deps     Dependencies
	origins  []string
	metrics  *metrics.HTTP
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option 定义 Server 的可选配置。
type Option func(*Server)

// WithAllowedOrigins 设置允许跨域访问的来源。
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = append([]string(nil), origins...)
		}
	}
}

// WithMetrics 开启 HTTP 指标并通过 /metrics 暴露 gatherer。
func WithMetrics(m *metrics.HTTP, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		if gatherer != nil {
			s.gatherer = gatherer
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, deps Dependencies, opts ...Option) *Server {
	s := &Server{
		addr:     addr,
		deps:     deps,
		gatherer: prometheus.DefaultGatherer,
		logger:   logger.Named("api"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回挂载了全部路由与中间件的处理器。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	protect := s.deps.Auth.Middleware(s.deny)

	s.handle(mux, "GET /health", http.HandlerFunc(s.handleHealth))
	mux.Handle("GET /metrics", metrics.Handler(s.gatherer))
	s.handle(mux, "POST /api/auth/verify", http.HandlerFunc(s.handleVerify))

	s.handle(mux, "POST /api/logs", protect(http.HandlerFunc(s.handleSaveLog)))
	s.handle(mux, "GET /api/logs", protect(http.HandlerFunc(s.handleListLogs)))

	s.handle(mux, "POST /api/chat", protect(http.HandlerFunc(s.handleChat)))
	s.handle(mux, "GET /api/chat/history", protect(http.HandlerFunc(s.handleChatHistory)))
	s.handle(mux, "DELETE /api/chat/history", protect(http.HandlerFunc(s.handleClearHistory)))
	s.handle(mux, "GET /api/chat/intro", protect(http.HandlerFunc(s.handleChatIntro)))
	s.handle(mux, "GET /api/chat/suggestions", protect(http.HandlerFunc(s.handleChatSuggestions)))

	s.handle(mux, "GET /api/assessment/questions", http.HandlerFunc(s.handleQuestions))
	s.handle(mux, "POST /api/assessment/submit", protect(http.HandlerFunc(s.handleSubmitAssessment)))
	s.handle(mux, "GET /api/assessment/result", protect(http.HandlerFunc(s.handleAssessmentResult)))

	s.handle(mux, "POST /api/reminders/setup", protect(http.HandlerFunc(s.handleReminderSetup)))
	s.handle(mux, "GET /api/reminders/settings", protect(http.HandlerFunc(s.handleReminderSettings)))
	s.handle(mux, "PUT /api/reminders/settings", protect(http.HandlerFunc(s.handleUpdateReminder)))
	s.handle(mux, "POST /api/reminders/test", protect(http.HandlerFunc(s.handleReminderTest)))
	s.handle(mux, "POST /api/reminders/weekly-summary", protect(http.HandlerFunc(s.handleWeeklySummary)))

	return cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", auth.DebugUIDHeader},
		AllowCredentials: true,
	}).Handler(mux)
}

func (s *Server) handle(mux *http.ServeMux, pattern string, h http.Handler) {
	mux.Handle(pattern, s.metrics.Instrument(pattern, h))
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("API 服务已启动", slog.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		s.logger.Info("API 服务已关闭")
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
