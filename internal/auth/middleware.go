package auth

import (
	"errors"
	"net/http"
	"time"

	loggerpkg "IBSCare-AI/pkg/logger"
)

// Middleware 返回一个 HTTP 中间件，拒绝未认证的请求并记录审计日志。
// deny 负责输出拒绝响应，为空时使用纯文本 401。
func (s *Service) Middleware(deny func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	if deny == nil {
		deny = func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := loggerpkg.Audit()
			if s != nil && s.audit != nil {
				logger = s.audit
			}

			// 认证请求。
			subject, err := s.AuthenticateRequest(r)
			if err != nil {
				reason := "invalid_token"
				if errors.Is(err, ErrMissingToken) {
					reason = "missing_token"
				}
				deny(w, r, err)
				logger.Warn("access_denied",
					"path", r.URL.Path,
					"method", r.Method,
					"status", http.StatusUnauthorized,
					"reason", reason,
					"error", err.Error(),
				)
				return
			}

			// 记录审计日志。
			start := time.Now()
			aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(aw, r.WithContext(WithSubject(r.Context(), subject)))
			logger.Info("api_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", aw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"user", subject.UID,
			)
		})
	}
}

// auditWriter 是一个包装了 http.ResponseWriter 的结构体，用于捕获响应状态码。
type auditWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

// WriteHeader 捕获响应状态码并调用底层的 WriteHeader 方法。
func (w *auditWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *auditWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}
