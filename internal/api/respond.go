package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"IBSCare-AI/internal/auth"
	xerrors "IBSCare-AI/internal/errors"
	"IBSCare-AI/pkg/logger"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError 根据错误码输出 {error, code}，5xx 会记录日志。
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := xerrors.HTTPStatusOf(err)
	code := xerrors.CodeOf(err)
	message := http.StatusText(status)
	if e, ok := xerrors.From(err); ok && e.Message() != "" {
		message = e.Message()
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("请求处理失败",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("code", string(code)),
			logger.Err(err),
		)
	}
	writeJSON(w, status, errorResponse{Error: message, Code: string(code)})
}

// deny 是认证中间件的拒绝响应。
func (s *Server) deny(w http.ResponseWriter, _ *http.Request, err error) {
	message := "无效的身份令牌"
	if errors.Is(err, auth.ErrMissingToken) {
		message = "缺少身份令牌"
	}
	writeJSON(w, http.StatusUnauthorized, errorResponse{Error: message, Code: string(xerrors.CodeUnauthenticated)})
}

// decodeBody 解析 JSON 请求体，限制大小并拒绝多余内容。
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return xerrors.New(xerrors.CodeInvalidArgument, "请求体过大")
		case errors.Is(err, io.EOF):
			return xerrors.New(xerrors.CodeInvalidArgument, "请求体不能为空")
		default:
			return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败")
		}
	}
	if dec.More() {
		return xerrors.New(xerrors.CodeInvalidArgument, "请求体只能包含一个 JSON 对象")
	}
	return nil
}

// subject 返回认证中间件注入的调用方。
func subject(r *http.Request) *auth.Subject {
	if sub := auth.SubjectFromContext(r.Context()); sub != nil {
		return sub
	}
	return &auth.Subject{}
}
