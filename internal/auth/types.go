package auth

import (
	"errors"
	"strings"
)

// Common errors returned by the authentication subsystem.
var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrNoVerifier   = errors.New("token verifier not configured")
)

// Mode 表示身份认证的工作模式。
type Mode string

const (
	// ModeFirebase 校验 Firebase 签发的 ID Token。
	ModeFirebase Mode = "firebase"
	// ModeDisabled 用于本地调试，可通过 X-Debug-UID 指定用户。
	ModeDisabled Mode = "disabled"
)

// DebugUIDHeader 是调试模式下指定用户 ID 的请求头。
const DebugUIDHeader = "X-Debug-UID"

// DefaultCertsURL 是 Google 发布 securetoken 公钥证书的地址。
const DefaultCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

// Config 描述身份认证服务的配置。
type Config struct {
	Mode      Mode
	ProjectID string
	CertsURL  string
}

// Subject 是经过认证的调用方。
type Subject struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

func parseBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}
