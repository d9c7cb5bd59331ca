package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/sync/singleflight"
)

const (
	clockSkew       = 5 * time.Minute
	maxSubjectLen   = 128
	defaultCertsTTL = time.Hour
	issuerPrefix    = "https://securetoken.google.com/"
)

// firebaseClaims 是 Firebase ID Token 中关心的字段。
type firebaseClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// certSource 拉取并缓存 Google 的 x509 公钥证书，按 Cache-Control 过期。
// 缓存有效期内未知的 kid 直接拒绝，过期后的并发刷新只发起一次请求。
type certSource struct {
	url    string
	client *http.Client
	now    func() time.Time
	group  singleflight.Group

	mu      sync.RWMutex
	keys    map[string]*rsa.PublicKey
	expires time.Time
}

func newCertSource(url string, client *http.Client) *certSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &certSource{url: url, client: client, now: time.Now}
}

// key 返回 kid 对应的公钥。
func (c *certSource) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	keys, fresh := c.cached()
	if !fresh {
		v, err, _ := c.group.Do("certs", func() (any, error) {
			// 等待期间可能已有其他请求完成刷新。
			if keys, fresh := c.cached(); fresh {
				return keys, nil
			}
			return c.refresh(context.WithoutCancel(ctx))
		})
		if err != nil {
			return nil, err
		}
		keys = v.(map[string]*rsa.PublicKey)
	}
	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("未知的签名密钥 %q", kid)
	}
	return key, nil
}

func (c *certSource) cached() (map[string]*rsa.PublicKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.keys, c.keys != nil && c.now().Before(c.expires)
}

func (c *certSource) refresh(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("构造证书请求失败: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("获取公钥证书失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("获取公钥证书失败: HTTP %d", resp.StatusCode)
	}

	var certs map[string]string
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&certs); err != nil {
		return nil, fmt.Errorf("解析公钥证书失败: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(certs))
	for kid, pem := range certs {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			return nil, fmt.Errorf("解析证书 %s 失败: %w", kid, err)
		}
		keys[kid] = key
	}

	c.mu.Lock()
	c.keys = keys
	c.expires = c.now().Add(maxAge(resp.Header.Get("Cache-Control")))
	c.mu.Unlock()
	return keys, nil
}

// maxAge 解析 Cache-Control 中的 max-age。
func maxAge(header string) time.Duration {
	for _, directive := range strings.Split(header, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultCertsTTL
}

// FirebaseVerifier 校验 Firebase ID Token。
type FirebaseVerifier struct {
	projectID string
	certs     *certSource
	parser    *jwt.Parser
	now       func() time.Time
}

// NewFirebaseVerifier 创建校验器，certsURL 为空时使用 Google 的默认地址。
func NewFirebaseVerifier(projectID, certsURL string, client *http.Client) (*FirebaseVerifier, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, errors.New("firebase 模式需要配置 project id")
	}
	if strings.TrimSpace(certsURL) == "" {
		certsURL = DefaultCertsURL
	}
	return &FirebaseVerifier{
		projectID: projectID,
		certs:     newCertSource(certsURL, client),
		// 时间类声明需要容忍时钟偏差，由 validate 自行校验。
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithoutClaimsValidation()),
		now:    time.Now,
	}, nil
}

// Verify 校验签名与声明，返回令牌对应的用户。
func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (*Subject, error) {
	claims := &firebaseClaims{}
	_, err := v.parser.ParseWithClaims(idToken, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("令牌缺少 kid")
		}
		return v.certs.key(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := v.validate(claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &Subject{UID: claims.Subject, Email: claims.Email}, nil
}

func (v *FirebaseVerifier) validate(claims *firebaseClaims) error {
	now := v.now()
	if claims.ExpiresAt == nil || now.After(claims.ExpiresAt.Add(clockSkew)) {
		return errors.New("令牌已过期")
	}
	if claims.IssuedAt == nil || claims.IssuedAt.After(now.Add(clockSkew)) {
		return errors.New("令牌签发时间无效")
	}
	if claims.Issuer != issuerPrefix+v.projectID {
		return fmt.Errorf("签发者不匹配: %s", claims.Issuer)
	}
	if !claims.VerifyAudience(v.projectID, true) {
		return errors.New("受众不匹配")
	}
	if claims.Subject == "" || len(claims.Subject) > maxSubjectLen {
		return errors.New("sub 声明无效")
	}
	return nil
}
