package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 描述了 IBS Care 在启动阶段需要加载的全部配置。
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
	Auth     AuthConfig     `json:"auth" yaml:"auth"`
	LLM      LLMConfig      `json:"llm" yaml:"llm"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	Queue    QueueConfig    `json:"queue" yaml:"queue"`
	Mail     MailConfig     `json:"mail" yaml:"mail"`
	Reminder ReminderConfig `json:"reminder" yaml:"reminder"`
	Runtime  RuntimeConfig  `json:"runtime" yaml:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址与跨域参数。
type ServerConfig struct {
	Address        string   `json:"address" yaml:"address"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
	Debug          bool     `json:"debug" yaml:"debug"`
}

// LoggingConfig 对应 pkg/logger 的初始化参数。
type LoggingConfig struct {
	Level   string      `json:"level" yaml:"level"`
	Format  string      `json:"format" yaml:"format"`
	Outputs []string    `json:"outputs" yaml:"outputs"`
	Audit   AuditConfig `json:"audit" yaml:"audit"`
}

// AuditConfig 控制审计日志文件及滚动策略。
type AuditConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Path       string `json:"path" yaml:"path"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

// AuthConfig 描述身份令牌校验方式。
type AuthConfig struct {
	Mode              string `json:"mode" yaml:"mode"`
	FirebaseProjectID string `json:"firebase_project_id" yaml:"firebase_project_id"`
	CertsURL          string `json:"certs_url" yaml:"certs_url"`
}

// LLMConfig 用于配置对话适配器及其上游模型。
type LLMConfig struct {
	HistoryLimit   int            `json:"history_limit" yaml:"history_limit"`
	TimeoutSeconds int            `json:"timeout_seconds" yaml:"timeout_seconds"`
	Gemini         ProviderConfig `json:"gemini" yaml:"gemini"`
	Groq           ProviderConfig `json:"groq" yaml:"groq"`
}

// ProviderConfig 描述单个大模型服务的访问参数。
type ProviderConfig struct {
	APIKey          string `json:"api_key" yaml:"api_key"`
	APIKeyEnv       string `json:"api_key_env" yaml:"api_key_env"`
	BaseURL         string `json:"base_url" yaml:"base_url"`
	Model           string `json:"model" yaml:"model"`
	MaxOutputTokens int    `json:"max_output_tokens" yaml:"max_output_tokens"`
	// Temperature 未配置时为空，由 applyDefaults 填入默认值。
	Temperature *float64 `json:"temperature" yaml:"temperature"`
}

// Enabled 表示是否配置了可用的 API Key。
func (p ProviderConfig) Enabled() bool {
	return strings.TrimSpace(p.APIKey) != ""
}

// Timeout 返回单次模型调用的超时时间。
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StorageConfig 描述文档存储的驱动与连接池。
type StorageConfig struct {
	Driver                 string `json:"driver" yaml:"driver"`
	DSN                    string `json:"dsn" yaml:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds" yaml:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds" yaml:"conn_max_idle_time_seconds"`
}

// QueueConfig 描述提醒任务队列。
type QueueConfig struct {
	Driver   string         `json:"driver" yaml:"driver"`
	Workers  int            `json:"workers" yaml:"workers"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq" yaml:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列连接参数。
type RedisConfig struct {
	Address          string `json:"address" yaml:"address"`
	Password         string `json:"password" yaml:"password"`
	DB               int    `json:"db" yaml:"db"`
	Queue            string `json:"queue" yaml:"queue"`
	BlockWaitSeconds int    `json:"block_wait_seconds" yaml:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 队列连接参数。
type RabbitMQConfig struct {
	URL        string `json:"url" yaml:"url"`
	Queue      string `json:"queue" yaml:"queue"`
	Prefetch   int    `json:"prefetch" yaml:"prefetch"`
	Durable    bool   `json:"durable" yaml:"durable"`
	AutoDelete bool   `json:"auto_delete" yaml:"auto_delete"`
}

// MailConfig 描述 SMTP 发信参数。
type MailConfig struct {
	Server        string `json:"server" yaml:"server"`
	Port          int    `json:"port" yaml:"port"`
	UseTLS        bool   `json:"use_tls" yaml:"use_tls"`
	Username      string `json:"username" yaml:"username"`
	Password      string `json:"password" yaml:"password"`
	DefaultSender string `json:"default_sender" yaml:"default_sender"`
	AppURL        string `json:"app_url" yaml:"app_url"`
}

// Configured 表示 SMTP 凭据是否齐全。
func (m MailConfig) Configured() bool {
	return m.Server != "" && m.Username != "" && m.Password != ""
}

// ReminderConfig 控制提醒轮询。
type ReminderConfig struct {
	Enabled         bool `json:"enabled" yaml:"enabled"`
	IntervalSeconds int  `json:"interval_seconds" yaml:"interval_seconds"`
}

// Interval 返回轮询间隔。
func (r ReminderConfig) Interval() time.Duration {
	return time.Duration(r.IntervalSeconds) * time.Second
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

const (
	defaultAllowedOrigins = "http://localhost:5173,https://ibs-care-ai.vercel.app"
	defaultGoogleCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"
	defaultGroqBaseURL    = "https://api.groq.com/openai/v1"
	defaultTemperature    = 0.7
)

// Load 负责读取 .env、解析配置文件（可选）并叠加环境变量。
// path 为空时只使用默认值与环境变量。
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	var cfg Config
	baseDir := "."
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := decode(path, content, &cfg); err != nil {
			return nil, fmt.Errorf("解析配置失败: %w", err)
		}
		baseDir = filepath.Dir(path)
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults(baseDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("检查 .env 文件失败: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("加载 .env 文件失败: %w", err)
	}
	return nil
}

func decode(path string, content []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(content, cfg)
	case ".json":
		return json.Unmarshal(content, cfg)
	default:
		return fmt.Errorf("不支持的配置文件格式: %s", filepath.Ext(path))
	}
}

// applyEnv 用环境变量覆盖配置文件中的取值。
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				*dst = parsed
			}
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = parsed
			}
		}
	}

	if v, ok := lookup("PORT"); ok && strings.TrimSpace(v) != "" {
		c.Server.Address = ":" + strings.TrimPrefix(strings.TrimSpace(v), ":")
	}
	if v, ok := lookup("ALLOWED_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
	boolean("DEBUG", &c.Server.Debug)
	str("LOG_LEVEL", &c.Logging.Level)

	str("AUTH_MODE", &c.Auth.Mode)
	str("FIREBASE_PROJECT_ID", &c.Auth.FirebaseProjectID)

	str("GEMINI_API_KEY", &c.LLM.Gemini.APIKey)
	str("MODEL_NAME", &c.LLM.Gemini.Model)
	str("GROQ_API_KEY", &c.LLM.Groq.APIKey)
	str("GROQ_MODEL", &c.LLM.Groq.Model)

	str("DATABASE_DRIVER", &c.Storage.Driver)
	str("DATABASE_DSN", &c.Storage.DSN)

	str("QUEUE_DRIVER", &c.Queue.Driver)
	str("REDIS_ADDR", &c.Queue.Redis.Address)
	str("REDIS_PASSWORD", &c.Queue.Redis.Password)
	str("RABBITMQ_URL", &c.Queue.RabbitMQ.URL)

	str("MAIL_SERVER", &c.Mail.Server)
	integer("MAIL_PORT", &c.Mail.Port)
	boolean("MAIL_USE_TLS", &c.Mail.UseTLS)
	str("MAIL_USERNAME", &c.Mail.Username)
	str("MAIL_PASSWORD", &c.Mail.Password)
	str("MAIL_DEFAULT_SENDER", &c.Mail.DefaultSender)
	str("FRONTEND_URL", &c.Mail.AppURL)

	for _, p := range []*ProviderConfig{&c.LLM.Gemini, &c.LLM.Groq} {
		if p.APIKey == "" && p.APIKeyEnv != "" {
			if v, ok := lookup(p.APIKeyEnv); ok {
				p.APIKey = strings.TrimSpace(v)
			}
		}
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = splitList(defaultAllowedOrigins)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
		if c.Server.Debug {
			c.Logging.Level = "debug"
		}
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path != "" && !filepath.IsAbs(c.Logging.Audit.Path) {
		c.Logging.Audit.Path = filepath.Join(baseDir, c.Logging.Audit.Path)
	}

	if c.Auth.Mode == "" {
		c.Auth.Mode = "firebase"
		if c.Server.Debug {
			c.Auth.Mode = "disabled"
		}
	}
	if c.Auth.CertsURL == "" {
		c.Auth.CertsURL = defaultGoogleCertsURL
	}

	if c.LLM.HistoryLimit == 0 {
		c.LLM.HistoryLimit = 10
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 30
	}
	if c.LLM.Gemini.Model == "" {
		c.LLM.Gemini.Model = "gemini-1.5-flash"
	}
	if c.LLM.Gemini.MaxOutputTokens == 0 {
		c.LLM.Gemini.MaxOutputTokens = 1000
	}
	if c.LLM.Gemini.Temperature == nil {
		c.LLM.Gemini.Temperature = float64Ptr(defaultTemperature)
	}
	if c.LLM.Groq.Model == "" {
		c.LLM.Groq.Model = "llama3-8b-8192"
	}
	if c.LLM.Groq.BaseURL == "" {
		c.LLM.Groq.BaseURL = defaultGroqBaseURL
	}
	if c.LLM.Groq.MaxOutputTokens == 0 {
		c.LLM.Groq.MaxOutputTokens = 800
	}
	if c.LLM.Groq.Temperature == nil {
		c.LLM.Groq.Temperature = float64Ptr(defaultTemperature)
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.Driver == "sqlite" && c.Storage.DSN == "" {
		c.Storage.DSN = filepath.Join(c.Runtime.DataDir, "ibscare.db")
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 2
	}

	if c.Mail.Server == "" {
		c.Mail.Server = "smtp.gmail.com"
	}
	if c.Mail.Port == 0 {
		c.Mail.Port = 587
		c.Mail.UseTLS = true
	}
	if c.Mail.DefaultSender == "" {
		c.Mail.DefaultSender = c.Mail.Username
	}
	if c.Mail.AppURL == "" {
		c.Mail.AppURL = "https://ibs-care-ai.vercel.app"
	}

	if c.Reminder.IntervalSeconds <= 0 {
		c.Reminder.IntervalSeconds = 60
	}
}

// Validate 在启动阶段一次性校验配置。
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "memory", "sqlite":
	case "mysql":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errs = append(errs, errors.New("mysql 存储需要配置 dsn"))
		}
	default:
		errs = append(errs, fmt.Errorf("未知的存储驱动: %s", c.Storage.Driver))
	}
	switch c.Queue.Driver {
	case "memory":
	case "redis":
		if c.Queue.Redis.Address == "" {
			errs = append(errs, errors.New("redis 队列需要配置 address"))
		}
	case "rabbitmq":
		if c.Queue.RabbitMQ.URL == "" {
			errs = append(errs, errors.New("rabbitmq 队列需要配置 url"))
		}
	default:
		errs = append(errs, fmt.Errorf("未知的队列驱动: %s", c.Queue.Driver))
	}
	switch c.Auth.Mode {
	case "disabled":
	case "firebase":
		if strings.TrimSpace(c.Auth.FirebaseProjectID) == "" {
			errs = append(errs, errors.New("firebase 认证需要配置 firebase_project_id"))
		}
	default:
		errs = append(errs, fmt.Errorf("未知的认证模式: %s", c.Auth.Mode))
	}
	if c.LLM.TimeoutSeconds < 0 {
		errs = append(errs, errors.New("llm.timeout_seconds 不能为负数"))
	}
	if c.LLM.HistoryLimit < 0 {
		errs = append(errs, errors.New("llm.history_limit 不能为负数"))
	}
	for name, p := range map[string]ProviderConfig{"gemini": c.LLM.Gemini, "groq": c.LLM.Groq} {
		if p.Temperature != nil && *p.Temperature < 0 {
			errs = append(errs, fmt.Errorf("llm.%s.temperature 不能为负数", name))
		}
	}
	return errors.Join(errs...)
}

func float64Ptr(v float64) *float64 { return &v }

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
