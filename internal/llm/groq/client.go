package groq

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	xerrors "IBSCare-AI/internal/errors"
	"IBSCare-AI/internal/llm"
)

const (
	providerName       = "groq"
	defaultBaseURL     = "https://api.groq.com/openai/v1"
	defaultModelName   = "llama3-8b-8192"
	defaultMaxTokens   = 800
	defaultTemperature = 0.7
	defaultTimeout     = 30 * time.Second
)

// Config 描述了调用 Groq（OpenAI 兼容）Chat Completions 接口所需的信息。
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	MaxOutputTokens int
	// Temperature 为空时使用 0.7，显式的 0 会原样传给模型。
	Temperature *float64
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Client 使用 openai-go SDK 访问 Groq。
type Client struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewClient 根据配置创建 Groq 客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 Groq API Key")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}
	maxTokens := cfg.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := defaultTemperature
	if cfg.Temperature != nil {
		if *cfg.Temperature < 0 {
			return nil, errors.New("Groq temperature 不能为负数")
		}
		temperature = *cfg.Temperature
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)

	return &Client{
		client:      client,
		model:       model,
		maxTokens:   int64(maxTokens),
		temperature: temperature,
	}, nil
}

// Name 返回 provider 名称。
func (c *Client) Name() string { return providerName }

// Generate 以 system + 历史 + 新消息的消息列表调用 Chat Completions。
func (c *Client) Generate(ctx context.Context, systemPrompt string, history []llm.Turn, message string) (llm.Completion, error) {
	params := openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    buildMessages(systemPrompt, history, message),
		MaxTokens:   openai.Int(c.maxTokens),
		Temperature: openai.Float(c.temperature),
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.Completion{}, xerrors.Wrap(xerrors.CodeProviderUnavailable, err, "请求 Groq 失败")
	}
	if completion == nil || len(completion.Choices) == 0 {
		return llm.Completion{}, xerrors.New(xerrors.CodeProviderUnavailable, "Groq 响应中没有有效的 choices")
	}

	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	if text == "" {
		return llm.Completion{}, xerrors.New(xerrors.CodeProviderUnavailable, "Groq 响应内容为空")
	}

	result := llm.Completion{Text: text}
	if completion.Usage.TotalTokens > 0 {
		result.TokensUsed = int(completion.Usage.TotalTokens)
		result.Reported = true
	}
	return result, nil
}

func buildMessages(systemPrompt string, history []llm.Turn, message string) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openai.SystemMessage(systemPrompt))
	for _, turn := range history {
		switch turn.Role {
		case llm.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		case llm.RoleSystem:
			messages = append(messages, openai.SystemMessage(turn.Content))
		default:
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}
	return append(messages, openai.UserMessage(message))
}
