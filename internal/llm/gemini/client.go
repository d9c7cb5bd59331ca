package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"

	xerrors "IBSCare-AI/internal/errors"
	"IBSCare-AI/internal/llm"
)

const (
	providerName       = "gemini"
	defaultModelName   = "gemini-1.5-flash"
	defaultMaxTokens   = 1000
	defaultTemperature = 0.7
)

// Config 描述了调用 Gemini generateContent 接口所需的信息。
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	MaxOutputTokens int
	// Temperature 为空时使用 0.7，显式的 0 会原样传给模型。
	Temperature *float64
	HTTPClient  *http.Client
}

// Client 通过 genai SDK 调用 Gemini。
type Client struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
}

// NewClient 根据配置创建 Gemini 客户端。
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 Gemini API Key")
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
			return nil, errors.New("Gemini temperature 不能为负数")
		}
		temperature = *cfg.Temperature
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  cfg.HTTPClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: strings.TrimSpace(cfg.BaseURL)},
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "创建 Gemini 客户端失败")
	}

	return &Client{
		client:      client,
		model:       model,
		maxTokens:   int32(maxTokens),
		temperature: float32(temperature),
	}, nil
}

// Name 返回 provider 名称。
func (c *Client) Name() string { return providerName }

// Generate 将系统提示词与历史拼接为单条 user 消息后调用 Gemini。
func (c *Client) Generate(ctx context.Context, systemPrompt string, history []llm.Turn, message string) (llm.Completion, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(llm.Transcript(systemPrompt, history, message), genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.temperature),
		MaxOutputTokens: c.maxTokens,
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return llm.Completion{}, xerrors.Wrap(xerrors.CodeProviderUnavailable, err, "请求 Gemini 失败")
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return llm.Completion{}, xerrors.New(xerrors.CodeProviderUnavailable, "Gemini 响应中没有 candidates")
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return llm.Completion{}, xerrors.New(xerrors.CodeProviderUnavailable, "Gemini 响应内容为空")
	}

	completion := llm.Completion{Text: text}
	if usage := resp.UsageMetadata; usage != nil && usage.TotalTokenCount > 0 {
		completion.TokensUsed = int(usage.TotalTokenCount)
		completion.Reported = true
	}
	return completion, nil
}
