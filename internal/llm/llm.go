package llm

import (
	"context"
	"strings"
)

// Role 标识对话中一条消息的发送方。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn 是对话中的一条消息，按时间从旧到新排列。
type Turn struct {
	Role    Role
	Content string
}

// Completion 是单个模型服务成功返回的原始结果。
// Reported 为 false 时 TokensUsed 无意义，由适配器估算。
type Completion struct {
	Text       string
	TokensUsed int
	Reported   bool
}

// Provider 定义了调用单个文本生成服务的统一接口。
type Provider interface {
	Name() string
	Generate(ctx context.Context, systemPrompt string, history []Turn, message string) (Completion, error)
}

// Result 是适配器返回给调用方的回复，任何路径都会产出一个 Result。
type Result struct {
	Reply      string `json:"reply"`
	TokensUsed int    `json:"tokens_used"`
	Provider   string `json:"provider"`
}

// FallbackReply 在所有模型服务均不可用时返回。
const FallbackReply = "I apologize, but I'm temporarily unable to process your request. Please try again later or consult with your healthcare provider for immediate concerns."

// FallbackProvider 是兜底回复在 Result.Provider 中的名称。
const FallbackProvider = "fallback"

// IsFallback 判断结果是否来自兜底回复。
func (r Result) IsFallback() bool {
	return r.Provider == FallbackProvider
}

// CountWords 统计以空白分隔的单词数。
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// Transcript 将系统提示词、历史和新消息拼接为 "Human:/Assistant:" 格式的单段文本。
func Transcript(systemPrompt string, history []Turn, message string) string {
	var b strings.Builder
	if prompt := strings.TrimSpace(systemPrompt); prompt != "" {
		b.WriteString(prompt)
		b.WriteString("\n\n")
	}
	for _, turn := range history {
		switch turn.Role {
		case RoleAssistant:
			b.WriteString("Assistant: ")
		case RoleSystem:
			b.WriteString("System: ")
		default:
			b.WriteString("Human: ")
		}
		b.WriteString(turn.Content)
		b.WriteString("\n")
	}
	b.WriteString("Human: ")
	b.WriteString(message)
	b.WriteString("\nAssistant:")
	return b.String()
}
