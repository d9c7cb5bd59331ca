package chat

import (
	"context"
	"fmt"
	"strings"

	"IBSCare-AI/internal/health"
)

const persona = `You are IBSCare AI, a compassionate and knowledgeable health assistant specializing in IBS (Irritable Bowel Syndrome) management. Your role is to provide personalized, evidence-based lifestyle advice and emotional support.

Your capabilities:
- Provide personalized dietary recommendations based on the user's patterns
- Suggest stress management and lifestyle modifications
- Help interpret symptom patterns and triggers
- Offer encouragement and emotional support

Critical guidelines:
- NEVER provide a medical diagnosis or replace professional medical advice
- If the user reports severe symptoms (fever, blood in stool, severe unrelenting pain), advise seeking medical care immediately
- Emphasize that your advice is educational and supplementary to professional healthcare

Response style:
- Keep responses concise but thorough (2-4 paragraphs max)
- Use warm, empathetic language
- Provide specific, actionable advice and end with encouragement and next steps`

const defaultIntro = "Hello! I'm your IBS care assistant. I'm here to help you manage your symptoms and provide personalized advice. How are you feeling today?"

var defaultSuggestions = []string{
	"How can I improve my digestive health?",
	"What foods should I avoid with IBS?",
	"Help me manage stress and anxiety",
	"Tell me about my symptom patterns",
}

var typeSuggestions = map[string][]string{
	"IBS-C": {
		"What high-fiber foods are gentle on IBS-C?",
		"How can I relieve constipation naturally?",
	},
	"IBS-D": {
		"Which foods help with loose stools?",
		"How can I manage sudden urgency?",
	},
	"IBS-M": {
		"How do I cope with alternating symptoms?",
		"What eating routine works best for IBS-M?",
	},
	"IBS-U": {
		"Help me find patterns in my symptoms",
		"What should I track to understand my IBS better?",
	},
}

// SystemPrompt 由基础人设、健康上下文与 IBS 亚型拼接成系统提示词。
func SystemPrompt(hc health.Context, ibsType string) string {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")
	b.WriteString(hc.Prompt())
	if ibsType != "" && hc.IBSType == "" {
		fmt.Fprintf(&b, "\n\nThe user's self-assessment suggests %s.", ibsType)
	}
	return b.String()
}

// Intro 返回根据近期数据调整过的欢迎语。
func (s *Service) Intro(ctx context.Context, userID string) Intro {
	hc := s.loadContext(ctx, userID, s.now().UTC())
	intro := Intro{
		Message:          defaultIntro,
		Suggestions:      append([]string(nil), defaultSuggestions...),
		ContextAvailable: hc.HasData,
	}
	if !hc.HasData {
		return intro
	}
	switch {
	case hc.AvgPain > 6:
		intro.Message = "Hello! I see you've been experiencing higher symptom severity recently. I'm here to help you find relief strategies. How are you feeling today?"
	case hc.AvgMood < 5:
		intro.Message = "Hello! I've noticed your mood has been a bit lower lately. Let's work together on some strategies to help you feel better. How are you doing today?"
	default:
		intro.Message = fmt.Sprintf("Hello! Great to see you've been consistently tracking your health. Based on your %d recent logs, let's continue optimizing your IBS management. How are you feeling today?", hc.LogCount)
	}
	return intro
}

// Suggestions 返回与评估亚型相关的提问建议，并附带两条通用建议。
func (s *Service) Suggestions(ctx context.Context, userID string) []string {
	specific, ok := typeSuggestions[s.classification(ctx, userID)]
	if !ok {
		return append([]string(nil), defaultSuggestions...)
	}
	out := append([]string(nil), specific...)
	return append(out, defaultSuggestions[2:]...)
}
