package mail

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

// Kind 标识邮件模板类型。
type Kind string

const (
	KindDailyReminder Kind = "daily"
	KindWelcome       Kind = "welcome"
	KindWeeklySummary Kind = "weekly_summary"
)

// TemplateData 是渲染模板所需的数据。
type TemplateData struct {
	Name     string
	AppURL   string
	Time     string
	Timezone string
	Summary  *SummaryData
}

// SummaryData 是周报邮件中的统计数据。
type SummaryData struct {
	DaysLogged     int
	AvgMood        float64
	AvgPain        float64
	CommonTriggers []string
	Consistency    string
}

// Greeting 返回问候语。
func (d TemplateData) Greeting() string {
	if name := strings.TrimSpace(d.Name); name != "" {
		return "Hi " + name + "!"
	}
	return "Hi there!"
}

// Triggers 返回逗号分隔的常见诱因。
func (s SummaryData) Triggers() string {
	if len(s.CommonTriggers) == 0 {
		return "None identified"
	}
	return strings.Join(s.CommonTriggers, ", ")
}

type template struct {
	subject string
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

var templates = map[Kind]template{
	KindDailyReminder: {
		subject: "🌅 Daily IBS Symptom Log Reminder",
		text: texttemplate.Must(texttemplate.New("daily").Parse(`{{.Greeting}}

It's time for your daily IBS symptom check-in! 📝

Tracking your symptoms daily helps you:
• Identify patterns and triggers
• Monitor your progress
• Make informed decisions about your health
• Share valuable data with your healthcare provider

Take just 2 minutes to log today's symptoms at: {{.AppURL}}/logs

Your health journey matters! 💜

Best regards,
Your IBS Care AI Team

---
This is an automated reminder. Please do not reply to this email.`)),
		html: htmltemplate.Must(htmltemplate.New("daily").Parse(`<p>{{.Greeting}}</p>
<p>It's time for your daily IBS symptom check-in! 📝</p>
<p><a href="{{.AppURL}}/logs">Log today's symptoms</a>. It takes about 2 minutes.</p>
<p>Your health journey matters! 💜<br>Your IBS Care AI Team</p>`)),
	},
	KindWelcome: {
		subject: "🎉 Welcome to IBS Care AI!",
		text: texttemplate.Must(texttemplate.New("welcome").Parse(`{{.Greeting}}

Welcome to IBS Care AI! We're excited to help you on your health journey. 🌟

📊 Track daily symptoms: log your mood, pain levels and triggers.
🤖 AI-powered coaching: ask health questions and get context-aware advice.
📈 Visual analytics: follow your progress over time.
📧 Daily reminders{{if .Time}}: we'll remind you every day at {{.Time}} ({{.Timezone}}){{end}}.

Ready to get started? Visit: {{.AppURL}}/dashboard

Your health data is secure and private.

Best regards,
The IBS Care AI Team`)),
		html: htmltemplate.Must(htmltemplate.New("welcome").Parse(`<p>{{.Greeting}}</p>
<p>Welcome to IBS Care AI! We're excited to help you on your health journey. 🌟</p>
{{if .Time}}<p>We'll remind you every day at <strong>{{.Time}}</strong> ({{.Timezone}}).</p>{{end}}
<p><a href="{{.AppURL}}/dashboard">Open your dashboard</a></p>
<p>The IBS Care AI Team</p>`)),
	},
	KindWeeklySummary: {
		subject: "📊 Your Weekly IBS Health Summary",
		text: texttemplate.Must(texttemplate.New("weekly").Parse(`{{.Greeting}}

Here's your weekly health summary: 📈
{{with .Summary}}
📅 Week Overview
• Days tracked: {{.DaysLogged}}/7
• Average mood: {{printf "%.1f" .AvgMood}}/10
• Average pain level: {{printf "%.1f" .AvgPain}}/10

🎯 Key Insights
• Most common triggers: {{.Triggers}}
• Tracking consistency: {{.Consistency}}
{{end}}
💡 Recommendations
• Keep up the great tracking work!
• Consider logging on days you missed
• Review your trigger patterns
• Share insights with your healthcare provider

View your full dashboard: {{.AppURL}}/dashboard

Best regards,
Your IBS Care AI Team`)),
		html: htmltemplate.Must(htmltemplate.New("weekly").Parse(`<p>{{.Greeting}}</p>
<p>Here's your weekly health summary: 📈</p>
{{with .Summary}}<ul>
<li>Days tracked: {{.DaysLogged}}/7</li>
<li>Average mood: {{printf "%.1f" .AvgMood}}/10</li>
<li>Average pain level: {{printf "%.1f" .AvgPain}}/10</li>
<li>Most common triggers: {{.Triggers}}</li>
<li>Tracking consistency: {{.Consistency}}</li>
</ul>{{end}}
<p><a href="{{.AppURL}}/dashboard">View your full dashboard</a></p>`)),
	},
}

// Render 按模板类型生成邮件。
func Render(kind Kind, to string, data TemplateData) (Message, error) {
	tpl, ok := templates[kind]
	if !ok {
		return Message{}, fmt.Errorf("未知的邮件模板: %s", kind)
	}
	if kind == KindWeeklySummary && data.Summary == nil {
		return Message{}, fmt.Errorf("周报邮件缺少统计数据")
	}
	data.AppURL = strings.TrimRight(data.AppURL, "/")

	var text, html bytes.Buffer
	if err := tpl.text.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("渲染邮件正文失败: %w", err)
	}
	if err := tpl.html.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("渲染 HTML 邮件失败: %w", err)
	}
	return Message{
		To:      to,
		Subject: tpl.subject,
		Text:    strings.TrimSpace(text.String()),
		HTML:    strings.TrimSpace(html.String()),
	}, nil
}
