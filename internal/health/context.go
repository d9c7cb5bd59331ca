package health

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

const (
	contextWindowDays = 14
	contextMaxLogs    = 50
	summaryWindowDays = 7
	topN              = 5
)

// Context 汇总用户近期的健康数据，用于个性化对话。
type Context struct {
	HasData        bool     `json:"has_data"`
	LogCount       int      `json:"log_count"`
	DaysTracked    int      `json:"days_tracked"`
	AvgMood        float64  `json:"avg_mood"`
	AvgPain        float64  `json:"avg_pain"`
	CommonSymptoms []string `json:"common_symptoms"`
	CommonTriggers []string `json:"common_triggers"`
	LastLogDate    string   `json:"last_log_date,omitempty"`
	IBSType        string   `json:"ibs_type,omitempty"`
	Severity       string   `json:"severity,omitempty"`
}

// Prompt 渲染系统提示词中的健康上下文段落。
func (c Context) Prompt() string {
	if !c.HasData {
		return "No recent health data available."
	}
	var b strings.Builder
	b.WriteString("User's Health Context:\n")
	fmt.Fprintf(&b, "- Recent logs: %d entries over %d days\n", c.LogCount, c.DaysTracked)
	fmt.Fprintf(&b, "- Average mood: %.1f/10\n", c.AvgMood)
	fmt.Fprintf(&b, "- Average pain level: %.1f/10", c.AvgPain)
	if c.LastLogDate != "" {
		fmt.Fprintf(&b, "\n- Last log date: %s", c.LastLogDate)
	}
	if c.IBSType != "" {
		fmt.Fprintf(&b, "\n- IBS type: %s", c.IBSType)
		if c.Severity != "" {
			fmt.Fprintf(&b, " (%s)", c.Severity)
		}
	}
	if len(c.CommonSymptoms) > 0 {
		fmt.Fprintf(&b, "\n- Common symptoms: %s", strings.Join(c.CommonSymptoms, ", "))
	}
	if len(c.CommonTriggers) > 0 {
		fmt.Fprintf(&b, "\n- Common triggers: %s", strings.Join(c.CommonTriggers, ", "))
	}
	b.WriteString("\n\nUse this context to personalize your advice and reference specific patterns when relevant.")
	return b.String()
}

// WeeklySummary 是最近七天的统计结果。
type WeeklySummary struct {
	DaysLogged     int      `json:"days_logged"`
	AvgMood        float64  `json:"avg_mood"`
	AvgPain        float64  `json:"avg_pain"`
	CommonTriggers []string `json:"common_triggers"`
	Consistency    string   `json:"consistency"`
}

// buildContext 基于按日期倒序排列的日志计算健康上下文。
func buildContext(logs []Log) Context {
	ctx := Context{CommonSymptoms: []string{}, CommonTriggers: []string{}}
	if len(logs) == 0 {
		return ctx
	}
	ctx.HasData = true
	ctx.LogCount = len(logs)
	ctx.LastLogDate = logs[0].DateISO
	ctx.DaysTracked = uniqueDates(logs)
	ctx.AvgMood, ctx.AvgPain = averages(logs)
	ctx.CommonSymptoms = topItems(logs, func(l Log) []string { return l.Symptoms }, topN)
	ctx.CommonTriggers = topItems(logs, func(l Log) []string { return l.Triggers }, topN)
	return ctx
}

func buildSummary(logs []Log) WeeklySummary {
	summary := WeeklySummary{CommonTriggers: []string{}}
	summary.DaysLogged = uniqueDates(logs)
	if len(logs) > 0 {
		summary.AvgMood, summary.AvgPain = averages(logs)
		summary.CommonTriggers = topItems(logs, func(l Log) []string { return l.Triggers }, topN)
	}
	summary.Consistency = consistency(summary.DaysLogged)
	return summary
}

func consistency(days int) string {
	switch {
	case days >= 6:
		return "Excellent"
	case days >= 4:
		return "Good"
	default:
		return "Could improve"
	}
}

func uniqueDates(logs []Log) int {
	seen := make(map[string]struct{}, len(logs))
	for _, l := range logs {
		seen[l.DateISO] = struct{}{}
	}
	return len(seen)
}

func averages(logs []Log) (mood, pain float64) {
	var moodSum, painSum int
	for _, l := range logs {
		moodSum += l.Mood
		painSum += l.PainLevel
	}
	n := float64(len(logs))
	return round1(float64(moodSum) / n), round1(float64(painSum) / n)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// topItems 统计出现次数最多的条目，次数相同时按首次出现顺序。
func topItems(logs []Log, pick func(Log) []string, n int) []string {
	counts := make(map[string]int)
	var order []string
	for _, l := range logs {
		for _, item := range pick(l) {
			if _, ok := counts[item]; !ok {
				order = append(order, item)
			}
			counts[item]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > n {
		order = order[:n]
	}
	if order == nil {
		return []string{}
	}
	return order
}
