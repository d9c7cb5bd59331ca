package health

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	xerrors "IBSCare-AI/internal/errors"
	"IBSCare-AI/internal/store"
)

type stubAssessments struct {
	ibsType  string
	severity string
	err      error
}

func (s stubAssessments) Classification(context.Context, string) (string, string, error) {
	return s.ibsType, s.severity, s.err
}

func fixedClock() time.Time {
	return time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)
}

func TestLogInputValidate(t *testing.T) {
	valid := LogInput{DateISO: "2024-03-20", Mood: 5, PainLevel: 0}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := map[string]LogInput{
		"date":  {DateISO: "20-03-2024", Mood: 5},
		"mood":  {DateISO: "2024-03-20", Mood: 0},
		"high":  {DateISO: "2024-03-20", Mood: 11},
		"pain":  {DateISO: "2024-03-20", Mood: 5, PainLevel: 11},
		"meal":  {DateISO: "2024-03-20", Mood: 5, Meals: []Meal{{TimeISO: "25:00"}}},
		"notes": {DateISO: "2024-03-20", Mood: 5, Notes: strings.Repeat("n", MaxNotesLength+1)},
	}
	for name, in := range cases {
		err := in.Validate()
		if !xerrors.IsCode(err, xerrors.CodeInvalidArgument) {
			t.Fatalf("%s: expected INVALID_ARGUMENT, got %v", name, err)
		}
	}
}

func TestSaveLogUpsertPreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	current := fixedClock()
	svc := NewService(store.NewMemoryStore(), WithClock(func() time.Time { return current }))

	first, created, err := svc.SaveLog(ctx, "u1", LogInput{DateISO: "2024-03-20", Mood: 4, PainLevel: 6,
		Triggers: []string{" dairy ", ""}, Meals: []Meal{{TimeISO: "08:15", Items: []string{"toast"}}}})
	if err != nil || !created {
		t.Fatalf("first save: created=%v err=%v", created, err)
	}
	if len(first.Triggers) != 1 || first.Triggers[0] != "dairy" {
		t.Fatalf("triggers not normalised: %v", first.Triggers)
	}

	current = current.Add(time.Hour)
	second, created, err := svc.SaveLog(ctx, "u1", LogInput{DateISO: "2024-03-20", Mood: 7, PainLevel: 2})
	if err != nil || created {
		t.Fatalf("second save: created=%v err=%v", created, err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("created_at changed: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if !second.UpdatedAt.Equal(current) {
		t.Fatalf("updated_at not refreshed: %v", second.UpdatedAt)
	}

	logs, err := svc.ListLogs(ctx, "u1", "", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 1 || logs[0].Mood != 7 {
		t.Fatalf("expected a single updated log, got %+v", logs)
	}
}

func TestListLogsRange(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemoryStore())
	for _, date := range []string{"2024-03-03", "2024-03-01", "2024-03-02", "2024-03-05"} {
		if _, _, err := svc.SaveLog(ctx, "u1", LogInput{DateISO: date, Mood: 5}); err != nil {
			t.Fatalf("save %s: %v", date, err)
		}
	}

	logs, err := svc.ListLogs(ctx, "u1", "2024-03-02", "2024-03-03")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var dates []string
	for _, l := range logs {
		dates = append(dates, l.DateISO)
	}
	if fmt.Sprint(dates) != "[2024-03-02 2024-03-03]" {
		t.Fatalf("unexpected range result: %v", dates)
	}

	all, _ := svc.ListLogs(ctx, "u1", "", "")
	if len(all) != 4 || all[0].DateISO != "2024-03-01" {
		t.Fatalf("expected ascending order, got %+v", all)
	}

	if _, err := svc.ListLogs(ctx, "u1", "yesterday", ""); !xerrors.IsCode(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestContextAggregates(t *testing.T) {
	ctx := context.Background()
	now := fixedClock()
	svc := NewService(store.NewMemoryStore(), WithAssessments(stubAssessments{ibsType: "IBS-D", severity: "moderate"}))

	entries := []LogInput{
		{DateISO: "2024-03-20", Mood: 6, PainLevel: 3, Symptoms: []string{"bloating"}, Triggers: []string{"coffee", "stress"}},
		{DateISO: "2024-03-19", Mood: 4, PainLevel: 7, Symptoms: []string{"cramps", "bloating"}, Triggers: []string{"stress"}},
		{DateISO: "2024-03-18", Mood: 5, PainLevel: 6, Triggers: []string{"dairy"}},
		// 超出 14 天窗口，不参与统计。
		{DateISO: "2024-02-01", Mood: 1, PainLevel: 10, Triggers: []string{"old"}},
	}
	for _, in := range entries {
		if _, _, err := svc.SaveLog(ctx, "u1", in); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	hc, err := svc.Context(ctx, "u1", now)
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if !hc.HasData || hc.LogCount != 3 || hc.DaysTracked != 3 {
		t.Fatalf("unexpected counts: %+v", hc)
	}
	if hc.AvgMood != 5 || hc.AvgPain != 5.3 {
		t.Fatalf("unexpected averages: mood=%v pain=%v", hc.AvgMood, hc.AvgPain)
	}
	if fmt.Sprint(hc.CommonTriggers) != "[stress coffee dairy]" {
		t.Fatalf("unexpected trigger ranking: %v", hc.CommonTriggers)
	}
	if fmt.Sprint(hc.CommonSymptoms) != "[bloating cramps]" {
		t.Fatalf("unexpected symptom ranking: %v", hc.CommonSymptoms)
	}
	if hc.LastLogDate != "2024-03-20" || hc.IBSType != "IBS-D" || hc.Severity != "moderate" {
		t.Fatalf("unexpected context: %+v", hc)
	}

	prompt := hc.Prompt()
	for _, want := range []string{"User's Health Context:", "Recent logs: 3 entries over 3 days", "Average pain level: 5.3/10", "IBS type: IBS-D (moderate)", "Common triggers: stress, coffee, dairy"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestContextWithoutData(t *testing.T) {
	svc := NewService(store.NewMemoryStore(), WithAssessments(stubAssessments{err: errors.New("boom")}))
	hc, err := svc.Context(context.Background(), "nobody", fixedClock())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hc.HasData || hc.Prompt() != "No recent health data available." {
		t.Fatalf("unexpected empty context: %+v", hc)
	}
	if hc.CommonTriggers == nil || hc.CommonSymptoms == nil {
		t.Fatalf("lists should be empty, not nil")
	}
}

func TestContextLimitsToRecentLogs(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemoryStore())
	now := fixedClock()
	for i := 0; i < 14; i++ {
		date := now.AddDate(0, 0, -i).Format(DateLayout)
		if _, _, err := svc.SaveLog(ctx, "u1", LogInput{DateISO: date, Mood: 5}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	hc, err := svc.Context(ctx, "u1", now)
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if hc.LogCount != 14 || hc.LastLogDate != "2024-03-20" {
		t.Fatalf("unexpected context window: %+v", hc)
	}
}

func TestWeeklySummaryConsistency(t *testing.T) {
	ctx := context.Background()
	now := fixedClock()
	cases := []struct {
		days int
		want string
	}{
		{0, "Could improve"},
		{3, "Could improve"},
		{4, "Good"},
		{6, "Excellent"},
		{7, "Excellent"},
	}
	for _, tc := range cases {
		svc := NewService(store.NewMemoryStore())
		for i := 0; i < tc.days; i++ {
			date := now.AddDate(0, 0, -i).Format(DateLayout)
			if _, _, err := svc.SaveLog(ctx, "u1", LogInput{DateISO: date, Mood: 8, PainLevel: 2, Triggers: []string{"gluten"}}); err != nil {
				t.Fatalf("save: %v", err)
			}
		}
		// 第 8 天之前的日志不计入周报。
		if _, _, err := svc.SaveLog(ctx, "u1", LogInput{DateISO: now.AddDate(0, 0, -7).Format(DateLayout), Mood: 1}); err != nil {
			t.Fatalf("save: %v", err)
		}

		summary, err := svc.WeeklySummary(ctx, "u1", now)
		if err != nil {
			t.Fatalf("summary: %v", err)
		}
		if summary.DaysLogged != tc.days || summary.Consistency != tc.want {
			t.Fatalf("days=%d: unexpected summary %+v", tc.days, summary)
		}
		if tc.days > 0 && (summary.AvgMood != 8 || summary.CommonTriggers[0] != "gluten") {
			t.Fatalf("days=%d: unexpected averages %+v", tc.days, summary)
		}
	}
}

func TestHasLog(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemoryStore())
	if ok, err := svc.HasLog(ctx, "u1", "2024-03-20"); err != nil || ok {
		t.Fatalf("expected no log, got %v %v", ok, err)
	}
	if _, _, err := svc.SaveLog(ctx, "u1", LogInput{DateISO: "2024-03-20", Mood: 5}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ok, err := svc.HasLog(ctx, "u1", "2024-03-20"); err != nil || !ok {
		t.Fatalf("expected log, got %v %v", ok, err)
	}
}
