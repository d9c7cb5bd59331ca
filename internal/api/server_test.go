package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"IBSCare-AI/internal/assessment"
	"IBSCare-AI/internal/auth"
	"IBSCare-AI/internal/chat"
	"IBSCare-AI/internal/health"
	"IBSCare-AI/internal/llm"
	"IBSCare-AI/internal/observability/metrics"
	"IBSCare-AI/internal/queue"
	"IBSCare-AI/internal/reminder"
	"IBSCare-AI/internal/store"
)

type stubProvider struct {
	reply string
	err   error
}

func (p stubProvider) Name() string { return "stub" }

func (p stubProvider) Generate(context.Context, string, []llm.Turn, string) (llm.Completion, error) {
	if p.err != nil {
		return llm.Completion{}, p.err
	}
	return llm.Completion{Text: p.reply, TokensUsed: 7, Reported: true}, nil
}

type fixture struct {
	handler http.Handler
	queue   *queue.MemoryQueue
}

func newFixture(t *testing.T, providers ...llm.Provider) *fixture {
	t.Helper()
	authSvc, err := auth.NewService(auth.Config{Mode: auth.ModeDisabled})
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	docs := store.NewMemoryStore()
	assessments := assessment.NewService(docs)
	logs := health.NewService(docs, health.WithAssessments(assessments))
	q := queue.NewMemoryQueue(32)
	chatSvc := chat.NewService(docs, llm.NewAdapter(providers),
		chat.WithHealthContext(logs),
		chat.WithAssessments(assessments),
	)

	reg := prometheus.NewRegistry()
	httpMetrics, err := metrics.NewHTTP(reg)
	if err != nil {
		t.Fatalf("http metrics: %v", err)
	}
	server := NewServer(":0", Dependencies{
		Auth:        authSvc,
		Logs:        logs,
		Chat:        chatSvc,
		Assessments: assessments,
		Reminders:   reminder.NewService(docs, q, logs),
	}, WithAllowedOrigins([]string{"http://localhost:5173"}), WithMetrics(httpMetrics, reg))
	return &fixture{handler: server.Handler(), queue: q}
}

// do 以调试身份 uid 发起请求，uid 为空时不携带身份。
func (f *fixture) do(t *testing.T, method, path, uid, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if uid != "" {
		req.Header.Set(auth.DebugUIDHeader, uid)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health response: %d %s", rec.Code, rec.Body.String())
	}
	rec = f.do(t, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `ibscare_http_requests_total{code="200",handler="GET /health",method="GET"} 1`) {
		t.Fatalf("health request not recorded:\n%s", rec.Body.String())
	}
}

func TestProtectedRoutesRequireIdentity(t *testing.T) {
	f := newFixture(t)
	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/logs"},
		{http.MethodPost, "/api/chat"},
		{http.MethodGet, "/api/chat/history"},
		{http.MethodGet, "/api/assessment/result"},
		{http.MethodGet, "/api/reminders/settings"},
	}
	for _, p := range paths {
		rec := f.do(t, p.method, p.path, "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", p.method, p.path, rec.Code)
		}
		var body errorResponse
		decode(t, rec, &body)
		if body.Code != "UNAUTHENTICATED" {
			t.Fatalf("unexpected error body: %+v", body)
		}
	}
}

func TestVerifyWithoutVerifier(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/auth/verify", "", `{"id_token":"abc"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/api/auth/verify", "", `{}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing token, got %d", rec.Code)
	}
}

func TestLogsCreateUpdateAndList(t *testing.T) {
	f := newFixture(t)
	body := `{"dateISO":"2024-03-01","mood":6,"pain_level":4,"symptoms":["bloating"],"triggers":["coffee"]}`
	rec := f.do(t, http.MethodPost, "/api/logs", "u1", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	var saved saveLogResponse
	decode(t, rec, &saved)
	if saved.ID != "2024-03-01" {
		t.Fatalf("unexpected id: %+v", saved)
	}

	rec = f.do(t, http.MethodPost, "/api/logs", "u1", strings.Replace(body, `"mood":6`, `"mood":8`, 1))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on update, got %d", rec.Code)
	}
	f.do(t, http.MethodPost, "/api/logs", "u1", `{"dateISO":"2024-03-05","mood":5,"pain_level":2}`)
	f.do(t, http.MethodPost, "/api/logs", "u2", `{"dateISO":"2024-03-02","mood":5,"pain_level":2}`)

	rec = f.do(t, http.MethodGet, "/api/logs?from=2024-03-01&to=2024-03-04", "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}
	var logs []health.Log
	decode(t, rec, &logs)
	if len(logs) != 1 || logs[0].Mood != 8 {
		t.Fatalf("unexpected logs: %+v", logs)
	}

	rec = f.do(t, http.MethodGet, "/api/logs?from=2024-04-01", "u1", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("empty range should be [], got %d %s", rec.Code, rec.Body.String())
	}
}

func TestLogsValidation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]string{
		"bad date":     `{"dateISO":"03/01/2024","mood":5,"pain_level":1}`,
		"mood range":   `{"dateISO":"2024-03-01","mood":11,"pain_level":1}`,
		"broken json":  `{"dateISO":`,
		"empty body":   ``,
		"two payloads": `{"dateISO":"2024-03-01","mood":5,"pain_level":1}{}`,
	}
	for name, body := range cases {
		rec := f.do(t, http.MethodPost, "/api/logs", "u1", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d %s", name, rec.Code, rec.Body.String())
		}
		var e errorResponse
		decode(t, rec, &e)
		if e.Code != "INVALID_ARGUMENT" || e.Error == "" {
			t.Fatalf("%s: unexpected error body %+v", name, e)
		}
	}
}

func TestChatRoundTrip(t *testing.T) {
	f := newFixture(t, stubProvider{reply: "Try peppermint tea."})
	rec := f.do(t, http.MethodPost, "/api/chat", "u1", `{"message":"What helps with bloating?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("chat: %d %s", rec.Code, rec.Body.String())
	}
	var reply chat.Reply
	decode(t, rec, &reply)
	if reply.Reply != "Try peppermint tea." || reply.Provider != "stub" || reply.TokensUsed != 7 {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	rec = f.do(t, http.MethodGet, "/api/chat/history?limit=10", "u1", "")
	var history historyResponse
	decode(t, rec, &history)
	if history.Count != 2 || history.Messages[0].Role != llm.RoleUser || history.Messages[1].Role != llm.RoleAssistant {
		t.Fatalf("unexpected history: %+v", history)
	}

	if rec := f.do(t, http.MethodGet, "/api/chat/history?limit=abc", "u1", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}

	if rec := f.do(t, http.MethodDelete, "/api/chat/history", "u1", ""); rec.Code != http.StatusOK {
		t.Fatalf("clear: %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/api/chat/history", "u1", "")
	decode(t, rec, &history)
	if history.Count != 0 || history.Messages == nil {
		t.Fatalf("history should be empty after clear: %+v", history)
	}
}

func TestChatFallbackStillReturns200(t *testing.T) {
	f := newFixture(t, stubProvider{err: context.DeadlineExceeded})
	rec := f.do(t, http.MethodPost, "/api/chat", "u1", `{"message":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on fallback, got %d", rec.Code)
	}
	var reply chat.Reply
	decode(t, rec, &reply)
	if reply.Provider != llm.FallbackProvider || reply.Reply != llm.FallbackReply {
		t.Fatalf("unexpected fallback reply: %+v", reply)
	}

	if rec := f.do(t, http.MethodPost, "/api/chat", "u1", `{"message":"   "}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank message should be rejected, got %d", rec.Code)
	}
}

func TestChatIntroAndSuggestions(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/chat/intro", "u1", "")
	var intro chat.Intro
	decode(t, rec, &intro)
	if intro.ContextAvailable || intro.Message == "" || len(intro.Suggestions) == 0 {
		t.Fatalf("unexpected intro: %+v", intro)
	}
	rec = f.do(t, http.MethodGet, "/api/chat/suggestions", "u1", "")
	var body map[string][]string
	decode(t, rec, &body)
	if len(body["suggestions"]) == 0 {
		t.Fatalf("expected suggestions, got %s", rec.Body.String())
	}
}

func TestAssessmentFlow(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/assessment/questions", "", "")
	var questions map[string][]assessment.Question
	decode(t, rec, &questions)
	if len(questions["questions"]) != 10 {
		t.Fatalf("expected 10 questions, got %d", len(questions["questions"]))
	}

	if rec := f.do(t, http.MethodGet, "/api/assessment/result", "u1", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before submit, got %d", rec.Code)
	}

	body := `{"answers":[
		{"question_id":"stool_consistency","answer":"Hard/lumpy"},
		{"question_id":"bowel_frequency","answer":"Less than 1"},
		{"question_id":"abdominal_pain","answer":"Often"},
		{"question_id":"stress_impact","answer":8}
	]}`
	rec = f.do(t, http.MethodPost, "/api/assessment/submit", "u1", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit: %d %s", rec.Code, rec.Body.String())
	}
	var submitted submitResponse
	decode(t, rec, &submitted)
	if submitted.Result.Classification.IBSType != assessment.TypeIBSC || submitted.Result.Classification.Severity != "severe" {
		t.Fatalf("unexpected classification: %+v", submitted.Result)
	}

	rec = f.do(t, http.MethodGet, "/api/assessment/result", "u1", "")
	var record assessment.Record
	decode(t, rec, &record)
	if record.Classification.IBSType != assessment.TypeIBSC || len(record.Answers) != 4 {
		t.Fatalf("unexpected stored result: %+v", record)
	}

	bad := `{"answers":[{"question_id":"stress_impact","answer":true}]}`
	if rec := f.do(t, http.MethodPost, "/api/assessment/submit", "u1", bad); rec.Code != http.StatusBadRequest {
		t.Fatalf("boolean answer should be rejected, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/assessment/submit", "u1", `{"answers":[]}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty answers should be rejected, got %d", rec.Code)
	}
}

func TestReminderRoutes(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/reminders/settings", "u1", "")
	var settings reminder.Settings
	decode(t, rec, &settings)
	if settings.Enabled || settings.Time != "09:00" {
		t.Fatalf("unexpected defaults: %+v", settings)
	}

	rec = f.do(t, http.MethodPost, "/api/reminders/setup", "u1", `{"time":"20:15","timezone":"America/New_York"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("setup: %d %s", rec.Code, rec.Body.String())
	}
	var setup settingsResponse
	decode(t, rec, &setup)
	if !setup.Settings.Enabled || setup.Settings.Email != "u1@debug.local" {
		t.Fatalf("unexpected setup response: %+v", setup)
	}

	rec = f.do(t, http.MethodPut, "/api/reminders/settings", "u1", `{"enabled":false}`)
	var updated settingsResponse
	decode(t, rec, &updated)
	if updated.Settings.Enabled || updated.Settings.Time != "20:15" {
		t.Fatalf("unexpected update: %+v", updated)
	}

	if rec := f.do(t, http.MethodPut, "/api/reminders/settings", "u1", `{"time":"99:99"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid time should be rejected, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/reminders/test", "u1", ""); rec.Code != http.StatusOK {
		t.Fatalf("test reminder: %d %s", rec.Code, rec.Body.String())
	}
	rec = f.do(t, http.MethodPost, "/api/reminders/weekly-summary", "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("weekly summary: %d %s", rec.Code, rec.Body.String())
	}
	var weekly weeklySummaryResponse
	decode(t, rec, &weekly)
	if weekly.Summary.Consistency != "Could improve" {
		t.Fatalf("unexpected summary: %+v", weekly)
	}

	// 欢迎邮件、测试提醒与周报各一条。
	if got := f.queue.Len(); got != 3 {
		t.Fatalf("expected 3 queued jobs, got %d", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/logs", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected allow origin: %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("credentials should be allowed")
	}
}

func TestWithContextRejectsAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := withContext(ctx, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
