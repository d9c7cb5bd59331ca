package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"IBSCare-AI/internal/assessment"
	"IBSCare-AI/internal/chat"
	xerrors "IBSCare-AI/internal/errors"
	"IBSCare-AI/internal/health"
	"IBSCare-AI/internal/reminder"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type verifyRequest struct {
	IDToken string `json:"id_token"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sub, err := s.deps.Auth.Verify(r.Context(), req.IDToken)
	if err != nil {
		s.deny(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

type saveLogResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

func (s *Server) handleSaveLog(w http.ResponseWriter, r *http.Request) {
	var in health.LogInput
	if err := decodeBody(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	saved, created, err := s.deps.Logs.SaveLog(r.Context(), subject(r).UID, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if created {
		writeJSON(w, http.StatusCreated, saveLogResponse{Message: "Log created successfully", ID: saved.DateISO})
		return
	}
	writeJSON(w, http.StatusOK, saveLogResponse{Message: "Log updated successfully", ID: saved.DateISO})
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	logs, err := s.deps.Logs.ListLogs(r.Context(), subject(r).UID, query.Get("from"), query.Get("to"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if logs == nil {
		logs = []health.Log{}
	}
	writeJSON(w, http.StatusOK, logs)
}

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	reply, err := s.deps.Chat.Send(r.Context(), subject(r).UID, req.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

type historyResponse struct {
	Messages []chat.Message `json:"messages"`
	Count    int            `json:"count"`
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, xerrors.New(xerrors.CodeInvalidArgument, "limit 必须是整数"))
			return
		}
		limit = parsed
	}
	messages, err := s.deps.Chat.History(r.Context(), subject(r).UID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Messages: messages, Count: len(messages)})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Chat.ClearHistory(r.Context(), subject(r).UID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Chat history cleared"})
}

func (s *Server) handleChatIntro(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Chat.Intro(r.Context(), subject(r).UID))
}

func (s *Server) handleChatSuggestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"suggestions": s.deps.Chat.Suggestions(r.Context(), subject(r).UID)})
}

func (s *Server) handleQuestions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]assessment.Question{"questions": assessment.Questions()})
}

// submitRequest 中的答案可以是字符串或数字。
type submitRequest struct {
	Answers []struct {
		QuestionID string          `json:"question_id"`
		Answer     json.RawMessage `json:"answer"`
	} `json:"answers"`
}

type submitResponse struct {
	Result  assessment.Result `json:"result"`
	Message string            `json:"message"`
}

func (s *Server) handleSubmitAssessment(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	answers := make(map[string]string, len(req.Answers))
	for _, a := range req.Answers {
		value, err := answerValue(a.Answer)
		if err != nil {
			s.writeError(w, r, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "答案格式无效",
				xerrors.WithMetadata("question_id", a.QuestionID)))
			return
		}
		answers[strings.TrimSpace(a.QuestionID)] = value
	}
	result, err := s.deps.Assessments.Submit(r.Context(), subject(r).UID, subject(r).Email, answers)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{Result: result, Message: "Assessment completed successfully"})
}

// answerValue 将字符串或数字形式的答案统一为字符串。
func answerValue(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return "", err
		}
		return str, nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return "", err
	}
	return num.String(), nil
}

func (s *Server) handleAssessmentResult(w http.ResponseWriter, r *http.Request) {
	record, err := s.deps.Assessments.Latest(r.Context(), subject(r).UID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type settingsResponse struct {
	Message  string            `json:"message"`
	Settings reminder.Settings `json:"settings"`
}

func recipient(r *http.Request) reminder.Recipient {
	sub := subject(r)
	return reminder.Recipient{UserID: sub.UID, Email: sub.Email}
}

func (s *Server) handleReminderSetup(w http.ResponseWriter, r *http.Request) {
	var in reminder.Input
	if err := decodeBody(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	settings, err := s.deps.Reminders.Setup(r.Context(), recipient(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, settingsResponse{Message: "Reminder set up successfully", Settings: settings})
}

func (s *Server) handleReminderSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.deps.Reminders.Settings(r.Context(), recipient(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleUpdateReminder(w http.ResponseWriter, r *http.Request) {
	var in reminder.Input
	if err := decodeBody(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	settings, err := s.deps.Reminders.Update(r.Context(), recipient(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{Message: "Reminder settings updated", Settings: settings})
}

func (s *Server) handleReminderTest(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Reminders.SendTest(r.Context(), recipient(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Test reminder queued"})
}

type weeklySummaryResponse struct {
	Message string               `json:"message"`
	Summary health.WeeklySummary `json:"summary"`
}

func (s *Server) handleWeeklySummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Reminders.WeeklySummary(r.Context(), recipient(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, weeklySummaryResponse{Message: "Weekly summary queued", Summary: summary})
}
