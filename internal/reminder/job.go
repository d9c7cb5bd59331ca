package reminder

import (
	"encoding/json"
	"fmt"

	"IBSCare-AI/internal/health"
	"IBSCare-AI/internal/mail"
)

// Job 是投递到队列中的一次发信任务。
type Job struct {
	Kind     mail.Kind             `json:"kind"`
	UserID   string                `json:"user_id"`
	Email    string                `json:"email"`
	Time     string                `json:"time,omitempty"`
	Timezone string                `json:"timezone,omitempty"`
	Summary  *health.WeeklySummary `json:"summary,omitempty"`
}

func (j Job) encode() ([]byte, error) {
	return json.Marshal(j)
}

func decodeJob(payload []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return Job{}, fmt.Errorf("解析提醒任务失败: %w", err)
	}
	if job.Email == "" {
		return Job{}, fmt.Errorf("提醒任务缺少收件人: user=%s", job.UserID)
	}
	return job, nil
}

// render 根据任务类型渲染邮件。
func (j Job) render(appURL string) (mail.Message, error) {
	data := mail.TemplateData{
		Name:     displayName(j.Email),
		AppURL:   appURL,
		Time:     j.Time,
		Timezone: j.Timezone,
	}
	if j.Summary != nil {
		data.Summary = &mail.SummaryData{
			DaysLogged:     j.Summary.DaysLogged,
			AvgMood:        j.Summary.AvgMood,
			AvgPain:        j.Summary.AvgPain,
			CommonTriggers: j.Summary.CommonTriggers,
			Consistency:    j.Summary.Consistency,
		}
	}
	return mail.Render(j.Kind, j.Email, data)
}
