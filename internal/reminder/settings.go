package reminder

import (
	"fmt"
	"strings"
	"time"

	xerrors "IBSCare-AI/internal/errors"
)

const (
	// TypeDaily 是目前唯一支持的提醒类型。
	TypeDaily = "daily"

	defaultTime     = "09:00"
	defaultTimezone = "UTC"
	timeLayout      = "15:04"
	settingsDocID   = "settings"
)

// Settings 是用户的提醒设置。
type Settings struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	ReminderType string    `json:"reminder_type"`
	Enabled      bool      `json:"enabled"`
	Time         string    `json:"time"`
	Timezone     string    `json:"timezone"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// Defaults 返回未配置时的默认设置。
func Defaults(userID, email string) Settings {
	return Settings{
		UserID:       userID,
		Email:        email,
		ReminderType: TypeDaily,
		Enabled:      false,
		Time:         defaultTime,
		Timezone:     defaultTimezone,
	}
}

// Input 是设置接口的请求体，字段为空表示不修改。
type Input struct {
	ReminderType *string `json:"reminder_type,omitempty"`
	Enabled      *bool   `json:"enabled,omitempty"`
	Time         *string `json:"time,omitempty"`
	Timezone     *string `json:"timezone,omitempty"`
}

// apply 将输入合并到设置上并校验结果。
func (in Input) apply(s Settings) (Settings, error) {
	if in.ReminderType != nil {
		s.ReminderType = strings.TrimSpace(*in.ReminderType)
	}
	if in.Enabled != nil {
		s.Enabled = *in.Enabled
	}
	if in.Time != nil {
		s.Time = strings.TrimSpace(*in.Time)
	}
	if in.Timezone != nil {
		s.Timezone = strings.TrimSpace(*in.Timezone)
	}
	if s.Timezone == "" {
		s.Timezone = defaultTimezone
	}
	if t, err := time.Parse(timeLayout, s.Time); err == nil {
		// 统一为两位小时，保证与 Due 中的格式化结果可比较。
		s.Time = t.Format(timeLayout)
	}
	return s, s.Validate()
}

// Validate 校验提醒时间、时区与类型。
func (s Settings) Validate() error {
	if s.ReminderType != TypeDaily {
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("不支持的提醒类型: %q", s.ReminderType))
	}
	if _, err := time.Parse(timeLayout, s.Time); err != nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "提醒时间格式无效，应为 HH:MM")
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("无法识别的时区: %q", s.Timezone))
	}
	return nil
}

// Due 判断在 now 时刻是否应发送提醒，返回用户所在时区的日期。
func (s Settings) Due(now time.Time) (string, bool) {
	if !s.Enabled {
		return "", false
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return "", false
	}
	local := now.In(loc)
	return local.Format("2006-01-02"), local.Format(timeLayout) == s.Time
}

// displayName 使用邮箱前缀作为称呼。
func displayName(email string) string {
	name, _, _ := strings.Cut(email, "@")
	return name
}
