package health

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	xerrors "IBSCare-AI/internal/errors"
)

const (
	// DateLayout 是日志日期的格式。
	DateLayout = "2006-01-02"
	// MealTimeLayout 是餐食时间的格式。
	MealTimeLayout = "15:04"
	// MaxNotesLength 是备注允许的最大字符数。
	MaxNotesLength = 2000
)

// Meal 记录一餐的时间与食物。
type Meal struct {
	TimeISO string   `json:"timeISO"`
	Items   []string `json:"items"`
}

// Log 是用户某一天的症状日志，(UserID, DateISO) 唯一。
type Log struct {
	UserID    string    `json:"userId"`
	DateISO   string    `json:"dateISO"`
	Mood      int       `json:"mood"`
	PainLevel int       `json:"pain_level"`
	Symptoms  []string  `json:"symptoms"`
	Triggers  []string  `json:"triggers"`
	Meals     []Meal    `json:"meals"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LogInput 是客户端提交的日志内容。
type LogInput struct {
	DateISO   string   `json:"dateISO"`
	Mood      int      `json:"mood"`
	PainLevel int      `json:"pain_level"`
	Symptoms  []string `json:"symptoms"`
	Triggers  []string `json:"triggers"`
	Meals     []Meal   `json:"meals"`
	Notes     string   `json:"notes"`
}

// Validate 校验日志字段，违规时返回 INVALID_ARGUMENT。
func (in LogInput) Validate() error {
	if _, err := time.Parse(DateLayout, in.DateISO); err != nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "日期格式无效，应为 YYYY-MM-DD",
			xerrors.WithMetadata("field", "dateISO"))
	}
	if in.Mood < 1 || in.Mood > 10 {
		return xerrors.New(xerrors.CodeInvalidArgument, "mood 必须在 1 到 10 之间",
			xerrors.WithMetadata("field", "mood"))
	}
	if in.PainLevel < 0 || in.PainLevel > 10 {
		return xerrors.New(xerrors.CodeInvalidArgument, "pain_level 必须在 0 到 10 之间",
			xerrors.WithMetadata("field", "pain_level"))
	}
	for i, meal := range in.Meals {
		if _, err := time.Parse(MealTimeLayout, meal.TimeISO); err != nil {
			return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("第 %d 餐时间格式无效，应为 HH:MM", i+1),
				xerrors.WithMetadata("field", "meals"))
		}
	}
	if utf8.RuneCountInString(in.Notes) > MaxNotesLength {
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("备注不能超过 %d 个字符", MaxNotesLength),
			xerrors.WithMetadata("field", "notes"))
	}
	return nil
}

func (in LogInput) normalize() LogInput {
	in.Symptoms = cleanList(in.Symptoms)
	in.Triggers = cleanList(in.Triggers)
	meals := make([]Meal, 0, len(in.Meals))
	for _, meal := range in.Meals {
		meals = append(meals, Meal{TimeISO: meal.TimeISO, Items: cleanList(meal.Items)})
	}
	in.Meals = meals
	in.Notes = strings.TrimSpace(in.Notes)
	return in
}

// cleanList 去除空白项，保证序列化后为 [] 而非 null。
func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
