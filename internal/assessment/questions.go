package assessment

// QuestionType 标识题目的作答方式。
type QuestionType string

const (
	TypeMultipleChoice QuestionType = "multiple_choice"
	TypeScale          QuestionType = "scale"
)

// Question 是一道评估题目。
type Question struct {
	ID       string       `json:"id"`
	Question string       `json:"question"`
	Type     QuestionType `json:"type"`
	Options  []string     `json:"options,omitempty"`
	Min      int          `json:"min,omitempty"`
	Max      int          `json:"max,omitempty"`
	Required bool         `json:"required"`
}

var frequencyScale = []string{"Never", "Rarely", "Sometimes", "Often", "Always"}

var questions = []Question{
	{
		ID:       "bowel_frequency",
		Question: "How many bowel movements do you typically have per day?",
		Type:     TypeMultipleChoice,
		Options:  []string{"Less than 1", "1-2", "3-4", "5+", "Varies significantly"},
	},
	{
		ID:       "stool_consistency",
		Question: "What is the typical consistency of your stool?",
		Type:     TypeMultipleChoice,
		Options:  []string{"Hard/lumpy", "Normal", "Soft/mushy", "Watery", "Mixed types"},
	},
	{
		ID:       "abdominal_pain",
		Question: "How often do you experience abdominal pain or discomfort?",
		Type:     TypeMultipleChoice,
		Options:  frequencyScale,
	},
	{
		ID:       "pain_relief",
		Question: "Does bowel movement relieve your abdominal pain?",
		Type:     TypeMultipleChoice,
		Options:  []string{"Always", "Usually", "Sometimes", "Rarely", "Never"},
	},
	{
		ID:       "bloating",
		Question: "How often do you experience bloating?",
		Type:     TypeMultipleChoice,
		Options:  frequencyScale,
	},
	{
		ID:       "urgency",
		Question: "Do you experience sudden urgency to have a bowel movement?",
		Type:     TypeMultipleChoice,
		Options:  frequencyScale,
	},
	{
		ID:       "incomplete_evacuation",
		Question: "Do you feel like you haven't completely emptied your bowels?",
		Type:     TypeMultipleChoice,
		Options:  frequencyScale,
	},
	{
		ID:       "mucus",
		Question: "Do you notice mucus in your stool?",
		Type:     TypeMultipleChoice,
		Options:  frequencyScale,
	},
	{
		ID:       "stress_impact",
		Question: "How much does stress affect your symptoms?",
		Type:     TypeScale,
		Min:      1,
		Max:      10,
	},
	{
		ID:       "diet_impact",
		Question: "How much does your diet affect your symptoms?",
		Type:     TypeScale,
		Min:      1,
		Max:      10,
	},
}

// Questions 返回固定的十道评估题，顺序不变。
func Questions() []Question {
	out := make([]Question, len(questions))
	for i, q := range questions {
		q.Required = true
		q.Options = append([]string(nil), q.Options...)
		out[i] = q
	}
	return out
}

func lookup(id string) (Question, bool) {
	for _, q := range questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}
