package assessment

import "math"

// IBS 亚型。
const (
	TypeIBSC = "IBS-C"
	TypeIBSD = "IBS-D"
	TypeIBSM = "IBS-M"
	TypeIBSU = "IBS-U"
)

// Classification 是根据答题结果得出的 IBS 亚型判断。
type Classification struct {
	IBSType         string   `json:"ibs_type"`
	Confidence      float64  `json:"confidence"`
	Severity        string   `json:"severity,omitempty"`
	Reasoning       string   `json:"reasoning"`
	Recommendations []string `json:"recommendations"`
}

type profile struct {
	reasoning       string
	recommendations []string
	nextSteps       []string
}

var profiles = map[string]profile{
	TypeIBSC: {
		reasoning: "Your symptoms suggest IBS with constipation (IBS-C). You experience infrequent bowel movements and hard stool consistency.",
		recommendations: []string{
			"Increase fiber intake gradually",
			"Stay well hydrated",
			"Exercise regularly",
			"Consider probiotics",
			"Avoid processed foods",
		},
		nextSteps: []string{
			"Gradually increase fiber intake",
			"Start a regular exercise routine",
			"Consider over-the-counter fiber supplements",
		},
	},
	TypeIBSD: {
		reasoning: "Your symptoms suggest IBS with diarrhea (IBS-D). You experience frequent, loose stools and urgency.",
		recommendations: []string{
			"Follow a low-FODMAP diet",
			"Avoid caffeine and alcohol",
			"Eat smaller, more frequent meals",
			"Consider anti-diarrheal medications",
			"Manage stress levels",
		},
		nextSteps: []string{
			"Begin a low-FODMAP elimination diet",
			"Identify and avoid trigger foods",
			"Consider anti-diarrheal medications",
		},
	},
	TypeIBSM: {
		reasoning: "Your symptoms suggest IBS with mixed bowel habits (IBS-M). You experience both constipation and diarrhea.",
		recommendations: []string{
			"Keep a detailed symptom diary",
			"Work with a dietitian",
			"Identify trigger foods",
			"Maintain regular meal times",
			"Consider stress management techniques",
		},
		nextSteps: []string{
			"Work with a registered dietitian",
			"Keep detailed symptom and food logs",
			"Develop a personalized management plan",
		},
	},
	TypeIBSU: {
		reasoning: "Your symptoms don't clearly fit into a specific IBS subtype. This is classified as IBS-Unspecified (IBS-U).",
		recommendations: []string{
			"Continue monitoring symptoms",
			"Keep a detailed food diary",
			"Consult with a gastroenterologist",
			"Consider stress management",
			"Maintain regular exercise",
		},
		nextSteps: []string{
			"Continue comprehensive symptom tracking",
			"Consult with a gastroenterologist",
			"Consider additional diagnostic testing",
		},
	},
}

var baseNextSteps = []string{
	"Schedule a follow-up with your healthcare provider",
	"Start tracking your daily symptoms",
	"Begin implementing dietary recommendations",
	"Set up daily reminder notifications",
}

// Classify 按评分规则为答卷打分并给出亚型。
func Classify(answers map[string]string) Classification {
	var c, d, m int

	switch answers["bowel_frequency"] {
	case "Less than 1", "1-2":
		c += 3
	case "5+":
		d += 3
	case "Varies significantly":
		m += 2
	}

	switch answers["stool_consistency"] {
	case "Hard/lumpy":
		c += 3
	case "Soft/mushy", "Watery":
		d += 3
	case "Mixed types":
		m += 3
	}

	switch answers["pain_relief"] {
	case "Always", "Usually":
		c += 2
		d++
	}

	switch answers["urgency"] {
	case "Often", "Always":
		d += 2
	}

	switch answers["incomplete_evacuation"] {
	case "Often", "Always":
		c += 2
	}

	ibsType, score := TypeIBSC, c
	if d > score {
		ibsType, score = TypeIBSD, d
	}
	if m > score {
		ibsType, score = TypeIBSM, m
	}

	confidence := math.Min(0.9, float64(score)/10+0.3)
	if score == 0 {
		ibsType, confidence = TypeIBSU, 0.6
	}

	p := profiles[ibsType]
	return Classification{
		IBSType:         ibsType,
		Confidence:      math.Round(confidence*100) / 100,
		Severity:        severity(answers["abdominal_pain"]),
		Reasoning:       p.reasoning,
		Recommendations: append([]string(nil), p.recommendations...),
	}
}

// NextSteps 返回通用步骤加上亚型相关的后续建议。
func NextSteps(ibsType string) []string {
	steps := append([]string(nil), baseNextSteps...)
	return append(steps, profiles[ibsType].nextSteps...)
}

// severity 以腹痛频率粗略估计严重程度。
func severity(abdominalPain string) string {
	switch abdominalPain {
	case "Never", "Rarely":
		return "mild"
	case "Sometimes":
		return "moderate"
	case "Often", "Always":
		return "severe"
	default:
		return ""
	}
}
