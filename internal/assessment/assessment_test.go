package assessment

import (
	"context"
	"errors"
	"testing"

	xerrors "IBSCare-AI/internal/errors"
	"IBSCare-AI/internal/store"
)

func TestQuestionsOrder(t *testing.T) {
	want := []string{
		"bowel_frequency", "stool_consistency", "abdominal_pain", "pain_relief", "bloating",
		"urgency", "incomplete_evacuation", "mucus", "stress_impact", "diet_impact",
	}
	qs := Questions()
	if len(qs) != len(want) {
		t.Fatalf("expected %d questions, got %d", len(want), len(qs))
	}
	for i, q := range qs {
		if q.ID != want[i] || !q.Required {
			t.Fatalf("question %d: unexpected %+v", i, q)
		}
	}
	if qs[8].Type != TypeScale || qs[8].Min != 1 || qs[8].Max != 10 {
		t.Fatalf("stress_impact should be a 1..10 scale: %+v", qs[8])
	}
	qs[0].Options[0] = "mutated"
	if Questions()[0].Options[0] != "Less than 1" {
		t.Fatalf("Questions must return a copy")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name       string
		answers    map[string]string
		wantType   string
		confidence float64
	}{
		{
			name: "constipation",
			answers: map[string]string{
				"bowel_frequency": "Less than 1", "stool_consistency": "Hard/lumpy",
				"pain_relief": "Usually", "incomplete_evacuation": "Often",
			},
			wantType: TypeIBSC, confidence: 0.9,
		},
		{
			name:     "diarrhea",
			answers:  map[string]string{"bowel_frequency": "5+", "urgency": "Always"},
			wantType: TypeIBSD, confidence: 0.8,
		},
		{
			name:     "mixed",
			answers:  map[string]string{"bowel_frequency": "Varies significantly", "stool_consistency": "Mixed types"},
			wantType: TypeIBSM, confidence: 0.8,
		},
		{
			name:     "tie prefers constipation",
			answers:  map[string]string{"stool_consistency": "Hard/lumpy", "bowel_frequency": "5+"},
			wantType: TypeIBSC, confidence: 0.6,
		},
		{
			name:     "unclassified",
			answers:  map[string]string{"bowel_frequency": "3-4", "stool_consistency": "Normal"},
			wantType: TypeIBSU, confidence: 0.6,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.answers)
			if got.IBSType != tc.wantType || got.Confidence != tc.confidence {
				t.Fatalf("unexpected classification: %+v", got)
			}
			if len(got.Recommendations) != 5 || got.Reasoning == "" {
				t.Fatalf("missing reasoning or recommendations: %+v", got)
			}
		})
	}
}

func TestNextSteps(t *testing.T) {
	for _, typ := range []string{TypeIBSC, TypeIBSD, TypeIBSM, TypeIBSU} {
		steps := NextSteps(typ)
		if len(steps) != 7 || steps[0] != "Schedule a follow-up with your healthcare provider" {
			t.Fatalf("%s: unexpected next steps %v", typ, steps)
		}
	}
}

func TestSubmitAndLatest(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemoryStore())

	if _, err := svc.Latest(ctx, "u1"); !xerrors.IsCode(err, xerrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND before submit, got %v", err)
	}

	result, err := svc.Submit(ctx, "u1", "sam@example.com", map[string]string{
		"bowel_frequency": "5+",
		"urgency":         "Often",
		"abdominal_pain":  "Sometimes",
		"stress_impact":   " 7 ",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Classification.IBSType != TypeIBSD || result.Classification.Severity != "moderate" {
		t.Fatalf("unexpected result: %+v", result)
	}

	latest, err := svc.Latest(ctx, "u1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Classification.IBSType != TypeIBSD || len(latest.Answers) != 4 || latest.Answers[0].QuestionID != "bowel_frequency" {
		t.Fatalf("unexpected stored record: %+v", latest)
	}
	if latest.Answers[3].Answer != "7" {
		t.Fatalf("scale answer not normalised: %+v", latest.Answers[3])
	}

	ibsType, severity, err := svc.Classification(ctx, "u1")
	if err != nil || ibsType != TypeIBSD || severity != "moderate" {
		t.Fatalf("unexpected classification: %s %s %v", ibsType, severity, err)
	}
	profile, err := svc.Profile(ctx, "u1")
	if err != nil || profile.IBSType != TypeIBSD || !profile.AssessmentCompleted || profile.Email != "sam@example.com" {
		t.Fatalf("profile not updated: %+v %v", profile, err)
	}

	// 再次提交时不带邮箱，已有邮箱保留。
	if _, err := svc.Submit(ctx, "u1", "", map[string]string{"bowel_frequency": "Less than 1"}); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	profile, err = svc.Profile(ctx, "u1")
	if err != nil || profile.Email != "sam@example.com" || profile.IBSType != TypeIBSC {
		t.Fatalf("profile not merged: %+v %v", profile, err)
	}
}

type failingProfiles struct {
	store.Documents
}

func (f failingProfiles) Put(ctx context.Context, collection, userID, id, sortKey string, doc any) error {
	if collection == store.CollectionProfiles {
		return errors.New("profiles unavailable")
	}
	return f.Documents.Put(ctx, collection, userID, id, sortKey, doc)
}

func TestSubmitSucceedsWhenProfileWriteFails(t *testing.T) {
	ctx := context.Background()
	svc := NewService(failingProfiles{store.NewMemoryStore()})

	result, err := svc.Submit(ctx, "u1", "sam@example.com", map[string]string{"urgency": "Always"})
	if err != nil {
		t.Fatalf("submit should succeed once the result is saved: %v", err)
	}
	latest, err := svc.Latest(ctx, "u1")
	if err != nil || latest.Classification.IBSType != result.Classification.IBSType {
		t.Fatalf("latest not persisted: %+v %v", latest, err)
	}
}

func TestSubmitValidation(t *testing.T) {
	svc := NewService(store.NewMemoryStore())
	cases := map[string]map[string]string{
		"empty":        {},
		"unknown":      {"favourite_colour": "blue"},
		"bad option":   {"urgency": "Sometimes, maybe"},
		"scale range":  {"diet_impact": "11"},
		"scale format": {"stress_impact": "high"},
	}
	for name, answers := range cases {
		if _, err := svc.Submit(context.Background(), "u1", "", answers); !xerrors.IsCode(err, xerrors.CodeInvalidArgument) {
			t.Fatalf("%s: expected INVALID_ARGUMENT, got %v", name, err)
		}
	}
}
