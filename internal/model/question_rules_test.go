package model

import (
	"encoding/json"
	"testing"
)

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func selectQuestion(t *testing.T, qt QuestionType, options, correct []string) *Question {
	t.Helper()
	return &Question{
		UUIDBase:       UUIDBase{ID: GenerateUUID()},
		QuestionType:   qt,
		Prompt:         "pick one",
		Options:        mustJSON(t, options),
		CorrectAnswers: mustJSON(t, correct),
		Points:         5,
	}
}

func TestValidateQuestionSelectRules(t *testing.T) {
	cases := []struct {
		name    string
		q       *Question
		wantErr bool
	}{
		{
			name: "valid single select",
			q:    selectQuestion(t, SingleSelect, []string{"a", "b", "c"}, []string{"b"}),
		},
		{
			name: "valid multi select",
			q:    selectQuestion(t, MultiSelect, []string{"a", "b", "c"}, []string{"a", "c"}),
		},
		{
			name:    "too few options",
			q:       selectQuestion(t, SingleSelect, []string{"a"}, []string{"a"}),
			wantErr: true,
		},
		{
			name:    "blank options do not count",
			q:       selectQuestion(t, SingleSelect, []string{"a", "  "}, []string{"a"}),
			wantErr: true,
		},
		{
			name:    "no correct answers",
			q:       selectQuestion(t, MultiSelect, []string{"a", "b"}, []string{}),
			wantErr: true,
		},
		{
			name:    "single select with two correct",
			q:       selectQuestion(t, SingleSelect, []string{"a", "b"}, []string{"a", "b"}),
			wantErr: true,
		},
		{
			name:    "correct answer not among options",
			q:       selectQuestion(t, MultiSelect, []string{"a", "b"}, []string{"a", "z"}),
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateQuestion(tc.q, nil)
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateQuestionPromptAndPoints(t *testing.T) {
	q := &Question{QuestionType: FreeText, Prompt: "   "}
	if err := ValidateQuestion(q, nil); err == nil {
		t.Fatal("blank prompt should be rejected")
	}

	q = &Question{QuestionType: FreeText, Prompt: "explain", Points: -1}
	if err := ValidateQuestion(q, nil); err == nil {
		t.Fatal("negative points should be rejected")
	}
}

func TestValidateQuestionNesting(t *testing.T) {
	parentID := "parent-1"
	parent := &Question{
		UUIDBase:     UUIDBase{ID: parentID},
		QuestionType: MediaPrompt,
		Prompt:       "listen to the clip",
	}

	child := &Question{
		QuestionType: FreeText,
		Prompt:       "what did you hear?",
		ParentID:     &parentID,
	}
	if err := ValidateQuestion(child, parent); err != nil {
		t.Fatalf("valid child rejected: %v", err)
	}

	nestedPrompt := &Question{
		QuestionType: MediaPrompt,
		Prompt:       "nested",
		ParentID:     &parentID,
	}
	if err := ValidateQuestion(nestedPrompt, parent); err == nil {
		t.Fatal("media_prompt child should be rejected")
	}

	textParent := &Question{
		UUIDBase:     UUIDBase{ID: parentID},
		QuestionType: FreeText,
		Prompt:       "not a container",
	}
	if err := ValidateQuestion(child, textParent); err == nil {
		t.Fatal("child of non-media_prompt parent should be rejected")
	}
	if err := ValidateQuestion(child, nil); err == nil {
		t.Fatal("child with missing parent should be rejected")
	}
}

func TestFlattenKeepsChildrenAfterParent(t *testing.T) {
	p1 := "p1"
	questions := []Question{
		{UUIDBase: UUIDBase{ID: "q2"}, QuestionType: FreeText, Order: 2},
		{UUIDBase: UUIDBase{ID: "c2"}, QuestionType: FreeText, ParentID: &p1, Order: 1},
		{UUIDBase: UUIDBase{ID: "p1"}, QuestionType: MediaPrompt, Order: 1},
		{UUIDBase: UUIDBase{ID: "c1"}, QuestionType: SingleSelect, ParentID: &p1, Order: 0},
		{UUIDBase: UUIDBase{ID: "q0"}, QuestionType: MultiSelect, Order: 0},
	}

	flat := Flatten(questions)
	got := make([]string, len(flat))
	for i, q := range flat {
		got[i] = q.ID
	}

	want := []string{"q0", "p1", "c1", "c2", "q2"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: got %v, want %v", i, got, want)
		}
	}
}

func TestTotalPoints(t *testing.T) {
	questions := []Question{
		{Points: 5},
		{Points: 0},
		{Points: 10},
	}
	if got := TotalPoints(questions); got != 15 {
		t.Fatalf("TotalPoints = %d, want 15", got)
	}
}
