package service

import (
	"encoding/json"
	"quizdesk_backend/internal/model"
	"testing"
)

func rawJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func answerRow(t *testing.T, questionID string, v model.AnswerValue) model.Answer {
	t.Helper()
	a := model.Answer{QuestionID: questionID}
	if err := a.SetValue(v); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	return a
}

func TestComputeAutomaticSingleSelect(t *testing.T) {
	q := &model.Question{
		QuestionType:   model.SingleSelect,
		Points:         10,
		Options:        rawJSON(t, []string{"a", "b", "c"}),
		CorrectAnswers: rawJSON(t, []string{"b"}),
	}

	if got := ComputeAutomatic(q, model.AnswerValue{Kind: model.AnswerChoice, Selected: []string{"b"}}); got != 10 {
		t.Fatalf("correct choice: got %d, want 10", got)
	}
	if got := ComputeAutomatic(q, model.AnswerValue{Kind: model.AnswerChoice, Selected: []string{"a"}}); got != 0 {
		t.Fatalf("wrong choice: got %d, want 0", got)
	}
	if got := ComputeAutomatic(q, model.AnswerValue{Kind: model.AnswerChoice}); got != 0 {
		t.Fatalf("no choice: got %d, want 0", got)
	}
}

func TestComputeAutomaticMultiSelectExactSetOnly(t *testing.T) {
	q := &model.Question{
		QuestionType:   model.MultiSelect,
		Points:         8,
		Options:        rawJSON(t, []string{"a", "b", "c", "d"}),
		CorrectAnswers: rawJSON(t, []string{"a", "c"}),
	}

	cases := []struct {
		name     string
		selected []string
		want     int
	}{
		{"exact match", []string{"a", "c"}, 8},
		{"exact match reordered", []string{"c", "a"}, 8},
		{"subset", []string{"a"}, 0},
		{"superset", []string{"a", "c", "d"}, 0},
		{"disjoint", []string{"b", "d"}, 0},
		{"empty", nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := model.AnswerValue{Kind: model.AnswerChoices, Selected: tc.selected}
			if got := ComputeAutomatic(q, v); got != tc.want {
				t.Fatalf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestComputeAutomaticNonGradableTypes(t *testing.T) {
	q := &model.Question{QuestionType: model.FreeText, Points: 10}
	if got := ComputeAutomatic(q, model.AnswerValue{Kind: model.AnswerText, Text: "essay"}); got != 0 {
		t.Fatalf("free text must not auto-grade, got %d", got)
	}
}

// All-correct objective quiz scores 100 immediately.
func TestAggregateAllCorrect(t *testing.T) {
	questions := []model.Question{
		{
			UUIDBase:       model.UUIDBase{ID: "q1"},
			QuestionType:   model.SingleSelect,
			Points:         5,
			Options:        rawJSON(t, []string{"a", "b"}),
			CorrectAnswers: rawJSON(t, []string{"a"}),
		},
		{
			UUIDBase:       model.UUIDBase{ID: "q2"},
			QuestionType:   model.MultiSelect,
			Points:         5,
			Options:        rawJSON(t, []string{"x", "y", "z"}),
			CorrectAnswers: rawJSON(t, []string{"x", "z"}),
		},
	}
	answers := []model.Answer{
		answerRow(t, "q1", model.AnswerValue{Kind: model.AnswerChoice, Selected: []string{"a"}}),
		answerRow(t, "q2", model.AnswerValue{Kind: model.AnswerChoices, Selected: []string{"z", "x"}}),
	}

	if got := ComputeAggregate(questions, answers); got != 100 {
		t.Fatalf("aggregate = %d, want 100", got)
	}
}

// A mixed quiz understates until manual marks land, then rises.
func TestAggregateManualMarksRaiseScore(t *testing.T) {
	questions := []model.Question{
		{
			UUIDBase:       model.UUIDBase{ID: "obj"},
			QuestionType:   model.SingleSelect,
			Points:         10,
			Options:        rawJSON(t, []string{"a", "b"}),
			CorrectAnswers: rawJSON(t, []string{"a"}),
		},
		{UUIDBase: model.UUIDBase{ID: "essay"}, QuestionType: model.FreeText, Points: 10},
	}

	answers := []model.Answer{
		answerRow(t, "obj", model.AnswerValue{Kind: model.AnswerChoice, Selected: []string{"a"}}),
		answerRow(t, "essay", model.AnswerValue{Kind: model.AnswerText, Text: "a thoughtful response"}),
	}

	before := ComputeAggregate(questions, answers)
	if before != 50 {
		t.Fatalf("pre-grading aggregate = %d, want 50", before)
	}

	mark := 10
	answers[1].Mark = &mark
	after := ComputeAggregate(questions, answers)
	if after != 100 {
		t.Fatalf("post-grading aggregate = %d, want 100", after)
	}
	if after < before {
		t.Fatal("grading an answer must never lower the aggregate")
	}
}

// A manual mark takes precedence over the automatic result for the same
// question.
func TestAggregateMarkPrecedence(t *testing.T) {
	questions := []model.Question{
		{
			UUIDBase:       model.UUIDBase{ID: "q1"},
			QuestionType:   model.SingleSelect,
			Points:         10,
			Options:        rawJSON(t, []string{"a", "b"}),
			CorrectAnswers: rawJSON(t, []string{"a"}),
		},
	}
	a := answerRow(t, "q1", model.AnswerValue{Kind: model.AnswerChoice, Selected: []string{"b"}})
	mark := 7
	a.Mark = &mark

	if got := ComputeAggregate(questions, []model.Answer{a}); got != 70 {
		t.Fatalf("aggregate = %d, want 70 from the manual mark", got)
	}
}

func TestAggregateRounding(t *testing.T) {
	questions := []model.Question{
		{
			UUIDBase:       model.UUIDBase{ID: "q1"},
			QuestionType:   model.SingleSelect,
			Points:         1,
			Options:        rawJSON(t, []string{"a", "b"}),
			CorrectAnswers: rawJSON(t, []string{"a"}),
		},
		{UUIDBase: model.UUIDBase{ID: "q2"}, QuestionType: model.FreeText, Points: 2},
	}
	answers := []model.Answer{
		answerRow(t, "q1", model.AnswerValue{Kind: model.AnswerChoice, Selected: []string{"a"}}),
	}

	// 1 of 3 points -> 33.33 -> 33
	if got := ComputeAggregate(questions, answers); got != 33 {
		t.Fatalf("aggregate = %d, want 33", got)
	}
}

func TestAggregateZeroTotalPoints(t *testing.T) {
	questions := []model.Question{
		{UUIDBase: model.UUIDBase{ID: "q1"}, QuestionType: model.FreeText, Points: 0},
	}
	if got := ComputeAggregate(questions, nil); got != 0 {
		t.Fatalf("aggregate over zero points = %d, want 0", got)
	}
}

// Automatic results are re-derived against the current question definition:
// editing the correct answer set changes the recomputed aggregate.
func TestAggregateFollowsCurrentDefinition(t *testing.T) {
	questions := []model.Question{
		{
			UUIDBase:       model.UUIDBase{ID: "q1"},
			QuestionType:   model.SingleSelect,
			Points:         10,
			Options:        rawJSON(t, []string{"a", "b"}),
			CorrectAnswers: rawJSON(t, []string{"a"}),
		},
	}
	answers := []model.Answer{
		answerRow(t, "q1", model.AnswerValue{Kind: model.AnswerChoice, Selected: []string{"b"}}),
	}

	if got := ComputeAggregate(questions, answers); got != 0 {
		t.Fatalf("aggregate = %d, want 0", got)
	}

	questions[0].CorrectAnswers = rawJSON(t, []string{"b"})
	if got := ComputeAggregate(questions, answers); got != 100 {
		t.Fatalf("aggregate after edit = %d, want 100", got)
	}
}
