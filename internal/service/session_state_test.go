package service

import (
	"quizdesk_backend/internal/model"
	"testing"
	"time"
)

func intPtr(n int) *int { return &n }

func TestEnterActiveDeadline(t *testing.T) {
	start := time.Now()

	unlimited := EnterActive(start, nil)
	if unlimited.Deadline != nil {
		t.Fatal("no time limit should mean no deadline")
	}
	if unlimited.Expired(start.Add(24 * time.Hour)) {
		t.Fatal("unlimited session never expires")
	}

	limited := EnterActive(start, intPtr(10))
	if limited.Deadline == nil {
		t.Fatal("limit should set a deadline")
	}
	if got := limited.Remaining(start); got != 10*time.Minute {
		t.Fatalf("Remaining = %v, want 10m", got)
	}
}

func TestZeroMinuteLimitExpiresImmediately(t *testing.T) {
	start := time.Now()
	s := EnterActive(start, intPtr(0))
	if !s.Expired(start) {
		t.Fatal("a zero-minute limit must already be expired")
	}
	if s.Remaining(start.Add(time.Second)) != 0 {
		t.Fatal("remaining time never goes negative")
	}
}

func TestRemainingTracksWallClock(t *testing.T) {
	start := time.Now()
	s := EnterActive(start, intPtr(10))

	// an idle session still loses time
	if got := s.Remaining(start.Add(7 * time.Minute)); got != 3*time.Minute {
		t.Fatalf("Remaining after 7m = %v, want 3m", got)
	}
	if got := s.Remaining(start.Add(time.Hour)); got != 0 {
		t.Fatalf("Remaining past deadline = %v, want 0", got)
	}
}

func TestNavigateBounds(t *testing.T) {
	s := EnterActive(time.Now(), nil)

	s, err := s.Navigate(1, 3)
	if err != nil || s.Index != 1 {
		t.Fatalf("forward: index=%d err=%v", s.Index, err)
	}
	s, err = s.Navigate(-1, 3)
	if err != nil || s.Index != 0 {
		t.Fatalf("back: index=%d err=%v", s.Index, err)
	}

	if _, err := s.Navigate(-1, 3); err == nil {
		t.Fatal("navigating before the first question must fail")
	}
	s.Index = 2
	if _, err := s.Navigate(1, 3); err == nil {
		t.Fatal("navigating past the last question must fail")
	}
}

func TestSubmitTransitions(t *testing.T) {
	s := EnterActive(time.Now(), nil)

	s, err := s.BeginSubmit(false)
	if err != nil || s.Phase != PhaseSubmitting {
		t.Fatalf("BeginSubmit: phase=%v err=%v", s.Phase, err)
	}

	// re-entry for a retry is legal
	if _, err := s.BeginSubmit(false); err != nil {
		t.Fatalf("retrying BeginSubmit: %v", err)
	}

	score := 80
	s, err = s.CompleteSubmit(&score)
	if err != nil || s.Phase != PhaseDone {
		t.Fatalf("CompleteSubmit: phase=%v err=%v", s.Phase, err)
	}
	if s.Score == nil || *s.Score != 80 {
		t.Fatalf("score not carried: %v", s.Score)
	}

	// no transition out of Done
	if _, err := s.BeginSubmit(false); err == nil {
		t.Fatal("BeginSubmit from Done must fail")
	}
	if _, err := s.Navigate(1, 3); err == nil {
		t.Fatal("Navigate from Done must fail")
	}
}

func TestForcedFlagSticks(t *testing.T) {
	s := EnterActive(time.Now(), intPtr(1))
	s, _ = s.BeginSubmit(true)
	if !s.Forced {
		t.Fatal("forced flag not set")
	}
	s, _ = s.BeginSubmit(false)
	if !s.Forced {
		t.Fatal("forced flag must survive a retry")
	}
}

func TestReadinessWarnings(t *testing.T) {
	questions := []model.Question{
		{UUIDBase: model.UUIDBase{ID: "q1"}, QuestionType: model.FreeText, Points: 5},
		{UUIDBase: model.UUIDBase{ID: "container"}, QuestionType: model.MediaPrompt, Points: 0},
		{UUIDBase: model.UUIDBase{ID: "q2"}, QuestionType: model.SingleSelect, Points: 5},
	}

	answered := map[string]model.AnswerValue{
		"q1": {Kind: model.AnswerText, Text: "done"},
	}
	get := func(id string) (model.AnswerValue, bool) {
		v, ok := answered[id]
		return v, ok
	}

	warnings := ReadinessWarnings(questions, get)
	if len(warnings) != 1 || warnings[0] != "q2" {
		t.Fatalf("warnings = %v, want [q2]", warnings)
	}
}
