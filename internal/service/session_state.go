package service

import (
	"errors"
	"quizdesk_backend/internal/model"
	"time"
)

type SessionPhase string

const (
	PhaseLoading    SessionPhase = "loading"
	PhaseActive     SessionPhase = "active"
	PhaseSubmitting SessionPhase = "submitting"
	PhaseDone       SessionPhase = "done"
)

var (
	errNotActive     = errors.New("session is not active")
	errIndexBounds   = errors.New("question index out of bounds")
	errNotSubmitting = errors.New("session is not submitting")
)

// SessionState is the take-quiz machine value: phase plus the current index
// into the flattened question sequence and the wall-clock deadline.
// Transitions return a new value instead of mutating shared state.
type SessionState struct {
	Phase    SessionPhase
	Index    int
	Deadline *time.Time // nil when the quiz has no time limit
	Forced   bool       // submit was deadline-driven
	Score    *int       // set on Done; nil means pending manual grading
}

// EnterActive computes the deadline from the submission's start time and the
// quiz's limit. No limit means no deadline; a zero-minute limit yields a
// deadline that has already passed, forcing submission at once.
func EnterActive(startedAt time.Time, limitMinutes *int) SessionState {
	s := SessionState{Phase: PhaseActive, Index: 0}
	if limitMinutes != nil {
		d := startedAt.Add(time.Duration(*limitMinutes) * time.Minute)
		s.Deadline = &d
	}
	return s
}

// Remaining is evaluated against the wall clock so the learner sees correct
// time even after the session idled; never negative.
func (s SessionState) Remaining(now time.Time) time.Duration {
	if s.Deadline == nil {
		return 0
	}
	r := s.Deadline.Sub(now)
	if r < 0 {
		return 0
	}
	return r
}

// Expired reports a zero-or-negative remaining time, which immediately
// forces submission.
func (s SessionState) Expired(now time.Time) bool {
	return s.Deadline != nil && !now.Before(*s.Deadline)
}

// Navigate moves the index by delta within [0, count). Only legal while
// Active; the caller additionally blocks navigation while the current
// question's media upload is pending.
func (s SessionState) Navigate(delta, count int) (SessionState, error) {
	if s.Phase != PhaseActive {
		return s, errNotActive
	}
	next := s.Index + delta
	if next < 0 || next >= count {
		return s, errIndexBounds
	}
	s.Index = next
	return s, nil
}

// BeginSubmit moves to Submitting. Deadline expiry forces the transition
// from any Active index; a manual submit also starts here. Re-entering
// Submitting is legal so a failed submit can retry.
func (s SessionState) BeginSubmit(forced bool) (SessionState, error) {
	if s.Phase != PhaseActive && s.Phase != PhaseSubmitting {
		return s, errNotActive
	}
	s.Phase = PhaseSubmitting
	s.Forced = s.Forced || forced
	return s, nil
}

// CompleteSubmit lands in Done with the returned score; nil score means the
// quiz is pending manual grading.
func (s SessionState) CompleteSubmit(score *int) (SessionState, error) {
	if s.Phase != PhaseSubmitting {
		return s, errNotSubmitting
	}
	s.Phase = PhaseDone
	s.Score = score
	return s, nil
}

// FailSubmit keeps the machine in Submitting; submit is idempotent per
// submission id so the retry is safe.
func (s SessionState) FailSubmit() SessionState {
	return s
}

// ReadinessWarnings lists unanswered questions that the learner should see
// before submitting. Warnings never hard-block a submit.
func ReadinessWarnings(questions []model.Question, get func(questionID string) (model.AnswerValue, bool)) []string {
	var warnings []string
	for i := range questions {
		q := &questions[i]
		if q.QuestionType == model.MediaPrompt && q.Points == 0 {
			// container prompt, children carry the answers
			continue
		}
		v, ok := get(q.ID)
		if !ok || v.Empty() {
			warnings = append(warnings, q.ID)
		}
	}
	return warnings
}
