package model

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError reports malformed authoring input. It blocks the specific
// operation only; nothing about it is fatal to the session.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid question: %s %s", e.Field, e.Reason)
}

// ValidateQuestion checks a question definition before it is written.
//
// Select-family questions need at least two non-empty options and a
// correct-answer set drawn from them. Prompts are mandatory for every type.
// Only media_prompt questions may own children, and a child may not itself be
// media_prompt.
func ValidateQuestion(q *Question, parent *Question) error {
	if strings.TrimSpace(q.Prompt) == "" {
		return &ValidationError{Field: "prompt", Reason: "must not be empty"}
	}
	if q.Points < 0 {
		return &ValidationError{Field: "points", Reason: "must be >= 0"}
	}

	if q.QuestionType.IsSelect() {
		opts := q.OptionList()
		nonEmpty := 0
		seen := make(map[string]bool, len(opts))
		for _, o := range opts {
			if strings.TrimSpace(o) != "" {
				nonEmpty++
			}
			seen[o] = true
		}
		if nonEmpty < 2 {
			return &ValidationError{Field: "options", Reason: "needs at least 2 non-empty options"}
		}
		correct := q.CorrectSet()
		if len(correct) == 0 {
			return &ValidationError{Field: "correctAnswers", Reason: "must not be empty"}
		}
		if q.QuestionType == SingleSelect && len(correct) != 1 {
			return &ValidationError{Field: "correctAnswers", Reason: "single_select takes exactly one correct option"}
		}
		for _, c := range correct {
			if !seen[c] {
				return &ValidationError{Field: "correctAnswers", Reason: fmt.Sprintf("%q is not an option", c)}
			}
		}
	}

	if q.ParentID != nil {
		if q.QuestionType == MediaPrompt {
			return &ValidationError{Field: "questionType", Reason: "a sub-question may not be media_prompt"}
		}
		if parent == nil || parent.QuestionType != MediaPrompt {
			return &ValidationError{Field: "parentId", Reason: "only media_prompt questions own children"}
		}
	}

	return nil
}

// Flatten produces the ordered question sequence used by both the authoring
// view and take-quiz navigation: top-level questions by order index, each
// media_prompt immediately followed by its children. Keeping one flattening
// keeps indices consistent between the two surfaces.
func Flatten(questions []Question) []Question {
	var roots []Question
	children := make(map[string][]Question)
	for _, q := range questions {
		if q.ParentID != nil {
			children[*q.ParentID] = append(children[*q.ParentID], q)
		} else {
			roots = append(roots, q)
		}
	}

	byOrder := func(qs []Question) {
		sort.SliceStable(qs, func(i, j int) bool { return qs[i].Order < qs[j].Order })
	}
	byOrder(roots)

	flat := make([]Question, 0, len(questions))
	for _, root := range roots {
		flat = append(flat, root)
		if root.QuestionType == MediaPrompt {
			kids := children[root.ID]
			byOrder(kids)
			flat = append(flat, kids...)
		}
	}
	return flat
}

// TotalPoints sums the maximum achievable marks over a question set.
// media_prompt parents with children are containers; their own points still
// count when non-zero, matching how authoring assigns them.
func TotalPoints(questions []Question) int {
	total := 0
	for _, q := range questions {
		total += q.Points
	}
	return total
}
