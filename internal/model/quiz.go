package model

import (
	"encoding/json"
	"time"
)

type QuizStatus string

const (
	QuizDraft     QuizStatus = "draft"
	QuizPublished QuizStatus = "published"
)

// swagger:model Quiz
type Quiz struct {
	UUIDBase
	Title       string     `gorm:"size:255;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	OwnerID     uint       `gorm:"index;type:bigint unsigned" json:"ownerId"`
	TimeLimit   *int       `json:"timeLimit"` // Minutes; nil = no limit
	Status      QuizStatus `gorm:"size:20;default:'draft'" json:"status"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

func (q *Quiz) IsPublished() bool {
	return q.Status == QuizPublished
}

type QuestionType string

const (
	FreeText       QuestionType = "free_text"
	SingleSelect   QuestionType = "single_select"
	MultiSelect    QuestionType = "multi_select"
	AudioRecording QuestionType = "audio_recording"
	MediaPrompt    QuestionType = "media_prompt"
	FileUpload     QuestionType = "file_upload"
)

// AutoGradable reports whether a correct/incorrect verdict can be derived
// from the question definition alone, without an instructor mark.
func (t QuestionType) AutoGradable() bool {
	return t == SingleSelect || t == MultiSelect
}

func (t QuestionType) IsSelect() bool {
	return t == SingleSelect || t == MultiSelect
}

// swagger:model Question
type Question struct {
	UUIDBase
	QuizID         string          `gorm:"index;type:varchar(36)" json:"quizId"`
	ParentID       *string         `gorm:"index;type:varchar(36)" json:"parentId,omitempty"`
	QuestionType   QuestionType    `gorm:"size:50;not null" json:"questionType"`
	Prompt         string          `gorm:"type:text;not null" json:"prompt"`
	Options        json.RawMessage `gorm:"type:json" json:"options,omitempty"`       // []string, select types only
	CorrectAnswers json.RawMessage `gorm:"type:json" json:"correctAnswers,omitempty"` // []string, select types only
	MediaURL       string          `gorm:"size:512" json:"mediaUrl,omitempty"`        // media_prompt stimulus
	Points         int             `gorm:"default:0" json:"points"`
	Order          int             `gorm:"default:0" json:"order"`
}

func (Question) TableName() string {
	return "questions"
}

func (q *Question) OptionList() []string {
	var opts []string
	if len(q.Options) > 0 {
		_ = json.Unmarshal(q.Options, &opts)
	}
	return opts
}

func (q *Question) CorrectSet() []string {
	var correct []string
	if len(q.CorrectAnswers) > 0 {
		_ = json.Unmarshal(q.CorrectAnswers, &correct)
	}
	return correct
}

type SubmissionStatus string

const (
	SubmissionInProgress SubmissionStatus = "in_progress"
	SubmissionCompleted  SubmissionStatus = "completed"
)

// swagger:model Submission
type Submission struct {
	UUIDBase
	QuizID        string           `gorm:"index;type:varchar(36)" json:"quizId"`
	UserID        uint             `gorm:"index;type:bigint unsigned" json:"userId"`
	UserName      string           `gorm:"size:100" json:"userName"`
	Status        SubmissionStatus `gorm:"size:20;default:'in_progress'" json:"status"`
	StartedAt     time.Time        `json:"startedAt"`
	SubmittedAt   *time.Time       `json:"submittedAt"`
	Score         *int             `json:"score"`                           // computed aggregate, 0-100
	ScoreOverride *int             `json:"scoreOverride,omitempty"`         // instructor final-score override, 0-100
	Feedback      string           `gorm:"type:text" json:"feedback"`       // instructor overall feedback
	ForcedSubmit  bool             `gorm:"default:false" json:"forcedSubmit"`
}

func (Submission) TableName() string {
	return "submissions"
}

// EffectiveScore is what the learner sees: the override when present,
// else the computed aggregate.
func (s *Submission) EffectiveScore() *int {
	if s.ScoreOverride != nil {
		return s.ScoreOverride
	}
	return s.Score
}

// swagger:model Answer
type Answer struct {
	UUIDBase
	SubmissionID string          `gorm:"uniqueIndex:idx_submission_question;type:varchar(36)" json:"submissionId"`
	QuestionID   string          `gorm:"uniqueIndex:idx_submission_question;type:varchar(36)" json:"questionId"`
	Value        json.RawMessage `gorm:"type:json" json:"value"` // AnswerValue
	Mark         *int            `json:"mark"`                   // instructor-assigned, [0, question.Points]
	MarkFeedback string          `gorm:"type:text" json:"markFeedback"`
}

func (Answer) TableName() string {
	return "answers"
}

func (a *Answer) DecodeValue() (AnswerValue, error) {
	var v AnswerValue
	if len(a.Value) == 0 {
		return v, nil
	}
	err := json.Unmarshal(a.Value, &v)
	return v, err
}

func (a *Answer) SetValue(v AnswerValue) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	a.Value = raw
	return nil
}
