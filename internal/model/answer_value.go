package model

// AnswerKind tags the shape of a collected answer. One variant per question
// type; consumers dispatch on the tag instead of inspecting which fields are
// set.
type AnswerKind string

const (
	AnswerText    AnswerKind = "text"
	AnswerChoice  AnswerKind = "choice"
	AnswerChoices AnswerKind = "choices"
	AnswerMedia   AnswerKind = "media"
	AnswerFile    AnswerKind = "file"
)

// AnswerValue is the tagged union stored in Answer.Value.
//
// For media answers the reference goes through two phases: LocalRef is
// available as soon as the capture stops, DurableURL only once the blob
// upload resolves. Consumers must tolerate reading either phase; persistence
// only ever receives the durable phase.
type AnswerValue struct {
	Kind     AnswerKind `json:"kind"`
	Text     string     `json:"text,omitempty"`
	Selected []string   `json:"selected,omitempty"`

	LocalRef   string  `json:"localRef,omitempty"`
	DurableURL string  `json:"durableUrl,omitempty"`
	MimeType   string  `json:"mimeType,omitempty"`
	Duration   float64 `json:"duration,omitempty"` // seconds, probed after capture
}

// KindForQuestion maps a question type to the answer shape it collects.
func KindForQuestion(t QuestionType) AnswerKind {
	switch t {
	case SingleSelect:
		return AnswerChoice
	case MultiSelect:
		return AnswerChoices
	case AudioRecording:
		return AnswerMedia
	case FileUpload:
		return AnswerFile
	default:
		// free_text and media_prompt both collect a learner-authored text
		// response; media_prompt children carry their own shapes.
		return AnswerText
	}
}

// Empty reports whether the learner has supplied anything at all. Used for
// submit-readiness warnings; never a hard block.
func (v AnswerValue) Empty() bool {
	switch v.Kind {
	case AnswerChoice, AnswerChoices:
		return len(v.Selected) == 0
	case AnswerMedia, AnswerFile:
		return v.LocalRef == "" && v.DurableURL == ""
	default:
		return v.Text == ""
	}
}

// Durable reports whether the value is safe to persist: media answers are
// durable only once the upload resolved, everything else always is.
func (v AnswerValue) Durable() bool {
	switch v.Kind {
	case AnswerMedia, AnswerFile:
		return v.DurableURL != ""
	default:
		return true
	}
}
