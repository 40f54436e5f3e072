package service

import (
	"quizdesk_backend/internal/model"
	"quizdesk_backend/pkg/monitoring"
	"sync"
)

// answerStore is the slice of the persistence service the buffer needs:
// an idempotent upsert keyed by (submission, question).
type answerStore interface {
	UpsertAnswers(submissionID string, answers []model.Answer) error
}

// AnswerDelta is one in-progress change to a single question's answer.
type AnswerDelta struct {
	QuestionID string
	Value      model.AnswerValue
}

// AutosaveBuffer holds the in-memory map of question id to current answer
// for one active submission. Record merges with no network I/O; Flush sends
// the whole buffer. A failed flush leaves the buffer intact for the next
// attempt; nothing here is allowed to lose a collected answer.
type AutosaveBuffer struct {
	mu           sync.Mutex
	submissionID string
	answers      map[string]model.AnswerValue
	store        answerStore
}

func NewAutosaveBuffer(submissionID string, store answerStore) *AutosaveBuffer {
	return &AutosaveBuffer{
		submissionID: submissionID,
		answers:      make(map[string]model.AnswerValue),
		store:        store,
	}
}

// Seed loads previously persisted answers, used when a learner resumes an
// existing submission.
func (b *AutosaveBuffer) Seed(answers []model.Answer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range answers {
		v, err := answers[i].DecodeValue()
		if err != nil {
			continue
		}
		b.answers[answers[i].QuestionID] = v
	}
}

// Record merges a delta into the buffer. Re-saving an answer overwrites the
// prior value rather than appending.
func (b *AutosaveBuffer) Record(delta AnswerDelta) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.answers[delta.QuestionID] = delta.Value
}

func (b *AutosaveBuffer) Get(questionID string) (model.AnswerValue, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.answers[questionID]
	return v, ok
}

// Snapshot returns a copy of the buffer contents.
func (b *AutosaveBuffer) Snapshot() map[string]model.AnswerValue {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]model.AnswerValue, len(b.answers))
	for k, v := range b.answers {
		out[k] = v
	}
	return out
}

// ResolveDurable swaps a media answer's in-flight local reference for the
// durable URL delivered by the capture adapter. A no-op when the learner
// has re-recorded since the upload started.
func (b *AutosaveBuffer) ResolveDurable(questionID, localRef, durableURL string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.answers[questionID]
	if !ok || v.LocalRef != localRef {
		return
	}
	v.DurableURL = durableURL
	b.answers[questionID] = v
}

// Flush upserts the buffer's state as of the moment it was invoked. Answers
// whose media reference is still local-only are excluded so an unfinished
// upload never corrupts server state; they retry on the next flush once the
// adapter resolves. A flush with zero persistable answers is a no-op.
func (b *AutosaveBuffer) Flush() error {
	b.mu.Lock()
	rows := make([]model.Answer, 0, len(b.answers))
	for questionID, v := range b.answers {
		if !v.Durable() {
			continue
		}
		row := model.Answer{
			SubmissionID: b.submissionID,
			QuestionID:   questionID,
		}
		if err := row.SetValue(v); err != nil {
			continue
		}
		rows = append(rows, row)
	}
	b.mu.Unlock()

	if len(rows) == 0 {
		monitoring.AutosaveFlushCounter.WithLabelValues("empty").Inc()
		return nil
	}

	if err := b.store.UpsertAnswers(b.submissionID, rows); err != nil {
		monitoring.AutosaveFlushCounter.WithLabelValues("failed").Inc()
		return err
	}
	monitoring.AutosaveFlushCounter.WithLabelValues("ok").Inc()
	return nil
}
