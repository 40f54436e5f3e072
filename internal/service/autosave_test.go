package service

import (
	"errors"
	"quizdesk_backend/internal/model"
	"testing"
)

// fakeAnswerStore records upserts and can be told to fail.
type fakeAnswerStore struct {
	flushes [][]model.Answer
	err     error
}

func (f *fakeAnswerStore) UpsertAnswers(submissionID string, answers []model.Answer) error {
	if f.err != nil {
		return f.err
	}
	rows := make([]model.Answer, len(answers))
	copy(rows, answers)
	f.flushes = append(f.flushes, rows)
	return nil
}

func (f *fakeAnswerStore) last() map[string]model.AnswerValue {
	if len(f.flushes) == 0 {
		return nil
	}
	out := make(map[string]model.AnswerValue)
	for _, a := range f.flushes[len(f.flushes)-1] {
		v, _ := a.DecodeValue()
		out[a.QuestionID] = v
	}
	return out
}

func TestRecordOverwritesPriorValue(t *testing.T) {
	store := &fakeAnswerStore{}
	b := NewAutosaveBuffer("sub-1", store)

	b.Record(AnswerDelta{QuestionID: "q1", Value: model.AnswerValue{Kind: model.AnswerText, Text: "draft"}})
	b.Record(AnswerDelta{QuestionID: "q1", Value: model.AnswerValue{Kind: model.AnswerText, Text: "final"}})

	if err := b.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if got := store.last()["q1"].Text; got != "final" {
		t.Fatalf("persisted %q, want final", got)
	}
	if len(store.flushes[0]) != 1 {
		t.Fatal("re-saving must overwrite, not append")
	}
}

func TestFlushEmptyBufferIsNoop(t *testing.T) {
	store := &fakeAnswerStore{}
	b := NewAutosaveBuffer("sub-1", store)

	if err := b.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(store.flushes) != 0 {
		t.Fatal("empty buffer must not hit the store")
	}
}

func TestFlushFailureKeepsBuffer(t *testing.T) {
	store := &fakeAnswerStore{err: errors.New("network down")}
	b := NewAutosaveBuffer("sub-1", store)
	b.Record(AnswerDelta{QuestionID: "q1", Value: model.AnswerValue{Kind: model.AnswerText, Text: "keep me"}})

	if err := b.Flush(); err == nil {
		t.Fatal("flush should surface the store error")
	}

	store.err = nil
	if err := b.Flush(); err != nil {
		t.Fatalf("retry flush: %v", err)
	}
	if got := store.last()["q1"].Text; got != "keep me" {
		t.Fatalf("answer lost across failed flush: %q", got)
	}
}

func TestFlushIsIdempotent(t *testing.T) {
	store := &fakeAnswerStore{}
	b := NewAutosaveBuffer("sub-1", store)
	b.Record(AnswerDelta{QuestionID: "q1", Value: model.AnswerValue{Kind: model.AnswerChoice, Selected: []string{"a"}}})

	if err := b.Flush(); err != nil {
		t.Fatalf("first flush: %v", err)
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("second flush: %v", err)
	}

	first := store.flushes[0]
	second := store.flushes[1]
	if len(first) != len(second) || string(first[0].Value) != string(second[0].Value) {
		t.Fatal("double flush must upsert identical state")
	}
}

func TestFlushExcludesLocalOnlyMedia(t *testing.T) {
	store := &fakeAnswerStore{}
	b := NewAutosaveBuffer("sub-1", store)

	b.Record(AnswerDelta{QuestionID: "text", Value: model.AnswerValue{Kind: model.AnswerText, Text: "ok"}})
	b.Record(AnswerDelta{QuestionID: "audio", Value: model.AnswerValue{
		Kind:     model.AnswerMedia,
		LocalRef: "/captures/a.raw",
	}})

	if err := b.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if _, ok := store.last()["audio"]; ok {
		t.Fatal("local-only media must not be persisted")
	}

	b.ResolveDurable("audio", "/captures/a.raw", "https://blob/a.webm")
	if err := b.Flush(); err != nil {
		t.Fatalf("flush after resolve: %v", err)
	}
	if got := store.last()["audio"].DurableURL; got != "https://blob/a.webm" {
		t.Fatalf("durable media not persisted: %q", got)
	}
}

func TestResolveDurableIgnoresStaleUpload(t *testing.T) {
	store := &fakeAnswerStore{}
	b := NewAutosaveBuffer("sub-1", store)

	// first capture starts uploading, then the learner re-records
	b.Record(AnswerDelta{QuestionID: "audio", Value: model.AnswerValue{Kind: model.AnswerMedia, LocalRef: "/captures/old.raw"}})
	b.Record(AnswerDelta{QuestionID: "audio", Value: model.AnswerValue{Kind: model.AnswerMedia, LocalRef: "/captures/new.raw"}})

	b.ResolveDurable("audio", "/captures/old.raw", "https://blob/old.webm")

	v, ok := b.Get("audio")
	if !ok || v.DurableURL != "" {
		t.Fatalf("stale resolution must not attach: %+v", v)
	}
	if v.LocalRef != "/captures/new.raw" {
		t.Fatalf("current capture lost: %+v", v)
	}
}

func TestSeedRestoresPersistedAnswers(t *testing.T) {
	store := &fakeAnswerStore{}
	b := NewAutosaveBuffer("sub-1", store)

	var saved model.Answer
	saved.QuestionID = "q1"
	if err := saved.SetValue(model.AnswerValue{Kind: model.AnswerText, Text: "resumed"}); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	b.Seed([]model.Answer{saved})

	v, ok := b.Get("q1")
	if !ok || v.Text != "resumed" {
		t.Fatalf("seeded answer missing: %+v", v)
	}
}
