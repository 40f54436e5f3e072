package service

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"quizdesk_backend/internal/model"
	"quizdesk_backend/internal/util"
)

type fakeFinalizer struct {
	mu     sync.Mutex
	forced []bool
	score  int
	err    error
}

func (f *fakeFinalizer) Finalize(submissionID string, forced bool) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.forced = append(f.forced, forced)
	score := f.score
	return &model.Submission{
		UUIDBase:     model.UUIDBase{ID: submissionID},
		Status:       model.SubmissionCompleted,
		Score:        &score,
		ForcedSubmit: forced,
	}, nil
}

func (f *fakeFinalizer) calls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bool, len(f.forced))
	copy(out, f.forced)
	return out
}

type fakeNotifier struct {
	mu      sync.Mutex
	confirm bool
	alerts  []string
}

func (n *fakeNotifier) Confirm(submissionID, message string) bool { return n.confirm }

func (n *fakeNotifier) Alert(submissionID, message string) {
	n.mu.Lock()
	n.alerts = append(n.alerts, message)
	n.mu.Unlock()
}

type blockingUploader struct {
	release chan struct{}
	url     string
}

func (u *blockingUploader) UploadFile(ctx context.Context, filename, localPath, contentType string) (string, error) {
	<-u.release
	return u.url, nil
}

func engineQuestions() []model.Question {
	return []model.Question{
		{UUIDBase: model.UUIDBase{ID: "q1"}, QuestionType: model.AudioRecording, Points: 5, Order: 0},
		{UUIDBase: model.UUIDBase{ID: "q2"}, QuestionType: model.FreeText, Points: 5, Order: 1},
	}
}

func newTestEngine(t *testing.T, quiz *model.Quiz, store answerStore, deps EngineDeps) (*SessionEngine, chan string) {
	t.Helper()
	if quiz == nil {
		quiz = &model.Quiz{UUIDBase: model.UUIDBase{ID: "quiz-1"}, Status: model.QuizPublished}
	}
	submission := &model.Submission{
		UUIDBase:  model.UUIDBase{ID: "sub-1"},
		QuizID:    quiz.ID,
		Status:    model.SubmissionInProgress,
		StartedAt: time.Now(),
	}
	done := make(chan string, 1)
	deps.OnDone = func(id string) { done <- id }
	if deps.AutosaveInterval == 0 {
		deps.AutosaveInterval = time.Hour // keep the ticker out of the way
	}

	buffer := NewAutosaveBuffer(submission.ID, store)
	engine := NewSessionEngine(submission, quiz, engineQuestions(), buffer, deps)
	engine.Start()
	return engine, done
}

func waitDone(t *testing.T, done chan string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session never closed")
	}
}

func TestManualSubmitLifecycle(t *testing.T) {
	fin := &fakeFinalizer{score: 90}
	store := &fakeAnswerStore{}
	engine, done := newTestEngine(t, nil, store, EngineDeps{Finalizer: fin})

	if err := engine.Record(AnswerDelta{QuestionID: "q2", Value: model.AnswerValue{Kind: model.AnswerText, Text: "hello"}}); err != nil {
		t.Fatalf("record: %v", err)
	}

	submission, err := engine.Submit(true)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submission.Score == nil || *submission.Score != 90 {
		t.Fatalf("score = %v, want 90", submission.Score)
	}

	waitDone(t, done)

	// answers reached storage before finalization
	if got := store.last()["q2"].Text; got != "hello" {
		t.Fatalf("flushed answer = %q", got)
	}

	if err := engine.Record(AnswerDelta{QuestionID: "q2"}); err == nil {
		t.Fatal("a closed session must reject new answers")
	}
}

func TestSubmitRequiresConfirmation(t *testing.T) {
	fin := &fakeFinalizer{score: 50}
	engine, _ := newTestEngine(t, nil, &fakeAnswerStore{}, EngineDeps{
		Finalizer: fin,
		Notifier:  &fakeNotifier{confirm: false},
	})

	if _, err := engine.Submit(false); !errors.Is(err, util.ErrConfirmRequired) {
		t.Fatalf("err = %v, want ErrConfirmRequired", err)
	}
	if len(fin.calls()) != 0 {
		t.Fatal("declined confirmation must not finalize")
	}

	// the session stays usable
	if err := engine.Navigate(1); err != nil {
		t.Fatalf("navigate after declined submit: %v", err)
	}
}

func TestExpiredDeadlineForcesSubmit(t *testing.T) {
	fin := &fakeFinalizer{score: 40}
	limit := 0
	quiz := &model.Quiz{
		UUIDBase:  model.UUIDBase{ID: "quiz-1"},
		Status:    model.QuizPublished,
		TimeLimit: &limit,
	}
	_, done := newTestEngine(t, quiz, &fakeAnswerStore{}, EngineDeps{Finalizer: fin})

	waitDone(t, done)

	calls := fin.calls()
	if len(calls) != 1 || !calls[0] {
		t.Fatalf("finalize calls = %v, want one forced", calls)
	}
}

func TestSubmitFailureAllowsRetry(t *testing.T) {
	fin := &fakeFinalizer{score: 70}
	store := &fakeAnswerStore{err: errors.New("db down")}
	engine, done := newTestEngine(t, nil, store, EngineDeps{Finalizer: fin})

	if err := engine.Record(AnswerDelta{QuestionID: "q2", Value: model.AnswerValue{Kind: model.AnswerText, Text: "kept"}}); err != nil {
		t.Fatalf("record: %v", err)
	}

	if _, err := engine.Submit(true); !errors.Is(err, util.ErrSubmitFailure) {
		t.Fatalf("err = %v, want ErrSubmitFailure", err)
	}

	store.err = nil
	submission, err := engine.Submit(true)
	if err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	if *submission.Score != 70 {
		t.Fatalf("score = %d", *submission.Score)
	}
	waitDone(t, done)

	if got := store.last()["q2"].Text; got != "kept" {
		t.Fatalf("answer lost across failed submit: %q", got)
	}
}

func TestNavigationBlockedWhilePendingUpload(t *testing.T) {
	uploader := &blockingUploader{release: make(chan struct{}), url: "https://blob/rec.webm"}
	capture := NewCaptureService(uploader, t.TempDir(), 200*time.Millisecond)
	capture.probe = func(path string) (*util.AudioInfo, error) {
		return &util.AudioInfo{Duration: 2}, nil
	}

	fin := &fakeFinalizer{score: 100}
	store := &fakeAnswerStore{}
	engine, _ := newTestEngine(t, nil, store, EngineDeps{
		Finalizer: fin,
		Capture:   capture,
		Notifier:  &fakeNotifier{confirm: true},
	})

	if err := engine.BeginCapture("q1", "mic-0", "audio/wav"); err != nil {
		t.Fatalf("begin capture: %v", err)
	}
	if err := engine.CaptureChunk([]byte{0, 0, 0, 0}); err != nil {
		t.Fatalf("chunk: %v", err)
	}

	localRef, err := engine.StopCapture()
	if err != nil {
		t.Fatalf("stop capture: %v", err)
	}
	if localRef == "" {
		t.Fatal("stop must return a local reference synchronously")
	}

	// the current question's upload is in flight
	if err := engine.Navigate(1); !errors.Is(err, util.ErrUploadPending) {
		t.Fatalf("navigate err = %v, want ErrUploadPending", err)
	}

	view, err := engine.View()
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if len(view.PendingUploads) != 1 || view.PendingUploads[0] != "q1" {
		t.Fatalf("pending uploads = %v", view.PendingUploads)
	}

	close(uploader.release)

	deadline := time.After(2 * time.Second)
	for {
		view, err := engine.View()
		if err != nil {
			t.Fatalf("view: %v", err)
		}
		if len(view.PendingUploads) == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("upload never resolved")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if err := engine.Navigate(1); err != nil {
		t.Fatalf("navigate after resolve: %v", err)
	}
	if got := store.last()["q1"].DurableURL; got != "https://blob/rec.webm" {
		t.Fatalf("durable answer not flushed: %q", got)
	}
}

func TestDeviceFailureRaisesAlert(t *testing.T) {
	capture := NewCaptureService(&fakeUploader{url: "x"}, t.TempDir(), 200*time.Millisecond)
	capture.openFile = func(path string) (*os.File, error) {
		return nil, errors.New("no input device")
	}

	notifier := &fakeNotifier{confirm: true}
	engine, _ := newTestEngine(t, nil, &fakeAnswerStore{}, EngineDeps{
		Finalizer: &fakeFinalizer{},
		Capture:   capture,
		Notifier:  notifier,
	})

	if err := engine.BeginCapture("q1", "mic-0", "audio/wav"); !errors.Is(err, util.ErrDeviceUnavailable) {
		t.Fatalf("err = %v, want ErrDeviceUnavailable", err)
	}

	notifier.mu.Lock()
	alerts := len(notifier.alerts)
	notifier.mu.Unlock()
	if alerts != 1 {
		t.Fatalf("alerts = %d, want 1", alerts)
	}

	// session continues without a recording
	if err := engine.Navigate(1); err != nil {
		t.Fatalf("navigate after device failure: %v", err)
	}
}

func TestViewReportsRemainingAndWarnings(t *testing.T) {
	limit := 30
	quiz := &model.Quiz{
		UUIDBase:  model.UUIDBase{ID: "quiz-1"},
		Status:    model.QuizPublished,
		TimeLimit: &limit,
	}
	engine, _ := newTestEngine(t, quiz, &fakeAnswerStore{}, EngineDeps{Finalizer: &fakeFinalizer{}})

	view, err := engine.View()
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if view.Phase != PhaseActive {
		t.Fatalf("phase = %v", view.Phase)
	}
	if view.RemainingSeconds == nil || *view.RemainingSeconds <= 0 || *view.RemainingSeconds > 30*60 {
		t.Fatalf("remaining = %v", view.RemainingSeconds)
	}
	if len(view.Warnings) != 2 {
		t.Fatalf("warnings = %v, want both unanswered questions", view.Warnings)
	}
	if view.Question == nil || view.Question.ID != "q1" {
		t.Fatalf("current question = %v", view.Question)
	}
	if view.Question.CorrectAnswers != nil {
		t.Fatal("correct answers must be stripped from the session view")
	}
}
