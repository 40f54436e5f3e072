package service

import (
	"fmt"
	"quizdesk_backend/internal/model"
	"quizdesk_backend/internal/util"
	"quizdesk_backend/pkg/logger"
	"quizdesk_backend/pkg/monitoring"
	"sync"
	"time"

	"go.uber.org/zap"
)

// submitFinalizer is the slice of the grading service the engine needs at
// submit time.
type submitFinalizer interface {
	Finalize(submissionID string, forced bool) (*model.Submission, error)
}

// Notifier is the confirm/alert collaborator. The transport owns the actual
// UI; the engine only asks.
type Notifier interface {
	Confirm(submissionID, message string) bool
	Alert(submissionID, message string)
}

// LogNotifier is the default headless notifier: it cannot obtain a learner
// confirmation, so manual submits must arrive pre-confirmed by the client.
type LogNotifier struct{}

func (LogNotifier) Confirm(submissionID, message string) bool {
	logger.Log.Info("submit confirmation requested",
		zap.String("submissionId", submissionID),
		zap.String("message", message),
	)
	return false
}

func (LogNotifier) Alert(submissionID, message string) {
	logger.Log.Warn("session alert",
		zap.String("submissionId", submissionID),
		zap.String("message", message),
	)
}

// StateView is the learner-facing snapshot of a live session.
type StateView struct {
	SubmissionID     string           `json:"submissionId"`
	Phase            SessionPhase     `json:"phase"`
	Index            int              `json:"index"`
	QuestionCount    int              `json:"questionCount"`
	Question         *model.Question  `json:"question,omitempty"`
	RemainingSeconds *int             `json:"remainingSeconds,omitempty"`
	PendingUploads   []string         `json:"pendingUploads,omitempty"`
	Warnings         []string         `json:"warnings,omitempty"`
	Score            *int             `json:"score,omitempty"`
	Forced           bool             `json:"forced"`
}

// EngineDeps are the collaborators one session engine runs against.
type EngineDeps struct {
	Finalizer        submitFinalizer
	Capture          *CaptureService
	Notifier         Notifier
	AutosaveInterval time.Duration
	OnDone           func(submissionID string)
}

// SessionEngine drives one learner's take-quiz flow. All state mutation
// happens on a single event-loop goroutine; timers and I/O completions are
// delivered as events, so there is no parallel mutation of session state.
type SessionEngine struct {
	submissionID string
	quiz         *model.Quiz
	questions    []model.Question // flattened, correct answers stripped

	state          SessionState
	buffer         *AutosaveBuffer
	pendingUploads map[string]bool // question id -> upload in flight

	deps EngineDeps

	events    chan func()
	closed    chan struct{}
	closeOnce sync.Once
}

func NewSessionEngine(submission *model.Submission, quiz *model.Quiz, questions []model.Question, buffer *AutosaveBuffer, deps EngineDeps) *SessionEngine {
	if deps.Notifier == nil {
		deps.Notifier = LogNotifier{}
	}
	if deps.AutosaveInterval <= 0 {
		deps.AutosaveInterval = 30 * time.Second
	}

	flat := model.Flatten(questions)
	for i := range flat {
		flat[i].CorrectAnswers = nil
	}

	return &SessionEngine{
		submissionID:   submission.ID,
		quiz:           quiz,
		questions:      flat,
		state:          EnterActive(submission.StartedAt, quiz.TimeLimit),
		buffer:         buffer,
		pendingUploads: make(map[string]bool),
		deps:           deps,
		events:         make(chan func(), 16),
		closed:         make(chan struct{}),
	}
}

// Start launches the event loop. An already-expired deadline forces the
// Submitting transition before any learner event is served.
func (e *SessionEngine) Start() {
	monitoring.ActiveSessions.Inc()
	go e.run()
}

func (e *SessionEngine) run() {
	autosave := time.NewTicker(e.deps.AutosaveInterval)
	defer autosave.Stop()

	var deadlineC <-chan time.Time
	if e.state.Deadline != nil {
		timer := time.NewTimer(time.Until(*e.state.Deadline))
		defer timer.Stop()
		deadlineC = timer.C
	}

	for {
		select {
		case fn := <-e.events:
			fn()
			if e.state.Phase == PhaseDone {
				e.finish()
				return
			}
		case <-autosave.C:
			if e.state.Phase == PhaseActive {
				if err := e.buffer.Flush(); err != nil {
					logger.Log.Warn("autosave flush failed",
						zap.String("submissionId", e.submissionID),
						zap.Error(err),
					)
				}
			}
		case <-deadlineC:
			deadlineC = nil
			e.forceSubmitLocked()
			if e.state.Phase == PhaseDone {
				e.finish()
				return
			}
		case <-e.closed:
			return
		}
	}
}

// do runs fn on the event loop and waits for it.
func (e *SessionEngine) do(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case e.events <- func() { reply <- fn() }:
	case <-e.closed:
		return util.ErrSessionNotFound
	}
	select {
	case err := <-reply:
		return err
	case <-e.closed:
		// the event may have completed and closed the session in the same
		// breath; prefer its result
		select {
		case err := <-reply:
			return err
		default:
		}
		return util.ErrSessionNotFound
	}
}

func (e *SessionEngine) finish() {
	e.closeOnce.Do(func() {
		close(e.closed)
		monitoring.ActiveSessions.Dec()
		if e.deps.Capture != nil {
			e.deps.Capture.Discard(e.submissionID)
		}
		if e.deps.OnDone != nil {
			e.deps.OnDone(e.submissionID)
		}
	})
}

// Record merges an answer delta into the autosave buffer. Legal while
// Active or Submitting; a Done session no longer accepts answers.
func (e *SessionEngine) Record(delta AnswerDelta) error {
	return e.do(func() error {
		if e.state.Phase == PhaseDone {
			return util.ErrAlreadySubmitted
		}
		e.buffer.Record(delta)
		return nil
	})
}

// Navigate moves the current index. Blocked while the current question's
// media upload is pending so the learner's place is not lost mid-upload.
func (e *SessionEngine) Navigate(delta int) error {
	return e.do(func() error {
		if cur := e.currentQuestion(); cur != nil && e.pendingUploads[cur.ID] {
			return util.ErrUploadPending
		}
		next, err := e.state.Navigate(delta, len(e.questions))
		if err != nil {
			return err
		}
		e.state = next
		return nil
	})
}

// Flush persists the buffer on demand.
func (e *SessionEngine) Flush() error {
	return e.do(func() error {
		return e.buffer.Flush()
	})
}

// Submit drives the manual submit transition: confirm, flush, finalize.
// On failure the machine stays in Submitting and the call is safe to retry;
// the submit endpoint is idempotent per submission id.
func (e *SessionEngine) Submit(confirmed bool) (*model.Submission, error) {
	var out *model.Submission
	err := e.do(func() error {
		if e.state.Phase == PhaseDone {
			return util.ErrAlreadySubmitted
		}
		if !confirmed && !e.deps.Notifier.Confirm(e.submissionID, "Submit quiz? This cannot be undone.") {
			return util.ErrConfirmRequired
		}

		next, err := e.state.BeginSubmit(false)
		if err != nil {
			return err
		}
		e.state = next

		if err := e.buffer.Flush(); err != nil {
			monitoring.SubmitCounter.WithLabelValues("failed").Inc()
			return fmt.Errorf("%w: flush: %v", util.ErrSubmitFailure, err)
		}

		submission, err := e.deps.Finalizer.Finalize(e.submissionID, false)
		if err != nil {
			e.state = e.state.FailSubmit()
			monitoring.SubmitCounter.WithLabelValues("failed").Inc()
			return fmt.Errorf("%w: %v", util.ErrSubmitFailure, err)
		}

		e.state, _ = e.state.CompleteSubmit(submission.Score)
		monitoring.SubmitCounter.WithLabelValues("manual").Inc()
		out = submission
		return nil
	})
	return out, err
}

// ForceSubmit is the deadline path; also used by the sweeper to retry a
// stuck Submitting session.
func (e *SessionEngine) ForceSubmit() {
	_ = e.do(func() error {
		e.forceSubmitLocked()
		return nil
	})
}

// forceSubmitLocked runs on the event loop. Pending uploads do not hold it
// back; the flush is best-effort and excludes non-durable references.
func (e *SessionEngine) forceSubmitLocked() {
	if e.state.Phase == PhaseDone {
		return
	}
	next, err := e.state.BeginSubmit(true)
	if err != nil {
		return
	}
	e.state = next

	if err := e.buffer.Flush(); err != nil {
		logger.Log.Warn("best-effort flush before forced submit failed",
			zap.String("submissionId", e.submissionID),
			zap.Error(err),
		)
	}

	submission, err := e.deps.Finalizer.Finalize(e.submissionID, true)
	if err != nil {
		e.state = e.state.FailSubmit()
		monitoring.SubmitCounter.WithLabelValues("failed").Inc()
		logger.Log.Error("forced submit failed, will retry",
			zap.String("submissionId", e.submissionID),
			zap.Error(err),
		)
		return
	}

	e.state, _ = e.state.CompleteSubmit(submission.Score)
	monitoring.SubmitCounter.WithLabelValues("forced").Inc()
}

// BeginCapture acquires the session's capture device for a question.
// A device failure is reported through the notifier and returned; the flow
// continues without a recording.
func (e *SessionEngine) BeginCapture(questionID, deviceID, mimeType string) error {
	return e.do(func() error {
		if e.state.Phase != PhaseActive {
			return errNotActive
		}
		_, err := e.deps.Capture.Begin(e.submissionID, questionID, deviceID, mimeType)
		if err != nil {
			e.deps.Notifier.Alert(e.submissionID, "Recording unavailable: "+err.Error())
			return err
		}
		return nil
	})
}

// StopCapture closes the capture, records the local preview as the current
// answer immediately, and marks the question's upload pending until the
// durable reference resolves.
func (e *SessionEngine) StopCapture() (string, error) {
	var localRef string
	err := e.do(func() error {
		handle, err := e.deps.Capture.Handle(e.submissionID)
		if err != nil {
			return err
		}
		questionID := handle.QuestionID
		mimeType := handle.MimeType

		ref, err := e.deps.Capture.Stop(e.submissionID, e.onUploadResolved)
		if err != nil {
			return err
		}
		localRef = ref

		kind := model.AnswerMedia
		if q := e.questionByID(questionID); q != nil && q.QuestionType == model.FileUpload {
			kind = model.AnswerFile
		}
		e.buffer.Record(AnswerDelta{
			QuestionID: questionID,
			Value: model.AnswerValue{
				Kind:     kind,
				LocalRef: ref,
				MimeType: mimeType,
			},
		})
		e.pendingUploads[questionID] = true
		return nil
	})
	return localRef, err
}

// onUploadResolved is called from the upload goroutine; it hops onto the
// event loop. A resolution arriving after the session closed is discarded.
func (e *SessionEngine) onUploadResolved(res UploadResolution) {
	_ = e.do(func() error {
		delete(e.pendingUploads, res.QuestionID)
		if res.Err != nil {
			// local preview stays the only reference; excluded from flushes
			// until a re-capture succeeds
			e.deps.Notifier.Alert(e.submissionID, "Recording upload failed; your local recording is kept.")
			return nil
		}
		e.buffer.ResolveDurable(res.QuestionID, res.LocalRef, res.DurableURL)
		if res.Info != nil {
			if v, ok := e.buffer.Get(res.QuestionID); ok && v.DurableURL == res.DurableURL {
				v.Duration = res.Info.Duration
				e.buffer.Record(AnswerDelta{QuestionID: res.QuestionID, Value: v})
			}
		}
		if err := e.buffer.Flush(); err != nil {
			logger.Log.Warn("flush after upload resolution failed",
				zap.String("submissionId", e.submissionID),
				zap.Error(err),
			)
		}
		return nil
	})
}

// CaptureLevel reads the live amplitude sample without entering the loop;
// the handle guards itself.
func (e *SessionEngine) CaptureLevel() (int, error) {
	h, err := e.deps.Capture.Handle(e.submissionID)
	if err != nil {
		return 0, err
	}
	return h.Level(), nil
}

// CaptureChunk appends audio bytes to the open handle.
func (e *SessionEngine) CaptureChunk(data []byte) error {
	h, err := e.deps.Capture.Handle(e.submissionID)
	if err != nil {
		return err
	}
	return h.Append(data)
}

// View snapshots the session for the client.
func (e *SessionEngine) View() (StateView, error) {
	var view StateView
	err := e.do(func() error {
		view = e.viewLocked()
		return nil
	})
	return view, err
}

func (e *SessionEngine) viewLocked() StateView {
	v := StateView{
		SubmissionID:  e.submissionID,
		Phase:         e.state.Phase,
		Index:         e.state.Index,
		QuestionCount: len(e.questions),
		Score:         e.state.Score,
		Forced:        e.state.Forced,
	}
	if q := e.currentQuestion(); q != nil {
		qc := *q
		v.Question = &qc
	}
	if e.state.Deadline != nil {
		secs := int(e.state.Remaining(time.Now()).Seconds())
		v.RemainingSeconds = &secs
	}
	for id := range e.pendingUploads {
		v.PendingUploads = append(v.PendingUploads, id)
	}
	v.Warnings = ReadinessWarnings(e.questions, e.buffer.Get)
	return v
}

func (e *SessionEngine) currentQuestion() *model.Question {
	if e.state.Index < 0 || e.state.Index >= len(e.questions) {
		return nil
	}
	return &e.questions[e.state.Index]
}

func (e *SessionEngine) questionByID(id string) *model.Question {
	for i := range e.questions {
		if e.questions[i].ID == id {
			return &e.questions[i]
		}
	}
	return nil
}
