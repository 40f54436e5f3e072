package service

import (
	"context"
	"quizdesk_backend/internal/config"
	"quizdesk_backend/internal/model"
	"quizdesk_backend/internal/repository"
	"quizdesk_backend/internal/util"
	"quizdesk_backend/pkg/logger"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SessionService owns the live take-quiz engines: one per in-progress
// submission on this node. Starting a quiz resumes the learner's existing
// submission when there is one; at most one active submission exists per
// (quiz, learner).
type SessionService struct {
	QuizRepo       *repository.QuizRepository
	SubmissionRepo *repository.SubmissionRepository
	Grading        *GradingService
	Capture        *CaptureService
	Notifier       Notifier
	Cfg            *config.EngineConfig

	mu      sync.Mutex
	engines map[string]*SessionEngine
}

func NewSessionService(quizRepo *repository.QuizRepository, submissionRepo *repository.SubmissionRepository, grading *GradingService, capture *CaptureService, cfg *config.EngineConfig) *SessionService {
	return &SessionService{
		QuizRepo:       quizRepo,
		SubmissionRepo: submissionRepo,
		Grading:        grading,
		Capture:        capture,
		Notifier:       LogNotifier{},
		Cfg:            cfg,
		engines:        make(map[string]*SessionEngine),
	}
}

// Start begins or resumes the learner's submission for a published quiz and
// ensures a live engine exists for it. Idempotent: a repeated start returns
// the existing submission. A completed submission is returned as-is with no
// engine.
func (s *SessionService) Start(userID uint, userName, quizID string) (*model.Submission, error) {
	quiz, err := s.QuizRepo.FindQuizByID(quizID)
	if err != nil {
		return nil, util.ErrQuizNotFound
	}
	if !quiz.IsPublished() {
		return nil, util.ErrQuizNotPublished
	}

	submission, err := s.SubmissionRepo.FindByUserAndQuiz(userID, quizID)
	if err == gorm.ErrRecordNotFound {
		submission = &model.Submission{
			QuizID:    quizID,
			UserID:    userID,
			UserName:  userName,
			Status:    model.SubmissionInProgress,
			StartedAt: time.Now(),
		}
		if err := s.SubmissionRepo.Create(submission); err != nil {
			return nil, err
		}
		if quiz.TimeLimit != nil {
			deadline := submission.StartedAt.Add(time.Duration(*quiz.TimeLimit) * time.Minute)
			if err := s.SubmissionRepo.IndexDeadline(context.Background(), submission.ID, deadline); err != nil {
				logger.Log.Warn("deadline index failed", zap.String("submissionId", submission.ID), zap.Error(err))
			}
		}
	} else if err != nil {
		return nil, err
	}

	if submission.Status == model.SubmissionCompleted {
		return submission, nil
	}

	if err := s.ensureEngine(submission, quiz); err != nil {
		return nil, err
	}
	return submission, nil
}

func (s *SessionService) ensureEngine(submission *model.Submission, quiz *model.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.engines[submission.ID]; ok {
		return nil
	}

	questions, err := s.QuizRepo.ListQuestions(quiz.ID)
	if err != nil {
		return err
	}

	buffer := NewAutosaveBuffer(submission.ID, s.SubmissionRepo)
	saved, err := s.SubmissionRepo.ListAnswers(submission.ID)
	if err == nil {
		buffer.Seed(saved)
	}

	engine := NewSessionEngine(submission, quiz, questions, buffer, EngineDeps{
		Finalizer:        s.Grading,
		Capture:          s.Capture,
		Notifier:         s.Notifier,
		AutosaveInterval: s.Cfg.AutosaveInterval(),
		OnDone:           s.dropEngine,
	})
	s.engines[submission.ID] = engine
	engine.Start()
	return nil
}

func (s *SessionService) dropEngine(submissionID string) {
	s.mu.Lock()
	delete(s.engines, submissionID)
	s.mu.Unlock()
}

// engineFor returns the live engine after checking the caller owns the
// submission.
func (s *SessionService) engineFor(submissionID string, userID uint) (*SessionEngine, error) {
	submission, err := s.SubmissionRepo.FindByID(submissionID)
	if err != nil {
		return nil, util.ErrSubmissionNotFound
	}
	if submission.UserID != userID {
		return nil, util.ErrPermissionDenied
	}

	s.mu.Lock()
	engine, ok := s.engines[submissionID]
	s.mu.Unlock()
	if ok {
		return engine, nil
	}

	if submission.Status == model.SubmissionCompleted {
		return nil, util.ErrAlreadySubmitted
	}

	// engine lost (e.g. restart): rebuild it from persisted state
	quiz, err := s.QuizRepo.FindQuizByID(submission.QuizID)
	if err != nil {
		return nil, util.ErrQuizNotFound
	}
	if err := s.ensureEngine(submission, quiz); err != nil {
		return nil, err
	}
	s.mu.Lock()
	engine, ok = s.engines[submissionID]
	s.mu.Unlock()
	if !ok {
		return nil, util.ErrSessionNotFound
	}
	return engine, nil
}

func (s *SessionService) Record(submissionID string, userID uint, delta AnswerDelta) error {
	engine, err := s.engineFor(submissionID, userID)
	if err != nil {
		return err
	}
	return engine.Record(delta)
}

func (s *SessionService) Navigate(submissionID string, userID uint, delta int) error {
	engine, err := s.engineFor(submissionID, userID)
	if err != nil {
		return err
	}
	return engine.Navigate(delta)
}

func (s *SessionService) Flush(submissionID string, userID uint) error {
	engine, err := s.engineFor(submissionID, userID)
	if err != nil {
		return err
	}
	return engine.Flush()
}

func (s *SessionService) Submit(submissionID string, userID uint, confirmed bool) (*model.Submission, error) {
	engine, err := s.engineFor(submissionID, userID)
	if err == util.ErrAlreadySubmitted {
		// idempotent: return the completed submission
		return s.SubmissionRepo.FindByID(submissionID)
	}
	if err != nil {
		return nil, err
	}
	return engine.Submit(confirmed)
}

func (s *SessionService) BeginCapture(submissionID string, userID uint, questionID, deviceID, mimeType string) error {
	engine, err := s.engineFor(submissionID, userID)
	if err != nil {
		return err
	}
	return engine.BeginCapture(questionID, deviceID, mimeType)
}

func (s *SessionService) CaptureChunk(submissionID string, userID uint, data []byte) error {
	engine, err := s.engineFor(submissionID, userID)
	if err != nil {
		return err
	}
	return engine.CaptureChunk(data)
}

func (s *SessionService) CaptureLevel(submissionID string, userID uint) (int, error) {
	engine, err := s.engineFor(submissionID, userID)
	if err != nil {
		return 0, err
	}
	return engine.CaptureLevel()
}

func (s *SessionService) StopCapture(submissionID string, userID uint) (string, error) {
	engine, err := s.engineFor(submissionID, userID)
	if err != nil {
		return "", err
	}
	return engine.StopCapture()
}

// State returns the live view, or a terminal view derived from storage when
// the session already completed.
func (s *SessionService) State(submissionID string, userID uint) (*StateView, error) {
	engine, err := s.engineFor(submissionID, userID)
	if err == util.ErrAlreadySubmitted {
		submission, ferr := s.SubmissionRepo.FindByID(submissionID)
		if ferr != nil {
			return nil, util.ErrSubmissionNotFound
		}
		return &StateView{
			SubmissionID: submissionID,
			Phase:        PhaseDone,
			Score:        submission.EffectiveScore(),
			Forced:       submission.ForcedSubmit,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	view, err := engine.View()
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// SweepExpired force-submits every submission whose indexed deadline has
// passed. Live engines get the event on their own loop; orphaned ones
// (server restart) are finalized directly with whatever answers the last
// flush persisted.
func (s *SessionService) SweepExpired() error {
	expired, err := s.SubmissionRepo.ExpiredSubmissions(context.Background(), time.Now())
	if err != nil {
		return err
	}

	for _, id := range expired {
		s.mu.Lock()
		engine, ok := s.engines[id]
		s.mu.Unlock()

		if ok {
			engine.ForceSubmit()
			continue
		}

		if _, err := s.Grading.Finalize(id, true); err != nil {
			logger.Log.Error("sweeper finalize failed",
				zap.String("submissionId", id),
				zap.Error(err),
			)
		}
	}
	return nil
}
