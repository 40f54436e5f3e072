package service

import (
	"context"
	"math"
	"quizdesk_backend/internal/model"
	"quizdesk_backend/internal/repository"
	"quizdesk_backend/internal/util"
	"quizdesk_backend/pkg/logger"
	"time"

	"go.uber.org/zap"
)

// ComputeAutomatic returns the points awarded for a select-family answer:
// full points on an exact match against the current question definition,
// zero otherwise. No partial credit for subsets or supersets. Non-select
// types are not automatically gradable and always return zero here.
func ComputeAutomatic(q *model.Question, v model.AnswerValue) int {
	if !q.QuestionType.AutoGradable() {
		return 0
	}

	correct := q.CorrectSet()
	switch q.QuestionType {
	case model.SingleSelect:
		if len(v.Selected) == 1 && len(correct) == 1 && v.Selected[0] == correct[0] {
			return q.Points
		}
	case model.MultiSelect:
		if setEqual(v.Selected, correct) {
			return q.Points
		}
	}
	return 0
}

func setEqual(a, b []string) bool {
	if len(b) == 0 {
		return false
	}
	as := make(map[string]bool, len(a))
	for _, x := range a {
		as[x] = true
	}
	if len(as) != len(b) {
		return false
	}
	for _, x := range b {
		if !as[x] {
			return false
		}
	}
	return true
}

// ComputeAggregate derives the 0-100 submission score:
// round(100 * awarded / total) over all questions. A question with a manual
// mark contributes that mark; an auto-gradable one contributes its automatic
// result; an ungraded manual-type question contributes zero to the numerator
// while its points stay in the denominator, so the aggregate understates
// correctness until grading completes and then rises monotonically.
func ComputeAggregate(questions []model.Question, answers []model.Answer) int {
	total := model.TotalPoints(questions)
	if total == 0 {
		return 0
	}

	ansByQuestion := make(map[string]*model.Answer, len(answers))
	for i := range answers {
		ansByQuestion[answers[i].QuestionID] = &answers[i]
	}

	awarded := 0
	for i := range questions {
		q := &questions[i]
		a, ok := ansByQuestion[q.ID]
		if !ok {
			continue
		}
		if a.Mark != nil {
			awarded += *a.Mark
			continue
		}
		v, err := a.DecodeValue()
		if err != nil {
			continue
		}
		awarded += ComputeAutomatic(q, v)
	}

	return int(math.Round(100 * float64(awarded) / float64(total)))
}

// GradingService computes the automatic score at submission time and
// recomputes the aggregate whenever an instructor writes a mark or an
// override.
type GradingService struct {
	QuizRepo       *repository.QuizRepository
	SubmissionRepo *repository.SubmissionRepository
}

func NewGradingService(quizRepo *repository.QuizRepository, submissionRepo *repository.SubmissionRepository) *GradingService {
	return &GradingService{QuizRepo: quizRepo, SubmissionRepo: submissionRepo}
}

// Finalize marks the submission completed and stores the automatic portion
// of the score. Idempotent per submission id: a completed submission is
// returned unchanged, so a retried submit is safe.
func (s *GradingService) Finalize(submissionID string, forced bool) (*model.Submission, error) {
	submission, err := s.SubmissionRepo.FindByID(submissionID)
	if err != nil {
		return nil, util.ErrSubmissionNotFound
	}
	if submission.Status == model.SubmissionCompleted {
		return submission, nil
	}

	questions, err := s.QuizRepo.ListQuestions(submission.QuizID)
	if err != nil {
		return nil, err
	}
	answers, err := s.SubmissionRepo.ListAnswers(submissionID)
	if err != nil {
		return nil, err
	}

	score := ComputeAggregate(questions, answers)
	now := time.Now()
	submission.Status = model.SubmissionCompleted
	submission.SubmittedAt = &now
	submission.Score = &score
	submission.ForcedSubmit = forced

	if err := s.SubmissionRepo.Update(submission); err != nil {
		return nil, err
	}
	_ = s.SubmissionRepo.ClearDeadline(context.Background(), submissionID)

	logger.Log.Info("submission finalized",
		zap.String("submissionId", submissionID),
		zap.Int("score", score),
		zap.Bool("forced", forced),
	)
	return submission, nil
}

// GradeAnswer writes an instructor mark and feedback for one answer, then
// recomputes the submission aggregate. The mark must lie in
// [0, question.Points]; out-of-range values are rejected before anything is
// persisted. Last write wins per answer.
func (s *GradingService) GradeAnswer(answerID string, mark int, feedback string) (*model.Submission, error) {
	answer, err := s.SubmissionRepo.FindAnswerByID(answerID)
	if err != nil {
		return nil, util.ErrSubmissionNotFound
	}

	question, err := s.QuizRepo.FindQuestionByID(answer.QuestionID)
	if err != nil {
		return nil, err
	}
	if mark < 0 || mark > question.Points {
		return nil, util.ErrInvalidGrade
	}

	answer.Mark = &mark
	answer.MarkFeedback = feedback
	if err := s.SubmissionRepo.SaveAnswer(answer); err != nil {
		return nil, err
	}

	return s.recompute(answer.SubmissionID)
}

// SetSubmissionFeedback stores the overall feedback and the optional
// final-score override. The override supersedes the computed aggregate for
// learner-facing display but never replaces it; both are retained. Passing a
// nil override clears it.
func (s *GradingService) SetSubmissionFeedback(submissionID string, feedback *string, override *int) (*model.Submission, error) {
	submission, err := s.SubmissionRepo.FindByID(submissionID)
	if err != nil {
		return nil, util.ErrSubmissionNotFound
	}

	if override != nil && (*override < 0 || *override > 100) {
		return nil, util.ErrInvalidGrade
	}

	if feedback != nil {
		submission.Feedback = *feedback
	}
	submission.ScoreOverride = override

	if err := s.SubmissionRepo.Update(submission); err != nil {
		return nil, err
	}

	return s.recompute(submissionID)
}

// recompute re-evaluates the aggregate against the current question
// definitions and stores it. Automatic results are always re-derived at the
// moment of computation, not frozen at submit time.
func (s *GradingService) recompute(submissionID string) (*model.Submission, error) {
	submission, err := s.SubmissionRepo.FindByID(submissionID)
	if err != nil {
		return nil, err
	}

	questions, err := s.QuizRepo.ListQuestions(submission.QuizID)
	if err != nil {
		return nil, err
	}
	answers, err := s.SubmissionRepo.ListAnswers(submissionID)
	if err != nil {
		return nil, err
	}

	score := ComputeAggregate(questions, answers)
	submission.Score = &score
	if err := s.SubmissionRepo.Update(submission); err != nil {
		return nil, err
	}
	return submission, nil
}

func (s *GradingService) ListSubmissions(quizID string, page, limit int, studentName, status string) ([]repository.SubmissionListRow, int64, error) {
	return s.SubmissionRepo.ListByQuiz(quizID, page, limit, studentName, status)
}

func (s *GradingService) GetSubmissionDetail(submissionID string) (map[string]interface{}, error) {
	submission, answers, err := s.SubmissionRepo.GetDetail(submissionID)
	if err != nil {
		return nil, err
	}

	questions, err := s.QuizRepo.ListQuestions(submission.QuizID)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"submission":     submission,
		"answers":        answers,
		"questions":      model.Flatten(questions),
		"effectiveScore": submission.EffectiveScore(),
	}, nil
}
