package service

import (
	"encoding/json"
	"quizdesk_backend/internal/model"
	"quizdesk_backend/internal/repository"
	"quizdesk_backend/internal/util"
	"time"

	"gorm.io/gorm"
)

// QuizService covers authoring: CRUD over quizzes and questions, publish
// state, and the role-gated read used by both authoring and take-quiz views.
type QuizService struct {
	Repo *repository.QuizRepository
}

func NewQuizService(repo *repository.QuizRepository) *QuizService {
	return &QuizService{Repo: repo}
}

type QuestionReq struct {
	ID             string             `json:"id"`
	ParentID       *string            `json:"parentId"`
	QuestionType   model.QuestionType `json:"questionType" binding:"required"`
	Prompt         string             `json:"prompt" binding:"required"`
	Options        []string           `json:"options"`
	CorrectAnswers []string           `json:"correctAnswers"`
	MediaURL       string             `json:"mediaUrl"`
	Points         int                `json:"points"`
	Order          int                `json:"order"`
}

func (req *QuestionReq) toModel(quizID string) (*model.Question, error) {
	q := &model.Question{
		QuizID:       quizID,
		ParentID:     req.ParentID,
		QuestionType: req.QuestionType,
		Prompt:       req.Prompt,
		MediaURL:     req.MediaURL,
		Points:       req.Points,
		Order:        req.Order,
	}
	if req.Options != nil {
		raw, err := json.Marshal(req.Options)
		if err != nil {
			return nil, err
		}
		q.Options = raw
	}
	if req.CorrectAnswers != nil {
		raw, err := json.Marshal(req.CorrectAnswers)
		if err != nil {
			return nil, err
		}
		q.CorrectAnswers = raw
	}
	return q, nil
}

type QuizReq struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	TimeLimit   *int           `json:"timeLimit"` // minutes; negative clears the limit
	Published   *bool          `json:"published"`
	Questions   *[]QuestionReq `json:"questions"`
}

func applyTimeLimit(quiz *model.Quiz, limit *int) {
	if limit == nil {
		return
	}
	if *limit < 0 {
		quiz.TimeLimit = nil
		return
	}
	v := *limit
	quiz.TimeLimit = &v
}

func (s *QuizService) CreateQuiz(ownerID uint, req QuizReq) (*model.Quiz, error) {
	if req.Title == nil || *req.Title == "" {
		return nil, &model.ValidationError{Field: "title", Reason: "must not be empty"}
	}

	quiz := &model.Quiz{
		Title:   *req.Title,
		OwnerID: ownerID,
		Status:  model.QuizDraft,
	}
	if req.Description != nil {
		quiz.Description = *req.Description
	}
	applyTimeLimit(quiz, req.TimeLimit)
	if req.Published != nil && *req.Published {
		now := time.Now()
		quiz.Status = model.QuizPublished
		quiz.PublishedAt = &now
	}

	if err := s.Repo.CreateQuiz(quiz); err != nil {
		return nil, err
	}

	if req.Questions != nil {
		if err := s.replaceQuestions(quiz.ID, *req.Questions); err != nil {
			return nil, err
		}
	}

	return quiz, nil
}

func (s *QuizService) UpdateQuiz(quizID string, ownerID uint, req QuizReq) (*model.Quiz, error) {
	quiz, err := s.Repo.FindQuizByID(quizID)
	if err != nil {
		return nil, util.ErrQuizNotFound
	}
	if quiz.OwnerID != ownerID {
		return nil, util.ErrPermissionDenied
	}

	if req.Title != nil {
		quiz.Title = *req.Title
	}
	if req.Description != nil {
		quiz.Description = *req.Description
	}
	applyTimeLimit(quiz, req.TimeLimit)
	if req.Published != nil {
		if *req.Published && quiz.Status != model.QuizPublished {
			now := time.Now()
			quiz.Status = model.QuizPublished
			quiz.PublishedAt = &now
		} else if !*req.Published {
			quiz.Status = model.QuizDraft
			quiz.PublishedAt = nil
		}
	}

	if err := s.Repo.UpdateQuiz(quiz); err != nil {
		return nil, err
	}

	if req.Questions != nil {
		if err := s.replaceQuestions(quizID, *req.Questions); err != nil {
			return nil, err
		}
	}

	return quiz, nil
}

// replaceQuestions reconciles the request against existing rows: known ids
// update in place, unknown entries insert, leftovers delete. Historical
// answers keep referencing question ids, so content edits are tolerated.
func (s *QuizService) replaceQuestions(quizID string, reqs []QuestionReq) error {
	existingQs, err := s.Repo.ListQuestions(quizID)
	if err != nil {
		return err
	}
	existingMap := make(map[string]*model.Question)
	for i := range existingQs {
		existingMap[existingQs[i].ID] = &existingQs[i]
	}

	// Parents first so child validation can see them.
	byID := make(map[string]*model.Question)
	keep := make(map[string]bool)

	var pending []*struct {
		req QuestionReq
		q   *model.Question
	}
	for _, qReq := range reqs {
		q, err := qReq.toModel(quizID)
		if err != nil {
			return err
		}
		if qReq.ID != "" {
			q.ID = qReq.ID
		}
		pending = append(pending, &struct {
			req QuestionReq
			q   *model.Question
		}{qReq, q})
		if q.ID != "" {
			byID[q.ID] = q
		}
	}

	for _, p := range pending {
		var parent *model.Question
		if p.q.ParentID != nil {
			parent = byID[*p.q.ParentID]
			if parent == nil {
				parent = existingMap[*p.q.ParentID]
			}
		}
		if err := model.ValidateQuestion(p.q, parent); err != nil {
			return err
		}
	}

	for _, p := range pending {
		if p.req.ID != "" {
			if existing, ok := existingMap[p.req.ID]; ok {
				existing.ParentID = p.q.ParentID
				existing.QuestionType = p.q.QuestionType
				existing.Prompt = p.q.Prompt
				existing.Options = p.q.Options
				existing.CorrectAnswers = p.q.CorrectAnswers
				existing.MediaURL = p.q.MediaURL
				existing.Points = p.q.Points
				existing.Order = p.q.Order
				if err := s.Repo.UpdateQuestion(existing); err != nil {
					return err
				}
				keep[p.req.ID] = true
				continue
			}
		}
		if err := s.Repo.CreateQuestion(p.q); err != nil {
			return err
		}
		keep[p.q.ID] = true
	}

	for id := range existingMap {
		if !keep[id] {
			if err := s.Repo.DeleteQuestion(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// DeleteQuiz is rejected while submissions reference the quiz.
func (s *QuizService) DeleteQuiz(quizID string, ownerID uint) error {
	quiz, err := s.Repo.FindQuizByID(quizID)
	if err != nil {
		return util.ErrQuizNotFound
	}
	if quiz.OwnerID != ownerID {
		return util.ErrPermissionDenied
	}

	count, err := s.Repo.CountSubmissions(quizID)
	if err != nil {
		return err
	}
	if count > 0 {
		return util.ErrQuizHasSubmissions
	}

	return s.Repo.DeleteQuiz(quizID)
}

type QuizDetail struct {
	Quiz      *model.Quiz      `json:"quiz"`
	Questions []model.Question `json:"questions"`
}

// GetQuiz returns the quiz with its flattened question sequence. The role
// gates whether correct-answer sets are included: learners taking the quiz
// never receive them.
func (s *QuizService) GetQuiz(quizID string, role model.UserRole) (*QuizDetail, error) {
	quiz, err := s.Repo.FindQuizByID(quizID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, util.ErrQuizNotFound
		}
		return nil, err
	}

	qs, err := s.Repo.ListQuestions(quizID)
	if err != nil {
		return nil, err
	}
	flat := model.Flatten(qs)

	if role == model.Learner {
		if !quiz.IsPublished() {
			return nil, util.ErrQuizNotPublished
		}
		for i := range flat {
			flat[i].CorrectAnswers = nil
		}
	}

	return &QuizDetail{Quiz: quiz, Questions: flat}, nil
}

func (s *QuizService) ListQuizzes(ownerID uint, page, limit int) ([]repository.QuizListRow, int64, error) {
	return s.Repo.ListQuizzes(ownerID, page, limit)
}

func (s *QuizService) ListPublished(page, limit int) ([]repository.QuizListRow, int64, error) {
	return s.Repo.ListPublished(page, limit)
}

func (s *QuizService) CreateQuestion(quizID string, ownerID uint, req QuestionReq) (*model.Question, error) {
	quiz, err := s.Repo.FindQuizByID(quizID)
	if err != nil {
		return nil, util.ErrQuizNotFound
	}
	if quiz.OwnerID != ownerID {
		return nil, util.ErrPermissionDenied
	}

	q, err := req.toModel(quizID)
	if err != nil {
		return nil, err
	}

	var parent *model.Question
	if q.ParentID != nil {
		parent, err = s.Repo.FindQuestionByID(*q.ParentID)
		if err != nil {
			parent = nil
		}
	}
	if err := model.ValidateQuestion(q, parent); err != nil {
		return nil, err
	}

	if err := s.Repo.CreateQuestion(q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *QuizService) UpdateQuestion(questionID string, ownerID uint, req QuestionReq) (*model.Question, error) {
	q, err := s.Repo.FindQuestionByID(questionID)
	if err != nil {
		return nil, util.ErrQuizNotFound
	}
	quiz, err := s.Repo.FindQuizByID(q.QuizID)
	if err != nil {
		return nil, util.ErrQuizNotFound
	}
	if quiz.OwnerID != ownerID {
		return nil, util.ErrPermissionDenied
	}

	updated, err := req.toModel(q.QuizID)
	if err != nil {
		return nil, err
	}
	updated.ID = q.ID
	updated.UUIDBase = q.UUIDBase

	var parent *model.Question
	if updated.ParentID != nil {
		parent, err = s.Repo.FindQuestionByID(*updated.ParentID)
		if err != nil {
			parent = nil
		}
	}
	if err := model.ValidateQuestion(updated, parent); err != nil {
		return nil, err
	}

	if err := s.Repo.UpdateQuestion(updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *QuizService) DeleteQuestion(questionID string, ownerID uint) error {
	q, err := s.Repo.FindQuestionByID(questionID)
	if err != nil {
		return util.ErrQuizNotFound
	}
	quiz, err := s.Repo.FindQuizByID(q.QuizID)
	if err != nil {
		return util.ErrQuizNotFound
	}
	if quiz.OwnerID != ownerID {
		return util.ErrPermissionDenied
	}
	return s.Repo.DeleteQuestion(questionID)
}
