package repository

import (
	"quizdesk_backend/internal/model"

	"gorm.io/gorm"
)

type QuizRepository struct {
	DB *gorm.DB
}

func NewQuizRepository(db *gorm.DB) *QuizRepository {
	return &QuizRepository{DB: db}
}

func (r *QuizRepository) CreateQuiz(quiz *model.Quiz) error {
	return r.DB.Create(quiz).Error
}

func (r *QuizRepository) FindQuizByID(id string) (*model.Quiz, error) {
	var quiz model.Quiz
	err := r.DB.First(&quiz, "id = ?", id).Error
	return &quiz, err
}

func (r *QuizRepository) UpdateQuiz(quiz *model.Quiz) error {
	return r.DB.Save(quiz).Error
}

// DeleteQuiz removes the quiz and its questions. The caller must have
// verified no submissions reference it.
func (r *QuizRepository) DeleteQuiz(id string) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("quiz_id = ?", id).Delete(&model.Question{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Quiz{}, "id = ?", id).Error
	})
}

func (r *QuizRepository) CountSubmissions(quizID string) (int64, error) {
	var count int64
	err := r.DB.Model(&model.Submission{}).Where("quiz_id = ?", quizID).Count(&count).Error
	return count, err
}

type QuizListRow struct {
	model.Quiz
	QuestionCount  int `json:"questionCount"`
	SubmittedCount int `json:"submittedCount"`
}

func (r *QuizRepository) ListQuizzes(ownerID uint, page, limit int) ([]QuizListRow, int64, error) {
	countQuery := r.DB.Model(&model.Quiz{}).Where("deleted_at IS NULL")
	if ownerID != 0 {
		countQuery = countQuery.Where("owner_id = ?", ownerID)
	}
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	dbQuery := r.DB.Table("quizzes q").
		Select("q.*, " +
			"(SELECT COUNT(*) FROM questions n WHERE n.quiz_id = q.id AND n.deleted_at IS NULL) as question_count, " +
			"(SELECT COUNT(*) FROM submissions s WHERE s.quiz_id = q.id AND s.deleted_at IS NULL AND s.status = 'completed') as submitted_count").
		Where("q.deleted_at IS NULL")
	if ownerID != 0 {
		dbQuery = dbQuery.Where("q.owner_id = ?", ownerID)
	}

	if limit > 0 {
		offset := (page - 1) * limit
		dbQuery = dbQuery.Offset(offset).Limit(limit)
	}

	var rows []QuizListRow
	err := dbQuery.Order("q.created_at desc").Scan(&rows).Error
	return rows, total, err
}

func (r *QuizRepository) ListPublished(page, limit int) ([]QuizListRow, int64, error) {
	var total int64
	if err := r.DB.Model(&model.Quiz{}).
		Where("deleted_at IS NULL AND status = ?", model.QuizPublished).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	dbQuery := r.DB.Table("quizzes q").
		Select("q.*, "+
			"(SELECT COUNT(*) FROM questions n WHERE n.quiz_id = q.id AND n.deleted_at IS NULL) as question_count, "+
			"(SELECT COUNT(*) FROM submissions s WHERE s.quiz_id = q.id AND s.deleted_at IS NULL AND s.status = 'completed') as submitted_count").
		Where("q.deleted_at IS NULL AND q.status = ?", model.QuizPublished)

	if limit > 0 {
		offset := (page - 1) * limit
		dbQuery = dbQuery.Offset(offset).Limit(limit)
	}

	var rows []QuizListRow
	err := dbQuery.Order("q.created_at desc").Scan(&rows).Error
	return rows, total, err
}

func (r *QuizRepository) CreateQuestion(question *model.Question) error {
	return r.DB.Create(question).Error
}

func (r *QuizRepository) FindQuestionByID(id string) (*model.Question, error) {
	var q model.Question
	err := r.DB.First(&q, "id = ?", id).Error
	return &q, err
}

func (r *QuizRepository) UpdateQuestion(question *model.Question) error {
	return r.DB.Save(question).Error
}

// DeleteQuestion removes a question together with its sub-questions.
func (r *QuizRepository) DeleteQuestion(id string) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("parent_id = ?", id).Delete(&model.Question{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Question{}, "id = ?", id).Error
	})
}

func (r *QuizRepository) ListQuestions(quizID string) ([]model.Question, error) {
	var qs []model.Question
	err := r.DB.Where("quiz_id = ?", quizID).Order("`order` asc, created_at asc").Find(&qs).Error
	return qs, err
}
