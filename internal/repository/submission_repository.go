package repository

import (
	"context"
	"quizdesk_backend/internal/model"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// deadlineKey is a redis sorted set of submission ids scored by deadline unix
// seconds. The sweeper reads it to force-submit sessions whose owning event
// loop is gone, e.g. after a restart.
const deadlineKey = "quiz:deadlines"

type SubmissionRepository struct {
	DB  *gorm.DB
	RDB *redis.Client
}

func NewSubmissionRepository(db *gorm.DB, rdb *redis.Client) *SubmissionRepository {
	return &SubmissionRepository{DB: db, RDB: rdb}
}

func (r *SubmissionRepository) Create(submission *model.Submission) error {
	return r.DB.Create(submission).Error
}

func (r *SubmissionRepository) FindByID(id string) (*model.Submission, error) {
	var s model.Submission
	err := r.DB.First(&s, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FindByUserAndQuiz returns the learner's submission for the quiz regardless
// of status. At most one row exists per (quiz, learner); starting again
// resumes it.
func (r *SubmissionRepository) FindByUserAndQuiz(userID uint, quizID string) (*model.Submission, error) {
	var s model.Submission
	err := r.DB.Where("user_id = ? AND quiz_id = ?", userID, quizID).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubmissionRepository) Update(submission *model.Submission) error {
	return r.DB.Save(submission).Error
}

// UpsertAnswers writes the buffered answers, last write wins per
// (submission, question). Instructor-owned mark fields are never touched by
// an autosave upsert.
func (r *SubmissionRepository) UpsertAnswers(submissionID string, answers []model.Answer) error {
	if len(answers) == 0 {
		return nil
	}
	for i := range answers {
		answers[i].SubmissionID = submissionID
	}
	return r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "submission_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&answers).Error
}

func (r *SubmissionRepository) ListAnswers(submissionID string) ([]model.Answer, error) {
	var answers []model.Answer
	err := r.DB.Where("submission_id = ?", submissionID).Find(&answers).Error
	return answers, err
}

func (r *SubmissionRepository) FindAnswerByID(id string) (*model.Answer, error) {
	var a model.Answer
	err := r.DB.First(&a, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *SubmissionRepository) SaveAnswer(answer *model.Answer) error {
	return r.DB.Save(answer).Error
}

type SubmissionListRow struct {
	model.Submission
	UserEmail string `json:"userEmail"`
}

func (r *SubmissionRepository) ListByQuiz(quizID string, page, limit int, studentName string, status string) ([]SubmissionListRow, int64, error) {
	query := r.DB.Table("submissions s").
		Select("s.*, u.email as user_email").
		Joins("JOIN users u ON s.user_id = u.id").
		Where("s.quiz_id = ? AND s.deleted_at IS NULL", quizID)

	if studentName != "" {
		query = query.Where("u.name LIKE ?", "%"+studentName+"%")
	}
	if status != "" {
		query = query.Where("s.status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []SubmissionListRow
	offset := (page - 1) * limit
	err := query.Order("s.created_at desc").Offset(offset).Limit(limit).Scan(&rows).Error
	return rows, total, err
}

func (r *SubmissionRepository) GetDetail(submissionID string) (*model.Submission, []model.Answer, error) {
	var submission model.Submission
	if err := r.DB.First(&submission, "id = ?", submissionID).Error; err != nil {
		return nil, nil, err
	}

	var answers []model.Answer
	if err := r.DB.Where("submission_id = ?", submissionID).Find(&answers).Error; err != nil {
		return nil, nil, err
	}

	return &submission, answers, nil
}

func (r *SubmissionRepository) IndexDeadline(ctx context.Context, submissionID string, deadline time.Time) error {
	if r.RDB == nil {
		return nil
	}
	return r.RDB.ZAdd(ctx, deadlineKey, &redis.Z{
		Score:  float64(deadline.Unix()),
		Member: submissionID,
	}).Err()
}

func (r *SubmissionRepository) ClearDeadline(ctx context.Context, submissionID string) error {
	if r.RDB == nil {
		return nil
	}
	return r.RDB.ZRem(ctx, deadlineKey, submissionID).Err()
}

// ExpiredSubmissions returns ids whose indexed deadline is at or before now.
func (r *SubmissionRepository) ExpiredSubmissions(ctx context.Context, now time.Time) ([]string, error) {
	if r.RDB == nil {
		return nil, nil
	}
	return r.RDB.ZRangeByScore(ctx, deadlineKey, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
}
