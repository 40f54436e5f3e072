package controller

import (
	"errors"

	"quizdesk_backend/internal/service"
	"quizdesk_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type GradingController struct {
	GradingService *service.GradingService
}

func NewGradingController(gradingService *service.GradingService) *GradingController {
	return &GradingController{GradingService: gradingService}
}

func gradingError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrSubmissionNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrInvalidGrade):
		util.BadRequest(ctx, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

// ListSubmissions godoc
// @Summary 列出测验的提交记录
// @Description 支持按学员姓名模糊搜索与状态过滤
// @Tags 评分
// @Produce json
// @Security BearerAuth
// @Param id path string true "测验ID"
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Param student query string false "学员姓名关键字"
// @Param status query string false "提交状态"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/instructor/quizzes/{id}/submissions [get]
func (c *GradingController) ListSubmissions(ctx *gin.Context) {
	page, limit := pagination(ctx)
	rows, total, err := c.GradingService.ListSubmissions(
		ctx.Param("id"),
		page, limit,
		ctx.Query("student"),
		ctx.Query("status"),
	)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: rows, Total: total, Page: page, Limit: limit})
}

// GetSubmissionDetail godoc
// @Summary 提交详情
// @Description 含逐题作答、题目定义与生效分数（覆盖分优先）
// @Tags 评分
// @Produce json
// @Security BearerAuth
// @Param id path string true "提交ID"
// @Success 200 {object} util.Response
// @Router /api/instructor/submissions/{id} [get]
func (c *GradingController) GetSubmissionDetail(ctx *gin.Context) {
	detail, err := c.GradingService.GetSubmissionDetail(ctx.Param("id"))
	if err != nil {
		gradingError(ctx, err)
		return
	}
	util.Success(ctx, detail)
}

// GradeAnswerRequest 单题评分；mark 必须落在 [0, 题目分值] 区间
type GradeAnswerRequest struct {
	Mark     *int   `json:"mark" binding:"required"`
	Feedback string `json:"feedback"`
}

// GradeAnswer godoc
// @Summary 人工评分单题
// @Description 写入评分并重算提交总分；同题后写覆盖先写
// @Tags 评分
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param answerId path string true "作答ID"
// @Param body body GradeAnswerRequest true "分数与评语"
// @Success 200 {object} util.Response{data=model.Submission}
// @Failure 400 {object} util.Response "分数越界"
// @Router /api/instructor/answers/{answerId}/grade [post]
func (c *GradingController) GradeAnswer(ctx *gin.Context) {
	var req GradeAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	submission, err := c.GradingService.GradeAnswer(ctx.Param("answerId"), *req.Mark, req.Feedback)
	if err != nil {
		gradingError(ctx, err)
		return
	}
	util.Success(ctx, submission)
}

// SubmissionFeedbackRequest 总评与可选的最终分覆盖；override 传 null 清除覆盖
type SubmissionFeedbackRequest struct {
	Feedback *string `json:"feedback"`
	Override *int    `json:"override"`
}

// SetSubmissionFeedback godoc
// @Summary 提交总评与分数覆盖
// @Description 覆盖分仅影响学员可见分数，计算分保留并继续随评分更新
// @Tags 评分
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "提交ID"
// @Param body body SubmissionFeedbackRequest true "总评内容"
// @Success 200 {object} util.Response{data=model.Submission}
// @Router /api/instructor/submissions/{id}/feedback [post]
func (c *GradingController) SetSubmissionFeedback(ctx *gin.Context) {
	var req SubmissionFeedbackRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	submission, err := c.GradingService.SetSubmissionFeedback(ctx.Param("id"), req.Feedback, req.Override)
	if err != nil {
		gradingError(ctx, err)
		return
	}
	util.Success(ctx, submission)
}
