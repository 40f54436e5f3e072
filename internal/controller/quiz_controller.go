package controller

import (
	"errors"
	"strconv"

	"quizdesk_backend/internal/model"
	"quizdesk_backend/internal/service"
	"quizdesk_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type QuizController struct {
	QuizService *service.QuizService
}

func NewQuizController(quizService *service.QuizService) *QuizController {
	return &QuizController{QuizService: quizService}
}

func pagination(ctx *gin.Context) (int, int) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

// quizError maps service sentinels onto the response envelope.
func quizError(ctx *gin.Context, err error) {
	var vErr *model.ValidationError
	switch {
	case errors.As(err, &vErr):
		util.BadRequest(ctx, vErr.Error())
	case errors.Is(err, util.ErrQuizNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrQuizNotPublished):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrPermissionDenied):
		util.Forbidden(ctx)
	case errors.Is(err, util.ErrQuizHasSubmissions):
		util.Conflict(ctx, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

// CreateQuiz godoc
// @Summary 创建测验
// @Description 创建测验，可同时携带题目列表
// @Tags 测验管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.QuizReq true "测验内容"
// @Success 201 {object} util.Response{data=model.Quiz}
// @Failure 400 {object} util.Response "校验失败"
// @Router /api/instructor/quizzes [post]
func (c *QuizController) CreateQuiz(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.QuizReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	quiz, err := c.QuizService.CreateQuiz(user.UserID, req)
	if err != nil {
		quizError(ctx, err)
		return
	}
	util.Created(ctx, quiz)
}

// UpdateQuiz godoc
// @Summary 更新测验
// @Description 局部更新：仅携带的字段被修改；携带 questions 时整表对账
// @Tags 测验管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "测验ID"
// @Param body body service.QuizReq true "更新内容"
// @Success 200 {object} util.Response{data=model.Quiz}
// @Router /api/instructor/quizzes/{id} [put]
func (c *QuizController) UpdateQuiz(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.QuizReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	quiz, err := c.QuizService.UpdateQuiz(ctx.Param("id"), user.UserID, req)
	if err != nil {
		quizError(ctx, err)
		return
	}
	util.Success(ctx, quiz)
}

// DeleteQuiz godoc
// @Summary 删除测验
// @Description 已有提交记录的测验拒绝删除
// @Tags 测验管理
// @Produce json
// @Security BearerAuth
// @Param id path string true "测验ID"
// @Success 200 {object} util.Response
// @Failure 409 {object} util.Response "存在提交记录"
// @Router /api/instructor/quizzes/{id} [delete]
func (c *QuizController) DeleteQuiz(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	if err := c.QuizService.DeleteQuiz(ctx.Param("id"), user.UserID); err != nil {
		quizError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"deleted": true})
}

// GetQuiz godoc
// @Summary 获取测验详情
// @Description 学习者仅能看到已发布测验，且响应中不含正确答案
// @Tags 测验管理
// @Produce json
// @Security BearerAuth
// @Param id path string true "测验ID"
// @Success 200 {object} util.Response{data=service.QuizDetail}
// @Router /api/quizzes/{id} [get]
func (c *QuizController) GetQuiz(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	detail, err := c.QuizService.GetQuiz(ctx.Param("id"), user.Role)
	if err != nil {
		quizError(ctx, err)
		return
	}
	util.Success(ctx, detail)
}

// ListMyQuizzes godoc
// @Summary 列出我创建的测验
// @Tags 测验管理
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/instructor/quizzes [get]
func (c *QuizController) ListMyQuizzes(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	page, limit := pagination(ctx)
	rows, total, err := c.QuizService.ListQuizzes(user.UserID, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: rows, Total: total, Page: page, Limit: limit})
}

// ListPublished godoc
// @Summary 列出可参加的测验
// @Tags 测验管理
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/quizzes [get]
func (c *QuizController) ListPublished(ctx *gin.Context) {
	page, limit := pagination(ctx)
	rows, total, err := c.QuizService.ListPublished(page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: rows, Total: total, Page: page, Limit: limit})
}

// CreateQuestion godoc
// @Summary 新增题目
// @Description 题目校验失败时整体拒绝，不产生部分写入
// @Tags 测验管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "测验ID"
// @Param body body service.QuestionReq true "题目内容"
// @Success 201 {object} util.Response{data=model.Question}
// @Router /api/instructor/quizzes/{id}/questions [post]
func (c *QuizController) CreateQuestion(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.QuestionReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	q, err := c.QuizService.CreateQuestion(ctx.Param("id"), user.UserID, req)
	if err != nil {
		quizError(ctx, err)
		return
	}
	util.Created(ctx, q)
}

// UpdateQuestion godoc
// @Summary 更新题目
// @Tags 测验管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param questionId path string true "题目ID"
// @Param body body service.QuestionReq true "题目内容"
// @Success 200 {object} util.Response{data=model.Question}
// @Router /api/instructor/questions/{questionId} [put]
func (c *QuizController) UpdateQuestion(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.QuestionReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	q, err := c.QuizService.UpdateQuestion(ctx.Param("questionId"), user.UserID, req)
	if err != nil {
		quizError(ctx, err)
		return
	}
	util.Success(ctx, q)
}

// DeleteQuestion godoc
// @Summary 删除题目
// @Description 媒体容器题目删除时级联删除其子题
// @Tags 测验管理
// @Produce json
// @Security BearerAuth
// @Param questionId path string true "题目ID"
// @Success 200 {object} util.Response
// @Router /api/instructor/questions/{questionId} [delete]
func (c *QuizController) DeleteQuestion(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	if err := c.QuizService.DeleteQuestion(ctx.Param("questionId"), user.UserID); err != nil {
		quizError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"deleted": true})
}
