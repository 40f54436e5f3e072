package controller

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"quizdesk_backend/internal/model"
	"quizdesk_backend/internal/service"
	"quizdesk_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type SessionController struct {
	SessionService *service.SessionService
	StorageService *service.StorageService
}

func NewSessionController(sessionService *service.SessionService, storageService *service.StorageService) *SessionController {
	return &SessionController{
		SessionService: sessionService,
		StorageService: storageService,
	}
}

// sessionError maps session sentinels onto the response envelope.
func sessionError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrQuizNotFound), errors.Is(err, util.ErrSubmissionNotFound), errors.Is(err, util.ErrSessionNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrQuizNotPublished):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrPermissionDenied):
		util.Forbidden(ctx)
	case errors.Is(err, util.ErrAlreadySubmitted):
		util.Conflict(ctx, err.Error())
	case errors.Is(err, util.ErrConfirmRequired),
		errors.Is(err, util.ErrUploadPending),
		errors.Is(err, util.ErrCaptureNotActive):
		util.BadRequest(ctx, err.Error())
	case errors.Is(err, util.ErrDeviceUnavailable):
		util.Error(ctx, 503, err.Error())
	case errors.Is(err, util.ErrSubmitFailure), errors.Is(err, util.ErrUploadFailure):
		util.Error(ctx, 502, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

// StartSession godoc
// @Summary 开始或恢复答题会话
// @Description 同一学习者对同一测验只有一份提交；重复调用返回既有提交
// @Tags 答题会话
// @Produce json
// @Security BearerAuth
// @Param id path string true "测验ID"
// @Success 200 {object} util.Response{data=model.Submission}
// @Failure 404 {object} util.Response "测验不存在或未发布"
// @Router /api/quizzes/{id}/session [post]
func (c *SessionController) StartSession(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	submission, err := c.SessionService.Start(user.UserID, user.Email, ctx.Param("id"))
	if err != nil {
		sessionError(ctx, err)
		return
	}
	util.Success(ctx, submission)
}

// GetState godoc
// @Summary 会话状态快照
// @Description 含当前题目、剩余秒数、待上传题目与未作答提示
// @Tags 答题会话
// @Produce json
// @Security BearerAuth
// @Param id path string true "提交ID"
// @Success 200 {object} util.Response{data=service.StateView}
// @Router /api/sessions/{id}/state [get]
func (c *SessionController) GetState(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	view, err := c.SessionService.State(ctx.Param("id"), user.UserID)
	if err != nil {
		sessionError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// AnswerRequest 单题作答内容；按题型取 text 或 selected
type AnswerRequest struct {
	QuestionID string   `json:"questionId" binding:"required"`
	Kind       string   `json:"kind" binding:"required,oneof=text choice choices"`
	Text       string   `json:"text"`
	Selected   []string `json:"selected"`
}

// RecordAnswer godoc
// @Summary 记录作答
// @Description 写入内存缓冲，由自动保存周期性落库；重复作答覆盖旧值
// @Tags 答题会话
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "提交ID"
// @Param body body AnswerRequest true "作答内容"
// @Success 200 {object} util.Response
// @Router /api/sessions/{id}/answers [post]
func (c *SessionController) RecordAnswer(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req AnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	delta := service.AnswerDelta{
		QuestionID: req.QuestionID,
		Value: model.AnswerValue{
			Kind:     model.AnswerKind(req.Kind),
			Text:     req.Text,
			Selected: req.Selected,
		},
	}

	if err := c.SessionService.Record(ctx.Param("id"), user.UserID, delta); err != nil {
		sessionError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"recorded": true})
}

// NavigateRequest 前后翻题；delta 为 -1 或 1
type NavigateRequest struct {
	Delta int `json:"delta" binding:"required"`
}

// Navigate godoc
// @Summary 切换当前题目
// @Description 当前题目的录音上传未完成时拒绝切换
// @Tags 答题会话
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "提交ID"
// @Param body body NavigateRequest true "移动步长"
// @Success 200 {object} util.Response
// @Router /api/sessions/{id}/navigate [post]
func (c *SessionController) Navigate(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req NavigateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := c.SessionService.Navigate(ctx.Param("id"), user.UserID, req.Delta); err != nil {
		sessionError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"moved": true})
}

// Flush godoc
// @Summary 立即保存
// @Description 将缓冲中的作答立即落库，不等待自动保存周期
// @Tags 答题会话
// @Produce json
// @Security BearerAuth
// @Param id path string true "提交ID"
// @Success 200 {object} util.Response
// @Router /api/sessions/{id}/flush [post]
func (c *SessionController) Flush(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	if err := c.SessionService.Flush(ctx.Param("id"), user.UserID); err != nil {
		sessionError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"flushed": true})
}

// SubmitRequest confirmed=false 时由服务端征询确认；无头部署必须传 true
type SubmitRequest struct {
	Confirmed bool `json:"confirmed"`
}

// Submit godoc
// @Summary 提交测验
// @Description 提交后立即自动评分客观题；失败可安全重试
// @Tags 答题会话
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "提交ID"
// @Param body body SubmitRequest true "确认标志"
// @Success 200 {object} util.Response{data=model.Submission}
// @Router /api/sessions/{id}/submit [post]
func (c *SessionController) Submit(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req SubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	submission, err := c.SessionService.Submit(ctx.Param("id"), user.UserID, req.Confirmed)
	if err != nil {
		sessionError(ctx, err)
		return
	}
	util.Success(ctx, submission)
}

// CaptureRequest 开始录音
type CaptureRequest struct {
	QuestionID string `json:"questionId" binding:"required"`
	DeviceID   string `json:"deviceId"`
	MimeType   string `json:"mimeType"`
}

// BeginCapture godoc
// @Summary 开始录音
// @Description 设备不可用时返回 503，会话继续，不强制要求录音
// @Tags 答题会话
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "提交ID"
// @Param body body CaptureRequest true "录音目标题目与设备"
// @Success 200 {object} util.Response
// @Failure 503 {object} util.Response "设备不可用"
// @Router /api/sessions/{id}/capture [post]
func (c *SessionController) BeginCapture(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req CaptureRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if req.MimeType == "" {
		req.MimeType = "audio/webm"
	}

	if err := c.SessionService.BeginCapture(ctx.Param("id"), user.UserID, req.QuestionID, req.DeviceID, req.MimeType); err != nil {
		sessionError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"capturing": true})
}

// CaptureChunk godoc
// @Summary 追加录音数据
// @Description 请求体为原始音频字节流
// @Tags 答题会话
// @Accept octet-stream
// @Produce json
// @Security BearerAuth
// @Param id path string true "提交ID"
// @Success 200 {object} util.Response{data=object} "返回当前音量级别"
// @Router /api/sessions/{id}/capture/chunk [post]
func (c *SessionController) CaptureChunk(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	data, err := io.ReadAll(io.LimitReader(ctx.Request.Body, 8<<20))
	if err != nil {
		util.BadRequest(ctx, "failed to read audio chunk")
		return
	}

	if err := c.SessionService.CaptureChunk(ctx.Param("id"), user.UserID, data); err != nil {
		sessionError(ctx, err)
		return
	}

	level, err := c.SessionService.CaptureLevel(ctx.Param("id"), user.UserID)
	if err != nil {
		level = 0
	}
	util.Success(ctx, gin.H{"level": level})
}

// StopCapture godoc
// @Summary 结束录音
// @Description 同步返回本地预览引用；持久化地址异步解析后自动回填
// @Tags 答题会话
// @Produce json
// @Security BearerAuth
// @Param id path string true "提交ID"
// @Success 200 {object} util.Response{data=object} "本地预览引用"
// @Router /api/sessions/{id}/capture/stop [post]
func (c *SessionController) StopCapture(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	localRef, err := c.SessionService.StopCapture(ctx.Param("id"), user.UserID)
	if err != nil {
		sessionError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"localRef": localRef})
}

// UploadAnswerFile godoc
// @Summary 上传附件作答
// @Description multipart 文件直传存储，成功后记录为该题的作答
// @Tags 答题会话
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "提交ID"
// @Param questionId formData string true "题目ID"
// @Param file formData file true "附件"
// @Success 200 {object} util.Response{data=object} "持久化地址"
// @Router /api/sessions/{id}/files [post]
func (c *SessionController) UploadAnswerFile(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	questionID := ctx.PostForm("questionId")
	if questionID == "" {
		util.BadRequest(ctx, "questionId is required")
		return
	}

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "file is required")
		return
	}
	if fileHeader.Size > 32<<20 {
		util.BadRequest(ctx, "file exceeds 32MB limit")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	filename := fmt.Sprintf("answers/%s/%d%s", ctx.Param("id"), time.Now().UnixNano(), filepath.Ext(fileHeader.Filename))
	url, err := c.StorageService.UploadBytes(ctx.Request.Context(), filename, data, contentType)
	if err != nil {
		util.Error(ctx, 502, util.ErrUploadFailure.Error())
		return
	}

	delta := service.AnswerDelta{
		QuestionID: questionID,
		Value: model.AnswerValue{
			Kind:       model.AnswerFile,
			DurableURL: url,
			MimeType:   contentType,
		},
	}
	if err := c.SessionService.Record(ctx.Param("id"), user.UserID, delta); err != nil {
		sessionError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"url": url})
}
