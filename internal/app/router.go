package app

import (
	"quizdesk_backend/docs"
	"quizdesk_backend/internal/config"
	"quizdesk_backend/internal/middleware"
	"quizdesk_backend/internal/model"
	"quizdesk_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		a.registerLearnerRoutes(authGroup, c)
		a.registerInstructorRoutes(authGroup, c)
	}
}

func (a *App) registerLearnerRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.GET("/profile", c.auth.GetProfile)

	// 测验浏览
	rg.GET("/quizzes", c.quiz.ListPublished)
	rg.GET("/quizzes/:id", c.quiz.GetQuiz)

	// 答题会话
	rg.POST("/quizzes/:id/session", c.session.StartSession)
	session := rg.Group("/sessions/:id")
	{
		session.GET("/state", c.session.GetState)
		session.POST("/answers", c.session.RecordAnswer)
		session.POST("/navigate", c.session.Navigate)
		session.POST("/flush", c.session.Flush)
		session.POST("/submit", c.session.Submit)
		session.POST("/files", c.session.UploadAnswerFile)

		// 录音
		session.POST("/capture", c.session.BeginCapture)
		session.POST("/capture/chunk", c.session.CaptureChunk)
		session.POST("/capture/stop", c.session.StopCapture)
	}
}

func (a *App) registerInstructorRoutes(rg *gin.RouterGroup, c *controllers) {
	instructor := rg.Group("/instructor")
	instructor.Use(middleware.RoleMiddleware(model.Instructor, model.Admin))
	{
		// 测验管理
		instructor.POST("/quizzes", c.quiz.CreateQuiz)
		instructor.GET("/quizzes", c.quiz.ListMyQuizzes)
		instructor.PUT("/quizzes/:id", c.quiz.UpdateQuiz)
		instructor.DELETE("/quizzes/:id", c.quiz.DeleteQuiz)

		// 题目管理
		instructor.POST("/quizzes/:id/questions", c.quiz.CreateQuestion)
		instructor.PUT("/questions/:questionId", c.quiz.UpdateQuestion)
		instructor.DELETE("/questions/:questionId", c.quiz.DeleteQuestion)

		// 评分
		instructor.GET("/quizzes/:id/submissions", c.grading.ListSubmissions)
		instructor.GET("/submissions/:id", c.grading.GetSubmissionDetail)
		instructor.POST("/answers/:answerId/grade", c.grading.GradeAnswer)
		instructor.POST("/submissions/:id/feedback", c.grading.SetSubmissionFeedback)
	}
}
