package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"quizdesk_backend/internal/config"
	"quizdesk_backend/internal/controller"
	"quizdesk_backend/internal/repository"
	"quizdesk_backend/internal/service"
	"quizdesk_backend/pkg/database"
	"quizdesk_backend/pkg/logger"
	"quizdesk_backend/pkg/monitoring"
	"quizdesk_backend/pkg/security"
	"quizdesk_backend/pkg/tracing"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user       *repository.UserRepository
	quiz       *repository.QuizRepository
	submission *repository.SubmissionRepository
}

type services struct {
	auth    *service.AuthService
	storage *service.StorageService
	quiz    *service.QuizService
	grading *service.GradingService
	capture *service.CaptureService
	session *service.SessionService
}

type controllers struct {
	auth    *controller.AuthController
	quiz    *controller.QuizController
	session *controller.SessionController
	grading *controller.GradingController
	health  *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ApplyConfig swaps in a reloaded configuration and notifies registered
// callbacks. Hot-reload covers tunables read per request; server port and
// storage provider changes still need a restart.
func (a *App) ApplyConfig(cfg *config.Config) {
	a.Config = cfg
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
	logger.Log.Info("configuration applied", zap.String("mode", cfg.Server.Mode))
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client) *repositories {
	return &repositories{
		user:       repository.NewUserRepository(db),
		quiz:       repository.NewQuizRepository(db),
		submission: repository.NewSubmissionRepository(db, rdb),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config) *services {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.quiz = service.NewQuizService(repos.quiz)
	s.grading = service.NewGradingService(repos.quiz, repos.submission)
	s.capture = service.NewCaptureService(s.storage, cfg.Engine.CaptureDir, cfg.Engine.AmplitudeWindow())
	s.session = service.NewSessionService(repos.quiz, repos.submission, s.grading, s.capture, &cfg.Engine)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB) *controllers {
	return &controllers{
		auth:    controller.NewAuthController(s.auth),
		quiz:    controller.NewQuizController(s.quiz),
		session: controller.NewSessionController(s.session, s.storage),
		grading: controller.NewGradingController(s.grading),
		health:  controller.NewHealthController(db),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 10000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startBackgroundTasks runs the deadline sweeper that force-submits expired
// sessions, including ones whose engine did not survive a restart.
func (a *App) startBackgroundTasks(s *services) {
	go func() {
		ticker := time.NewTicker(a.Config.Engine.DeadlineSweepInterval())
		for range ticker.C {
			if err := s.session.SweepExpired(); err != nil {
				logger.Log.Error("deadline sweep error", zap.Error(err))
			}
		}
	}()
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Warn("Redis unavailable, deadline index disabled", zap.Error(err))
		rdb = nil
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db, rdb)
	services := app.initServices(repos, cfg)
	app.services = services
	controllers := app.initControllers(services, db)

	// 监控初始化
	monitoring.Init()

	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		_, err := tracing.InitTracer("quizdesk", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}
	router.Static("/captures", cfg.Engine.CaptureDir)

	app.startBackgroundTasks(services)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
