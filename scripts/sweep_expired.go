// 手动触发过期会话清扫脚本
//
// 该功能已集成到主应用的后台定时任务中（按 engine.deadline_sweep_seconds 周期执行）。
// 此脚本仅用于手动触发，例如服务重启后立即结算积压的过期会话。
//
// 用法: go run scripts/sweep_expired.go

package main

import (
	"log"
	"quizdesk_backend/internal/config"
	"quizdesk_backend/internal/repository"
	"quizdesk_backend/internal/service"
	"quizdesk_backend/pkg/database"
	"quizdesk_backend/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	logger.InitLogger(cfg)

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Redis连接失败: %v", err)
	}

	quizRepo := repository.NewQuizRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db, rdb)
	grading := service.NewGradingService(quizRepo, submissionRepo)
	storage := service.NewStorageService(cfg)
	capture := service.NewCaptureService(storage, cfg.Engine.CaptureDir, cfg.Engine.AmplitudeWindow())
	sessions := service.NewSessionService(quizRepo, submissionRepo, grading, capture, &cfg.Engine)

	log.Println("手动触发过期会话清扫...")
	if err := sessions.SweepExpired(); err != nil {
		log.Fatalf("清扫失败: %v", err)
	}
	log.Println("完成！")
}
