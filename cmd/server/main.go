package main

import (
	"log"

	"github.com/gin-gonic/gin"

	"github.com/uniqn/chip-service/internal/config"
	"github.com/uniqn/chip-service/internal/database"
	"github.com/uniqn/chip-service/internal/gateway"
	"github.com/uniqn/chip-service/internal/logger"
	"github.com/uniqn/chip-service/internal/logic"
	"github.com/uniqn/chip-service/internal/notifier"
	"github.com/uniqn/chip-service/internal/router"
	"github.com/uniqn/chip-service/internal/task"
)

func main() {
	// 加载配置
	cfg := config.Load()

	// 初始化日志
	initLogger(cfg)
	defer logger.Sync()

	// 初始化数据库
	db, err := database.Init(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// 初始化支付网关客户端
	gw := gateway.Init(cfg.Gateway)

	// 组装业务逻辑
	n := notifier.NewLogNotifier()
	ledgerLogic := logic.NewLedgerLogic(db)
	chipLogic := logic.NewChipLogic(db, ledgerLogic, n)
	rateLimitLogic := logic.NewRateLimitLogic(db)
	abuseLogic := logic.NewAbuseLogic(db)
	paymentLogic := logic.NewPaymentLogic(db, ledgerLogic, chipLogic, rateLimitLogic, abuseLogic, gw, n)
	refundLogic := logic.NewRefundLogic(db, ledgerLogic, chipLogic, rateLimitLogic, gw, n)
	subscriptionLogic := logic.NewSubscriptionLogic(db, ledgerLogic, chipLogic, n)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化路由
	r := router.Setup(router.Deps{
		Ledger:       ledgerLogic,
		Chips:        chipLogic,
		Payment:      paymentLogic,
		Refund:       refundLogic,
		Subscription: subscriptionLogic,
		RateLimit:    rateLimitLogic,
	})

	// 启动定时任务
	manager := task.Start(db, chipLogic, subscriptionLogic, rateLimitLogic, cfg)
	defer manager.Stop()

	// 启动服务器
	logger.Info("Server starting on port %s", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// initLogger 按配置初始化全局日志
func initLogger(cfg *config.Config) {
	level := logger.ParseLogLevel(cfg.Log.Level)

	var (
		l   *logger.Logger
		err error
	)
	if cfg.Log.Output == "file" {
		l, err = logger.NewWithRotation(level, logger.RotationConfig{
			Filename: cfg.Log.File,
		})
	} else {
		l, err = logger.New(level)
	}
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.SetDefaultLogger(l)
}
