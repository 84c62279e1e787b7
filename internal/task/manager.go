package task

import (
	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"

	"github.com/uniqn/chip-service/internal/config"
	"github.com/uniqn/chip-service/internal/logger"
	"github.com/uniqn/chip-service/internal/logic"
)

// Manager 任务管理器
type Manager struct {
	scheduler    gocron.Scheduler
	db           *gorm.DB
	chips        *logic.ChipLogic
	subscription *logic.SubscriptionLogic
	rateLimit    *logic.RateLimitLogic
	config       *config.Config
}

// NewManager 创建新的任务管理器
func NewManager(db *gorm.DB, chips *logic.ChipLogic, subscription *logic.SubscriptionLogic, rateLimit *logic.RateLimitLogic, cfg *config.Config) *Manager {
	s, err := gocron.NewScheduler()
	if err != nil {
		logger.Fatal("Failed to create scheduler: %v", err)
	}

	return &Manager{
		scheduler:    s,
		db:           db,
		chips:        chips,
		subscription: subscription,
		rateLimit:    rateLimit,
		config:       cfg,
	}
}

// Start 启动任务管理器
func Start(db *gorm.DB, chips *logic.ChipLogic, subscription *logic.SubscriptionLogic, rateLimit *logic.RateLimitLogic, cfg *config.Config) *Manager {
	manager := NewManager(db, chips, subscription, rateLimit, cfg)

	// 注册所有任务
	manager.RegisterJobs()

	// 启动调度器
	manager.scheduler.Start()

	logger.Info("Task manager started successfully")
	return manager
}

// RegisterJobs 注册所有任务
func (m *Manager) RegisterJobs() {
	m.register(NewChipExpiryJob(m.chips, m.config))
	m.register(NewSubscriptionGrantJob(m.subscription, m.config))
	m.register(NewRateLimitCleanupJob(m.rateLimit, m.config))
}

// Job 定时任务接口
type Job interface {
	GetName() string
	GetSchedule() gocron.JobDefinition
	Execute()
}

func (m *Manager) register(job Job) {
	_, err := m.scheduler.NewJob(
		job.GetSchedule(),
		gocron.NewTask(job.Execute),
		gocron.WithName(job.GetName()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		logger.Error("Failed to register job %s: %v", job.GetName(), err)
	}
}

// Stop 停止任务管理器
func (m *Manager) Stop() {
	if err := m.scheduler.Shutdown(); err != nil {
		logger.Error("Failed to shutdown scheduler: %v", err)
	}
	logger.Info("Task manager stopped")
}
