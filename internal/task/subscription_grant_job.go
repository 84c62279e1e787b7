package task

import (
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/uniqn/chip-service/internal/config"
	"github.com/uniqn/chip-service/internal/logger"
	"github.com/uniqn/chip-service/internal/logic"
)

// SubscriptionGrantJob 订阅月度发放任务
// 发放本身按 last_grant_month 幂等，错过调度后补跑不会重复发放
type SubscriptionGrantJob struct {
	subscription *logic.SubscriptionLogic
	config       *config.Config
}

// NewSubscriptionGrantJob 创建订阅月度发放任务
func NewSubscriptionGrantJob(subscription *logic.SubscriptionLogic, cfg *config.Config) *SubscriptionGrantJob {
	return &SubscriptionGrantJob{
		subscription: subscription,
		config:       cfg,
	}
}

// GetName 获取任务名称
func (j *SubscriptionGrantJob) GetName() string {
	return "subscription_grant"
}

// GetSchedule 获取调度配置
func (j *SubscriptionGrantJob) GetSchedule() gocron.JobDefinition {
	return gocron.CronJob(j.config.Task.SubscriptionGrantCron, false)
}

// Execute 执行任务
func (j *SubscriptionGrantJob) Execute() {
	logger.Info("Starting subscription grant task")

	result, err := j.subscription.GrantMonthly(time.Now())
	if err != nil {
		logger.Error("Subscription grant task failed: %v", err)
		return
	}

	logger.Info("Subscription grant task completed. %d granted, %d skipped, %d failed",
		result.Granted, result.Skipped, result.Failed)
}
