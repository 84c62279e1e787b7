package task

import (
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/uniqn/chip-service/internal/config"
	"github.com/uniqn/chip-service/internal/logger"
	"github.com/uniqn/chip-service/internal/logic"
)

// RateLimitCleanupJob 限流窗口清理任务
type RateLimitCleanupJob struct {
	rateLimit *logic.RateLimitLogic
	config    *config.Config
}

// NewRateLimitCleanupJob 创建限流窗口清理任务
func NewRateLimitCleanupJob(rateLimit *logic.RateLimitLogic, cfg *config.Config) *RateLimitCleanupJob {
	return &RateLimitCleanupJob{
		rateLimit: rateLimit,
		config:    cfg,
	}
}

// GetName 获取任务名称
func (j *RateLimitCleanupJob) GetName() string {
	return "rate_limit_cleanup"
}

// GetSchedule 获取调度配置
func (j *RateLimitCleanupJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(time.Duration(j.config.Task.JanitorIntervalSec) * time.Second)
}

// Execute 执行任务
func (j *RateLimitCleanupJob) Execute() {
	deleted, err := j.rateLimit.CleanupExpired()
	if err != nil {
		logger.Error("Rate limit cleanup task failed: %v", err)
		return
	}
	if deleted > 0 {
		logger.Info("Rate limit cleanup task completed. Deleted %d expired windows", deleted)
	}
}
