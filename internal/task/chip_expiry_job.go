package task

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/panjf2000/ants/v2"

	"github.com/uniqn/chip-service/internal/config"
	"github.com/uniqn/chip-service/internal/logger"
	"github.com/uniqn/chip-service/internal/logic"
)

// 过期清理并发度
const expiryPoolSize = 10

// ChipExpiryJob 筹码过期清理任务
// 每日扫描有到期发放流水的用户，逐用户回收过期筹码。
// 单个用户失败只记日志，不影响其他用户
type ChipExpiryJob struct {
	chips  *logic.ChipLogic
	config *config.Config
}

// NewChipExpiryJob 创建筹码过期清理任务
func NewChipExpiryJob(chips *logic.ChipLogic, cfg *config.Config) *ChipExpiryJob {
	return &ChipExpiryJob{
		chips:  chips,
		config: cfg,
	}
}

// GetName 获取任务名称
func (j *ChipExpiryJob) GetName() string {
	return "chip_expiry_sweeper"
}

// GetSchedule 获取调度配置
func (j *ChipExpiryJob) GetSchedule() gocron.JobDefinition {
	return gocron.CronJob(j.config.Task.ExpirySweepCron, false)
}

// Execute 执行任务
func (j *ChipExpiryJob) Execute() {
	logger.Info("Starting chip expiry sweep task")

	now := time.Now()
	userIds, err := j.chips.ListDueUserIds(now)
	if err != nil {
		logger.Error("Failed to list users with expired chips: %v", err)
		return
	}
	if len(userIds) == 0 {
		logger.Info("Chip expiry sweep completed. No users due")
		return
	}

	pool, err := ants.NewPool(expiryPoolSize)
	if err != nil {
		logger.Error("Failed to create expiry worker pool: %v", err)
		return
	}
	defer pool.Release()

	var (
		wg          sync.WaitGroup
		sweptUsers  atomic.Int64
		redExpired  atomic.Int64
		blueExpired atomic.Int64
		failed      atomic.Int64
	)

	for _, userId := range userIds {
		userId := userId
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			result, err := j.chips.SweepUser(userId, now)
			if err != nil {
				failed.Add(1)
				logger.Error("Failed to sweep expired chips for user %s: %v", userId, err)
				return
			}
			if result.RedExpired > 0 || result.BlueExpired > 0 {
				sweptUsers.Add(1)
				redExpired.Add(result.RedExpired)
				blueExpired.Add(result.BlueExpired)
			}
		})
		if err != nil {
			wg.Done()
			failed.Add(1)
			logger.Error("Failed to submit sweep task for user %s: %v", userId, err)
		}
	}
	wg.Wait()

	logger.Info("Chip expiry sweep completed. %d users swept (%d red, %d blue expired), %d failed",
		sweptUsers.Load(), redExpired.Load(), blueExpired.Load(), failed.Load())
}
