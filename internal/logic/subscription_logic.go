package logic

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/uniqn/chip-service/internal/cerr"
	"github.com/uniqn/chip-service/internal/logger"
	"github.com/uniqn/chip-service/internal/model"
	"github.com/uniqn/chip-service/internal/notifier"
)

// SubscriptionLogic 订阅管理与月度筹码发放
type SubscriptionLogic struct {
	db       *gorm.DB
	ledger   *LedgerLogic
	chips    *ChipLogic
	notifier notifier.Notifier
}

// NewSubscriptionLogic 创建订阅业务逻辑
func NewSubscriptionLogic(db *gorm.DB, ledger *LedgerLogic, chips *ChipLogic, n notifier.Notifier) *SubscriptionLogic {
	return &SubscriptionLogic{db: db, ledger: ledger, chips: chips, notifier: n}
}

// Subscribe 开通订阅，已有生效订阅时切换套餐
func (s *SubscriptionLogic) Subscribe(userId, plan string) (*model.Subscription, error) {
	if _, ok := model.SubscriptionPlanChips[plan]; !ok {
		return nil, fmt.Errorf("未知的订阅套餐: %s", plan)
	}

	var sub model.Subscription
	err := s.db.Where("user_id = ? AND status = ?", userId, model.SubscriptionStatusActive).
		First(&sub).Error
	if err == nil {
		sub.Plan = plan
		sub.AutoRenew = true
		if err := s.db.Save(&sub).Error; err != nil {
			return nil, fmt.Errorf("更新订阅失败: %w", err)
		}
		return &sub, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("查询订阅失败: %w", err)
	}

	sub = model.Subscription{
		UserId:    userId,
		Plan:      plan,
		Status:    model.SubscriptionStatusActive,
		AutoRenew: true,
	}
	if err := s.db.Create(&sub).Error; err != nil {
		return nil, fmt.Errorf("创建订阅失败: %w", err)
	}

	logger.Info("Subscription created: user %s plan %s", userId, plan)
	return &sub, nil
}

// Cancel 取消订阅，当月已发放的筹码不受影响
func (s *SubscriptionLogic) Cancel(userId string) error {
	res := s.db.Model(&model.Subscription{}).
		Where("user_id = ? AND status = ?", userId, model.SubscriptionStatusActive).
		Updates(map[string]interface{}{
			"status":     model.SubscriptionStatusCanceled,
			"auto_renew": false,
		})
	if res.Error != nil {
		return fmt.Errorf("取消订阅失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return cerr.ErrSubscriptionNotFound
	}

	logger.Info("Subscription canceled: user %s", userId)
	return nil
}

// GetSubscription 查询用户当前订阅
func (s *SubscriptionLogic) GetSubscription(userId string) (*model.Subscription, error) {
	var sub model.Subscription
	err := s.db.Where("user_id = ?", userId).
		Order("created_at DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, cerr.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询订阅失败: %w", err)
	}
	return &sub, nil
}

// GrantResult 月度发放结果
type GrantResult struct {
	Granted int
	Skipped int
	Failed  int
}

// GrantMonthly 月度订阅筹码发放
// 对 last_grant_month 不是当月的生效订阅逐个发放蓝筹码。
// 打标使用守卫更新（WHERE last_grant_month <> 当月），发放与打标同事务，
// 并发或重复执行只会发放一次。单个用户失败不影响其他用户
func (s *SubscriptionLogic) GrantMonthly(now time.Time) (GrantResult, error) {
	month := now.Format("2006-01")

	var subs []model.Subscription
	err := s.db.Where("status = ? AND auto_renew = ? AND last_grant_month <> ?",
		model.SubscriptionStatusActive, true, month).
		Find(&subs).Error
	if err != nil {
		return GrantResult{}, fmt.Errorf("查询待发放订阅失败: %w", err)
	}

	var result GrantResult
	for _, sub := range subs {
		granted, err := s.grantOne(&sub, month, now)
		switch {
		case err != nil:
			result.Failed++
			logger.Error("Monthly grant failed for user %s: %v", sub.UserId, err)
		case granted:
			result.Granted++
		default:
			result.Skipped++
		}
	}

	if result.Granted > 0 || result.Failed > 0 {
		logger.Info("Monthly subscription grant: %d granted, %d skipped, %d failed (month %s)",
			result.Granted, result.Skipped, result.Failed, month)
	}
	return result, nil
}

func (s *SubscriptionLogic) grantOne(sub *model.Subscription, month string, now time.Time) (bool, error) {
	chips, ok := model.SubscriptionPlanChips[sub.Plan]
	if !ok {
		return false, fmt.Errorf("未知的订阅套餐: %s", sub.Plan)
	}

	granted := false
	err := s.ledger.RunInTransaction(func(tx *gorm.DB) error {
		granted = false
		res := tx.Model(&model.Subscription{}).
			Where("id = ? AND last_grant_month <> ?", sub.Id, month).
			Update("last_grant_month", month)
		if res.Error != nil {
			return fmt.Errorf("更新发放标记失败: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// 本月已发放
			return nil
		}

		_, err := s.chips.GrantIn(tx, sub.UserId, model.ChipTypeBlue, chips,
			model.TxTypeSubscription,
			GrantMeta{Reason: fmt.Sprintf("%s套餐月度发放 (%s)", sub.Plan, month)})
		if err != nil {
			return err
		}
		granted = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if granted {
		go s.notifier.Notify(sub.UserId, notifier.EventChipGranted, map[string]interface{}{
			"chip_type": model.ChipTypeBlue,
			"amount":    chips,
			"plan":      sub.Plan,
			"month":     month,
		})
	}
	return granted, nil
}
