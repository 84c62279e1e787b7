package logic

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/uniqn/chip-service/internal/cerr"
	"github.com/uniqn/chip-service/internal/model"
	"github.com/uniqn/chip-service/internal/notifier"
)

// ChipLogic 筹码发放与扣减
// 发放：红筹码365天后过期，蓝筹码次月1日0点过期
// 扣减：固定先蓝后红，不支持部分扣减
type ChipLogic struct {
	db       *gorm.DB
	ledger   *LedgerLogic
	notifier notifier.Notifier
}

// NewChipLogic 创建筹码业务逻辑
func NewChipLogic(db *gorm.DB, ledger *LedgerLogic, n notifier.Notifier) *ChipLogic {
	return &ChipLogic{db: db, ledger: ledger, notifier: n}
}

// GrantMeta 发放流水的业务信息
type GrantMeta struct {
	Reason    string
	OrderId   string
	PackageId string
	Price     int64
}

// Grant 发放筹码（独立事务）
func (c *ChipLogic) Grant(userId string, chipType model.ChipType, amount int64, txType string, meta GrantMeta) (*model.ChipBalance, error) {
	var balance *model.ChipBalance
	err := c.ledger.RunInTransaction(func(tx *gorm.DB) error {
		b, err := c.GrantIn(tx, userId, chipType, amount, txType, meta)
		if err != nil {
			return err
		}
		balance = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	go c.notifier.Notify(userId, notifier.EventChipGranted, map[string]interface{}{
		"chip_type": chipType,
		"amount":    amount,
		"type":      txType,
	})
	return balance, nil
}

// GrantIn 在已有事务内发放筹码
func (c *ChipLogic) GrantIn(tx *gorm.DB, userId string, chipType model.ChipType, amount int64, txType string, meta GrantMeta) (*model.ChipBalance, error) {
	if amount <= 0 {
		return nil, cerr.ErrInvalidAmount
	}
	if !chipType.Valid() {
		return nil, cerr.ErrInvalidChipType
	}
	if !model.IsIssuance(txType) {
		return nil, fmt.Errorf("非发放类流水类型: %s", txType)
	}

	expiresAt := ExpiryFor(chipType, time.Now())
	return c.ledger.ApplyDeltasIn(tx, userId, []ChipDelta{{
		ChipType:  chipType,
		Amount:    amount,
		TxType:    txType,
		ExpiresAt: &expiresAt,
		Reason:    meta.Reason,
		OrderId:   meta.OrderId,
		PackageId: meta.PackageId,
		Price:     meta.Price,
	}})
}

// Deduct 消耗筹码支付平台功能（独立事务）
func (c *ChipLogic) Deduct(userId string, amount int64, reason string) (*model.ChipBalance, error) {
	var balance *model.ChipBalance
	err := c.ledger.RunInTransaction(func(tx *gorm.DB) error {
		b, err := c.DeductIn(tx, userId, amount, model.TxTypeUse, reason, deductTags{})
		if err != nil {
			return err
		}
		balance = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// deductTags 扣减流水的业务关联
type deductTags struct {
	OrderId  string
	RefundId int64
}

// DeductIn 在已有事务内扣减筹码，先蓝后红
func (c *ChipLogic) DeductIn(tx *gorm.DB, userId string, amount int64, txType, reason string, tags deductTags) (*model.ChipBalance, error) {
	if amount <= 0 {
		return nil, cerr.ErrInvalidAmount
	}

	var balance model.ChipBalance
	err := tx.Where("user_id = ?", userId).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, cerr.ErrInsufficientBalance
	}
	if err != nil {
		return nil, fmt.Errorf("查询筹码余额失败: %w", err)
	}
	if balance.TotalChips < amount {
		return nil, cerr.ErrInsufficientBalance
	}

	// 蓝筹码优先，不足部分由红筹码补足。这是固定业务策略，不可配置
	fromBlue := balance.BlueChips
	if fromBlue > amount {
		fromBlue = amount
	}
	fromRed := amount - fromBlue

	deductionId := uuid.NewString()
	deltas := make([]ChipDelta, 0, 2)
	if fromBlue > 0 {
		deltas = append(deltas, ChipDelta{
			ChipType:    model.ChipTypeBlue,
			Amount:      -fromBlue,
			TxType:      txType,
			Reason:      reason,
			OrderId:     tags.OrderId,
			RefundId:    tags.RefundId,
			DeductionId: deductionId,
		})
	}
	if fromRed > 0 {
		deltas = append(deltas, ChipDelta{
			ChipType:    model.ChipTypeRed,
			Amount:      -fromRed,
			TxType:      txType,
			Reason:      reason,
			OrderId:     tags.OrderId,
			RefundId:    tags.RefundId,
			DeductionId: deductionId,
		})
	}

	return c.ledger.ApplyDeltasIn(tx, userId, deltas)
}

// ExpiryFor 计算筹码过期时间
func ExpiryFor(chipType model.ChipType, now time.Time) time.Time {
	if chipType == model.ChipTypeRed {
		return now.AddDate(0, 0, 365)
	}
	// 蓝筹码：次月1日 00:00
	return time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, now.Location())
}

// SweepResult 单个用户的过期清理结果
type SweepResult struct {
	RedExpired  int64
	BlueExpired int64
}

// SweepUser 回收单个用户的过期筹码
// 发放流水在最近一次 expire 流水之后到期且已到期的才参与回收，
// 因此同一笔发放最多被回收一次；回收量不超过该类型当前余额
func (c *ChipLogic) SweepUser(userId string, now time.Time) (SweepResult, error) {
	var result SweepResult
	err := c.ledger.RunInTransaction(func(tx *gorm.DB) error {
		result = SweepResult{}

		var balance model.ChipBalance
		err := tx.Where("user_id = ?", userId).First(&balance).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("查询筹码余额失败: %w", err)
		}

		deltas := make([]ChipDelta, 0, 2)
		for _, chipType := range []model.ChipType{model.ChipTypeRed, model.ChipTypeBlue} {
			due, err := c.dueAmount(tx, userId, chipType, now)
			if err != nil {
				return err
			}
			if due <= 0 {
				continue
			}
			// 已消耗的部分不再回收
			if held := balance.Amount(chipType); due > held {
				due = held
			}
			if due <= 0 {
				continue
			}

			deltas = append(deltas, ChipDelta{
				ChipType: chipType,
				Amount:   -due,
				TxType:   model.TxTypeExpire,
				Reason:   fmt.Sprintf("%s筹码到期回收", chipType),
			})
			if chipType == model.ChipTypeRed {
				result.RedExpired = due
			} else {
				result.BlueExpired = due
			}
		}

		if len(deltas) == 0 {
			return nil
		}
		_, err = c.ledger.ApplyDeltasIn(tx, userId, deltas)
		return err
	})
	if err != nil {
		return SweepResult{}, err
	}

	if result.RedExpired > 0 || result.BlueExpired > 0 {
		go c.notifier.Notify(userId, notifier.EventChipExpired, map[string]interface{}{
			"red_expired":  result.RedExpired,
			"blue_expired": result.BlueExpired,
		})
	}
	return result, nil
}

// dueAmount 统计某类型筹码中已到期且尚未回收的发放总量
func (c *ChipLogic) dueAmount(tx *gorm.DB, userId string, chipType model.ChipType, now time.Time) (int64, error) {
	// 上一次回收的时间是水位线：到期时间在水位线之前的发放都已处理过
	var watermark time.Time
	var lastExpire model.ChipTransaction
	err := tx.Where("user_id = ? AND chip_type = ? AND type = ?", userId, chipType, model.TxTypeExpire).
		Order("created_at DESC, id DESC").
		First(&lastExpire).Error
	if err == nil {
		watermark = lastExpire.CreatedAt
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("查询回收水位线失败: %w", err)
	}

	var due int64
	err = tx.Model(&model.ChipTransaction{}).
		Where("user_id = ? AND chip_type = ? AND type IN ?", userId, chipType, model.IssuanceTypes).
		Where("expires_at <= ? AND expires_at > ?", now, watermark).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&due).Error
	if err != nil {
		return 0, fmt.Errorf("统计到期筹码失败: %w", err)
	}
	return due, nil
}

// ListDueUserIds 查询存在待回收发放流水的用户，供清理任务分发
// 到期时间已落在回收水位线之内的发放不再让用户重复入列
func (c *ChipLogic) ListDueUserIds(now time.Time) ([]string, error) {
	var userIds []string
	err := c.db.Model(&model.ChipTransaction{}).
		Where("type IN ? AND expires_at <= ?", model.IssuanceTypes, now).
		Where("NOT EXISTS (SELECT 1 FROM chip_transaction e"+
			" WHERE e.user_id = chip_transaction.user_id"+
			" AND e.chip_type = chip_transaction.chip_type"+
			" AND e.type = ? AND e.created_at >= chip_transaction.expires_at)", model.TxTypeExpire).
		Distinct("user_id").
		Pluck("user_id", &userIds).Error
	if err != nil {
		return nil, fmt.Errorf("查询到期用户失败: %w", err)
	}
	return userIds, nil
}
