package logic

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/uniqn/chip-service/internal/cerr"
	"github.com/uniqn/chip-service/internal/model"
)

// LedgerLogic 筹码账本
// 余额的唯一修改入口：读余额、算新值、拒绝负数、写余额、追加流水，全部在
// 一个事务内完成，乐观锁冲突时整体重试
type LedgerLogic struct {
	db *gorm.DB
}

// NewLedgerLogic 创建筹码账本
func NewLedgerLogic(db *gorm.DB) *LedgerLogic {
	return &LedgerLogic{db: db}
}

// ChipDelta 一次余额变动及其流水模板
type ChipDelta struct {
	ChipType    model.ChipType
	Amount      int64 // 带符号
	TxType      string
	ExpiresAt   *time.Time
	Reason      string
	OrderId     string
	PackageId   string
	Price       int64
	RefundId    int64
	DeductionId string
}

// errVersionConflict 乐观锁冲突，调用方重试
var errVersionConflict = errors.New("balance version conflict")

const maxConflictRetries = 3

// GetBalance 查询用户余额，不存在时返回零值（不落库）
func (l *LedgerLogic) GetBalance(userId string) (*model.ChipBalance, error) {
	var balance model.ChipBalance
	err := l.db.Where("user_id = ?", userId).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.ChipBalance{UserId: userId}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询筹码余额失败: %w", err)
	}
	return &balance, nil
}

// GetBalanceIn 在已有事务内查询用户余额，不存在时返回零值
func (l *LedgerLogic) GetBalanceIn(tx *gorm.DB, userId string) (*model.ChipBalance, error) {
	var balance model.ChipBalance
	err := tx.Where("user_id = ?", userId).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.ChipBalance{UserId: userId}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询筹码余额失败: %w", err)
	}
	return &balance, nil
}

// ApplyDelta 应用单笔余额变动（独立事务，冲突自动重试）
func (l *LedgerLogic) ApplyDelta(userId string, delta ChipDelta) (*model.ChipBalance, error) {
	return l.ApplyDeltas(userId, delta)
}

// ApplyDeltas 在一个事务内应用多笔余额变动，全部成功或全部回滚
func (l *LedgerLogic) ApplyDeltas(userId string, deltas ...ChipDelta) (*model.ChipBalance, error) {
	var result *model.ChipBalance
	err := l.RunInTransaction(func(tx *gorm.DB) error {
		balance, err := l.ApplyDeltasIn(tx, userId, deltas)
		if err != nil {
			return err
		}
		result = balance
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RunInTransaction 在事务内执行 fn，版本冲突时重试整个事务
func (l *LedgerLogic) RunInTransaction(fn func(tx *gorm.DB) error) error {
	var err error
	for i := 0; i < maxConflictRetries; i++ {
		err = l.db.Transaction(fn)
		if !errors.Is(err, errVersionConflict) {
			return err
		}
	}
	return fmt.Errorf("余额写入冲突重试超限: %w", err)
}

// ApplyDeltasIn 在已有事务内应用余额变动（不重试，冲突向上传递）
func (l *LedgerLogic) ApplyDeltasIn(tx *gorm.DB, userId string, deltas []ChipDelta) (*model.ChipBalance, error) {
	if len(deltas) == 0 {
		return nil, errors.New("余额变动不能为空")
	}
	for _, d := range deltas {
		if !d.ChipType.Valid() {
			return nil, cerr.ErrInvalidChipType
		}
		if d.Amount == 0 {
			return nil, cerr.ErrInvalidAmount
		}
	}

	balance, err := l.loadOrCreate(tx, userId)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	newRed := balance.RedChips
	newBlue := balance.BlueChips
	txRows := make([]model.ChipTransaction, 0, len(deltas))

	for _, d := range deltas {
		if d.ChipType == model.ChipTypeRed {
			newRed += d.Amount
		} else {
			newBlue += d.Amount
		}
		if newRed < 0 || newBlue < 0 {
			return nil, cerr.ErrInsufficientBalance
		}

		balanceAfter := newRed
		if d.ChipType == model.ChipTypeBlue {
			balanceAfter = newBlue
		}
		txRows = append(txRows, model.ChipTransaction{
			UserId:       userId,
			Type:         d.TxType,
			ChipType:     d.ChipType,
			Amount:       d.Amount,
			ExpiresAt:    d.ExpiresAt,
			BalanceAfter: balanceAfter,
			Reason:       d.Reason,
			OrderId:      d.OrderId,
			PackageId:    d.PackageId,
			Price:        d.Price,
			RefundId:     d.RefundId,
			DeductionId:  d.DeductionId,
			CreatedAt:    now,
		})
	}

	// 乐观锁更新：版本不匹配说明有并发写入，整个事务重试
	res := tx.Model(&model.ChipBalance{}).
		Where("id = ? AND version = ?", balance.Id, balance.Version).
		Updates(map[string]interface{}{
			"red_chips":       newRed,
			"blue_chips":      newBlue,
			"total_chips":     newRed + newBlue,
			"version":         balance.Version + 1,
			"last_updated_at": now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("更新筹码余额失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errVersionConflict
	}

	if err := tx.Create(&txRows).Error; err != nil {
		return nil, fmt.Errorf("写入筹码流水失败: %w", err)
	}

	balance.RedChips = newRed
	balance.BlueChips = newBlue
	balance.TotalChips = newRed + newBlue
	balance.Version++
	balance.LastUpdatedAt = now
	return balance, nil
}

// loadOrCreate 加载余额记录，不存在时懒创建
func (l *LedgerLogic) loadOrCreate(tx *gorm.DB, userId string) (*model.ChipBalance, error) {
	var balance model.ChipBalance
	err := tx.Where("user_id = ?", userId).First(&balance).Error
	if err == nil {
		return &balance, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("查询筹码余额失败: %w", err)
	}

	balance = model.ChipBalance{UserId: userId, LastUpdatedAt: time.Now()}
	if err := tx.Create(&balance).Error; err != nil {
		// 并发懒创建冲突，按版本冲突处理交由上层重试
		return nil, errVersionConflict
	}
	return &balance, nil
}

// GetTransactions 分页查询用户流水，txType 为空时不过滤
func (l *LedgerLogic) GetTransactions(userId, txType string, page, pageSize int) ([]model.ChipTransaction, int64, error) {
	query := l.db.Model(&model.ChipTransaction{}).Where("user_id = ?", userId)
	if txType != "" {
		query = query.Where("type = ?", txType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("查询流水总数失败: %w", err)
	}

	var txs []model.ChipTransaction
	offset := (page - 1) * pageSize
	if err := query.Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&txs).Error; err != nil {
		return nil, 0, fmt.Errorf("查询流水失败: %w", err)
	}

	return txs, total, nil
}
