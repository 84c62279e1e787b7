package model

import (
	"time"
)

// ChipTransaction 筹码流水（只追加，不修改不删除）
// 按类型分组求和可以重建 ChipBalance，是审计的唯一依据
type ChipTransaction struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_chip_tx_user_created,priority:2"`

	UserId       string     `json:"user_id" gorm:"not null;index:idx_chip_tx_user_created,priority:1"`
	Type         string     `json:"type" gorm:"not null;index"` // purchase, subscription, bonus, use, expire, refund
	ChipType     ChipType   `json:"chip_type" gorm:"not null"`
	Amount       int64      `json:"amount" gorm:"not null"` // 带符号：发放为正，消耗为负
	ExpiresAt    *time.Time `json:"expires_at" gorm:"index"` // 仅发放类流水携带
	BalanceAfter int64      `json:"balance_after" gorm:"not null"` // 该类型筹码变动后的余额
	Reason       string     `json:"reason" gorm:"type:text"`

	// 业务关联信息
	OrderId     string `json:"order_id" gorm:"index"`
	PackageId   string `json:"package_id"`
	Price       int64  `json:"price"`
	RefundId    int64  `json:"refund_id"`
	DeductionId string `json:"deduction_id" gorm:"index"` // 同一次逻辑扣减的多条流水共享
}

// TableName 自定义表名
func (ChipTransaction) TableName() string {
	return "chip_transaction"
}

// 流水类型
const (
	TxTypePurchase     = "purchase"     // 充值购买
	TxTypeSubscription = "subscription" // 订阅发放
	TxTypeBonus        = "bonus"        // 活动赠送
	TxTypeUse          = "use"          // 功能消耗
	TxTypeExpire       = "expire"       // 过期回收
	TxTypeRefund       = "refund"       // 退款回收
)

// IssuanceTypes 发放类流水类型，过期清理只扫描这些
var IssuanceTypes = []string{TxTypePurchase, TxTypeSubscription, TxTypeBonus}

// IsIssuance 判断是否为发放类流水
func IsIssuance(txType string) bool {
	for _, t := range IssuanceTypes {
		if t == txType {
			return true
		}
	}
	return false
}
