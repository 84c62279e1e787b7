package model

import (
	"time"
)

// RefundRequest 退款请求
// 状态机：pending → completed（管理员批准）或 pending → rejected（管理员驳回）
type RefundRequest struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`

	UserId string `json:"user_id" gorm:"not null;index"`
	// 同一订单同时只允许一条未驳回的退款请求，部分唯一索引兜底并发创建
	OrderId string `json:"order_id" gorm:"not null;uniqueIndex:uidx_refund_request_active_order,where:status <> 'rejected'"`

	// 原始购买信息
	PackageId       string `json:"package_id"`
	PurchasedAmount int64  `json:"purchased_amount" gorm:"not null"`
	PurchasedChips  int64  `json:"purchased_chips" gorm:"not null"`

	// 使用情况与退款金额
	UsedChips      int64   `json:"used_chips" gorm:"not null"`
	RemainingChips int64   `json:"remaining_chips" gorm:"not null"`
	RefundAmount   int64   `json:"refund_amount" gorm:"not null"`
	FeeAmount      int64   `json:"fee_amount" gorm:"not null"`
	FeePercentage  float64 `json:"fee_percentage" gorm:"not null"`

	Status       string `json:"status" gorm:"not null;default:'pending';index"` // pending, completed, rejected
	Reason       string `json:"reason" gorm:"not null"`                         // unused, partial_use, dissatisfaction, error, other
	ReasonDetail string `json:"reason_detail" gorm:"type:text"`

	// 创建时刻的退款次数快照
	MonthlyRefundCount int `json:"monthly_refund_count"`
	YearlyRefundCount  int `json:"yearly_refund_count"`

	// 处理信息
	ProcessedBy     string     `json:"processed_by"`
	ProcessedAt     *time.Time `json:"processed_at"`
	RejectionReason string     `json:"rejection_reason" gorm:"type:text"`
	GatewayResponse string     `json:"gateway_response" gorm:"type:text"`
}

// TableName 自定义表名
func (RefundRequest) TableName() string {
	return "refund_request"
}

// 退款状态
const (
	RefundStatusPending   = "pending"   // 待管理员处理
	RefundStatusCompleted = "completed" // 已退款并回收筹码
	RefundStatusRejected  = "rejected"  // 已驳回，无账务影响
)

// 退款政策常量
const (
	RefundEligibleDays  = 7   // 购买后7天内可退
	RefundPartialFee    = 0.2 // 已使用时收取20%手续费
	RefundFullFee       = 0.0 // 未使用时免手续费
	RefundMonthlyLimit  = 1   // 每月1次
	RefundYearlyLimit   = 3   // 每年3次
)

// RefundBlacklist 退款黑名单（滥用退款的用户禁止再次申请）
type RefundBlacklist struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	UserId  string `json:"user_id" gorm:"uniqueIndex;not null"`
	Reason  string `json:"reason" gorm:"type:text"`
	AddedBy string `json:"added_by"`
}

// TableName 自定义表名
func (RefundBlacklist) TableName() string {
	return "refund_blacklist"
}
