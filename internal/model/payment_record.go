package model

import (
	"time"
)

// PaymentRecord 支付记录
// order_id 的唯一索引是幂等的最终保障：同一订单第二次确认必然失败
type PaymentRecord struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`

	OrderId    string `json:"order_id" gorm:"uniqueIndex;not null"`
	PaymentKey string `json:"payment_key" gorm:"uniqueIndex;not null"`
	UserId     string `json:"user_id" gorm:"not null;index"`
	PackageId  string `json:"package_id" gorm:"not null"`
	Amount     int64  `json:"amount" gorm:"not null"`
	ChipAmount int64  `json:"chip_amount" gorm:"not null"`
	Status     string `json:"status" gorm:"not null;default:'completed'"` // completed, failed

	GatewayResponse string `json:"gateway_response" gorm:"type:text"` // 网关原始返回
	FailureReason   string `json:"failure_reason" gorm:"type:text"`
}

// TableName 自定义表名
func (PaymentRecord) TableName() string {
	return "payment_record"
}

// 支付状态
const (
	PaymentStatusCompleted = "completed" // 成功
	PaymentStatusFailed    = "failed"    // 失败（订单号同样作废）
)
