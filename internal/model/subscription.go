package model

import (
	"time"
)

// Subscription 订阅记录
// last_grant_month 是月度发放的幂等标记，发放与打标在同一事务内完成
type Subscription struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserId         string `json:"user_id" gorm:"not null;index"`
	Plan           string `json:"plan" gorm:"not null"` // basic, standard, premium
	Status         string `json:"status" gorm:"not null;default:'active';index"`
	AutoRenew      bool   `json:"auto_renew" gorm:"not null;default:true"`
	LastGrantMonth string `json:"last_grant_month"` // "2025-09" 格式
}

// TableName 自定义表名
func (Subscription) TableName() string {
	return "subscription"
}

// 订阅状态
const (
	SubscriptionStatusActive   = "active"   // 生效中
	SubscriptionStatusCanceled = "canceled" // 已取消
	SubscriptionStatusExpired  = "expired"  // 已到期
)
