package model

import (
	"time"
)

// ChipBalance 用户筹码余额（每个用户一条，首次发放时懒创建）
// 只允许通过 ledger 的原子原语修改，version 字段用于乐观锁
type ChipBalance struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserId        string    `json:"user_id" gorm:"uniqueIndex;not null"`
	RedChips      int64     `json:"red_chips" gorm:"not null;default:0"`
	BlueChips     int64     `json:"blue_chips" gorm:"not null;default:0"`
	TotalChips    int64     `json:"total_chips" gorm:"not null;default:0"` // 恒等于 red + blue
	Version       int64     `json:"version" gorm:"not null;default:0"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// TableName 自定义表名
func (ChipBalance) TableName() string {
	return "chip_balance"
}

// ChipType 筹码类型
type ChipType string

const (
	ChipTypeRed  ChipType = "red"  // 红筹码：购买获得，365天后过期
	ChipTypeBlue ChipType = "blue" // 蓝筹码：订阅发放，次月1日过期
)

// Valid 校验筹码类型
func (t ChipType) Valid() bool {
	return t == ChipTypeRed || t == ChipTypeBlue
}

// Amount 返回指定类型的余额
func (b *ChipBalance) Amount(t ChipType) int64 {
	if t == ChipTypeRed {
		return b.RedChips
	}
	return b.BlueChips
}
