package model

import (
	"time"
)

// RateLimitWindow 限流滑动窗口
// 按 (key, category) 一条记录，timestamps 保存窗口内的请求时间（unix毫秒，JSON数组）
// 每次检查时裁剪过期时间戳，janitor 定期删除 reset_at 已过的记录
type RateLimitWindow struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Key        string `json:"key" gorm:"not null;uniqueIndex:idx_rate_limit_key,priority:1"`
	Category   string `json:"category" gorm:"not null;uniqueIndex:idx_rate_limit_key,priority:2"`
	Timestamps string `json:"timestamps" gorm:"type:text;not null"`
	ResetAt    int64  `json:"reset_at" gorm:"not null;index"` // unix毫秒
}

// TableName 自定义表名
func (RateLimitWindow) TableName() string {
	return "rate_limit_window"
}
