package logic

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/uniqn/chip-service/internal/cerr"
	"github.com/uniqn/chip-service/internal/logger"
	"github.com/uniqn/chip-service/internal/model"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Category    string
	WindowMs    int64
	MaxRequests int
}

// 限流分类配置
var (
	RateLimitPayment = RateLimitConfig{Category: "payment", WindowMs: 60_000, MaxRequests: 5}
	RateLimitRefund  = RateLimitConfig{Category: "refund", WindowMs: 60_000, MaxRequests: 3}
	RateLimitGeneral = RateLimitConfig{Category: "general", WindowMs: 60_000, MaxRequests: 30}
	RateLimitIP      = RateLimitConfig{Category: "ip", WindowMs: 60_000, MaxRequests: 100}
)

// RateLimitResult 限流检查结果
type RateLimitResult struct {
	Allowed           bool
	RemainingRequests int
	ResetAt           int64 // unix毫秒
	RetryAfter        int   // 秒
}

// RateLimitLogic 滑动窗口限流
// 基础设施故障时放行请求（可用性优先于严格限流）
type RateLimitLogic struct {
	db *gorm.DB
}

// NewRateLimitLogic 创建限流逻辑
func NewRateLimitLogic(db *gorm.DB) *RateLimitLogic {
	return &RateLimitLogic{db: db}
}

// Check 检查并记录一次请求
// 窗口更新是对 timestamps 列的比较交换：并发写入时失败方重试整次检查
func (r *RateLimitLogic) Check(key string, cfg RateLimitConfig) RateLimitResult {
	for i := 0; i < maxConflictRetries; i++ {
		result, err := r.checkOnce(key, cfg)
		if err == nil {
			return result
		}
		if !errors.Is(err, errVersionConflict) {
			// 基础设施故障时放行
			logger.Error("Rate limit check failed for key %s category %s: %v", key, cfg.Category, err)
			return RateLimitResult{Allowed: true, RemainingRequests: cfg.MaxRequests, ResetAt: time.Now().UnixMilli() + cfg.WindowMs}
		}
	}
	logger.Error("Rate limit check contention for key %s category %s, allowing request", key, cfg.Category)
	return RateLimitResult{Allowed: true, RemainingRequests: cfg.MaxRequests, ResetAt: time.Now().UnixMilli() + cfg.WindowMs}
}

func (r *RateLimitLogic) checkOnce(key string, cfg RateLimitConfig) (RateLimitResult, error) {
	now := time.Now().UnixMilli()
	windowStart := now - cfg.WindowMs
	resetAt := now + cfg.WindowMs

	var window model.RateLimitWindow
	err := r.db.Where("key = ? AND category = ?", key, cfg.Category).
		First(&window).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		window = model.RateLimitWindow{
			Key:        key,
			Category:   cfg.Category,
			Timestamps: mustMarshalTimestamps([]int64{now}),
			ResetAt:    resetAt,
		}
		if err := r.db.Create(&window).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return RateLimitResult{}, errVersionConflict
			}
			return RateLimitResult{}, err
		}
		return RateLimitResult{Allowed: true, RemainingRequests: cfg.MaxRequests - 1, ResetAt: resetAt}, nil
	}
	if err != nil {
		return RateLimitResult{}, err
	}

	// 裁剪窗口外的时间戳
	timestamps := unmarshalTimestamps(window.Timestamps)
	valid := timestamps[:0]
	for _, ts := range timestamps {
		if ts > windowStart {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= cfg.MaxRequests {
		oldest := valid[0]
		retryAfter := int((oldest + cfg.WindowMs - now + 999) / 1000)
		if retryAfter < 1 {
			retryAfter = 1
		}
		logger.Warn("Rate limit exceeded for key %s category %s: %d/%d requests",
			key, cfg.Category, len(valid), cfg.MaxRequests)
		return RateLimitResult{
			Allowed:    false,
			ResetAt:    oldest + cfg.WindowMs,
			RetryAfter: retryAfter,
		}, nil
	}

	valid = append(valid, now)
	res := r.db.Model(&model.RateLimitWindow{}).
		Where("id = ? AND timestamps = ?", window.Id, window.Timestamps).
		Updates(map[string]interface{}{
			"timestamps": mustMarshalTimestamps(valid),
			"reset_at":   resetAt,
		})
	if res.Error != nil {
		return RateLimitResult{}, res.Error
	}
	if res.RowsAffected == 0 {
		return RateLimitResult{}, errVersionConflict
	}

	return RateLimitResult{
		Allowed:           true,
		RemainingRequests: cfg.MaxRequests - len(valid),
		ResetAt:           resetAt,
	}, nil
}

// Validate 检查限流并在超限时返回错误
func (r *RateLimitLogic) Validate(key string, cfg RateLimitConfig) error {
	result := r.Check(key, cfg)
	if !result.Allowed {
		return &cerr.RateLimitError{RetryAfter: result.RetryAfter}
	}
	return nil
}

// CheckIP 按IP限流，IPv6映射的IPv4地址先归一化
func (r *RateLimitLogic) CheckIP(ip string) RateLimitResult {
	normalized := strings.TrimPrefix(ip, "::ffff:")
	return r.Check(normalized, RateLimitIP)
}

// Reset 清空某个key的窗口（测试用）
func (r *RateLimitLogic) Reset(key string, cfg RateLimitConfig) error {
	return r.db.Where("key = ? AND category = ?", key, cfg.Category).
		Delete(&model.RateLimitWindow{}).Error
}

// CleanupExpired 删除已过期的限流窗口，janitor 定期调用
func (r *RateLimitLogic) CleanupExpired() (int64, error) {
	res := r.db.Where("reset_at < ?", time.Now().UnixMilli()).
		Delete(&model.RateLimitWindow{})
	if res.Error != nil {
		return 0, fmt.Errorf("清理过期限流窗口失败: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func mustMarshalTimestamps(ts []int64) string {
	data, _ := json.Marshal(ts)
	return string(data)
}

func unmarshalTimestamps(raw string) []int64 {
	var ts []int64
	if err := json.Unmarshal([]byte(raw), &ts); err != nil {
		return nil
	}
	return ts
}
