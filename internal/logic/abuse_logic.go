package logic

import (
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/uniqn/chip-service/internal/logger"
	"github.com/uniqn/chip-service/internal/model"
)

// AbuseLogic 支付滥用启发式检测
// 只读评分，不修改账本；评分失败时视为无风险（可用性优先）
type AbuseLogic struct {
	db *gorm.DB
}

// NewAbuseLogic 创建滥用检测逻辑
func NewAbuseLogic(db *gorm.DB) *AbuseLogic {
	return &AbuseLogic{db: db}
}

// AbuseResult 检测结果
type AbuseResult struct {
	IsAbusive bool
	RiskScore float64
	Reason    string
}

// abuseThreshold 风险分数达到该值判定为滥用
const abuseThreshold = 0.7

// Score 基于最近1小时的支付记录累计风险分数
// 四个独立信号：尝试次数≥10 (+0.3)，失败率≥50% (+0.3)，
// 相同金额≥5次 (+0.2)，间隔<5秒的连续尝试≥3次 (+0.2)
func (a *AbuseLogic) Score(userId string) AbuseResult {
	oneHourAgo := time.Now().Add(-time.Hour)

	var records []model.PaymentRecord
	err := a.db.Where("user_id = ? AND created_at >= ?", userId, oneHourAgo).
		Find(&records).Error
	if err != nil {
		logger.Error("Failed to load payment records for abuse scoring, user %s: %v", userId, err)
		return AbuseResult{IsAbusive: false, RiskScore: 0}
	}
	if len(records) == 0 {
		return AbuseResult{IsAbusive: false, RiskScore: 0}
	}

	var score float64

	// 1小时内10次以上支付尝试
	if len(records) >= 10 {
		score += 0.3
	}

	// 失败比例50%以上
	failed := 0
	for _, r := range records {
		if r.Status == model.PaymentStatusFailed {
			failed++
		}
	}
	if float64(failed)/float64(len(records)) >= 0.5 {
		score += 0.3
	}

	// 相同金额反复尝试
	amountCounts := make(map[int64]int)
	for _, r := range records {
		amountCounts[r.Amount]++
	}
	for _, n := range amountCounts {
		if n >= 5 {
			score += 0.2
			break
		}
	}

	// 5秒内的连续尝试
	timestamps := make([]int64, 0, len(records))
	for _, r := range records {
		timestamps = append(timestamps, r.CreatedAt.UnixMilli())
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })
	consecutive := 0
	for i := 1; i < len(timestamps); i++ {
		if timestamps[i]-timestamps[i-1] < 5000 {
			consecutive++
		}
	}
	if consecutive >= 3 {
		score += 0.2
	}

	if score >= abuseThreshold {
		logger.Warn("Abuse pattern detected for user %s: score %.2f, %d attempts, %d failed",
			userId, score, len(records), failed)
		return AbuseResult{IsAbusive: true, RiskScore: score, Reason: "检测到异常支付行为"}
	}

	return AbuseResult{IsAbusive: false, RiskScore: score}
}
