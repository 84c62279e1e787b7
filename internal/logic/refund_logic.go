package logic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/uniqn/chip-service/internal/cerr"
	"github.com/uniqn/chip-service/internal/gateway"
	"github.com/uniqn/chip-service/internal/logger"
	"github.com/uniqn/chip-service/internal/model"
	"github.com/uniqn/chip-service/internal/notifier"
)

// RefundLogic 退款流程
// 用户发起申请（资格校验+费用计算），管理员批准后调用网关退款并回收筹码，
// 或驳回后无任何账务影响
type RefundLogic struct {
	db        *gorm.DB
	ledger    *LedgerLogic
	chips     *ChipLogic
	rateLimit *RateLimitLogic
	gateway   gateway.PaymentGateway
	notifier  notifier.Notifier
}

// NewRefundLogic 创建退款业务逻辑
func NewRefundLogic(
	db *gorm.DB,
	ledger *LedgerLogic,
	chips *ChipLogic,
	rateLimit *RateLimitLogic,
	gw gateway.PaymentGateway,
	n notifier.Notifier,
) *RefundLogic {
	return &RefundLogic{
		db:        db,
		ledger:    ledger,
		chips:     chips,
		rateLimit: rateLimit,
		gateway:   gw,
		notifier:  n,
	}
}

// RefundQuote 退款金额计算结果
type RefundQuote struct {
	UsedChips      int64
	RemainingChips int64
	RefundAmount   int64
	FeeAmount      int64
	FeePercentage  float64
}

// CalculateRefund 退款金额计算
// 单价 = 购买金额/购买筹码数；已使用时收取20%手续费，未使用免手续费；
// 金额向下取整
func CalculateRefund(purchasedAmount, purchasedChips, usedChips int64) RefundQuote {
	remaining := purchasedChips - usedChips
	if remaining < 0 {
		remaining = 0
	}

	pricePerChip := float64(purchasedAmount) / float64(purchasedChips)
	value := float64(remaining) * pricePerChip

	feeRate := model.RefundFullFee
	if usedChips > 0 {
		feeRate = model.RefundPartialFee
	}
	feeAmount := int64(math.Floor(value * feeRate))
	refundAmount := int64(math.Floor(value - float64(feeAmount)))

	return RefundQuote{
		UsedChips:      usedChips,
		RemainingChips: remaining,
		RefundAmount:   refundAmount,
		FeeAmount:      feeAmount,
		FeePercentage:  feeRate,
	}
}

// RequestRefund 用户发起退款申请
func (r *RefundLogic) RequestRefund(userId, orderId, reason, reasonDetail string) (*model.RefundRequest, error) {
	if err := r.rateLimit.Validate(userId, RateLimitRefund); err != nil {
		return nil, err
	}

	var payment model.PaymentRecord
	err := r.db.Where("order_id = ? AND status = ?", orderId, model.PaymentStatusCompleted).
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, cerr.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询支付记录失败: %w", err)
	}
	if payment.UserId != userId {
		return nil, cerr.ErrOrderUserMismatch
	}

	monthly, yearly, err := r.checkEligibility(userId, &payment)
	if err != nil {
		return nil, err
	}

	usedChips, err := r.usedChips(userId, orderId)
	if err != nil {
		return nil, err
	}
	quote := CalculateRefund(payment.Amount, payment.ChipAmount, usedChips)
	if quote.RemainingChips <= 0 {
		return nil, &cerr.RefundIneligibleError{Reason: "筹码已全部使用，无可退金额"}
	}

	request := &model.RefundRequest{
		UserId:             userId,
		OrderId:            orderId,
		PackageId:          payment.PackageId,
		PurchasedAmount:    payment.Amount,
		PurchasedChips:     payment.ChipAmount,
		UsedChips:          quote.UsedChips,
		RemainingChips:     quote.RemainingChips,
		RefundAmount:       quote.RefundAmount,
		FeeAmount:          quote.FeeAmount,
		FeePercentage:      quote.FeePercentage,
		Status:             model.RefundStatusPending,
		Reason:             reason,
		ReasonDetail:       reasonDetail,
		MonthlyRefundCount: monthly,
		YearlyRefundCount:  yearly,
	}
	if err := r.db.Create(request).Error; err != nil {
		// 部分唯一索引兜底并发申请：同一订单只保留一条未驳回的请求
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, &cerr.RefundIneligibleError{Reason: "该订单已有退款请求"}
		}
		return nil, fmt.Errorf("创建退款请求失败: %w", err)
	}

	logger.Info("Refund requested: user %s order %s amount %d fee %d",
		userId, orderId, quote.RefundAmount, quote.FeeAmount)
	return request, nil
}

// checkEligibility 退款资格校验，返回本月/本年已退款次数快照
func (r *RefundLogic) checkEligibility(userId string, payment *model.PaymentRecord) (int, int, error) {
	blacklisted, err := r.IsBlacklisted(userId)
	if err != nil {
		return 0, 0, err
	}
	if blacklisted {
		return 0, 0, &cerr.RefundIneligibleError{Reason: "已列入退款黑名单，无法申请退款"}
	}

	// 购买后7天内
	if time.Since(payment.CreatedAt) > model.RefundEligibleDays*24*time.Hour {
		return 0, 0, &cerr.RefundIneligibleError{
			Reason: fmt.Sprintf("购买已超过%d天，无法申请退款", model.RefundEligibleDays),
		}
	}

	// 同一订单不允许重复申请
	var dup int64
	err = r.db.Model(&model.RefundRequest{}).
		Where("order_id = ? AND status <> ?", payment.OrderId, model.RefundStatusRejected).
		Count(&dup).Error
	if err != nil {
		return 0, 0, fmt.Errorf("查询退款请求失败: %w", err)
	}
	if dup > 0 {
		return 0, 0, &cerr.RefundIneligibleError{Reason: "该订单已有退款请求"}
	}

	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	yearStart := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())

	monthly, err := r.completedRefundCount(userId, monthStart)
	if err != nil {
		return 0, 0, err
	}
	if monthly >= model.RefundMonthlyLimit {
		return 0, 0, &cerr.RefundIneligibleError{
			Reason: fmt.Sprintf("已达到每月退款上限(%d次)", model.RefundMonthlyLimit),
		}
	}

	yearly, err := r.completedRefundCount(userId, yearStart)
	if err != nil {
		return 0, 0, err
	}
	if yearly >= model.RefundYearlyLimit {
		return 0, 0, &cerr.RefundIneligibleError{
			Reason: fmt.Sprintf("已达到每年退款上限(%d次)", model.RefundYearlyLimit),
		}
	}

	return monthly, yearly, nil
}

func (r *RefundLogic) completedRefundCount(userId string, since time.Time) (int, error) {
	var count int64
	err := r.db.Model(&model.RefundRequest{}).
		Where("user_id = ? AND status = ? AND created_at >= ?", userId, model.RefundStatusCompleted, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("查询退款次数失败: %w", err)
	}
	return int(count), nil
}

// usedChips 统计该订单名下已消耗的筹码（带此订单号的use流水绝对值之和）
func (r *RefundLogic) usedChips(userId, orderId string) (int64, error) {
	var used int64
	err := r.db.Model(&model.ChipTransaction{}).
		Where("user_id = ? AND order_id = ? AND type = ?", userId, orderId, model.TxTypeUse).
		Select("COALESCE(SUM(-amount), 0)").
		Scan(&used).Error
	if err != nil {
		return 0, fmt.Errorf("统计已用筹码失败: %w", err)
	}
	return used, nil
}

// Approve 管理员批准退款
// 先调用网关退款，成功后在同一事务内回收筹码并置为 completed；
// 网关失败时请求保持 pending，不做任何账务变更
func (r *RefundLogic) Approve(ctx context.Context, refundId int64, adminId string) (*model.RefundRequest, error) {
	var request model.RefundRequest
	err := r.db.First(&request, refundId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, cerr.ErrRefundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询退款请求失败: %w", err)
	}
	if request.Status != model.RefundStatusPending {
		return nil, cerr.ErrRefundNotPending
	}

	payment, err := r.paymentFor(&request)
	if err != nil {
		return nil, err
	}

	gwResult, err := r.gateway.Cancel(ctx, payment.PaymentKey, request.RefundAmount, request.ReasonDetail)
	if err != nil {
		logger.Error("Gateway refund failed for request %d: %v", refundId, err)
		return nil, err
	}

	now := time.Now()
	err = r.ledger.RunInTransaction(func(tx *gorm.DB) error {
		// 状态守卫：并发批准只有一个能成功
		res := tx.Model(&model.RefundRequest{}).
			Where("id = ? AND status = ?", refundId, model.RefundStatusPending).
			Updates(map[string]interface{}{
				"status":           model.RefundStatusCompleted,
				"processed_by":     adminId,
				"processed_at":     now,
				"gateway_response": gwResult.Raw,
			})
		if res.Error != nil {
			return fmt.Errorf("更新退款请求失败: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return cerr.ErrRefundNotPending
		}

		// 回收剩余筹码。中途消耗导致余额不足时按当前余额回收
		claw := request.RemainingChips
		balance, err := r.ledger.GetBalanceIn(tx, request.UserId)
		if err != nil {
			return err
		}
		if claw > balance.TotalChips {
			claw = balance.TotalChips
		}
		if claw <= 0 {
			return nil
		}

		_, err = r.chips.DeductIn(tx, request.UserId, claw, model.TxTypeRefund,
			fmt.Sprintf("退款回收 (手续费: %d원)", request.FeeAmount),
			deductTags{OrderId: request.OrderId, RefundId: request.Id})
		return err
	})
	if err != nil {
		return nil, err
	}

	request.Status = model.RefundStatusCompleted
	request.ProcessedBy = adminId
	request.ProcessedAt = &now
	request.GatewayResponse = gwResult.Raw

	logger.Info("Refund approved: request %d user %s amount %d by admin %s",
		refundId, request.UserId, request.RefundAmount, adminId)

	go r.notifier.Notify(request.UserId, notifier.EventRefundCompleted, map[string]interface{}{
		"refund_id":     request.Id,
		"refund_amount": request.RefundAmount,
		"fee_amount":    request.FeeAmount,
	})
	return &request, nil
}

// Reject 管理员驳回退款，无账务影响
func (r *RefundLogic) Reject(refundId int64, adminId, rejectionReason string) error {
	now := time.Now()
	res := r.db.Model(&model.RefundRequest{}).
		Where("id = ? AND status = ?", refundId, model.RefundStatusPending).
		Updates(map[string]interface{}{
			"status":           model.RefundStatusRejected,
			"processed_by":     adminId,
			"processed_at":     now,
			"rejection_reason": rejectionReason,
		})
	if res.Error != nil {
		return fmt.Errorf("驳回退款请求失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.Model(&model.RefundRequest{}).Where("id = ?", refundId).Count(&count).Error; err == nil && count == 0 {
			return cerr.ErrRefundNotFound
		}
		return cerr.ErrRefundNotPending
	}

	logger.Info("Refund rejected: request %d by admin %s, reason: %s", refundId, adminId, rejectionReason)
	return nil
}

func (r *RefundLogic) paymentFor(request *model.RefundRequest) (*model.PaymentRecord, error) {
	var payment model.PaymentRecord
	err := r.db.Where("order_id = ?", request.OrderId).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, cerr.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询支付记录失败: %w", err)
	}
	return &payment, nil
}

// GetUserRefunds 分页查询用户退款请求
func (r *RefundLogic) GetUserRefunds(userId string, page, pageSize int) ([]model.RefundRequest, int64, error) {
	return r.listRefunds(r.db.Where("user_id = ?", userId), page, pageSize)
}

// GetRefundsByStatus 管理端按状态分页查询，status 为空时查全部
func (r *RefundLogic) GetRefundsByStatus(status string, page, pageSize int) ([]model.RefundRequest, int64, error) {
	query := r.db.Model(&model.RefundRequest{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	return r.listRefunds(query, page, pageSize)
}

func (r *RefundLogic) listRefunds(query *gorm.DB, page, pageSize int) ([]model.RefundRequest, int64, error) {
	var total int64
	if err := query.Model(&model.RefundRequest{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("查询退款请求总数失败: %w", err)
	}

	var requests []model.RefundRequest
	offset := (page - 1) * pageSize
	if err := query.Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&requests).Error; err != nil {
		return nil, 0, fmt.Errorf("查询退款请求失败: %w", err)
	}
	return requests, total, nil
}

// IsBlacklisted 查询用户是否在退款黑名单
func (r *RefundLogic) IsBlacklisted(userId string) (bool, error) {
	var count int64
	err := r.db.Model(&model.RefundBlacklist{}).Where("user_id = ?", userId).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("查询退款黑名单失败: %w", err)
	}
	return count > 0, nil
}

// AddToBlacklist 将用户加入退款黑名单
func (r *RefundLogic) AddToBlacklist(userId, reason, adminId string) error {
	entry := &model.RefundBlacklist{UserId: userId, Reason: reason, AddedBy: adminId}
	if err := r.db.Create(entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return fmt.Errorf("加入退款黑名单失败: %w", err)
	}
	return nil
}

// RemoveFromBlacklist 将用户移出退款黑名单
func (r *RefundLogic) RemoveFromBlacklist(userId string) error {
	if err := r.db.Where("user_id = ?", userId).Delete(&model.RefundBlacklist{}).Error; err != nil {
		return fmt.Errorf("移出退款黑名单失败: %w", err)
	}
	return nil
}
